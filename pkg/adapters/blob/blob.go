// Package blob provides archive sinks for audit log snapshots.
package blob

import (
	"context"
	"fmt"

	"github.com/aretw0/keel/pkg/core"
)

// Driver names an archive backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
)

// Config selects and configures an archive sink. It maps one to one onto
// the archive section of keel.yaml.
type Config struct {
	Driver    Driver `yaml:"driver"`
	Path      string `yaml:"path"`   // fs: root directory
	Bucket    string `yaml:"bucket"` // s3
	Prefix    string `yaml:"prefix"` // s3: key prefix
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"` // s3: custom endpoint (MinIO, localstack)
	PathStyle bool   `yaml:"pathStyle"`
}

// Open builds the sink described by cfg. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (core.ArchiveSink, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.Path)
	case DriverS3:
		return NewS3(ctx, S3Config{
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			PathStyle: cfg.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown archive driver %s", cfg.Driver)
	}
}
