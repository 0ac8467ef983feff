package platform

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/keel/pkg/adapters/blob"
)

// ConfigFileName is the optional settings file at the root.
const ConfigFileName = "keel.yaml"

// DefaultSystemDir is the hidden directory used when none is configured.
const DefaultSystemDir = ".keel"

// FileConfig mirrors keel.yaml.
//
//	systemDir: .keel
//	readOnly: false
//	transactionsCategory: transactions
//	archive:
//	  driver: s3
//	  bucket: audit-archive
//	  region: eu-west-1
type FileConfig struct {
	SystemDir            string      `yaml:"systemDir"`
	ReadOnly             bool        `yaml:"readOnly"`
	TransactionsCategory string      `yaml:"transactionsCategory"`
	Archive              blob.Config `yaml:"archive"`
}

// LoadConfig reads a keel.yaml file. A missing file yields a zero config
// and no error.
func LoadConfig(path string) (FileConfig, error) {
	var cfg FileConfig
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("invalid %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}
