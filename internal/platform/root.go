package platform

import (
	"fmt"
	"os"
	"path/filepath"
)

// FindRoot looks upwards from startDir for a keel root.
// Indicators are: a .keel directory or a keel.yaml file.
// If found, returns the absolute path to the root.
func FindRoot(startDir string) (string, error) {
	return findRoot(startDir, DefaultSystemDir)
}

func findRoot(startDir, systemDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		if hasFile(dir, systemDir) || hasFile(dir, ConfigFileName) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("no %s or %s found above %s", systemDir, ConfigFileName, abs)
}

func hasFile(dir, name string) bool {
	path := filepath.Join(dir, name)
	_, err := os.Stat(path)
	return err == nil
}
