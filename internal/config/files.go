package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// ResolvePath anchors a relative file name at the working directory.
func ResolvePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return filepath.Join(wd, file), nil
}

// LoadYAML reads file and unmarshals it into out.
func LoadYAML(file string, out any) error {
	path, err := ResolvePath(file)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", file, err)
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unable to parse %s: %w", file, err)
	}
	return nil
}
