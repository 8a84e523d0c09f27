// Package config reads the optional per-project tinify.yml file.
//
// The file carries compression defaults only; credentials never live in it.
// Fields are pointer-typed so callers can distinguish "absent" from a zero
// value when merging the file into session defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/fpang/tinyimg/internal/pathutil"
)

// DefaultFileName is the config file looked up by project discovery.
const DefaultFileName = "tinify.yml"

// File is the parsed shape of tinify.yml.
type File struct {
	Overwrite  *bool   `yaml:"overwrite"`
	Suffix     *string `yaml:"suffix"`
	Quiet      *bool   `yaml:"quiet"`
	ReturnPath *string `yaml:"return_path"`
	Resize     *Resize `yaml:"resize"`
}

// Resize is the resize block of tinify.yml. Width and height are zero
// when the key is absent.
type Resize struct {
	Method string `yaml:"method"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// Parse decodes tinify.yml contents.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", DefaultFileName, err)
	}
	return &f, nil
}

// Load reads and parses the config file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Discover walks from startDir toward the filesystem root and returns the
// path of the nearest tinify.yml. ok is false when no ancestor has one.
func Discover(startDir string) (path string, ok bool) {
	dir, found := pathutil.FindUp(startDir, []string{DefaultFileName})
	if !found {
		return "", false
	}
	return filepath.Join(dir, DefaultFileName), true
}
