package reconciler

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Declared is the raw desired configuration as the user wrote it
type Declared struct {
	SetupScript          string `yaml:"setup-script" json:"setup-script"`
	EnvironmentVariables string `yaml:"environment-variables" json:"environment-variables"`
}

// Source provides the declared configuration
type Source interface {
	Load() (Declared, error)
}

// FileSource reads the declared configuration from a YAML document
type FileSource struct {
	Path string
}

// NewFileSource creates a FileSource
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Load reads and decodes the document. A missing file declares nothing; an
// unreadable one is invalid configuration.
func (f *FileSource) Load() (Declared, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return Declared{}, nil
	}
	if err != nil {
		return Declared{}, fmt.Errorf("%w: failed to read desired config: %v", ErrConfigInvalid, err)
	}

	var d Declared
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Declared{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return d.normalize(), nil
}

// StaticSource always returns the same declaration
type StaticSource Declared

func (s StaticSource) Load() (Declared, error) {
	return Declared(s).normalize(), nil
}

// normalize turns whitespace-only values into absent ones
func (d Declared) normalize() Declared {
	if strings.TrimSpace(d.SetupScript) == "" {
		d.SetupScript = ""
	}
	if strings.TrimSpace(d.EnvironmentVariables) == "" {
		d.EnvironmentVariables = ""
	}
	return d
}
