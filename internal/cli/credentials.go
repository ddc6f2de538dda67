package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Credentials are the server and token saved by login.
type Credentials struct {
	Server string `yaml:"server"`
	Token  string `yaml:"token,omitempty"`

	path string
}

// DefaultCredentialsPath returns the credentials file in the user config
// directory.
func DefaultCredentialsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "docshelf", "credentials.yaml"), nil
}

// LoadCredentials reads path, or the default location when path is empty.
// A missing file yields empty credentials.
func LoadCredentials(path string) (*Credentials, error) {
	if path == "" {
		p, err := DefaultCredentialsPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	creds := &Credentials{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return creds, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return creds, nil
}

// Save writes the credentials with owner-only permissions.
func (c *Credentials) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0600)
}

// Path returns the file the credentials are stored in.
func (c *Credentials) Path() string { return c.path }
