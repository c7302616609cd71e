// Package config provides configuration management for GoPoolServer.
// It supports JSON and YAML configuration files layered over safe defaults.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/firasghr/GoPoolServer/logger"
)

// RequestPrefix is the literal request line that selects the index page.
const RequestPrefix = "GET / HTTP/1.1\r\n"

// Config holds all tunable parameters for the server.
// It is loaded once at startup and then shared across goroutines as a
// read-only value.
type Config struct {
	// Address is the TCP host:port the listener binds to.
	Address string `json:"address" yaml:"address"`

	// Workers is the fixed number of pool workers.  Must be positive.
	Workers int `json:"workers" yaml:"workers"`

	// DocumentRoot is the directory IndexFile and NotFoundFile are read from.
	DocumentRoot string `json:"document_root" yaml:"document_root"`

	// IndexFile is served with 200 OK for a request starting with
	// RequestPrefix.
	IndexFile string `json:"index_file" yaml:"index_file"`

	// NotFoundFile is served with 404 NOT FOUND for anything else.
	NotFoundFile string `json:"not_found_file" yaml:"not_found_file"`

	// ReadBufferSize is the size of the single read performed per
	// connection.  It must be able to hold RequestPrefix.
	ReadBufferSize int `json:"read_buffer_size" yaml:"read_buffer_size"`

	// ReadTimeout bounds the single read on an accepted connection.  In JSON
	// it is encoded as nanoseconds; in YAML as a duration string ("5s").
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// MaxConnections caps simultaneously open connections.  Zero disables
	// the cap.
	MaxConnections int `json:"max_connections" yaml:"max_connections"`

	// DashboardAddress is the listen address of the dashboard HTTP server.
	// Empty disables the dashboard.
	DashboardAddress string `json:"dashboard_address" yaml:"dashboard_address"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// DefaultConfig returns a *Config pre-filled with defaults.  Each call
// returns a fresh independent copy.
func DefaultConfig() *Config {
	return &Config{
		Address:          "127.0.0.1:7878",
		Workers:          5,
		DocumentRoot:     ".",
		IndexFile:        "hello.html",
		NotFoundFile:     "404.html",
		ReadBufferSize:   1024,
		ReadTimeout:      5 * time.Second,
		MaxConnections:   0,
		DashboardAddress: "",
		LogLevel:         "info",
	}
}

// LoadConfig reads filename and overlays it on DefaultConfig.  Files ending
// in .yaml or .yml are decoded as YAML, everything else as JSON.  Unknown
// fields are rejected in both formats so typos surface at startup.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename) // #nosec G304 – filename is caller-provided config path
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", filename, err)
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = decodeYAML(data, cfg)
	default:
		err = decodeJSON(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", filename, err)
	}
	return cfg, nil
}

func decodeJSON(data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports the first configuration problem found, if any.
func (c *Config) Validate() error {
	switch {
	case c.Address == "":
		return errors.New("config: address must not be empty")
	case c.Workers <= 0:
		return fmt.Errorf("config: workers must be positive, got %d", c.Workers)
	case c.IndexFile == "" || c.NotFoundFile == "":
		return errors.New("config: index_file and not_found_file must be set")
	case c.ReadBufferSize < len(RequestPrefix):
		return fmt.Errorf("config: read_buffer_size must be at least %d, got %d",
			len(RequestPrefix), c.ReadBufferSize)
	case c.ReadTimeout < 0:
		return fmt.Errorf("config: read_timeout must not be negative, got %v", c.ReadTimeout)
	case c.MaxConnections < 0:
		return fmt.Errorf("config: max_connections must not be negative, got %d", c.MaxConnections)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Level returns the parsed LogLevel, falling back to INFO.
func (c *Config) Level() logger.Level {
	lvl, _ := logger.ParseLevel(c.LogLevel)
	return lvl
}
