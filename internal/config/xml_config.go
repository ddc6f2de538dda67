// Package config provides XML-based configuration for the docshelf server.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"Docshelf"`

	Server   ServerConfig   `xml:"Server"`
	Storage  StorageConfig  `xml:"Storage"`
	Security SecurityConfig `xml:"Security"`
	Upload   UploadConfig   `xml:"Upload"`
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains document storage settings
type StorageConfig struct {
	DataDirectory      string   `xml:"DataDirectory"`
	DocumentsDirectory string   `xml:"DocumentsDirectory"`
	UsersFile          string   `xml:"UsersFile"`
	Backend            string   `xml:"Backend"` // "local" or "s3"
	S3                 S3Config `xml:"S3"`
}

// S3Config holds the settings of the S3 blob backend.
type S3Config struct {
	Endpoint  string `xml:"Endpoint"`
	Bucket    string `xml:"Bucket"`
	Region    string `xml:"Region"`
	AccessKey string `xml:"AccessKey"`
	SecretKey string `xml:"SecretKey"`
}

// SecurityConfig contains authentication settings
type SecurityConfig struct {
	JWTSecretKey          string `xml:"JWTSecretKey"`
	TokenTTLHours         int    `xml:"TokenTTLHours"`
	HTTPSCookie           bool   `xml:"HTTPSCookie"`
	RegistrationOpen      bool   `xml:"RegistrationOpen"`
	CreateFirstUser       bool   `xml:"CreateFirstUser"`
	AllowDocumentDeletion bool   `xml:"AllowDocumentDeletion"`
	SessionCleanupMinutes int    `xml:"SessionCleanupMinutes"`
}

// UploadConfig contains document upload settings
type UploadConfig struct {
	TimeoutSeconds    int    `xml:"TimeoutSeconds"`
	AllowedExtensions string `xml:"AllowedExtensions"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	LogFormat            string `xml:"LogFormat"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
	EnableMetrics        bool   `xml:"EnableMetrics"`
	EnableCompression    bool   `xml:"EnableCompression"`
	CompressionLevel     int    `xml:"CompressionLevel"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         3000,
			BindAddress:  "0.0.0.0",
			EnableCORS:   false,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 330,
			IdleTimeout:  120,
			BodyLimit:    "512M",
		},
		Storage: StorageConfig{
			DataDirectory:      "./data",
			DocumentsDirectory: "./data/documents",
			UsersFile:          "./data/users.yaml",
			Backend:            "local",
		},
		Security: SecurityConfig{
			JWTSecretKey:          uuid.NewString(),
			TokenTTLHours:         24,
			HTTPSCookie:           false,
			RegistrationOpen:      false,
			CreateFirstUser:       true,
			AllowDocumentDeletion: true,
			SessionCleanupMinutes: 10,
		},
		Upload: UploadConfig{
			TimeoutSeconds:    300,
			AllowedExtensions: ".pdf,.epub",
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			LogFormat:            "json",
			EnableRequestLogging: true,
			EnableMetrics:        true,
			EnableCompression:    true,
			CompressionLevel:     5,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- docshelf configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("DOCSHELF_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DOCSHELF_DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.DocumentsDirectory = filepath.Join(dataDir, "documents")
		c.Storage.UsersFile = filepath.Join(dataDir, "users.yaml")
	}

	if secret := os.Getenv("DOCSHELF_JWT_SECRET"); secret != "" {
		c.Security.JWTSecretKey = secret
	}

	if level := os.Getenv("DOCSHELF_LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}

	if key := os.Getenv("DOCSHELF_S3_ACCESS_KEY"); key != "" {
		c.Storage.S3.AccessKey = key
	}
	if secret := os.Getenv("DOCSHELF_S3_SECRET_KEY"); secret != "" {
		c.Storage.S3.SecretKey = secret
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.DocumentsDirectory,
		&c.Storage.UsersFile,
	} {
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// TokenTTL returns the lifetime of issued web tokens.
func (c *AppConfig) TokenTTL() time.Duration {
	if c.Security.TokenTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Security.TokenTTLHours) * time.Hour
}

// UploadTimeout returns the maximum duration of a single upload request.
func (c *AppConfig) UploadTimeout() time.Duration {
	if c.Upload.TimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Upload.TimeoutSeconds) * time.Second
}

// SessionCleanupInterval returns how often stale web sessions are swept.
func (c *AppConfig) SessionCleanupInterval() time.Duration {
	if c.Security.SessionCleanupMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Security.SessionCleanupMinutes) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.DocumentsDirectory,
		filepath.Dir(c.Storage.UsersFile),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
