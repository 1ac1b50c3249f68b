// Package config provides configuration management for the proxy server.
// It handles loading and parsing YAML configuration files, applies environment
// variable overrides, and provides structured access to application settings
// including the listen port, database connection, proxy configuration, and the
// credential lock escape hatch.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a YAML file
// with environment variable overrides applied on top.
type Config struct {
	// Port is the network port on which the API server will listen.
	Port int `yaml:"port"`

	// Debug enables or disables debug-level logging.
	Debug bool `yaml:"debug"`

	// ProxyURL is the URL of an optional forward proxy for outbound requests.
	// Supports http, https and socks5 schemes.
	ProxyURL string `yaml:"proxy-url"`

	// Database holds the MySQL connection settings.
	Database Database `yaml:"database"`

	// DisableCredentialLock skips all per-credential locking when true.
	// Performance escape hatch; may over-serve upstream quotas.
	DisableCredentialLock bool `yaml:"disable-credential-lock"`

	// RequestLog enables access log output to a rotated file.
	RequestLog bool `yaml:"request-log"`

	// LogRetentionDays controls how long ApiLog rows are kept.
	LogRetentionDays int `yaml:"log-retention-days"`
}

// Database represents the MySQL connection settings.
type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"database"`
}

// DSN renders the settings as a go-sql-driver/mysql data source name.
func (d Database) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// LoadConfig reads a YAML configuration file from the given path, unmarshals
// it into a Config struct, applies environment variable overrides, and fills
// defaults.
//
// Parameters:
//   - configFile: The path to the YAML configuration file
//
// Returns:
//   - *Config: The loaded configuration
//   - error: An error if the configuration could not be loaded
func LoadConfig(configFile string) (*Config, error) {
	var config Config
	data, err := os.ReadFile(configFile)
	if err != nil {
		// A missing file is not fatal; everything can come from the environment.
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		if err = yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnv()
	config.applyDefaults()
	return &config, nil
}

// applyEnv overlays environment variables onto the configuration. Environment
// values win over file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("MYSQL_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("MYSQL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v := os.Getenv("MYSQL_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("MYSQL_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("MYSQL_DATABASE"); v != "" {
		c.Database.Name = v
	}
	if v := proxyFromEnv(); v != "" && c.ProxyURL == "" {
		c.ProxyURL = v
	}
	if v := os.Getenv("DISABLE_CREDENTIAL_LOCK"); strings.EqualFold(v, "true") {
		c.DisableCredentialLock = true
	}
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Name == "" {
		c.Database.Name = "pool2api"
	}
	if c.LogRetentionDays <= 0 {
		c.LogRetentionDays = 30
	}
}

func proxyFromEnv() string {
	for _, key := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
