package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendGoogle = "google"
	BackendCalDAV = "caldav"

	DefaultCalendar     = "default"
	DefaultColumn       = "google_calendar_remote_id"
	DefaultDatabasePath = "calendar-hooks.db"
	DefaultEnvironment  = "development"
	DefaultLogLevel     = "info"
)

// GoogleCredentials represents the structure of Google OAuth credentials JSON file.
type GoogleCredentials struct {
	Installed struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"installed"`
	Web struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"web"`
}

// LoadGoogleCredentials loads Google OAuth credentials from a JSON file.
func LoadGoogleCredentials(path string) (clientID, clientSecret string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds GoogleCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", "", fmt.Errorf("failed to parse credentials file: %w", err)
	}

	// Try "installed" first (for desktop apps), then "web"
	if creds.Installed.ClientID != "" {
		return creds.Installed.ClientID, creds.Installed.ClientSecret, nil
	}
	if creds.Web.ClientID != "" {
		return creds.Web.ClientID, creds.Web.ClientSecret, nil
	}

	return "", "", fmt.Errorf("no client_id found in credentials file (expected 'installed' or 'web' section)")
}

// Config holds the configuration for calendar-hooks.
type Config struct {
	Backend string `json:"backend,omitempty" toml:"backend" yaml:"backend"` // "google" or "caldav"

	GoogleCredentialsPath string `json:"google_credentials_path,omitempty" toml:"google_credentials_path" yaml:"google_credentials_path"`
	GoogleTokenPath       string `json:"google_token_path,omitempty" toml:"google_token_path" yaml:"google_token_path"`

	CalDAVServerURL string `json:"caldav_server_url,omitempty" toml:"caldav_server_url" yaml:"caldav_server_url"`
	CalDAVUsername  string `json:"caldav_username,omitempty" toml:"caldav_username" yaml:"caldav_username"`
	CalDAVPassword  string `json:"caldav_password,omitempty" toml:"caldav_password" yaml:"caldav_password"` // App-specific password

	Calendar     string `json:"calendar,omitempty" toml:"calendar" yaml:"calendar"` // "default" or a calendar title
	Column       string `json:"column,omitempty" toml:"column" yaml:"column"`       // Column holding the remote id
	DatabasePath string `json:"database_path,omitempty" toml:"database_path" yaml:"database_path"`

	Environment    string   `json:"environment,omitempty" toml:"environment" yaml:"environment"`
	SuppressIn     []string `json:"suppress_in,omitempty" toml:"suppress_in" yaml:"suppress_in"` // Environments where no remote calls are made
	IncludeDetails bool     `json:"include_details,omitempty" toml:"include_details" yaml:"include_details"`
	LogLevel       string   `json:"log_level,omitempty" toml:"log_level" yaml:"log_level"`
}

// Flags carries command-line values. Empty strings and false mean "not set".
type Flags struct {
	ConfigFile   string
	Backend      string
	Calendar     string
	Column       string
	DatabasePath string
	Environment  string
	Verbose      bool
}

// Suppressed reports whether remote calls are disabled in the current environment.
func (c *Config) Suppressed() bool {
	return slices.Contains(c.SuppressIn, c.Environment)
}

// LoadConfigFromFile loads configuration from a JSON, TOML or YAML file,
// chosen by extension.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &config)
	case ".toml":
		err = toml.Unmarshal(data, &config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		return nil, fmt.Errorf("unsupported config file extension %q (expected .json, .toml, .yaml or .yml)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadConfig loads configuration with the following precedence (highest to lowest):
// 1. Command-line flags
// 2. Environment variables (a .env file in the working directory is read first)
// 3. Config file
// 4. Defaults
// Returns an error if any required value is missing. A missing CalDAV
// password is not an error here; the caller may prompt for it.
func LoadConfig(flags Flags) (*Config, error) {
	var config Config

	// Step 1: Load from config file if provided
	if flags.ConfigFile != "" {
		fileConfig, err := LoadConfigFromFile(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	// Step 2: Override with environment variables
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	overrideFromEnv(&config.Backend, "CALENDAR_BACKEND")
	overrideFromEnv(&config.GoogleCredentialsPath, "GOOGLE_CREDENTIALS_PATH")
	overrideFromEnv(&config.GoogleTokenPath, "GOOGLE_TOKEN_PATH")
	overrideFromEnv(&config.CalDAVServerURL, "CALDAV_SERVER_URL")
	overrideFromEnv(&config.CalDAVUsername, "CALDAV_USERNAME")
	overrideFromEnv(&config.CalDAVPassword, "CALDAV_PASSWORD")
	overrideFromEnv(&config.Calendar, "CALENDAR_NAME")
	overrideFromEnv(&config.Column, "CALENDAR_COLUMN")
	overrideFromEnv(&config.DatabasePath, "DATABASE_PATH")
	overrideFromEnv(&config.Environment, "APP_ENV")
	overrideFromEnv(&config.LogLevel, "LOG_LEVEL")
	if includeDetails := os.Getenv("INCLUDE_DETAILS"); includeDetails != "" {
		value, err := strconv.ParseBool(includeDetails)
		if err != nil {
			return nil, fmt.Errorf("invalid INCLUDE_DETAILS value: %w", err)
		}
		config.IncludeDetails = value
	}

	// Step 3: Override with command-line flags (highest priority)
	overrideFromFlag(&config.Backend, flags.Backend)
	overrideFromFlag(&config.Calendar, flags.Calendar)
	overrideFromFlag(&config.Column, flags.Column)
	overrideFromFlag(&config.DatabasePath, flags.DatabasePath)
	overrideFromFlag(&config.Environment, flags.Environment)
	if flags.Verbose {
		config.LogLevel = "debug"
	}

	// Step 4: Apply defaults and validate required fields
	applyDefaults(&config)
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Backend == "" {
		config.Backend = BackendGoogle
	}
	if config.Calendar == "" {
		config.Calendar = DefaultCalendar
	}
	if config.Column == "" {
		config.Column = DefaultColumn
	}
	if config.DatabasePath == "" {
		config.DatabasePath = DefaultDatabasePath
	}
	if config.Environment == "" {
		config.Environment = DefaultEnvironment
	}
	if config.SuppressIn == nil {
		config.SuppressIn = []string{"test"}
	}
	if config.LogLevel == "" {
		config.LogLevel = DefaultLogLevel
	}
}

// Validate checks that the selected backend has what it needs. A suppressed
// environment never talks to the backend, so only its name is checked there.
func (c *Config) Validate() error {
	if c.Backend != BackendGoogle && c.Backend != BackendCalDAV {
		return fmt.Errorf("backend must be '%s' or '%s', got '%s'", BackendGoogle, BackendCalDAV, c.Backend)
	}

	if !c.Suppressed() {
		if err := c.validateBackend(); err != nil {
			return err
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got '%s'", c.LogLevel)
	}

	return nil
}

func overrideFromEnv(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func overrideFromFlag(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func (c *Config) validateBackend() error {
	switch c.Backend {
	case BackendGoogle:
		if c.GoogleCredentialsPath == "" {
			return fmt.Errorf("google_credentials_path must be provided via GOOGLE_CREDENTIALS_PATH environment variable or config file")
		}
		if c.GoogleTokenPath == "" {
			return fmt.Errorf("google_token_path must be provided via GOOGLE_TOKEN_PATH environment variable or config file")
		}
	case BackendCalDAV:
		if c.CalDAVServerURL == "" {
			return fmt.Errorf("caldav_server_url must be provided via CALDAV_SERVER_URL environment variable or config file")
		}
		if c.CalDAVUsername == "" {
			return fmt.Errorf("caldav_username must be provided via CALDAV_USERNAME environment variable or config file")
		}
	}
	return nil
}
