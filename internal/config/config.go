// Package config provides the configuration schema and loader for the voice
// ordering gateway.
package config

import (
	"errors"
	"fmt"
	"regexp"
)

// LogLevel controls log verbosity for the gateway.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file via [Load]; secrets may instead come from the environment (see
// the loader for the variable names).
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Model      ModelConfig      `yaml:"model"`
	Telephony  TelephonyConfig  `yaml:"telephony"`
	Restaurant RestaurantConfig `yaml:"restaurant"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// PublicHost is the externally reachable host embedded in the TwiML
	// stream URL (e.g., "gateway.spicebay.example"). The telephony provider
	// dials wss://{PublicHost}/stream.
	PublicHost string `yaml:"public_host"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DatabaseConfig holds the relational store connection settings.
type DatabaseConfig struct {
	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn"`
}

// ModelConfig configures the generative-speech service session.
type ModelConfig struct {
	// APIKey authenticates against the model service.
	APIKey string `yaml:"api_key"`

	// Model selects the speech model. Leave empty for the default.
	Model string `yaml:"model"`

	// Voice selects the prebuilt voice for the agent.
	Voice string `yaml:"voice"`

	// BaseURL overrides the model WebSocket endpoint. Used in tests.
	BaseURL string `yaml:"base_url"`
}

// TelephonyConfig holds the telephony provider credentials used by the
// transfer REST endpoint.
type TelephonyConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`

	// BaseURL overrides the REST API endpoint. Used in tests.
	BaseURL string `yaml:"base_url"`
}

// RestaurantConfig identifies the restaurant this gateway serves.
type RestaurantConfig struct {
	// ID is the restaurant identifier recorded on every order.
	ID string `yaml:"id"`

	// TransferNumber is the E.164 number calls escalate to when the agent
	// requests a human.
	TransferNumber string `yaml:"transfer_number"`
}

// e164 matches a full E.164 phone number.
var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr must be set"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn must be set"))
	}
	if cfg.Model.APIKey == "" {
		errs = append(errs, errors.New("model.api_key must be set"))
	}
	if cfg.Restaurant.ID == "" {
		errs = append(errs, errors.New("restaurant.id must be set"))
	}
	if cfg.Restaurant.TransferNumber != "" && !e164.MatchString(cfg.Restaurant.TransferNumber) {
		errs = append(errs, fmt.Errorf("restaurant.transfer_number %q is not E.164", cfg.Restaurant.TransferNumber))
	}
	if (cfg.Telephony.AccountSID == "") != (cfg.Telephony.AuthToken == "") {
		errs = append(errs, errors.New("telephony.account_sid and telephony.auth_token must be set together"))
	}

	return errors.Join(errs...)
}
