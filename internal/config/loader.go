package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults applied before the file and environment are read.
const (
	defaultListenAddr = ":8080"
	defaultLogLevel   = LogInfo
)

// envOverrides maps environment variable names to config fields. Environment
// values win over the file so that secrets never have to live on disk.
var envOverrides = []struct {
	name  string
	apply func(cfg *Config, v string)
}{
	{"VOICEGATE_LISTEN_ADDR", func(c *Config, v string) { c.Server.ListenAddr = v }},
	{"VOICEGATE_PUBLIC_HOST", func(c *Config, v string) { c.Server.PublicHost = v }},
	{"VOICEGATE_LOG_LEVEL", func(c *Config, v string) { c.Server.LogLevel = LogLevel(v) }},
	{"DATABASE_URL", func(c *Config, v string) { c.Database.DSN = v }},
	{"GEMINI_API_KEY", func(c *Config, v string) { c.Model.APIKey = v }},
	{"TWILIO_ACCOUNT_SID", func(c *Config, v string) { c.Telephony.AccountSID = v }},
	{"TWILIO_AUTH_TOKEN", func(c *Config, v string) { c.Telephony.AuthToken = v }},
	{"RESTAURANT_ID", func(c *Config, v string) { c.Restaurant.ID = v }},
	{"TRANSFER_NUMBER", func(c *Config, v string) { c.Restaurant.TransferNumber = v }},
}

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config]. A missing file is not an
// error when every required value arrives via the environment; pass an
// empty path to skip the file entirely.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			ListenAddr: defaultListenAddr,
			LogLevel:   defaultLogLevel,
		},
	}

	if path != "" {
		f, err := os.Open(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env-only configuration
		case err != nil:
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		default:
			defer f.Close()
			if err := decode(f, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %q: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment
// overrides, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			ListenAddr: defaultListenAddr,
			LogLevel:   defaultLogLevel,
		},
	}
	if err := decode(r, cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) {
	for _, e := range envOverrides {
		if v := os.Getenv(e.name); v != "" {
			e.apply(cfg, v)
		}
	}
}
