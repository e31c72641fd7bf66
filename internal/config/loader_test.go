package config_test

import (
	"strings"
	"testing"

	"github.com/spicebay/voicegate/internal/config"
)

const validYAML = `
server:
  listen_addr: ":9090"
  public_host: gateway.spicebay.example
  log_level: debug
database:
  dsn: postgres://voicegate:pw@localhost/voicegate
model:
  api_key: test-key
  voice: Aoede
telephony:
  account_sid: ACxxxx
  auth_token: secret
restaurant:
  id: spicebay-irvine
  transfer_number: "+19495550100"
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Restaurant.TransferNumber != "+19495550100" {
		t.Errorf("transfer_number = %q", cfg.Restaurant.TransferNumber)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	yaml := `
database:
  dsn: postgres://localhost/voicegate
model:
  api_key: k
restaurant:
  id: spicebay-irvine
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("default listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("default log_level = %q, want info", cfg.Server.LogLevel)
	}
}

func TestLoadFromReader_MissingRequired(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(`server: {listen_addr: ":1"}`))
	if err == nil {
		t.Fatal("expected validation error for missing dsn/api key/restaurant id")
	}
	for _, want := range []string{"database.dsn", "model.api_key", "restaurant.id"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestLoadFromReader_BadTransferNumber(t *testing.T) {
	yaml := validYAML + "" // copy
	bad := strings.Replace(yaml, "+19495550100", "555-0100", 1)
	_, err := config.LoadFromReader(strings.NewReader(bad))
	if err == nil || !strings.Contains(err.Error(), "E.164") {
		t.Fatalf("expected E.164 validation error, got %v", err)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(validYAML + "\nnope: 1\n"))
	if err == nil {
		t.Fatal("expected unknown-field decode error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("RESTAURANT_ID", "spicebay-irvine")
	t.Setenv("TRANSFER_NUMBER", "+19495550101")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.DSN != "postgres://env/db" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.Model.APIKey != "env-key" {
		t.Errorf("api key = %q", cfg.Model.APIKey)
	}
	if cfg.Restaurant.TransferNumber != "+19495550101" {
		t.Errorf("transfer number = %q", cfg.Restaurant.TransferNumber)
	}
}

func TestValidate_PartialTelephonyCredentials(t *testing.T) {
	cfg := &config.Config{
		Server:     config.ServerConfig{ListenAddr: ":1"},
		Database:   config.DatabaseConfig{DSN: "x"},
		Model:      config.ModelConfig{APIKey: "k"},
		Restaurant: config.RestaurantConfig{ID: "r"},
	}
	cfg.Telephony.AccountSID = "AC123"
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "must be set together") {
		t.Fatalf("expected paired-credential error, got %v", err)
	}
}
