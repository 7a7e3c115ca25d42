package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Generator.StepsPerDay != 390 || cfg.Generator.Alpha != 1.5 || cfg.Generator.MinSize != 100 {
		t.Errorf("unexpected generator defaults %+v", cfg.Generator)
	}
	if cfg.Venue.Service != "exchange.ExchangeService" || cfg.Venue.SubmitTimeout != 2*time.Second {
		t.Errorf("unexpected venue defaults %+v", cfg.Venue)
	}
	if len(cfg.Scenarios.Arbitrage.Venues) != 2 || cfg.Scenarios.Noise.Venues[0] != "localhost:9000" {
		t.Errorf("unexpected scenario defaults %+v", cfg.Scenarios)
	}
	if cfg.History.Source != HistorySourceExchange || cfg.History.Lookback != 504 {
		t.Errorf("unexpected history defaults %+v", cfg.History)
	}
	if cfg.Monitor.Port != 0 || cfg.Monitor.PushInterval != time.Second {
		t.Errorf("unexpected monitor defaults %+v", cfg.Monitor)
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
generator:
  steps_per_day: 60
  seed: 99
venue:
  submit_timeout: 250ms
scenarios:
  arbitrage:
    venues: ["10.0.0.1:9000", "10.0.0.2:9000", "10.0.0.3:9000"]
history:
  source: cache
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ORDERFLOW_GENERATOR_ALPHA", "2.5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Generator.StepsPerDay != 60 || cfg.Generator.Seed != 99 {
		t.Errorf("file values not applied: %+v", cfg.Generator)
	}
	if cfg.Generator.Alpha != 2.5 {
		t.Errorf("env override not applied, alpha=%v", cfg.Generator.Alpha)
	}
	if cfg.Venue.SubmitTimeout != 250*time.Millisecond {
		t.Errorf("duration not decoded: %v", cfg.Venue.SubmitTimeout)
	}
	if len(cfg.Scenarios.Arbitrage.Venues) != 3 {
		t.Errorf("unexpected arbitrage venues %v", cfg.Scenarios.Arbitrage.Venues)
	}
	if cfg.History.Source != HistorySourceCache {
		t.Errorf("unexpected history source %q", cfg.History.Source)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Errorf("expected error for missing explicit config file")
	}
}

func TestValidate_AccumulatesErrors(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	cfg.Generator.Alpha = 0
	cfg.Generator.StepsPerDay = -1
	cfg.Scenarios.Arbitrage.Venues = []string{"localhost:9000"}
	cfg.History.Source = "ftp"
	cfg.Venue.Service = "exchange/ExchangeService"

	err = cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, fragment := range []string{"generator.alpha", "generator.steps_per_day", "scenarios.arbitrage.venues", "history.source", "venue.service"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("expected %q in error: %v", fragment, err)
		}
	}
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ORDERFLOW_GENERATOR_ALPHA", "3")
	t.Cleanup(func() { _ = os.Unsetenv("ORDERFLOW_GENERATOR_DAYS") })

	dotenv := "ORDERFLOW_GENERATOR_DAYS=4\nORDERFLOW_GENERATOR_ALPHA=9\n"
	if err := os.WriteFile(".env", []byte(dotenv), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Generator.Days != 4 {
		t.Errorf(".env value not applied, days=%d", cfg.Generator.Days)
	}
	if cfg.Generator.Alpha != 3 {
		t.Errorf("environment should win over .env, alpha=%v", cfg.Generator.Alpha)
	}
}
