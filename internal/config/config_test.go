package config

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trader/internal/calendar"
	"trader/types"
)

const testConfig = "testdata/config.yaml"

func mustLoad(t *testing.T, path string) *Config {
	t.Helper()
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return cfg
}

func TestLoad(t *testing.T) {
	cfg := mustLoad(t, testConfig)

	if cfg.App.Name != "coin-breakout" || cfg.App.LogLevel != "debug" || cfg.App.MetricsAddr != ":9200" {
		t.Errorf("App = %+v", cfg.App)
	}
	if cfg.Trader.Provider != "db" || !cfg.Trader.ShowProgress {
		t.Errorf("defaults not applied: %+v", cfg.Trader)
	}
	if len(cfg.Selectors) != 2 || cfg.Selectors[0].Score[0].Window != 24 || cfg.Selectors[1].Score[0].Name != "momentum" {
		t.Errorf("Selectors = %+v", cfg.Selectors)
	}
	if cfg.Sinks.Kafka.Topic != "trading-signals" || len(cfg.Sinks.Kafka.Brokers) != 1 {
		t.Errorf("Kafka = %+v", cfg.Sinks.Kafka)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("TRADER_DATABASE_URL", "postgresql://ci@db:5432/ci")
	t.Setenv("TRADER_TRADER_LIMIT", "3")

	cfg := mustLoad(t, testConfig)
	if cfg.Database.URL != "postgresql://ci@db:5432/ci" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
	if cfg.Trader.Limit != 3 {
		t.Errorf("Trader.Limit = %d, want 3", cfg.Trader.Limit)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Errorf("Load() of a missing file should fail")
	}
}

func TestConfig_EngineConfig(t *testing.T) {
	got, err := mustLoad(t, testConfig).EngineConfig()
	if err != nil {
		t.Fatalf("EngineConfig() error: %v", err)
	}
	if got.Name != "coin-breakout" || got.SecurityClass != types.SecurityClassCoin || got.Exchange != "binance" {
		t.Errorf("identity = %s %s %s", got.Name, got.SecurityClass, got.Exchange)
	}
	if !got.Start.Equal(time.Date(2019, 5, 1, 0, 0, 0, 0, time.UTC)) || !got.End.Equal(time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("range = %v - %v", got.Start, got.End)
	}
	if !reflect.DeepEqual(got.Levels, []types.Level{types.Level1Hour, types.Level1Day}) {
		t.Errorf("Levels = %v", got.Levels)
	}
	want := []types.SecurityID{
		types.EncodeSecurityID(types.SecurityClassCoin, "binance", "btc-usdt"),
		types.EncodeSecurityID(types.SecurityClassCoin, "binance", "eth-usdt"),
	}
	if !reflect.DeepEqual(got.SecurityList, want) {
		t.Errorf("SecurityList = %v, want %v", got.SecurityList, want)
	}
	if got.Limit != 5 || got.Level != 0 {
		t.Errorf("Limit = %d, Level = %v", got.Limit, got.Level)
	}
}

func TestConfig_AccountConfig(t *testing.T) {
	got, err := mustLoad(t, testConfig).AccountConfig()
	if err != nil {
		t.Fatalf("AccountConfig() error: %v", err)
	}
	if got.Level != types.Level1Hour {
		t.Errorf("Level = %s, want the finest selector level", got.Level)
	}
	if !got.InitialCash.Equal(decimal.NewFromInt(100000)) || !got.FeeRate.Equal(decimal.RequireFromString("0.001")) {
		t.Errorf("cash = %s, fee = %s", got.InitialCash, got.FeeRate)
	}
}

func TestConfig_CalendarRules(t *testing.T) {
	rules, err := mustLoad(t, testConfig).CalendarRules()
	if err != nil {
		t.Fatalf("CalendarRules() error: %v", err)
	}
	if len(rules) != 1 || rules[0].Policy != calendar.PolicySessionTable || len(rules[0].Sessions) != 3 {
		t.Fatalf("rules = %+v", rules)
	}
	if rules[0].Location == nil || rules[0].Location.String() != "Asia/Shanghai" {
		t.Errorf("Location = %v, want Asia/Shanghai", rules[0].Location)
	}
	if _, err := calendar.New(rules...); err != nil {
		t.Errorf("calendar.New() error: %v", err)
	}
}

func TestConfig_EngineConfigTimezone(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Fatalf("LoadLocation() error: %v", err)
	}
	newYork, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation() error: %v", err)
	}
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   *time.Location
	}{
		{"coin market is utc", func(c *Config) {}, time.UTC},
		{"stock market uses exchange time", func(c *Config) {
			c.Trader.Class, c.Trader.Exchange = "stock", "sh"
		}, shanghai},
		{"extra market timezone", func(c *Config) {
			c.Trader.Class, c.Trader.Exchange = "future", "shfe"
		}, shanghai},
		{"trader timezone wins", func(c *Config) {
			c.Trader.Class, c.Trader.Exchange = "stock", "sh"
			c.Trader.Timezone = "America/New_York"
		}, newYork},
		{"unknown market falls back to utc", func(c *Config) {
			c.Trader.Exchange = "kraken"
		}, time.UTC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mustLoad(t, testConfig)
			cfg.Trader.Start = "2030-05-06 10:31"
			tt.mutate(cfg)
			got, err := cfg.EngineConfig()
			if err != nil {
				t.Fatalf("EngineConfig() error: %v", err)
			}
			want := time.Date(2030, 5, 6, 10, 31, 0, 0, tt.want)
			if !got.Start.Equal(want) {
				t.Errorf("Start = %v, want %v", got.Start, want)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown class", func(c *Config) { c.Trader.Class = "bond" }},
		{"no exchange", func(c *Config) { c.Trader.Exchange = "" }},
		{"bad start", func(c *Config) { c.Trader.Start = "May 1st" }},
		{"no end", func(c *Config) { c.Trader.End = "" }},
		{"bad trading level", func(c *Config) { c.Trader.Level = "2h" }},
		{"bad policy", func(c *Config) { c.Markets[0].Policy = "lunar" }},
		{"bad session", func(c *Config) { c.Markets[0].Sessions[0].Open = "9am" }},
		{"negative cash", func(c *Config) { c.Account.Cash = -1 }},
		{"no selectors", func(c *Config) { c.Selectors = nil }},
		{"bad selector level", func(c *Config) { c.Selectors[0].Level = "2d" }},
		{"selector without factors", func(c *Config) { c.Selectors[0].Score = nil }},
		{"unknown factor", func(c *Config) { c.Selectors[0].Score[0].Kind = "rsi" }},
		{"stored factor without name", func(c *Config) { c.Selectors[1].Score[0].Name = "" }},
		{"negative window", func(c *Config) { c.Selectors[0].Score[0].Window = -2 }},
		{"no database", func(c *Config) { c.Database.URL = "" }},
		{"kafka without topic", func(c *Config) { c.Sinks.Kafka.Topic = "" }},
		{"bad trader timezone", func(c *Config) { c.Trader.Timezone = "Mars/Olympus" }},
		{"bad market timezone", func(c *Config) { c.Markets[0].Timezone = "Mars/Olympus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mustLoad(t, testConfig)
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestSave(t *testing.T) {
	cfg := mustLoad(t, testConfig)
	cfg.Trader.Limit = 7
	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got := mustLoad(t, path)
	if got.Trader.Limit != 7 || !reflect.DeepEqual(got.Selectors, cfg.Selectors) || !reflect.DeepEqual(got.Markets, cfg.Markets) {
		t.Errorf("reloaded config differs: %+v", got)
	}
	if err := Save(path, nil); err == nil {
		t.Errorf("Save(nil) should fail")
	}
}
