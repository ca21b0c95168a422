package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadParsesEngineSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `RPCAddress = "0.0.0.0:9000"
MetricsAddress = ":9100"
DataDir = "./data"
Environment = "staging"
LogFile = "/var/log/synthd.log"
LogMaxSizeMB = 64
OracleMaxAgeSeconds = 120
OraclePriority = ["manual"]

[[Collateral]]
Symbol = "weth"
Feed = "eth-usd"

[[Collateral]]
Symbol = "wbtc"
Feed = "btc-usd"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != "0.0.0.0:9000" {
		t.Fatalf("unexpected RPC address: %s", cfg.RPCAddress)
	}
	if cfg.Environment != "staging" {
		t.Fatalf("unexpected environment: %s", cfg.Environment)
	}
	if cfg.OracleMaxAge() != 2*time.Minute {
		t.Fatalf("unexpected oracle max age: %s", cfg.OracleMaxAge())
	}
	if got := cfg.Symbols(); len(got) != 2 || got[0] != "weth" || got[1] != "wbtc" {
		t.Fatalf("unexpected symbols: %v", got)
	}
	if got := cfg.Feeds(); len(got) != 2 || got[0] != "eth-usd" || got[1] != "btc-usd" {
		t.Fatalf("unexpected feeds: %v", got)
	}
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}
	if cfg.RPCAddress != ":8080" {
		t.Fatalf("unexpected default RPC address: %s", cfg.RPCAddress)
	}
	if len(cfg.Collateral) == 0 {
		t.Fatal("default config must register collateral")
	}

	// A second load round-trips the persisted file.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.RPCAddress != cfg.RPCAddress || len(again.Collateral) != len(cfg.Collateral) {
		t.Fatalf("reload mismatch: %+v vs %+v", again, cfg)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name     string
		contents string
	}{
		{"no collateral", "RPCAddress = \":8080\"\n"},
		{"duplicate collateral", `[[Collateral]]
Symbol = "weth"
Feed = "eth-usd"

[[Collateral]]
Symbol = "WETH"
Feed = "eth-usd"
`},
		{"missing feed", `[[Collateral]]
Symbol = "weth"
Feed = ""
`},
		{"negative max age", `OracleMaxAgeSeconds = -1

[[Collateral]]
Symbol = "weth"
Feed = "eth-usd"
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tc.contents), 0o600); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected load to fail")
			}
		})
	}
}
