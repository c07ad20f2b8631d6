package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]byte(`
[Directory]
FeedURL = "http://127.0.0.1:8080"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Circuit.Hops != 3 {
		t.Errorf("Hops = %d, want 3", cfg.Circuit.Hops)
	}
	if got := cfg.Circuit.HopTimeoutDuration(); got != 5*time.Second {
		t.Errorf("HopTimeout = %v, want 5s", got)
	}
	if got := cfg.Circuit.RotationIntervalDuration(); got != 10*time.Minute {
		t.Errorf("RotationInterval = %v, want 10m", got)
	}
	if cfg.Lottery.MinReputation != 0.1 {
		t.Errorf("MinReputation = %v, want 0.1", cfg.Lottery.MinReputation)
	}
	if cfg.Reputation.Baseline != 1.0 || cfg.Reputation.Max != 100.0 {
		t.Errorf("reputation bounds = %v..%v, want 1..100", cfg.Reputation.Baseline, cfg.Reputation.Max)
	}
	if got := cfg.Reputation.HalfLifeDuration(); got != time.Hour {
		t.Errorf("HalfLife = %v, want 1h", got)
	}
	if cfg.Directory.RedisKey != "mixway:directory" {
		t.Errorf("RedisKey = %q", cfg.Directory.RedisKey)
	}
	if cfg.Logging.Level != "NOTICE" {
		t.Errorf("Level = %q, want NOTICE", cfg.Logging.Level)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load([]byte(`
[Circuit]
Hops = 5
HopTimeout = 1000
BuildTimeout = 8000

[Lottery]
MinReputation = 0.5
RequireDistinctSubnet = true

[Directory]
RedisAddr = "127.0.0.1:6379"

[Logging]
Level = "debug"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Circuit.Hops != 5 {
		t.Errorf("Hops = %d, want 5", cfg.Circuit.Hops)
	}
	if got := cfg.Circuit.BuildTimeoutDuration(); got != 8*time.Second {
		t.Errorf("BuildTimeout = %v, want 8s", got)
	}
	if !cfg.Lottery.RequireDistinctSubnet {
		t.Error("RequireDistinctSubnet not set")
	}
	if cfg.Directory.RedisAddr != "127.0.0.1:6379" {
		t.Errorf("RedisAddr = %q", cfg.Directory.RedisAddr)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Level = %q, want DEBUG", cfg.Logging.Level)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		toml string
		want string
	}{
		{
			name: "hops out of range",
			toml: "[Circuit]\nHops = 9\n[Directory]\nFeedURL = \"http://x\"\n",
			want: "Hops",
		},
		{
			name: "build shorter than hop",
			toml: "[Circuit]\nHopTimeout = 9000\nBuildTimeout = 1000\n[Directory]\nFeedURL = \"http://x\"\n",
			want: "BuildTimeout",
		},
		{
			name: "negative reputation floor",
			toml: "[Lottery]\nMinReputation = -0.5\n",
			want: "MinReputation",
		},
		{
			name: "bad log level",
			toml: "[Directory]\nFeedURL = \"http://x\"\n[Logging]\nLevel = \"chatty\"\n",
			want: "Level",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load([]byte(tc.toml))
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestDirectoryOptional(t *testing.T) {
	// The section may be omitted entirely; defaults still apply so the
	// authority daemon can run without one.
	cfg, err := Load([]byte("[Relay]\nListen = \":7000\"\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Directory == nil {
		t.Fatal("Directory section should be defaulted when omitted")
	}
	if cfg.Directory.FeedURL != "" || cfg.Directory.RedisAddr != "" {
		t.Error("omitted section must not invent a feed source")
	}
	if got := cfg.Directory.EpochIntervalDuration(); got != 10*time.Minute {
		t.Errorf("EpochInterval = %v, want 10m", got)
	}
	if cfg.Relay.Listen != ":7000" {
		t.Errorf("Listen = %q", cfg.Relay.Listen)
	}
	if got := cfg.Relay.IdleTTLDuration(); got != 2*time.Minute {
		t.Errorf("IdleTTL = %v, want 2m", got)
	}
}
