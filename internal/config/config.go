// Package config implements the mixway configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultHops             = 3
	maxHops                 = 8
	defaultHopTimeout       = 5000  // milliseconds
	defaultBuildTimeout     = 30000 // milliseconds
	defaultRotationInterval = 600   // seconds
	defaultRotationGrace    = 30    // seconds
	defaultMaxBuildAttempts = 4
	defaultBackoffBase      = 500   // milliseconds
	defaultBackoffCap       = 10000 // milliseconds

	defaultMinReputation   = 0.1
	defaultExcludeCooldown = 600 // seconds

	defaultBaseline         = 1.0
	defaultMaxScore         = 100.0
	defaultHalfLife         = 3600 // seconds
	defaultBuildSuccess     = 1.0
	defaultRelaySuccess     = 0.2
	defaultHandshakePenalty = 2.0
	defaultTimeoutPenalty   = 1.0
	defaultIntegrityPenalty = 10.0
	defaultDegradeThreshold = 0.5

	defaultRefreshInterval = 30  // seconds
	defaultEpochInterval   = 600 // seconds
	defaultRedisKey        = "mixway:directory"

	defaultRelayListen = ":5000"
	defaultIdleTTL     = 120 // seconds

	defaultLogLevel = "NOTICE"
)

// Circuit holds circuit construction and lifecycle parameters.
type Circuit struct {
	// Hops is the number of relays per circuit.
	Hops int

	// HopTimeout is the per-hop handshake deadline in milliseconds.
	HopTimeout uint64

	// BuildTimeout bounds a whole circuit build in milliseconds.
	BuildTimeout uint64

	// RotationInterval is the circuit rotation deadline in seconds.
	RotationInterval uint64

	// RotationGrace is how early before the rotation deadline a
	// replacement build starts, in seconds.
	RotationGrace uint64

	// MaxBuildAttempts is the number of full-path build attempts
	// before a build fails closed.
	MaxBuildAttempts int

	// BackoffBase is the initial rebuild backoff in milliseconds.
	BackoffBase uint64

	// BackoffCap is the maximum rebuild backoff in milliseconds.
	BackoffCap uint64
}

func (c *Circuit) validate() error {
	if c.Hops == 0 {
		c.Hops = defaultHops
	}
	if c.Hops < 1 || c.Hops > maxHops {
		return fmt.Errorf("config: Circuit: Hops %d out of range [1,%d]", c.Hops, maxHops)
	}
	if c.HopTimeout == 0 {
		c.HopTimeout = defaultHopTimeout
	}
	if c.BuildTimeout == 0 {
		c.BuildTimeout = defaultBuildTimeout
	}
	if c.BuildTimeout < c.HopTimeout {
		return fmt.Errorf("config: Circuit: BuildTimeout %d < HopTimeout %d", c.BuildTimeout, c.HopTimeout)
	}
	if c.RotationInterval == 0 {
		c.RotationInterval = defaultRotationInterval
	}
	if c.RotationGrace == 0 {
		c.RotationGrace = defaultRotationGrace
	}
	if uint64(c.RotationGrace) >= c.RotationInterval {
		return fmt.Errorf("config: Circuit: RotationGrace %d >= RotationInterval %d", c.RotationGrace, c.RotationInterval)
	}
	if c.MaxBuildAttempts == 0 {
		c.MaxBuildAttempts = defaultMaxBuildAttempts
	}
	if c.MaxBuildAttempts < 1 {
		return fmt.Errorf("config: Circuit: MaxBuildAttempts must be positive")
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffCap == 0 {
		c.BackoffCap = defaultBackoffCap
	}
	return nil
}

// HopTimeoutDuration returns HopTimeout as a time.Duration.
func (c *Circuit) HopTimeoutDuration() time.Duration {
	return time.Duration(c.HopTimeout) * time.Millisecond
}

// BuildTimeoutDuration returns BuildTimeout as a time.Duration.
func (c *Circuit) BuildTimeoutDuration() time.Duration {
	return time.Duration(c.BuildTimeout) * time.Millisecond
}

// RotationIntervalDuration returns RotationInterval as a time.Duration.
func (c *Circuit) RotationIntervalDuration() time.Duration {
	return time.Duration(c.RotationInterval) * time.Second
}

// RotationGraceDuration returns RotationGrace as a time.Duration.
func (c *Circuit) RotationGraceDuration() time.Duration {
	return time.Duration(c.RotationGrace) * time.Second
}

// BackoffBaseDuration returns BackoffBase as a time.Duration.
func (c *Circuit) BackoffBaseDuration() time.Duration {
	return time.Duration(c.BackoffBase) * time.Millisecond
}

// BackoffCapDuration returns BackoffCap as a time.Duration.
func (c *Circuit) BackoffCapDuration() time.Duration {
	return time.Duration(c.BackoffCap) * time.Millisecond
}

// Lottery holds relay selection parameters.
type Lottery struct {
	// MinReputation is the eligibility floor for the weighted draw.
	MinReputation float64

	// RequireDistinctSubnet forbids two hops from the same /16 block.
	RequireDistinctSubnet bool

	// ExcludeCooldown is how long a failing relay stays excluded from
	// fresh draws, in seconds.
	ExcludeCooldown uint64
}

func (l *Lottery) validate() error {
	if l.MinReputation == 0 {
		l.MinReputation = defaultMinReputation
	}
	if l.MinReputation < 0 {
		return fmt.Errorf("config: Lottery: MinReputation must not be negative")
	}
	if l.ExcludeCooldown == 0 {
		l.ExcludeCooldown = defaultExcludeCooldown
	}
	return nil
}

// ExcludeCooldownDuration returns ExcludeCooldown as a time.Duration.
func (l *Lottery) ExcludeCooldownDuration() time.Duration {
	return time.Duration(l.ExcludeCooldown) * time.Second
}

// Reputation holds the score decay and event weighting parameters.
type Reputation struct {
	// Baseline is the score a relay decays toward and starts at.
	Baseline float64

	// Max caps the score.
	Max float64

	// HalfLife is the decay half-life in seconds.
	HalfLife uint64

	// BuildSuccess is the increment for a completed circuit build.
	BuildSuccess float64

	// RelaySuccess is the increment for successful data relay.
	RelaySuccess float64

	// HandshakePenalty is the decrement for a failed handshake.
	HandshakePenalty float64

	// TimeoutPenalty is the decrement for an unresponsive hop.
	TimeoutPenalty float64

	// IntegrityPenalty is the decrement for a MAC/AEAD violation; it
	// also moves the relay to Excluded for the lottery cooldown.
	IntegrityPenalty float64

	// DegradeThreshold is the score below which a relay is Degraded.
	DegradeThreshold float64
}

func (r *Reputation) validate() error {
	if r.Baseline == 0 {
		r.Baseline = defaultBaseline
	}
	if r.Max == 0 {
		r.Max = defaultMaxScore
	}
	if r.Baseline < 0 || r.Max <= r.Baseline {
		return fmt.Errorf("config: Reputation: need 0 <= Baseline < Max, have %v, %v", r.Baseline, r.Max)
	}
	if r.HalfLife == 0 {
		r.HalfLife = defaultHalfLife
	}
	if r.BuildSuccess == 0 {
		r.BuildSuccess = defaultBuildSuccess
	}
	if r.RelaySuccess == 0 {
		r.RelaySuccess = defaultRelaySuccess
	}
	if r.HandshakePenalty == 0 {
		r.HandshakePenalty = defaultHandshakePenalty
	}
	if r.TimeoutPenalty == 0 {
		r.TimeoutPenalty = defaultTimeoutPenalty
	}
	if r.IntegrityPenalty == 0 {
		r.IntegrityPenalty = defaultIntegrityPenalty
	}
	if r.DegradeThreshold == 0 {
		r.DegradeThreshold = defaultDegradeThreshold
	}
	return nil
}

// HalfLifeDuration returns HalfLife as a time.Duration.
func (r *Reputation) HalfLifeDuration() time.Duration {
	return time.Duration(r.HalfLife) * time.Second
}

// Directory holds directory feed parameters.
type Directory struct {
	// FeedURL is the HTTP directory feed base URL.
	FeedURL string

	// IdentityKey is the path to the authority's public key PEM, used
	// to verify fetched documents.
	IdentityKey string

	// RedisAddr, when set, selects the redis feed source instead of
	// the HTTP one.
	RedisAddr string

	// RedisKey is the redis key holding the signed directory blob.
	RedisKey string

	// RefreshInterval is the snapshot refresh period in seconds.
	RefreshInterval uint64

	// EpochInterval is the selection seed epoch length in seconds,
	// used by the directory server.
	EpochInterval uint64
}

func (d *Directory) validate() error {
	if d.RedisKey == "" {
		d.RedisKey = defaultRedisKey
	}
	if d.RefreshInterval == 0 {
		d.RefreshInterval = defaultRefreshInterval
	}
	if d.EpochInterval == 0 {
		d.EpochInterval = defaultEpochInterval
	}
	return nil
}

// RefreshIntervalDuration returns RefreshInterval as a time.Duration.
func (d *Directory) RefreshIntervalDuration() time.Duration {
	return time.Duration(d.RefreshInterval) * time.Second
}

// EpochIntervalDuration returns EpochInterval as a time.Duration.
func (d *Directory) EpochIntervalDuration() time.Duration {
	return time.Duration(d.EpochInterval) * time.Second
}

// Relay holds relay daemon parameters.
type Relay struct {
	// Listen is the address the relay accepts links on.
	Listen string

	// IdleTTL is the per-circuit idle sweep deadline in seconds.
	IdleTTL uint64

	// EchoExit makes the exit hop echo data payloads back to the
	// client instead of discarding them.
	EchoExit bool
}

func (r *Relay) validate() error {
	if r.Listen == "" {
		r.Listen = defaultRelayListen
	}
	if r.IdleTTL == 0 {
		r.IdleTTL = defaultIdleTTL
	}
	return nil
}

// IdleTTLDuration returns IdleTTL as a time.Duration.
func (r *Relay) IdleTTLDuration() time.Duration {
	return time.Duration(r.IdleTTL) * time.Second
}

// Logging holds the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout is used.
	File string

	// Level specifies the log level.
	Level string
}

func (l *Logging) validate() error {
	lvl := strings.ToUpper(l.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level %q is invalid", l.Level)
	}
	l.Level = lvl
	return nil
}

// Config is the top-level configuration.
type Config struct {
	Circuit    *Circuit
	Lottery    *Lottery
	Reputation *Reputation
	Directory  *Directory
	Relay      *Relay
	Logging    *Logging
}

// FixupAndValidate applies defaults and validates every section.
func (c *Config) FixupAndValidate() error {
	if c.Circuit == nil {
		c.Circuit = &Circuit{}
	}
	if c.Lottery == nil {
		c.Lottery = &Lottery{}
	}
	if c.Reputation == nil {
		c.Reputation = &Reputation{}
	}
	if c.Directory == nil {
		c.Directory = &Directory{}
	}
	if c.Relay == nil {
		c.Relay = &Relay{}
	}
	if c.Logging == nil {
		c.Logging = &Logging{}
	}
	if err := c.Circuit.validate(); err != nil {
		return err
	}
	if err := c.Lottery.validate(); err != nil {
		return err
	}
	if err := c.Reputation.validate(); err != nil {
		return err
	}
	if err := c.Directory.validate(); err != nil {
		return err
	}
	if err := c.Relay.validate(); err != nil {
		return err
	}
	return c.Logging.validate()
}

// Load parses a TOML configuration.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads and parses a TOML configuration file.
func LoadFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(b)
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := new(Config)
	if err := cfg.FixupAndValidate(); err != nil {
		panic(err)
	}
	return cfg
}
