// ABOUTME: Configuration loading for roomkeeper
// ABOUTME: TOML file with environment variable expansion plus env overrides

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied when the file leaves a field unset.
const (
	DefaultDelaySeconds  = 300
	DefaultCatchupLimit  = 100
	DefaultCommandPrefix = "!"
)

type Config struct {
	Matrix  MatrixConfig  `toml:"matrix"`
	Room    RoomConfig    `toml:"room"`
	Policy  PolicyConfig  `toml:"policy"`
	State   StateConfig   `toml:"state"`
	Ledger  LedgerConfig  `toml:"ledger"`
	Bridge  BridgeConfig  `toml:"bridge"`
	Logging LoggingConfig `toml:"logging"`

	// delaySet records whether delay_seconds was given explicitly, so
	// an explicit zero (delete immediately) is not mistaken for unset.
	delaySet bool
}

type MatrixConfig struct {
	Homeserver  string `toml:"homeserver"`
	UserID      string `toml:"user_id"`
	AccessToken string `toml:"access_token"`
}

// RoomConfig identifies the single monitored room.
type RoomConfig struct {
	ID string `toml:"id"`
}

// PolicyConfig controls the two content-lifecycle policies.
type PolicyConfig struct {
	// FleetingEnabled turns on delayed deletion of every message.
	// Duplicate suppression is always active.
	FleetingEnabled bool `toml:"fleeting_enabled"`
	DelaySeconds    int  `toml:"delay_seconds"`
	// MaxAttempts caps deletion retries; 0 retries forever.
	MaxAttempts int `toml:"max_attempts"`
	// CatchupLimit bounds the initial history scan when no high-water
	// mark has been persisted yet.
	CatchupLimit int `toml:"catchup_limit"`
}

type StateConfig struct {
	Path string `toml:"path"`
}

type LedgerConfig struct {
	Path string `toml:"path"`
}

type BridgeConfig struct {
	CommandPrefix string `toml:"command_prefix"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// Load reads config from the given path, expanding ${VAR} references,
// then applies environment overrides and validates. The environment
// variables MONITORED_CHANNEL_ID, AUTH_TOKEN, and FIXED_DELAY_SECONDS
// take precedence over the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	md, err := toml.Decode(expanded, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.delaySet = md.IsDefined("policy", "delay_seconds")

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// applyEnvOverrides lets deployment environments override the file
// without editing it.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("MONITORED_CHANNEL_ID"); v != "" {
		c.Room.ID = v
	}
	if v := os.Getenv("AUTH_TOKEN"); v != "" {
		c.Matrix.AccessToken = v
	}
	if v := os.Getenv("FIXED_DELAY_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FIXED_DELAY_SECONDS is not a number: %q", v)
		}
		c.Policy.DelaySeconds = secs
		c.delaySet = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if !c.delaySet && c.Policy.DelaySeconds == 0 {
		c.Policy.DelaySeconds = DefaultDelaySeconds
	}
	if c.Policy.CatchupLimit == 0 {
		c.Policy.CatchupLimit = DefaultCatchupLimit
	}
	if c.Bridge.CommandPrefix == "" {
		c.Bridge.CommandPrefix = DefaultCommandPrefix
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	u, err := url.Parse(c.Matrix.Homeserver)
	if err != nil {
		return fmt.Errorf("matrix.homeserver is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("matrix.homeserver must use http or https scheme")
	}
	if c.Matrix.UserID == "" {
		return fmt.Errorf("matrix.user_id is required")
	}
	if c.Matrix.AccessToken == "" {
		return fmt.Errorf("matrix.access_token is required (or set AUTH_TOKEN)")
	}
	if c.Room.ID == "" {
		return fmt.Errorf("room.id is required (or set MONITORED_CHANNEL_ID)")
	}
	if c.Policy.DelaySeconds < 0 {
		return fmt.Errorf("policy.delay_seconds must not be negative")
	}
	if c.Policy.MaxAttempts < 0 {
		return fmt.Errorf("policy.max_attempts must not be negative")
	}
	return nil
}

// Delay returns the fleeting-message window as a duration.
func (c *Config) Delay() time.Duration {
	return time.Duration(c.Policy.DelaySeconds) * time.Second
}
