package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // relay.timezone must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"

	logx "hostelrelay/pkg/logx"
)

// Environment overrides. They win over the config file so secrets can
// live in the environment or a .env file.
const (
	EnvTelegramToken  = "RELAY_TELEGRAM_TOKEN"
	EnvTelegramChatID = "RELAY_TELEGRAM_CHAT_ID"
	EnvTelegramAPIURL = "RELAY_TELEGRAM_API_URL"
	EnvIntakeAddr     = "RELAY_INTAKE_ADDR"
	EnvIntakeToken    = "RELAY_INTAKE_TOKEN"
)

const (
	TransportHTTP    = "http"
	TransportTelebot = "telebot"

	DefaultIntakeAddr = "127.0.0.1:8088"
	DefaultTimezone   = "Asia/Kolkata"
)

// Load reads envFile (if it exists), parses the config file, applies
// environment overrides and defaults, and validates the result.
// An empty path means "environment only".
func Load(path, envFile string) (*Config, error) {
	if strings.TrimSpace(envFile) != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %q: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		parsed, err := Parse(path)
		if err != nil {
			return nil, err
		}
		cfg = parsed
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse strictly decodes a JSON or YAML config file (by extension).
func Parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jb, format, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid %s config %s: %w", format, path, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.Telegram.Token, EnvTelegramToken)
	set(&c.Telegram.ChatID, EnvTelegramChatID)
	set(&c.Telegram.APIURL, EnvTelegramAPIURL)
	set(&c.Intake.Addr, EnvIntakeAddr)
	set(&c.Intake.Token, EnvIntakeToken)
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Relay.Transport) == "" {
		c.Relay.Transport = TransportHTTP
	}
	if strings.TrimSpace(c.Relay.Timezone) == "" {
		c.Relay.Timezone = DefaultTimezone
	}
	if strings.TrimSpace(c.Intake.Addr) == "" {
		c.Intake.Addr = DefaultIntakeAddr
	}
	if c.Intake.RatePerSec > 0 && c.Intake.Burst <= 0 {
		c.Intake.Burst = max(1, int(c.Intake.RatePerSec))
	}
}

// Validate rejects configs the relay cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required (or set %s)", EnvTelegramToken)
	}
	if strings.TrimSpace(c.Telegram.ChatID) == "" {
		return fmt.Errorf("telegram.chat_id is required (or set %s)", EnvTelegramChatID)
	}
	switch strings.ToLower(strings.TrimSpace(c.Relay.Transport)) {
	case "", TransportHTTP, TransportTelebot:
	default:
		return fmt.Errorf("relay.transport: unknown transport %q (use %q or %q)", c.Relay.Transport, TransportHTTP, TransportTelebot)
	}
	if _, err := ParseDurationField("relay.timeout", c.Relay.Timeout); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Intake.RatePerSec < 0 {
		return fmt.Errorf("intake.rate_per_sec must be >= 0")
	}
	if c.Intake.Burst < 0 {
		return fmt.Errorf("intake.burst must be >= 0")
	}
	if _, err := ParseDurationField("intake.read_timeout", c.Intake.ReadTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("intake.write_timeout", c.Intake.WriteTimeout); err != nil {
		return err
	}
	if c.Probe.Enabled && strings.TrimSpace(c.Probe.Schedule) == "" {
		return fmt.Errorf("probe.schedule is required when probe.enabled is true")
	}
	if !logx.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	return nil
}

// Location resolves relay.timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Relay.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("relay.timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

// ParseDurationField parses a Go duration string; empty means 0.
// path names the config key in error messages.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty/zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
