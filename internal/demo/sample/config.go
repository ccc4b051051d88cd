package sample

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultStart anchors generated timestamps so a seed always yields the same files.
var DefaultStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type LookupFunc func(string) (string, bool)

type Config struct {
	Dir             string
	BaseName        string
	Rows            int
	Seed            int64
	UserCardinality int
	Start           time.Time
}

func DefaultConfig() Config {
	return Config{
		Dir:             "sample-data",
		BaseName:        "events",
		Rows:            10000,
		Seed:            42,
		UserCardinality: 200,
		Start:           DefaultStart,
	}
}

// LoadConfigFromEnv applies PARQUETSQL_SAMPLE_* overrides to DefaultConfig.
func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "PARQUETSQL_SAMPLE_DIR", &cfg.Dir); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PARQUETSQL_SAMPLE_BASENAME", &cfg.BaseName); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "PARQUETSQL_SAMPLE_ROWS", &cfg.Rows); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "PARQUETSQL_SAMPLE_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "PARQUETSQL_SAMPLE_USER_CARDINALITY", &cfg.UserCardinality); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Dir) == "" {
		return fmt.Errorf("sample output directory is required")
	}
	if strings.TrimSpace(c.BaseName) == "" || strings.ContainsAny(c.BaseName, `/\`) {
		return fmt.Errorf("sample base name must be a plain file name, got %q", c.BaseName)
	}
	if c.Rows <= 0 {
		return fmt.Errorf("sample rows must be > 0")
	}
	if c.UserCardinality <= 0 {
		return fmt.Errorf("sample user cardinality must be > 0")
	}
	return nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
