package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/parquetsql/parquetsql/internal/chart"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	Engine        EngineConfig
	Executor      ExecutorConfig
	Results       ResultsConfig
	Charts        ChartsConfig
	HTTP          HTTPConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

// EngineConfig holds the embedded engine resource settings applied on open.
type EngineConfig struct {
	DiskPath               string
	MemoryLimit            string
	Threads                int
	TempDirectory          string
	PreserveInsertionOrder bool
	StagingDirectory       string
}

type ExecutorConfig struct {
	ShutdownTimeout time.Duration
}

type ResultsConfig struct {
	PageSize int
}

type ChartsConfig struct {
	HistogramBins int
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type ObjectStoreConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
}

// Enabled reports whether s3:// inputs can be staged.
func (c ObjectStoreConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

const (
	MinHistogramBins = chart.MinHistogramBins
	MaxHistogramBins = chart.MaxHistogramBins
)

// EnvPrefix starts every environment variable Load reads.
const EnvPrefix = "PARQUETSQL_"

var memoryLimitPattern = regexp.MustCompile(`(?i)^\d+(\.\d+)?\s*(b|kb|mb|gb|tb|kib|mib|gib|tib)$|^\d{1,3}%$`)

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

// Load builds the profile defaults named by PARQUETSQL_PROFILE and overlays every
// PARQUETSQL_* variable lookup finds.
func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, errors.New("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup(EnvPrefix + "PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid %sPROFILE: %q", EnvPrefix, profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}
	for _, b := range cfg.bindings() {
		raw, ok := lookup(EnvPrefix + b.name)
		if !ok {
			continue
		}
		if err := b.set(strings.TrimSpace(raw)); err != nil {
			return Config{}, fmt.Errorf("invalid %s%s: %w", EnvPrefix, b.name, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// binding ties one variable name, without EnvPrefix, to the field it sets.
type binding struct {
	name string
	set  func(raw string) error
}

func (c *Config) bindings() []binding {
	return []binding{
		{"SERVICE_NAME", setString(&c.Service.Name)},
		{"DB_PATH", setString(&c.Engine.DiskPath)},
		{"MEMORY_LIMIT", setString(&c.Engine.MemoryLimit)},
		{"THREADS", setInt(&c.Engine.Threads)},
		{"TEMP_DIR", setString(&c.Engine.TempDirectory)},
		{"PRESERVE_INSERTION_ORDER", setBool(&c.Engine.PreserveInsertionOrder)},
		{"STAGING_DIR", setString(&c.Engine.StagingDirectory)},
		{"EXECUTOR_SHUTDOWN_TIMEOUT", setDuration(&c.Executor.ShutdownTimeout)},
		{"PAGE_SIZE", setInt(&c.Results.PageSize)},
		{"HISTOGRAM_BINS", setInt(&c.Charts.HistogramBins)},
		{"HTTP_ADDR", setString(&c.HTTP.Address)},
		{"HTTP_READ_TIMEOUT", setDuration(&c.HTTP.ReadTimeout)},
		{"HTTP_WRITE_TIMEOUT", setDuration(&c.HTTP.WriteTimeout)},
		{"HTTP_IDLE_TIMEOUT", setDuration(&c.HTTP.IdleTimeout)},
		{"OBJECTSTORE_ENDPOINT", setString(&c.ObjectStore.Endpoint)},
		{"OBJECTSTORE_REGION", setString(&c.ObjectStore.Region)},
		{"OBJECTSTORE_BUCKET", setString(&c.ObjectStore.Bucket)},
		{"OBJECTSTORE_ACCESS_KEY", setString(&c.ObjectStore.AccessKeyID)},
		{"OBJECTSTORE_SECRET_KEY", setString(&c.ObjectStore.SecretAccessKey)},
		{"OBJECTSTORE_USE_SSL", setBool(&c.ObjectStore.UseSSL)},
		{"OBJECTSTORE_PREFIX", setString(&c.ObjectStore.Prefix)},
		{"LOG_JSON", setBool(&c.Observability.LogJSON)},
		{"LOG_LEVEL", setLevel(&c.Observability.LogLevel)},
		{"AUTH_REQUIRED", setBool(&c.Auth.Required)},
		{"AUTH_STATIC_KEYS", setString(&c.Auth.StaticKeys)},
	}
}

func (c Config) validate() error {
	switch {
	case c.Service.Name == "":
		return errors.New("service name is required")
	case c.Engine.Threads <= 0:
		return errors.New("engine threads must be > 0")
	case c.Engine.MemoryLimit != "" && !memoryLimitPattern.MatchString(c.Engine.MemoryLimit):
		return fmt.Errorf("engine memory limit %q is not a size such as 4GB or a percentage", c.Engine.MemoryLimit)
	case c.Results.PageSize <= 0:
		return errors.New("page size must be > 0")
	case c.Charts.HistogramBins < MinHistogramBins || c.Charts.HistogramBins > MaxHistogramBins:
		return fmt.Errorf("histogram bins must be within [%d, %d]", MinHistogramBins, MaxHistogramBins)
	case c.Executor.ShutdownTimeout <= 0:
		return errors.New("executor shutdown timeout must be > 0")
	case c.HTTP.Address == "":
		return errors.New("http address is required")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "parquetsql"},
		Engine: EngineConfig{
			DiskPath:               "",
			MemoryLimit:            "8GB",
			Threads:                8,
			TempDirectory:          filepath.Join(os.TempDir(), "duckdb_temp"),
			PreserveInsertionOrder: false,
			StagingDirectory:       filepath.Join(os.TempDir(), "parquetsql-staging"),
		},
		Executor: ExecutorConfig{
			ShutdownTimeout: 5 * time.Second,
		},
		Results: ResultsConfig{
			PageSize: 1000,
		},
		Charts: ChartsConfig{
			HistogramBins: 20,
		},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		ObjectStore: ObjectStoreConfig{
			Region: "us-east-1",
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  false,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Engine.MemoryLimit = "1GB"
		cfg.Engine.Threads = 2
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Observability.LogJSON = true
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func setString(dst *string) func(string) error {
	return func(raw string) error {
		*dst = raw
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(raw string) error {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		*dst = value
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(raw string) error {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		*dst = value
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(raw string) error {
		value, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*dst = value
		return nil
	}
}

// setLevel accepts slog level names, so "warn" and "INFO+2" both parse.
func setLevel(dst *slog.Level) func(string) error {
	return func(raw string) error {
		return dst.UnmarshalText([]byte(raw))
	}
}
