package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("parquetsql", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Engine.MemoryLimit != "8GB" {
		t.Fatalf("Engine.MemoryLimit = %q", cfg.Engine.MemoryLimit)
	}
	if cfg.Engine.Threads != 8 {
		t.Fatalf("Engine.Threads = %d", cfg.Engine.Threads)
	}
	if cfg.Engine.PreserveInsertionOrder {
		t.Fatal("Engine.PreserveInsertionOrder should default to false")
	}
	if cfg.Engine.DiskPath != "" {
		t.Fatalf("Engine.DiskPath = %q, want in-memory", cfg.Engine.DiskPath)
	}
	if cfg.Results.PageSize != 1000 {
		t.Fatalf("Results.PageSize = %d", cfg.Results.PageSize)
	}
	if cfg.Charts.HistogramBins != 20 {
		t.Fatalf("Charts.HistogramBins = %d", cfg.Charts.HistogramBins)
	}
	if cfg.Executor.ShutdownTimeout != 5*time.Second {
		t.Fatalf("Executor.ShutdownTimeout = %s", cfg.Executor.ShutdownTimeout)
	}
	if cfg.ObjectStore.Enabled() {
		t.Fatal("ObjectStore should be disabled without endpoint and bucket")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"PARQUETSQL_PROFILE": "prod"})
	cfg, err := Load("parquetsql", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Observability.LogJSON {
		t.Fatal("LogJSON should default to true in prod")
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"PARQUETSQL_PROFILE":                   "test",
		"PARQUETSQL_SERVICE_NAME":              "parquetsql-custom",
		"PARQUETSQL_HTTP_ADDR":                 ":9999",
		"PARQUETSQL_HTTP_READ_TIMEOUT":         "2s",
		"PARQUETSQL_HTTP_WRITE_TIMEOUT":        "3s",
		"PARQUETSQL_LOG_LEVEL":                 "error",
		"PARQUETSQL_AUTH_REQUIRED":             "true",
		"PARQUETSQL_AUTH_STATIC_KEYS":          "k1:alice:query_reader",
		"PARQUETSQL_DB_PATH":                   "/var/lib/parquetsql/session.duckdb",
		"PARQUETSQL_MEMORY_LIMIT":              "2GB",
		"PARQUETSQL_THREADS":                   "4",
		"PARQUETSQL_TEMP_DIR":                  "/scratch/duck",
		"PARQUETSQL_PRESERVE_INSERTION_ORDER":  "true",
		"PARQUETSQL_STAGING_DIR":               "/scratch/stage",
		"PARQUETSQL_EXECUTOR_SHUTDOWN_TIMEOUT": "750ms",
		"PARQUETSQL_PAGE_SIZE":                 "250",
		"PARQUETSQL_HISTOGRAM_BINS":            "40",
		"PARQUETSQL_OBJECTSTORE_ENDPOINT":      "s3.example.com",
		"PARQUETSQL_OBJECTSTORE_BUCKET":        "datasets",
		"PARQUETSQL_OBJECTSTORE_REGION":        "us-west-2",
		"PARQUETSQL_OBJECTSTORE_ACCESS_KEY":    "abc",
		"PARQUETSQL_OBJECTSTORE_SECRET_KEY":    "def",
		"PARQUETSQL_OBJECTSTORE_USE_SSL":       "true",
		"PARQUETSQL_OBJECTSTORE_PREFIX":        "exports",
	})
	cfg, err := Load("parquetsql", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "parquetsql-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %s", cfg.HTTP.ReadTimeout)
	}
	if cfg.HTTP.WriteTimeout != 3*time.Second {
		t.Fatalf("HTTP.WriteTimeout = %s", cfg.HTTP.WriteTimeout)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required = false, want true")
	}
	if cfg.Auth.StaticKeys != "k1:alice:query_reader" {
		t.Fatalf("StaticKeys = %q", cfg.Auth.StaticKeys)
	}
	if cfg.Engine.DiskPath != "/var/lib/parquetsql/session.duckdb" {
		t.Fatalf("Engine.DiskPath = %q", cfg.Engine.DiskPath)
	}
	if cfg.Engine.MemoryLimit != "2GB" {
		t.Fatalf("Engine.MemoryLimit = %q", cfg.Engine.MemoryLimit)
	}
	if cfg.Engine.Threads != 4 {
		t.Fatalf("Engine.Threads = %d", cfg.Engine.Threads)
	}
	if cfg.Engine.TempDirectory != "/scratch/duck" {
		t.Fatalf("Engine.TempDirectory = %q", cfg.Engine.TempDirectory)
	}
	if !cfg.Engine.PreserveInsertionOrder {
		t.Fatal("Engine.PreserveInsertionOrder = false, want true")
	}
	if cfg.Engine.StagingDirectory != "/scratch/stage" {
		t.Fatalf("Engine.StagingDirectory = %q", cfg.Engine.StagingDirectory)
	}
	if cfg.Executor.ShutdownTimeout != 750*time.Millisecond {
		t.Fatalf("Executor.ShutdownTimeout = %s", cfg.Executor.ShutdownTimeout)
	}
	if cfg.Results.PageSize != 250 {
		t.Fatalf("Results.PageSize = %d", cfg.Results.PageSize)
	}
	if cfg.Charts.HistogramBins != 40 {
		t.Fatalf("Charts.HistogramBins = %d", cfg.Charts.HistogramBins)
	}
	if !cfg.ObjectStore.Enabled() {
		t.Fatal("ObjectStore.Enabled() = false, want true")
	}
	if cfg.ObjectStore.Region != "us-west-2" {
		t.Fatalf("ObjectStore.Region = %q", cfg.ObjectStore.Region)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL = false, want true")
	}
	if cfg.ObjectStore.Prefix != "exports" {
		t.Fatalf("ObjectStore.Prefix = %q", cfg.ObjectStore.Prefix)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"PARQUETSQL_PROFILE": "oops"},
		{"PARQUETSQL_HTTP_READ_TIMEOUT": "NaN"},
		{"PARQUETSQL_THREADS": "oops"},
		{"PARQUETSQL_THREADS": "0"},
		{"PARQUETSQL_PAGE_SIZE": "0"},
		{"PARQUETSQL_PAGE_SIZE": "-5"},
		{"PARQUETSQL_HISTOGRAM_BINS": "4"},
		{"PARQUETSQL_HISTOGRAM_BINS": "101"},
		{"PARQUETSQL_EXECUTOR_SHUTDOWN_TIMEOUT": "0s"},
		{"PARQUETSQL_AUTH_REQUIRED": "not-bool"},
		{"PARQUETSQL_LOG_LEVEL": "verbose"},
		{"PARQUETSQL_SERVICE_NAME": " "},
		{"PARQUETSQL_MEMORY_LIMIT": "lots"},
		{"PARQUETSQL_MEMORY_LIMIT": "8 parsecs"},
	}
	for _, env := range tests {
		_, err := Load("parquetsql", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func TestLoadAcceptsEngineSizesAndLevelOffsets(t *testing.T) {
	for _, limit := range []string{"512MB", "1.5GiB", "75%", "4 gb"} {
		cfg, err := Load("parquetsql", mapLookup(map[string]string{
			"PARQUETSQL_MEMORY_LIMIT": limit,
			"PARQUETSQL_LOG_LEVEL":    "INFO+2",
		}))
		if err != nil {
			t.Fatalf("Load(%q) error = %v", limit, err)
		}
		if cfg.Observability.LogLevel != slog.LevelInfo+2 {
			t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
		}
	}
}

func TestLoadRequiresLookup(t *testing.T) {
	if _, err := Load("parquetsql", nil); err == nil {
		t.Fatal("Load(nil) expected error")
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
