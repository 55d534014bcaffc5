// Package config assembles the runtime settings from defaults, the
// environment (including a .env file), an optional JSON file and
// command-line flags, in that order of increasing precedence.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// Backend values.
const (
	BackendS3  = "s3"
	BackendDir = "dir"
)

// HistoryOff disables the sync journal when used as HistoryDSN.
const HistoryOff = "off"

// Config holds runtime settings.
//
// Fields:
//   - ResultsDir: local results root holding projects.json and project files.
//   - Backend: "s3", "dir" or empty; empty disables sync.
//   - S3Profile: shared AWS profile; static keys take precedence when set.
//   - S3AccessKey / S3SecretKey: static credentials.
//   - S3Bucket / S3Region / S3BaseEndpoint / S3UsePathStyle: bucket settings,
//     the last two for MinIO and other S3-compatible servers.
//   - StoreDir: shared directory used by the "dir" backend.
//   - OperationTimeout: per-request timeout for object store calls.
//   - HistoryDSN: journal database; empty means an SQLite file in ResultsDir.
//   - LogLevel / LogFormat / LogFile: logger settings.
type Config struct {
	ResultsDir       string `validate:"required"`
	Backend          string `validate:"omitempty,oneof=s3 dir"`
	S3Profile        string
	S3AccessKey      string `validate:"required_with=S3SecretKey"`
	S3SecretKey      string `validate:"required_with=S3AccessKey"`
	S3Bucket         string `validate:"required_if=Backend s3"`
	S3Region         string `validate:"required_if=Backend s3"`
	S3BaseEndpoint   string `validate:"omitempty,url"`
	S3UsePathStyle   bool
	StoreDir         string `validate:"required_if=Backend dir"`
	OperationTimeout time.Duration
	HistoryDSN       string
	LogLevel         string `validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat        string `validate:"omitempty,oneof=json text"`
	LogFile          string
}

// LoadDefaults populates Config with local defaults. Sync is disabled until
// a backend is configured.
func (c *Config) LoadDefaults() {
	c.ResultsDir = "scan_results"
	c.Backend = ""
	c.S3Region = "us-east-1"
	c.OperationTimeout = 60 * time.Second
	c.LogLevel = "info"
	c.LogFormat = "text"
}

// LoadConfig builds a Config by applying defaults, then the environment,
// then an optional JSON file and finally command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

// SyncEnabled reports whether an object store backend is configured.
func (c *Config) SyncEnabled() bool {
	return c.Backend != ""
}

// HistoryPath returns the journal DSN, or "" when the journal is disabled.
func (c *Config) HistoryPath() string {
	switch c.HistoryDSN {
	case HistoryOff:
		return ""
	case "":
		return filepath.Join(c.ResultsDir, ".sync_history.db")
	}
	return c.HistoryDSN
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field combinations, e.g. that the s3 backend has a
// bucket.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.OperationTimeout < 0 {
		return fmt.Errorf("invalid configuration: negative operation timeout %s", c.OperationTimeout)
	}
	return nil
}
