package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/projsync/internal/flagx"
	"github.com/dmitrijs2005/projsync/internal/timex"
)

// JsonConfig is the JSON file layout. Durations accept "30s" style strings
// or integer nanoseconds via timex.Duration.
type JsonConfig struct {
	ResultsDir       string         `json:"results_dir"`
	Backend          string         `json:"backend"`
	S3Profile        string         `json:"s3_profile"`
	S3AccessKey      string         `json:"s3_access_key"`
	S3SecretKey      string         `json:"s3_secret_key"`
	S3Bucket         string         `json:"s3_bucket"`
	S3Region         string         `json:"s3_region"`
	S3BaseEndpoint   string         `json:"s3_base_endpoint"`
	S3UsePathStyle   *bool          `json:"s3_use_path_style"`
	StoreDir         string         `json:"store_dir"`
	OperationTimeout timex.Duration `json:"operation_timeout"`
	HistoryDSN       string         `json:"history_dsn"`
	LogLevel         string         `json:"log_level"`
	LogFormat        string         `json:"log_format"`
	LogFile          string         `json:"log_file"`
}

// parseJson loads the file named by -c or -config, if any, and copies every
// field it sets into config. A file that cannot be read or parsed panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.ResultsDir, c.ResultsDir)
	setString(&config.Backend, c.Backend)
	setString(&config.S3Profile, c.S3Profile)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.StoreDir, c.StoreDir)
	setString(&config.HistoryDSN, c.HistoryDSN)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.LogFile, c.LogFile)

	if c.S3UsePathStyle != nil {
		config.S3UsePathStyle = *c.S3UsePathStyle
	}
	if c.OperationTimeout.Duration != 0 {
		config.OperationTimeout = c.OperationTimeout.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
