package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "PROJSYNC_"

// dotEnvFile is read before the environment; variables already set in the
// process environment win over the file.
var dotEnvFile = ".env"

// parseEnv overlays PROJSYNC_* variables. Unset variables leave the field
// alone; malformed booleans and durations panic like malformed flags.
func parseEnv(config *Config) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	envString(&config.ResultsDir, "RESULTS_DIR")
	envString(&config.Backend, "BACKEND")
	envString(&config.S3Profile, "S3_PROFILE")
	envString(&config.S3AccessKey, "S3_ACCESS_KEY")
	envString(&config.S3SecretKey, "S3_SECRET_KEY")
	envString(&config.S3Bucket, "S3_BUCKET")
	envString(&config.S3Region, "S3_REGION")
	envString(&config.S3BaseEndpoint, "S3_ENDPOINT")
	envString(&config.StoreDir, "STORE_DIR")
	envString(&config.HistoryDSN, "HISTORY_DSN")
	envString(&config.LogLevel, "LOG_LEVEL")
	envString(&config.LogFormat, "LOG_FORMAT")
	envString(&config.LogFile, "LOG_FILE")

	if v, ok := os.LookupEnv(envPrefix + "S3_PATH_STYLE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			panic(err)
		}
		config.S3UsePathStyle = b
	}
	if v, ok := os.LookupEnv(envPrefix + "TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(err)
		}
		config.OperationTimeout = d
	}
}

func envString(dst *string, name string) {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		*dst = v
	}
}
