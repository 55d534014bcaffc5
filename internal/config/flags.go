package config

import (
	"flag"
	"os"
	"slices"

	"github.com/dmitrijs2005/projsync/internal/flagx"
)

var valueFlags = []string{"-r", "-k", "-P", "-u", "-p", "-b", "-g", "-e", "-d", "-t", "-H", "-l", "-f", "-o"}

// BoolFlags lists the flags that never consume the following argument. The
// command dispatcher needs it to tell flag values from command words.
var BoolFlags = []string{"-path-style"}

// parseFlags overlays command-line flags.
//
//	-r string     results directory
//	-k string     backend: s3, dir, or empty to disable sync
//	-P string     AWS shared profile
//	-u string     S3 access key
//	-p string     S3 secret key
//	-b string     S3 bucket
//	-g string     S3 region
//	-e string     S3 base endpoint (e.g. "http://127.0.0.1:9000")
//	-path-style   use path-style S3 addressing
//	-d string     shared directory for the dir backend
//	-t duration   per-request timeout (e.g. "30s")
//	-H string     journal DSN, "off" to disable
//	-l string     log level
//	-f string     log format: text or json
//	-o string     log file
func parseFlags(config *Config) {
	args := flagx.FilterArgs(explicitBools(os.Args[1:]), append(append([]string{}, valueFlags...), BoolFlags...))

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ResultsDir, "r", config.ResultsDir, "results directory")
	fs.StringVar(&config.Backend, "k", config.Backend, "object store backend (s3, dir)")
	fs.StringVar(&config.S3Profile, "P", config.S3Profile, "AWS shared profile")
	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.BoolVar(&config.S3UsePathStyle, "path-style", config.S3UsePathStyle, "use path-style S3 addressing")
	fs.StringVar(&config.StoreDir, "d", config.StoreDir, "shared store directory")
	fs.DurationVar(&config.OperationTimeout, "t", config.OperationTimeout, "object store request timeout")
	fs.StringVar(&config.HistoryDSN, "H", config.HistoryDSN, "sync journal DSN")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "f", config.LogFormat, "log format")
	fs.StringVar(&config.LogFile, "o", config.LogFile, "log file")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}

// explicitBools rewrites bare boolean flags to "-name=true" so that
// FilterArgs does not take the following command word as their value.
func explicitBools(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = a
		if slices.Contains(BoolFlags, a) {
			out[i] = a + "=true"
		}
	}
	return out
}
