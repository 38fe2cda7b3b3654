package logger

import (
	"io"
	"os"
	"strconv"
)

// Options configures a Logger. The zero value logs JSON at info level to
// stdout.
type Options struct {
	Level   string // debug, info, warn, error
	Format  string // json, text
	Output  io.Writer
	Service string
	// Env "local" keeps output on stdout regardless of File.
	Env  string
	File FileOptions
}

// FileOptions enables rotated file output.
type FileOptions struct {
	Path       string
	Only       bool // skip stdout
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// OptionsFromEnv reads LOG_*, SERVICE_NAME and APP_ENV.
func OptionsFromEnv() Options {
	return Options{
		Level:   envString("LOG_LEVEL", "info"),
		Format:  envString("LOG_FORMAT", "json"),
		Service: envString("SERVICE_NAME", "examwatch"),
		Env:     envString("APP_ENV", "local"),
		File: FileOptions{
			Path:       envString("LOG_FILE", "/var/log/examwatch/app.log"),
			Only:       envBool("LOG_FILE_ONLY", false),
			MaxSizeMB:  envInt("LOG_MAX_SIZE", 100),
			MaxBackups: envInt("LOG_MAX_BACKUPS", 7),
			MaxAgeDays: envInt("LOG_MAX_AGE", 30),
			Compress:   envBool("LOG_COMPRESS", true),
		},
	}
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return n
}
