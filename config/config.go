package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	EnvDataFile = "READING_LOG_DATA_FILE"
	EnvLogFile  = "READING_LOG_LOG_FILE"
	EnvDebug    = "READING_LOG_DEBUG"

	DefaultDataFile = "book_data.json"
)

// Config holds startup settings. Command-line flags override these values.
type Config struct {
	DataFilePath string
	LogFilePath  string
	Debug        bool
}

// Load reads an optional .env file from the working directory and then the
// process environment.
func Load() Config {
	// A missing .env is the normal case.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	return Config{
		DataFilePath: getEnv(EnvDataFile, DefaultDataFile),
		LogFilePath:  getEnv(EnvLogFile, ""),
		Debug:        getEnvAsBool(EnvDebug, false),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}
