package env

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// GetStringFromFile reads KEY_FILE when set (Docker secrets) and falls back to KEY
func GetStringFromFile(key, defaultValue string) string {
	if filePath := os.Getenv(key + "_FILE"); filePath != "" {
		content, err := os.ReadFile(filepath.Clean(filePath))
		if err == nil {
			return string(bytes.TrimSpace(content))
		}
	}
	return GetString(key, defaultValue)
}

// GetString returns the environment variable value or the default value if not set
func GetString(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

// GetInt returns the environment variable value as an integer or the default value if not set
func GetInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(GetString(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// GetInt64 returns the environment variable value as an int64 or the default value if not set
func GetInt64(key string, defaultValue int64) int64 {
	value, err := strconv.ParseInt(GetString(key, ""), 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetBool returns the environment variable value as a boolean or the default value if not set
func GetBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(GetString(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// GetDuration accepts Go duration syntax ("30s", "5m")
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(GetString(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}
