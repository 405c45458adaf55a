package config

import (
	"os"
	"strconv"
)

// Config represents the application configuration.
// This is an infrastructure component that loads configuration from environment variables.
type Config struct {
	Port        string
	LogLevel    string
	DatabaseDSN string

	JWTSecret     string
	OpenAIAPIKey  string
	MaxNestingCap int
}

// Load creates a new Config instance by reading environment variables.
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseDSN:   getEnv("DATABASE_DSN", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		MaxNestingCap: getEnvInt("MAX_NESTING_DEPTH", 10),
	}
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetPortInt returns the port as an integer.
func (c *Config) GetPortInt() int {
	p, _ := strconv.Atoi(c.Port)
	return p
}
