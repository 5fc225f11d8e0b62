package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Log     LogConfig
	History HistoryConfig
	Poll    PollConfig
}

type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

type LogConfig struct {
	File    string
	MaxSize int64
}

type HistoryConfig struct {
	Capacity int
}

type PollConfig struct {
	IdleTimeout time.Duration
	WaitTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:           getEnvOrDefault("PORT", ":8080"),
			ReadTimeout:    getDurationOrDefault("READ_TIMEOUT", "15s"),
			WriteTimeout:   getDurationOrDefault("WRITE_TIMEOUT", "15s"),
			AllowedOrigins: getListOrDefault("ALLOWED_ORIGINS", "*"),
		},
		Log: LogConfig{
			File:    getEnvOrDefault("LOG_FILE", "hub.log"),
			MaxSize: int64(getIntOrDefault("LOG_MAX_SIZE", 10*1024*1024)),
		},
		History: HistoryConfig{
			Capacity: getIntOrDefault("HISTORY_CAPACITY", 200),
		},
		Poll: PollConfig{
			IdleTimeout: getDurationOrDefault("POLL_IDLE_TIMEOUT", "90s"),
			WaitTimeout: getDurationOrDefault("POLL_WAIT_TIMEOUT", "25s"),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key, defaultValue string) time.Duration {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("Invalid duration for %s: %v", key, err)
	}
	return duration
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("Invalid integer for %s: %v", key, err)
	}
	return intValue
}

func getListOrDefault(key, defaultValue string) []string {
	value := getEnvOrDefault(key, defaultValue)

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
