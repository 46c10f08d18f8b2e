// Package config reads process configuration from the environment,
// matching the teacher's inline os.Getenv(...)-with-default idiom
// (database.go, main.go) rather than introducing a viper/envconfig
// layer the teacher itself never uses.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is every WAITINGROOM_*/DB_*/REDIS_* environment setting this
// process reads at startup.
type Config struct {
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TickInterval time.Duration
}

// FromEnv reads Config from the environment, applying the same
// if-empty-then-default idiom as the teacher's `if port == "" { port =
// "8080" }`.
func FromEnv() Config {
	return Config{
		Port: getenv("PORT", "8080"),

		DBHost:     getenv("DB_HOST", "localhost"),
		DBPort:     getenv("DB_PORT", "5432"),
		DBUser:     getenv("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getenv("DB_NAME", "waitingroom"),
		DBSSLMode:  getenv("DB_SSLMODE", "disable"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getenvInt("REDIS_DB", 0),

		TickInterval: getenvDuration("WAITINGROOM_TICK_INTERVAL", time.Second),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
