package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServiceName string
	LogLevel    string

	ServerPort int

	DatabaseURL string
	SQLitePath  string

	JWTSecret     []byte
	StaffPassword string
	AdminPassword string
	DeleteSecret  string

	KafkaBrokers []string
	KafkaTopic   string

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string

	TableCount int
	Timezone   string

	MenuSeedPath      string
	ReconcileInterval time.Duration
}

func Load() Config {
	return Config{
		ServiceName: EnvDefault("SERVICE_NAME", "restaurant_pos"),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),

		ServerPort: EnvIntDefault("SERVER_PORT", 8080),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  EnvDefault("SQLITE_PATH", "restaurant.db"),

		JWTSecret:     []byte(os.Getenv("JWT_SECRET")),
		StaffPassword: os.Getenv("STAFF_PASSWORD"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		DeleteSecret:  os.Getenv("DELETE_SECRET"),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   EnvDefault("KAFKA_TOPIC", "restaurant_events"),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
		ESIndex:    EnvDefault("ES_INDEX", "order_history"),

		TableCount: EnvIntDefault("TABLE_COUNT", 12),
		Timezone:   EnvDefault("TIMEZONE", "Asia/Kathmandu"),

		MenuSeedPath:      os.Getenv("MENU_SEED_PATH"),
		ReconcileInterval: EnvDurationDefault("RECONCILE_INTERVAL", time.Minute),
	}
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
