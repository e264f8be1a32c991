package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env             string
	ChatStoreMode   string // "memory" or "redis"
	RedisAddr       string
	RedisKeyPrefix  string
	MongoURI        string
	MongoDB         string
	KafkaBrokers    []string
	KafkaTopic      string
	KafkaGroupID    string
	WatchUser       string
	DuplicateWindow time.Duration
	SeenBatchSize   int
	SeenBatchDelay  time.Duration
	PreviewLimit    int
	ProfileRetries  int
	ProfileBackoff  time.Duration
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:            getEnv("APP_ENV", "dev"),
		ChatStoreMode:  strings.ToLower(getEnv("CHAT_STORE_MODE", "memory")),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "campusmesh"),
		MongoURI:       os.Getenv("MONGO_URI"),
		MongoDB:        getEnv("MONGO_DB", "campusmesh"),
		KafkaTopic:     getEnv("KAFKA_NOTIFICATIONS_TOPIC", "chat.notifications.v1"),
		KafkaGroupID:   getEnv("KAFKA_GROUP_ID", "campusmesh-notifications"),
		WatchUser:      os.Getenv("CHAT_WATCH_USER"),
	}
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	window, err := parseDurationEnv("CHAT_DUPLICATE_WINDOW", 2000*time.Millisecond)
	if err != nil {
		return Config{}, err
	}
	cfg.DuplicateWindow = window

	delay, err := parseDurationEnv("CHAT_SEEN_BATCH_DELAY", 50*time.Millisecond)
	if err != nil {
		return Config{}, err
	}
	cfg.SeenBatchDelay = delay

	backoff, err := parseDurationEnv("CHAT_PROFILE_RETRY_BACKOFF", 200*time.Millisecond)
	if err != nil {
		return Config{}, err
	}
	cfg.ProfileBackoff = backoff

	batch, err := parseIntEnv("CHAT_SEEN_BATCH_SIZE", 3)
	if err != nil {
		return Config{}, err
	}
	cfg.SeenBatchSize = batch

	preview, err := parseIntEnv("CHAT_PREVIEW_LIMIT", 500)
	if err != nil {
		return Config{}, err
	}
	cfg.PreviewLimit = preview

	retries, err := parseIntEnv("CHAT_PROFILE_RETRIES", 3)
	if err != nil {
		return Config{}, err
	}
	cfg.ProfileRetries = retries

	switch cfg.ChatStoreMode {
	case "memory":
	case "redis":
		if cfg.RedisAddr == "" {
			return Config{}, fmt.Errorf("REDIS_ADDR is required when CHAT_STORE_MODE=redis")
		}
	default:
		return Config{}, fmt.Errorf("invalid CHAT_STORE_MODE: %q", cfg.ChatStoreMode)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	var v int
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive: %d", key, v)
	}
	return v, nil
}
