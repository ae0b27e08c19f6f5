package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// HTTP
	HTTPAddr           string `yaml:"http_addr"`
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`
	WSWriteTimeoutMS   int    `yaml:"ws_write_timeout_ms"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	// Startup mode, switchable at runtime through the mode cell
	Mode string `yaml:"mode"`

	// Historical store (Postgres / TimescaleDB)
	DBHost       string `yaml:"db_host"`
	DBPort       string `yaml:"db_port"`
	DBUser       string `yaml:"db_user"`
	DBPassword   string `yaml:"db_password"`
	DBName       string `yaml:"db_name"`
	DBMaxConns   int32  `yaml:"db_max_conns"`
	HistoryTable string `yaml:"history_table"`

	// Hot cache (Redis)
	RedisAddr         string `yaml:"redis_addr"`
	RedisPassword     string `yaml:"redis_password"`
	RedisDB           int    `yaml:"redis_db"`
	RedisPoolSize     int    `yaml:"redis_pool_size"`
	RedisMinIdleConns int    `yaml:"redis_min_idle_conns"`

	// Streams
	StreamDriver  string   `yaml:"stream_driver"`
	KafkaBrokers  []string `yaml:"kafka_brokers"`
	KafkaGroupID  string   `yaml:"kafka_group_id"`
	MQTTURL       string   `yaml:"mqtt_url"`
	LocationTopic string   `yaml:"location_topic"`
	AlertsTopic   string   `yaml:"alerts_topic"`

	// Ingestion
	CacheWriteTimeoutMS int `yaml:"cache_write_timeout_ms"`
	BroadcastBufferSize int `yaml:"broadcast_buffer_size"`

	// History writer
	HistoryIngestEnabled   bool `yaml:"history_ingest_enabled"`
	HistoryChannelSize     int  `yaml:"history_channel_size"`
	HistoryBatchSize       int  `yaml:"history_batch_size"`
	HistoryFlushIntervalMS int  `yaml:"history_flush_interval_ms"`
	HistoryWriterWorkers   int  `yaml:"history_writer_workers"`

	// Query engine
	QueryTimeoutMS int `yaml:"query_timeout_ms"`
	QueryScanLimit int `yaml:"query_scan_limit"`

	// Health
	HealthProbeTimeoutMS int `yaml:"health_probe_timeout_ms"`
}

const (
	StreamKafka = "kafka"
	StreamMQTT  = "mqtt"
)

func Default() *Config {
	return &Config{
		HTTPAddr:               ":8080",
		CORSAllowedOrigins:     "*",
		WSWriteTimeoutMS:       5000,
		LogLevel:               "info",
		Mode:                   "live",
		DBHost:                 "localhost",
		DBPort:                 "5432",
		DBUser:                 "fleet_user",
		DBPassword:             "fleet_password",
		DBName:                 "fleet_monitor",
		DBMaxConns:             15,
		HistoryTable:           "vehicle_tracking",
		RedisAddr:              "localhost:6379",
		RedisPoolSize:          20,
		RedisMinIdleConns:      5,
		StreamDriver:           StreamKafka,
		KafkaBrokers:           []string{"localhost:29092"},
		KafkaGroupID:           "logistics-group",
		MQTTURL:                "tcp://localhost:1883",
		LocationTopic:          "vehicle-location",
		AlertsTopic:            "alerts",
		CacheWriteTimeoutMS:    3000,
		BroadcastBufferSize:    256,
		HistoryIngestEnabled:   true,
		HistoryChannelSize:     10000,
		HistoryBatchSize:       500,
		HistoryFlushIntervalMS: 100,
		HistoryWriterWorkers:   4,
		QueryTimeoutMS:         10000,
		QueryScanLimit:         500000,
		HealthProbeTimeoutMS:   5000,
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and finally environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.CORSAllowedOrigins = getEnv("CORS_ALLOWED_ORIGINS", c.CORSAllowedOrigins)
	c.WSWriteTimeoutMS = getEnvInt("WS_WRITE_TIMEOUT_MS", c.WSWriteTimeoutMS)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogJSON = getEnvBool("LOG_JSON", c.LogJSON)
	c.Mode = getEnv("MODE", c.Mode)

	c.DBHost = getEnv("DB_HOST", c.DBHost)
	c.DBPort = getEnv("DB_PORT", c.DBPort)
	c.DBUser = getEnv("DB_USER", c.DBUser)
	c.DBPassword = getEnv("DB_PASSWORD", c.DBPassword)
	c.DBName = getEnv("DB_NAME", c.DBName)
	c.DBMaxConns = int32(getEnvInt("DB_MAX_CONNS", int(c.DBMaxConns)))
	c.HistoryTable = getEnv("HISTORY_TABLE", c.HistoryTable)

	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
	c.RedisPoolSize = getEnvInt("REDIS_POOL_SIZE", c.RedisPoolSize)
	c.RedisMinIdleConns = getEnvInt("REDIS_MIN_IDLE_CONNS", c.RedisMinIdleConns)

	c.StreamDriver = getEnv("STREAM_DRIVER", c.StreamDriver)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.KafkaBrokers = splitList(v)
	}
	c.KafkaGroupID = getEnv("KAFKA_GROUP_ID", c.KafkaGroupID)
	c.MQTTURL = getEnv("MQTT_URL", c.MQTTURL)
	c.LocationTopic = getEnv("LOCATION_TOPIC", c.LocationTopic)
	c.AlertsTopic = getEnv("ALERTS_TOPIC", c.AlertsTopic)

	c.CacheWriteTimeoutMS = getEnvInt("CACHE_WRITE_TIMEOUT_MS", c.CacheWriteTimeoutMS)
	c.BroadcastBufferSize = getEnvInt("BROADCAST_BUFFER_SIZE", c.BroadcastBufferSize)

	c.HistoryIngestEnabled = getEnvBool("HISTORY_INGEST_ENABLED", c.HistoryIngestEnabled)
	c.HistoryChannelSize = getEnvInt("HISTORY_CHANNEL_SIZE", c.HistoryChannelSize)
	c.HistoryBatchSize = getEnvInt("HISTORY_BATCH_SIZE", c.HistoryBatchSize)
	c.HistoryFlushIntervalMS = getEnvInt("HISTORY_FLUSH_INTERVAL_MS", c.HistoryFlushIntervalMS)
	c.HistoryWriterWorkers = getEnvInt("HISTORY_WRITER_WORKERS", c.HistoryWriterWorkers)

	c.QueryTimeoutMS = getEnvInt("QUERY_TIMEOUT_MS", c.QueryTimeoutMS)
	c.QueryScanLimit = getEnvInt("QUERY_SCAN_LIMIT", c.QueryScanLimit)

	c.HealthProbeTimeoutMS = getEnvInt("HEALTH_PROBE_TIMEOUT_MS", c.HealthProbeTimeoutMS)
}

func (c *Config) Validate() error {
	switch c.StreamDriver {
	case StreamKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("kafka driver requires at least one broker")
		}
	case StreamMQTT:
		if c.MQTTURL == "" {
			return fmt.Errorf("mqtt driver requires MQTT_URL")
		}
	default:
		return fmt.Errorf("unknown stream driver %q", c.StreamDriver)
	}

	if c.LocationTopic == "" || c.AlertsTopic == "" {
		return fmt.Errorf("location and alerts topics are required")
	}
	if c.Mode != "mock" && c.Mode != "live" {
		return fmt.Errorf("unknown mode %q", c.Mode)
	}

	positive := map[string]int{
		"BROADCAST_BUFFER_SIZE":   c.BroadcastBufferSize,
		"WS_WRITE_TIMEOUT_MS":     c.WSWriteTimeoutMS,
		"CACHE_WRITE_TIMEOUT_MS":  c.CacheWriteTimeoutMS,
		"QUERY_TIMEOUT_MS":        c.QueryTimeoutMS,
		"HEALTH_PROBE_TIMEOUT_MS": c.HealthProbeTimeoutMS,
	}
	if c.HistoryIngestEnabled {
		positive["HISTORY_CHANNEL_SIZE"] = c.HistoryChannelSize
		positive["HISTORY_BATCH_SIZE"] = c.HistoryBatchSize
		positive["HISTORY_FLUSH_INTERVAL_MS"] = c.HistoryFlushIntervalMS
		positive["HISTORY_WRITER_WORKERS"] = c.HistoryWriterWorkers
	}
	for key, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, v)
		}
	}
	if c.QueryScanLimit < 0 {
		return fmt.Errorf("QUERY_SCAN_LIMIT must not be negative")
	}
	return nil
}

// DatabaseURL returns the pgx connection string for the historical store.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		c.DBUser,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBMaxConns,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
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

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
