package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	xutil "SalesPulse/pkg/util"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Logging     LoggingConfig    `yaml:"logging"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
	Queue       QueueConfig      `yaml:"queue"`
	Analytics   AnalyticsConfig  `yaml:"analytics"`
	Detector    DetectorConfig   `yaml:"detector"`
	Alerts      AlertsConfig     `yaml:"alerts"`
	RateLimit   RateLimitConfig  `yaml:"rate_limit"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type LoggingConfig struct {
	Level          string        `yaml:"level" default:"info"`
	Format         string        `yaml:"format" default:"json"`
	Output         string        `yaml:"output" default:"stdout"`
	CollectorTopic string        `yaml:"collector_topic"`
	FlushInterval  time.Duration `yaml:"flush_interval" default:"30s"`
	FlushCount     int           `yaml:"flush_count" default:"100"`
}

type KafkaConfig struct {
	Enabled           bool     `yaml:"enabled" default:"true"`
	Brokers           []string `yaml:"brokers"`
	AlertsTopic       string   `yaml:"alerts_topic" default:"salespulse.alerts"`
	ObservationsTopic string   `yaml:"observations_topic" default:"salespulse.observations"`
	Compression       string   `yaml:"compression" default:"gzip"`
	RequiredAcks      int      `yaml:"required_acks" default:"-1"`
	Producer          struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID     string        `yaml:"group_id" default:"salespulse-detector"`
		StartOffset string        `yaml:"start_offset" default:"earliest"`
		Workers     int           `yaml:"workers" default:"4"`
		BufferSize  int           `yaml:"buffer_size" default:"256"`
		RetryMax    int           `yaml:"retry_max" default:"3"`
		BackoffMin  time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax  time.Duration `yaml:"backoff_max" default:"2s"`
		DLQTopic    string        `yaml:"dlq_topic"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled" default:"true"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"salespulse"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr" default:"localhost:6379"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size" default:"10"`
	MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
	PoolTimeout  time.Duration `yaml:"pool_timeout" default:"30s"`
}

type QueueConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Name         string        `yaml:"name" default:"analysis"`
	Workers      int           `yaml:"workers" default:"2"`
	MaxRetries   int           `yaml:"max_retries" default:"3"`
	PollInterval time.Duration `yaml:"poll_interval" default:"1s"`
	JobTimeout   time.Duration `yaml:"job_timeout" default:"30s"`
}

type AnalyticsConfig struct {
	ForecastServiceURL string        `yaml:"forecast_service_url"`
	Timeout            time.Duration `yaml:"timeout" default:"5s"`
	Retries            int           `yaml:"retries" default:"3"`
	CacheTTL           time.Duration `yaml:"cache_ttl" default:"5m"`
}

type DetectorConfig struct {
	ZThreshold              float64 `yaml:"z_threshold" default:"2.5"`
	IQRMultiplier           float64 `yaml:"iqr_multiplier" default:"1.5"`
	ChangeThresholdPct      float64 `yaml:"change_threshold_pct" default:"15"`
	OpportunityThresholdPct float64 `yaml:"opportunity_threshold_pct" default:"20"`
	AnomalyRateThresholdPct float64 `yaml:"anomaly_rate_threshold_pct" default:"5"`
	PersistThresholds       bool    `yaml:"persist_thresholds" default:"true"`
}

type AlertsConfig struct {
	MinSeverity    string `yaml:"min_severity" default:"medium"`
	MaxPerAnalysis int    `yaml:"max_per_analysis" default:"20"`
	BaselineWindow int    `yaml:"baseline_window" default:"30"`
	MaxPerSecond   int    `yaml:"max_per_second" default:"50"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" default:"true"`
	RPS     float64 `yaml:"rps" default:"20"`
	Burst   int     `yaml:"burst" default:"40"`
}

// Default returns a config populated only from default tags.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads a YAML file on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env (if present) and the YAML file, then applies
// environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SP_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = xutil.SplitCSV(v)
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("FORECAST_SERVICE_URL"); v != "" {
		c.Analytics.ForecastServiceURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = xutil.ParseIntDefault(v, c.Server.Port)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SP_Z_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SP_Z_THRESHOLD: %w", err)
		}
		c.Detector.ZThreshold = f
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue requires redis.enabled")
	}
	if c.Detector.ZThreshold <= 0 {
		return fmt.Errorf("detector.z_threshold must be positive")
	}
	if c.Detector.IQRMultiplier <= 0 {
		return fmt.Errorf("detector.iqr_multiplier must be positive")
	}
	switch strings.ToLower(c.Alerts.MinSeverity) {
	case "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("alerts.min_severity must be low, medium, high or critical, got %q", c.Alerts.MinSeverity)
	}
	if c.Alerts.BaselineWindow < 2 {
		return fmt.Errorf("alerts.baseline_window must be at least 2")
	}
	return nil
}
