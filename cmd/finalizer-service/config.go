package main

import (
	"fmt"
	"os"
	"time"

	"simoj/internal/common/cache"
	"simoj/internal/common/db"
	"simoj/internal/common/mq"
	"simoj/pkg/utils/logger"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8090"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	storeDriverMySQL     = "mysql"
	storeDriverGormMySQL = "gorm-mysql"
	storeDriverSQLite    = "sqlite"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr" validate:"required"`
	ReadTimeout  time.Duration `yaml:"readTimeout" validate:"gt=0"`
	WriteTimeout time.Duration `yaml:"writeTimeout" validate:"gt=0"`
	IdleTimeout  time.Duration `yaml:"idleTimeout" validate:"gt=0"`
}

// StoreConfig selects the submission store backend.
type StoreConfig struct {
	// Driver is mysql (database/sql), gorm-mysql or sqlite (both gorm).
	Driver      string `yaml:"driver" validate:"oneof=mysql gorm-mysql sqlite"`
	SQLitePath  string `yaml:"sqlitePath" validate:"required_if=Driver sqlite"`
	AutoMigrate bool   `yaml:"autoMigrate"`
	LogSQL      bool   `yaml:"logSQL"`
}

// TopicConfig names the topics the service consumes and produces.
type TopicConfig struct {
	SubmissionEvents     string `yaml:"submissionEvents"`
	ContestProblemEvents string `yaml:"contestProblemEvents"`
	FinalChanged         string `yaml:"finalChanged"`
}

// ConsumerConfig holds subscription settings for one topic.
type ConsumerConfig struct {
	ConsumerGroup   string        `yaml:"consumerGroup"`
	Concurrency     int           `yaml:"concurrency" validate:"gte=0"`
	PrefetchCount   int           `yaml:"prefetchCount" validate:"gte=0"`
	MaxRetries      int           `yaml:"maxRetries"`
	RetryDelay      time.Duration `yaml:"retryDelay"`
	DeadLetterTopic string        `yaml:"deadLetterTopic"`
	MessageTTL      time.Duration `yaml:"messageTTL"`
}

func (c ConsumerConfig) toSubscribeOptions(limiter mq.FetchLimiter) mq.SubscribeOptions {
	opts := mq.SubscribeOptions{
		ConsumerGroup:   c.ConsumerGroup,
		PrefetchCount:   c.PrefetchCount,
		Concurrency:     c.Concurrency,
		MaxRetries:      c.MaxRetries,
		RetryDelay:      c.RetryDelay,
		DeadLetterTopic: c.DeadLetterTopic,
		MessageTTL:      c.MessageTTL,
		Limiter:         limiter,
	}
	opts.SetDefaults()
	return opts
}

// ReselectSettings bounds bulk reselection after a contest problem changes.
type ReselectSettings struct {
	Concurrency   int     `yaml:"concurrency" validate:"gte=0"`
	RatePerSecond float64 `yaml:"ratePerSecond" validate:"gte=0"`
	Burst         int     `yaml:"burst" validate:"gte=0"`
}

// FinalizeConfig holds finalizer settings.
type FinalizeConfig struct {
	MaxRetries         int              `yaml:"maxRetries" validate:"gte=0"`
	RetryBaseDelay     time.Duration    `yaml:"retryBaseDelay" validate:"gt=0"`
	RetryMaxDelay      time.Duration    `yaml:"retryMaxDelay" validate:"gtefield=RetryBaseDelay"`
	VerifyInvariants   *bool            `yaml:"verifyInvariants"`
	FinalCacheTTL      time.Duration    `yaml:"finalCacheTTL"`
	FinalCacheEmptyTTL time.Duration    `yaml:"finalCacheEmptyTTL"`
	MaxInflight        int              `yaml:"maxInflight" validate:"gte=0"`
	Reselect           ReselectSettings `yaml:"reselect"`
}

// AppConfig holds finalizer-service configuration.
type AppConfig struct {
	Server   ServerConfig      `yaml:"server"`
	Logger   logger.Config     `yaml:"logger"`
	Store    StoreConfig       `yaml:"store"`
	Database db.MySQLConfig    `yaml:"database"`
	Redis    cache.RedisConfig `yaml:"redis"`
	Kafka    mq.KafkaConfig    `yaml:"kafka"`
	Topics   TopicConfig       `yaml:"topics"`

	SubmissionConsumer     ConsumerConfig `yaml:"submissionConsumer"`
	ContestProblemConsumer ConsumerConfig `yaml:"contestProblemConsumer"`

	Finalize FinalizeConfig `yaml:"finalize"`
}

// KafkaEnabled reports whether brokers are configured.
func (c *AppConfig) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// RedisEnabled reports whether a redis address is configured.
func (c *AppConfig) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validateAppConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = storeDriverMySQL
	}
	if cfg.Store.Driver != storeDriverSQLite {
		cfg.Database.ApplyDefaults()
	}
	if cfg.RedisEnabled() {
		cfg.Redis.ApplyDefaults()
	}

	if cfg.Topics.SubmissionEvents == "" {
		cfg.Topics.SubmissionEvents = "submission.events"
	}
	if cfg.Topics.ContestProblemEvents == "" {
		cfg.Topics.ContestProblemEvents = "contest_problem.events"
	}
	if cfg.Topics.FinalChanged == "" {
		cfg.Topics.FinalChanged = "final.changed"
	}
	if cfg.SubmissionConsumer.ConsumerGroup == "" {
		cfg.SubmissionConsumer.ConsumerGroup = "finalizer-submissions"
	}
	if cfg.ContestProblemConsumer.ConsumerGroup == "" {
		cfg.ContestProblemConsumer.ConsumerGroup = "finalizer-contest-problems"
	}

	if cfg.Finalize.MaxRetries == 0 {
		cfg.Finalize.MaxRetries = 5
	}
	if cfg.Finalize.RetryBaseDelay == 0 {
		cfg.Finalize.RetryBaseDelay = 20 * time.Millisecond
	}
	if cfg.Finalize.RetryMaxDelay == 0 {
		cfg.Finalize.RetryMaxDelay = time.Second
	}
	if cfg.Finalize.VerifyInvariants == nil {
		enabled := true
		cfg.Finalize.VerifyInvariants = &enabled
	}
	if cfg.Finalize.FinalCacheTTL == 0 {
		cfg.Finalize.FinalCacheTTL = 10 * time.Minute
	}
	if cfg.Finalize.FinalCacheEmptyTTL == 0 {
		cfg.Finalize.FinalCacheEmptyTTL = 30 * time.Second
	}
	if cfg.Finalize.MaxInflight == 0 {
		cfg.Finalize.MaxInflight = 16
	}
}

func validateAppConfig(cfg *AppConfig) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Store.Driver != storeDriverSQLite && cfg.Database.DSN == "" {
		return fmt.Errorf("database dsn is required for store driver %s", cfg.Store.Driver)
	}
	return nil
}
