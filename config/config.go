package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg = Default()

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"dailyprompt"`

	// 数据库驱动：postgres 或 sqlite（本地开发）
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	SQLitePath     string `env:"SQLITE_PATH" envDefault:"file:dailyprompt.db?cache=shared"`

	// PostgreSQL 配置
	PostgreSQLHost        string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort        string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser        string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword    string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase    string `env:"POSTGRESQL_DATABASE" envDefault:"dailyprompt"`
	PostgreSQLSchema      string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode     string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle     int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"10"`
	PostgreSQLMaxOpen     int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"50"`
	PostgreSQLReplicaHost string `env:"POSTGRESQL_REPLICA_HOST" envDefault:""` // 只读副本，留空表示不启用

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"dp"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// JWT 配置，只校验外部签发的 token
	JWTSecret string `env:"JWT_SECRET"`

	// Telegram 网关
	TelegramBotToken      string        `env:"TELEGRAM_BOT_TOKEN"`
	TelegramAPIBase       string        `env:"TELEGRAM_API_BASE" envDefault:"https://api.telegram.org"`
	TelegramWebhookSecret string        `env:"TELEGRAM_WEBHOOK_SECRET"`
	GatewayTimeout        time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`

	// Notion 内容源
	NotionAPIBase string `env:"NOTION_API_BASE" envDefault:"https://api.notion.com"`
	NotionVersion string `env:"NOTION_VERSION" envDefault:"2022-06-28"`

	// 调度配置
	SchedulerSecret        string        `env:"SCHEDULER_SECRET"`
	SchedulerTrustedHeader string        `env:"SCHEDULER_TRUSTED_HEADER" envDefault:""` // 例如 X-Cloudscheduler
	SchedulerPollInterval  time.Duration `env:"SCHEDULER_POLL_INTERVAL" envDefault:"10m"`
	SchedulerConcurrency   int           `env:"SCHEDULER_CONCURRENCY" envDefault:"8"`
	ClaimLease             time.Duration `env:"DELIVERY_CLAIM_LEASE" envDefault:"5m"`
	ReplyWindow            time.Duration `env:"REPLY_WINDOW" envDefault:"0"` // 0 表示不限制

	// 绑定码配置
	LinkCodeTTL        time.Duration `env:"LINK_CODE_TTL" envDefault:"10m"`
	LinkMaxAttempts    int           `env:"LINK_MAX_ATTEMPTS" envDefault:"10"`
	LinkAttemptWindow  time.Duration `env:"LINK_ATTEMPT_WINDOW" envDefault:"15m"`
	LinkPassphrase     string        `env:"LINK_PASSPHRASE" envDefault:""`
	CodeHashSalt       string        `env:"CODE_HASH_SALT"`
	LinkIssuePerMinute int           `env:"LINK_ISSUE_PER_MINUTE" envDefault:"5"`

	// 加密配置，用于加密 Notion token 等第三方凭据，32字节 AES-256
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	// 入站消息处理方式：inline 直接处理，queue 走 RabbitMQ
	InboundMode    string `env:"INBOUND_MODE" envDefault:"inline"`
	WorkerPrefetch int    `env:"WORKER_PREFETCH" envDefault:"16"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`

	// 速率限制配置, 配置在中间件内
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS     int  `env:"RATE_LIMIT_RPS" envDefault:"100"` // 每秒请求数

	// 额度配置
	DefaultCredits int `env:"DEFAULT_CREDITS" envDefault:"5"` // 新账户默认生成额度
}

// Default 返回仅包含默认值的配置，测试和未调用 Load 的场景使用。
func Default() Config {
	var c Config
	if err := env.Parse(&c, env.Options{Environment: map[string]string{}}); err != nil {
		log.Printf("WARN: cannot build default config: %v", err)
	}
	return c
}

// Load 读取 .env 和环境变量并校验。
func Load() error {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	c := Config{}
	if err := env.Parse(&c); err != nil {
		return fmt.Errorf("parse environment variables: %w", err)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	Cfg = c
	return nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.CodeHashSalt == "" {
		errs = append(errs, errors.New("CODE_HASH_SALT is required"))
	}
	if len(c.EncryptionKey) != 32 {
		errs = append(errs, errors.New("ENCRYPTION_KEY must be exactly 32 bytes for AES-256"))
	}
	if c.SchedulerPollInterval <= 0 {
		errs = append(errs, errors.New("SCHEDULER_POLL_INTERVAL must be positive"))
	}
	if c.LinkMaxAttempts <= 0 {
		errs = append(errs, errors.New("LINK_MAX_ATTEMPTS must be positive"))
	}
	if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver))
	}
	if c.InboundMode != "inline" && c.InboundMode != "queue" {
		errs = append(errs, fmt.Errorf("INBOUND_MODE must be inline or queue, got %q", c.InboundMode))
	}

	if c.TelegramBotToken == "" {
		log.Printf("WARN: TELEGRAM_BOT_TOKEN is not set, deliveries will fail")
	}
	if c.TelegramWebhookSecret == "" {
		log.Printf("WARN: TELEGRAM_WEBHOOK_SECRET is not set, inbound webhook will reject all calls")
	}
	if c.SchedulerSecret == "" && c.SchedulerTrustedHeader == "" {
		log.Printf("WARN: neither SCHEDULER_SECRET nor SCHEDULER_TRUSTED_HEADER is set, tick endpoint is closed")
	}

	return errors.Join(errs...)
}

// ScheduleTolerance 是判定时间槽到期的容差，为轮询周期的一半。
func (c *Config) ScheduleTolerance() time.Duration {
	return c.SchedulerPollInterval / 2
}

func (c *Config) GetDSN() string {
	return c.dsn(c.PostgreSQLHost)
}

func (c *Config) GetReplicaDSN() string {
	if c.PostgreSQLReplicaHost == "" {
		return ""
	}
	return c.dsn(c.PostgreSQLReplicaHost)
}

func (c *Config) dsn(host string) string {
	return "host=" + host +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
