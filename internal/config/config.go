package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 是所有环境变量覆盖项的前缀。
const EnvPrefix = "STARKPROOF_"

// 存储驱动。
const (
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// 响应体编码方式。
const (
	// EncodingString 将文档序列化后再编码为 JSON 字符串，兼容既有客户端。
	EncodingString = "string"
	// EncodingJSON 直接返回文档本身。
	EncodingJSON = "json"
)

// 失败状态码映射方式。
const (
	StatusLegacy = "legacy"
	StatusStrict = "strict"
)

// Config 描述了证明服务启动时需要的全部配置。
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server" envPrefix:"SERVER_"`
	Store    StoreConfig    `json:"store" yaml:"store" envPrefix:"STORE_"`
	Response ResponseConfig `json:"response" yaml:"response" envPrefix:"RESPONSE_"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging" envPrefix:"LOG_"`
	Alerting AlertingConfig `json:"alerting" yaml:"alerting" envPrefix:"ALERT_"`
	Events   EventsConfig   `json:"events" yaml:"events" envPrefix:"EVENTS_"`
}

// ServerConfig 控制 HTTP 服务的监听地址与跨域策略。
type ServerConfig struct {
	Address        string   `json:"address" yaml:"address" env:"ADDRESS"`
	MetricsAddress string   `json:"metrics_address" yaml:"metrics_address" env:"METRICS_ADDRESS"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// StoreConfig 描述证明存储后端。
type StoreConfig struct {
	Driver          string      `json:"driver" yaml:"driver" env:"DRIVER"`
	Path            string      `json:"path" yaml:"path" env:"PATH"`
	Cache           bool        `json:"cache" yaml:"cache" env:"CACHE"`
	Watch           bool        `json:"watch" yaml:"watch" env:"WATCH"`
	LookupTimeoutMS int         `json:"lookup_timeout_ms" yaml:"lookup_timeout_ms" env:"LOOKUP_TIMEOUT_MS"`
	Redis           RedisConfig `json:"redis" yaml:"redis" envPrefix:"REDIS_"`
	SQL             SQLConfig   `json:"sql" yaml:"sql" envPrefix:"SQL_"`
}

// LookupTimeout 返回单次查询的超时时间。
func (c StoreConfig) LookupTimeout() time.Duration {
	return time.Duration(c.LookupTimeoutMS) * time.Millisecond
}

// RedisConfig 描述 Redis 证明存储的连接参数。
type RedisConfig struct {
	Address   string `json:"address" yaml:"address" env:"ADDRESS"`
	Password  string `json:"password" yaml:"password" env:"PASSWORD"`
	DB        int    `json:"db" yaml:"db" env:"DB"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" env:"KEY_PREFIX"`
}

// SQLConfig 描述 MySQL / SQLite 证明存储的连接参数。
type SQLConfig struct {
	DSN                    string `json:"dsn" yaml:"dsn" env:"DSN"`
	MaxOpenConns           int    `json:"max_open_conns" yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns           int    `json:"max_idle_conns" yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds" env:"CONN_MAX_LIFETIME_SECONDS"`
}

// ResponseConfig 控制 HTTP 响应的兼容行为。
type ResponseConfig struct {
	Encoding      string `json:"encoding" yaml:"encoding" env:"ENCODING"`
	StatusMapping string `json:"status_mapping" yaml:"status_mapping" env:"STATUS_MAPPING"`
}

// LoggingConfig 对应 pkg/logger 的配置。
type LoggingConfig struct {
	Level       string      `json:"level" yaml:"level" env:"LEVEL"`
	Format      string      `json:"format" yaml:"format" env:"FORMAT"`
	OutputPaths []string    `json:"output_paths" yaml:"output_paths" env:"OUTPUT_PATHS"`
	Audit       AuditConfig `json:"audit" yaml:"audit" envPrefix:"AUDIT_"`
}

// AuditConfig 控制观测记录的落盘方式。
type AuditConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Path       string `json:"path" yaml:"path" env:"PATH"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" env:"MAX_AGE_DAYS"`
}

// AlertingConfig 描述存储故障告警的投递方式。
type AlertingConfig struct {
	WebhookURL     string `json:"webhook_url" yaml:"webhook_url" env:"WEBHOOK_URL"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds" env:"TIMEOUT_SECONDS"`
	Buffer         int    `json:"buffer" yaml:"buffer" env:"BUFFER"`
}

// EventsConfig 描述观测记录的外部投递。
type EventsConfig struct {
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq" envPrefix:"RABBITMQ_"`
}

// RabbitMQConfig 描述 RabbitMQ 发布参数，URL 为空时不启用。
type RabbitMQConfig struct {
	URL        string `json:"url" yaml:"url" env:"URL"`
	Exchange   string `json:"exchange" yaml:"exchange" env:"EXCHANGE"`
	RoutingKey string `json:"routing_key" yaml:"routing_key" env:"ROUTING_KEY"`
	Buffer     int    `json:"buffer" yaml:"buffer" env:"BUFFER"`
}

// Default 返回只包含默认值的配置。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load 解析指定路径的配置文件，再应用环境变量覆盖与默认值。
// 文件扩展名为 .yaml / .yml 时按 YAML 解析，否则按 JSON 解析。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &cfg)
	default:
		err = json.Unmarshal(content, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.resolveFilePaths(filepath.Dir(path))
	return finish(&cfg)
}

// LoadOptional 与 Load 相同，但文件不存在时只使用默认值与环境变量。
func LoadOptional(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return finish(&Config{})
	}
	return Load(path)
}

func finish(cfg *Config) (*Config, error) {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveFilePaths 将配置文件中写明的相对路径解析为相对于配置文件所在目录。
// 在环境变量覆盖之前执行，因此环境变量与默认值中的相对路径仍以工作目录为基准。
func (c *Config) resolveFilePaths(baseDir string) {
	if c.Store.Path != "" && !filepath.IsAbs(c.Store.Path) {
		c.Store.Path = filepath.Join(baseDir, c.Store.Path)
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = "0.0.0.0:8090"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}

	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = DriverFile
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join("examples", "proof.json")
	}
	if c.Store.LookupTimeoutMS <= 0 {
		c.Store.LookupTimeoutMS = 5000
	}
	if c.Store.Redis.KeyPrefix == "" {
		c.Store.Redis.KeyPrefix = "starkproof:proof:"
	}

	if c.Response.Encoding == "" {
		c.Response.Encoding = EncodingString
	}
	if c.Response.StatusMapping == "" {
		c.Response.StatusMapping = StatusLegacy
	}

	if c.Alerting.TimeoutSeconds <= 0 {
		c.Alerting.TimeoutSeconds = 5
	}
	if c.Alerting.Buffer <= 0 {
		c.Alerting.Buffer = 64
	}

	if c.Events.RabbitMQ.Exchange == "" {
		c.Events.RabbitMQ.Exchange = "starkproof.events"
	}
	if c.Events.RabbitMQ.RoutingKey == "" {
		c.Events.RabbitMQ.RoutingKey = "proof.lookup"
	}
	if c.Events.RabbitMQ.Buffer <= 0 {
		c.Events.RabbitMQ.Buffer = 1024
	}
}

// Validate 检查枚举值与组合约束。
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverFile:
	case DriverRedis:
		if strings.TrimSpace(c.Store.Redis.Address) == "" {
			return errors.New("store.redis.address 不能为空")
		}
	case DriverMySQL, DriverSQLite:
		if strings.TrimSpace(c.Store.SQL.DSN) == "" {
			return fmt.Errorf("store.sql.dsn 不能为空（driver=%s）", c.Store.Driver)
		}
	default:
		return fmt.Errorf("未知的存储驱动: %s", c.Store.Driver)
	}
	if c.Store.Watch && (!c.Store.Cache || c.Store.Driver != DriverFile) {
		return errors.New("store.watch 需要 file 驱动并开启 store.cache")
	}

	switch c.Response.Encoding {
	case EncodingString, EncodingJSON:
	default:
		return fmt.Errorf("未知的响应编码: %s", c.Response.Encoding)
	}
	switch c.Response.StatusMapping {
	case StatusLegacy, StatusStrict:
	default:
		return fmt.Errorf("未知的状态码映射: %s", c.Response.StatusMapping)
	}
	return nil
}
