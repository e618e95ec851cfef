package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signage-server/signage-gateway-pro/pkg/protocol"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`

	Integration IntegrationConfig `yaml:"integration"`
}

// ServerConfig represents server identity configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// GatewayConfig represents the TCP device gateway configuration
type GatewayConfig struct {
	IPAddress      string `yaml:"ip_address"`
	Port           int    `yaml:"port"`
	MaxConnections int    `yaml:"max_connections"`

	// ConnectionTimeout bounds the wait for the handshake frame,
	// ClientTimeout bounds the idle gap between frames while streaming
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	ClientTimeout     time.Duration `yaml:"client_timeout"`

	BufferSize int `yaml:"buffer_size"`

	FrameStart     string `yaml:"frame_start"`
	FrameDelimiter string `yaml:"frame_delimiter"`
	FrameEnd       string `yaml:"frame_end"`

	RateLimitPerMinute    int           `yaml:"rate_limit_per_minute"`
	MaxUnapprovedAttempts int           `yaml:"max_unapproved_attempts"`
	BlacklistDuration     time.Duration `yaml:"blacklist_duration"`
}

// Addr returns the gateway listen address
func (g *GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.IPAddress, g.Port)
}

// Markers returns the configured framing characters.
// Call only after Load, which guarantees single-character values.
func (g *GatewayConfig) Markers() protocol.Markers {
	return protocol.Markers{
		Start:     g.FrameStart[0],
		Delimiter: g.FrameDelimiter[0],
		End:       g.FrameEnd[0],
	}
}

// APIConfig represents the admin REST API configuration
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig represents the optional schedule-rule cache configuration
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	RuleTTL  time.Duration `yaml:"rule_ttl"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// IntegrationConfig represents outbound device-event forwarding
type IntegrationConfig struct {
	HTTP HTTPIntegrationConfig `yaml:"http"`
	MQTT MQTTIntegrationConfig `yaml:"mqtt"`
}

// Enabled reports whether any forwarding target is configured
func (i *IntegrationConfig) Enabled() bool {
	return i.HTTP.Enabled || i.MQTT.Enabled
}

// HTTPIntegrationConfig represents the webhook forwarding target
type HTTPIntegrationConfig struct {
	Enabled  bool              `yaml:"enabled"`
	Endpoint string            `yaml:"endpoint"`
	Headers  map[string]string `yaml:"headers"`
	Timeout  time.Duration     `yaml:"timeout"`
}

// MQTTIntegrationConfig represents the MQTT forwarding target
type MQTTIntegrationConfig struct {
	Enabled      bool   `yaml:"enabled"`
	BrokerURL    string `yaml:"broker_url"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	TopicPattern string `yaml:"topic_pattern"`
	QoS          byte   `yaml:"qos"`
	TLS          bool   `yaml:"tls"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.setGatewayDefaults()

	if err := cfg.validateGateway(); err != nil {
		return nil, fmt.Errorf("gateway config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		c.Redis.Addr = redisAddr
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if port := os.Getenv("GATEWAY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Gateway.Port = p
		}
	}
}

// setGatewayDefaults fills unset gateway fields with safe defaults
func (c *Config) setGatewayDefaults() {
	if c.Gateway.Port == 0 {
		c.Gateway.Port = 9000
	}
	if c.Gateway.MaxConnections == 0 {
		c.Gateway.MaxConnections = 500
	}
	if c.Gateway.ConnectionTimeout == 0 {
		c.Gateway.ConnectionTimeout = 30 * time.Second
	}
	if c.Gateway.ClientTimeout == 0 {
		c.Gateway.ClientTimeout = 60 * time.Second
	}
	if c.Gateway.BufferSize == 0 {
		c.Gateway.BufferSize = 1024
	}
	if c.Gateway.FrameStart == "" {
		c.Gateway.FrameStart = "^"
	}
	if c.Gateway.FrameDelimiter == "" {
		c.Gateway.FrameDelimiter = "+"
	}
	if c.Gateway.FrameEnd == "" {
		c.Gateway.FrameEnd = "~"
	}
	if c.Gateway.RateLimitPerMinute == 0 {
		c.Gateway.RateLimitPerMinute = 60
	}
	if c.Gateway.MaxUnapprovedAttempts == 0 {
		c.Gateway.MaxUnapprovedAttempts = 3
	}
	if c.Gateway.BlacklistDuration == 0 {
		c.Gateway.BlacklistDuration = 30 * time.Minute
	}
	if c.Redis.RuleTTL == 0 {
		c.Redis.RuleTTL = 10 * time.Second
	}
	if c.Integration.HTTP.Timeout == 0 {
		c.Integration.HTTP.Timeout = 30 * time.Second
	}
	if c.Integration.MQTT.TopicPattern == "" {
		c.Integration.MQTT.TopicPattern = "signage/{imei}/{event}"
	}
}

// PrintConfigSummary 打印配置摘要
func (c *Config) PrintConfigSummary() {
	fmt.Printf("服务: %s %s\n", c.Server.Name, c.Server.Version)
	fmt.Printf("网关监听: %s (最大连接 %d)\n", c.Gateway.Addr(), c.Gateway.MaxConnections)
	fmt.Printf("帧格式: %s 字段 %s ... %s\n", c.Gateway.FrameStart, c.Gateway.FrameDelimiter, c.Gateway.FrameEnd)
	fmt.Printf("握手超时: %s  空闲超时: %s\n", c.Gateway.ConnectionTimeout, c.Gateway.ClientTimeout)
	fmt.Printf("限流: %d 次/分钟  未批准上限: %d  拉黑时长: %s\n",
		c.Gateway.RateLimitPerMinute, c.Gateway.MaxUnapprovedAttempts, c.Gateway.BlacklistDuration)
	fmt.Printf("API 监听: %s:%d\n", c.API.Host, c.API.Port)
	fmt.Printf("NATS: %s  Redis: %s\n", c.NATS.URL, c.Redis.Addr)
}

// validateGateway checks framing characters and limits
func (c *Config) validateGateway() error {
	for name, v := range map[string]string{
		"frame_start":     c.Gateway.FrameStart,
		"frame_delimiter": c.Gateway.FrameDelimiter,
		"frame_end":       c.Gateway.FrameEnd,
	} {
		if len(v) != 1 {
			return fmt.Errorf("%s must be a single character, got %q", name, v)
		}
	}

	if c.Gateway.FrameStart == c.Gateway.FrameDelimiter ||
		c.Gateway.FrameStart == c.Gateway.FrameEnd ||
		c.Gateway.FrameDelimiter == c.Gateway.FrameEnd {
		return fmt.Errorf("framing characters must be distinct")
	}

	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}

	if c.Gateway.MaxConnections < 1 {
		return fmt.Errorf("max_connections must be positive")
	}

	return nil
}
