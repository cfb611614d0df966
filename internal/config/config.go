package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	API     APIConfig     `mapstructure:"api"`
	Push    PushConfig    `mapstructure:"push"`
	Session SessionConfig `mapstructure:"session"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
}

// ServerConfig is the local presentation API.
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

// APIConfig points at the money-tracker REST backend.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PushConfig struct {
	// Transport is "stomp" (websocket) or "nats".
	Transport string `mapstructure:"transport"`
	URL       string `mapstructure:"url"`
	// Topic may contain {user}, replaced by the session user id.
	Topic            string        `mapstructure:"topic"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	MaxRetries       int           `mapstructure:"max_retries"`
}

type SessionConfig struct {
	// Token is the bearer token. When empty it is read from the OS keyring.
	Token string `mapstructure:"token"`
	// UseKeyring enables the keyring fallback.
	UseKeyring bool `mapstructure:"use_keyring"`
}

// KafkaConfig enables republishing arrivals. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Load reads configuration from environment variables and config files.
// Environment variables override file values. Prefix: MT_NOTIF_
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", "8095")
	v.SetDefault("server.env", "development")
	v.SetDefault("api.base_url", "http://localhost:8080/api")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("push.transport", "stomp")
	v.SetDefault("push.url", "ws://localhost:8080/ws/websocket")
	v.SetDefault("push.topic", "/user/queue/notifications")
	v.SetDefault("push.handshake_timeout", 10*time.Second)
	v.SetDefault("push.base_delay", time.Second)
	v.SetDefault("push.max_delay", 30*time.Second)
	v.SetDefault("push.max_retries", 8)
	v.SetDefault("session.use_keyring", true)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "notification-arrivals")

	// Environment variables (e.g. MT_NOTIF_API_BASE_URL -> api.base_url)
	v.SetEnvPrefix("MT_NOTIF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Also support simple env vars without prefix for Docker Compose convenience
	v.BindEnv("api.base_url", "API_URL")
	v.BindEnv("push.url", "PUSH_URL")
	v.BindEnv("push.transport", "PUSH_TRANSPORT")
	v.BindEnv("session.token", "SESSION_TOKEN")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("server.port", "PORT")

	// Try loading config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // Not required

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
