// Package config loads the central system's configuration the way the
// rest of this codebase's deployments expect: a base application.yaml, an
// optional profile-specific overlay, and environment variables on top,
// via spf13/viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration tree.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	OCPP       OCPPConfig       `mapstructure:"ocpp"`
	Security   SecurityConfig   `mapstructure:"security"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Profile string `mapstructure:"profile"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	WebSocketPath  string        `mapstructure:"websocket_path"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxConnections int           `mapstructure:"max_connections"`
}

type WebSocketConfig struct {
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	EnableCompression bool          `mapstructure:"enable_compression"`
	CheckOrigin       bool          `mapstructure:"check_origin"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	MaxOutboundQueue  int           `mapstructure:"max_outbound_queue"`
	// DuplicatePolicy governs what happens when a second connection
	// arrives for a station ID already connected: "takeover" (default)
	// closes the existing connection and lets the new one through;
	// "reject" refuses the new connection with HTTP 409 instead.
	DuplicatePolicy string `mapstructure:"duplicate_policy"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// Enabled toggles the optional persisted-state plug-in; when false
	// the in-memory store is used instead, which keeps the counter and
	// log only for the process lifetime.
	Enabled bool `mapstructure:"enabled"`
	// HistoryLimit caps how many completed transactions are replayed from
	// the store into the registry at startup.
	HistoryLimit int `mapstructure:"history_limit"`
}

type KafkaConfig struct {
	Brokers  []string       `mapstructure:"brokers"`
	Topic    string         `mapstructure:"topic"`
	Producer ProducerConfig `mapstructure:"producer"`
	Enabled  bool           `mapstructure:"enabled"`
}

type ProducerConfig struct {
	RetryMax       int           `mapstructure:"retry_max"`
	ReturnSuccess  bool          `mapstructure:"return_successes"`
	FlushFrequency time.Duration `mapstructure:"flush_frequency"`
}

type CacheConfig struct {
	Shards int           `mapstructure:"shards"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	Async  bool   `mapstructure:"async"`
}

type MonitoringConfig struct {
	MetricsAddr     string `mapstructure:"metrics_addr"`
	HealthCheckPort int    `mapstructure:"health_check_port"`
}

type OCPPConfig struct {
	SupportedVersions []string      `mapstructure:"supported_versions"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	PendingRequestTTL time.Duration `mapstructure:"pending_request_ttl"`
	AcceptUnknownTags bool          `mapstructure:"accept_unknown_tags"`
}

type SecurityConfig struct {
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
}

// Load reads configuration from application.yaml, an optional
// application-{profile}.yaml overlay, and environment variables, in that
// ascending order of precedence.
func Load() (*Config, error) {
	setDefaults()

	profile := getProfile()

	if err := loadConfigFile("application"); err != nil {
		fmt.Printf("warning: could not load default config file: %v\n", err)
	}
	if profile != "" {
		if err := loadConfigFile(fmt.Sprintf("application-%s", profile)); err != nil {
			fmt.Printf("warning: could not load profile config file application-%s: %v\n", profile, err)
		}
	}

	setupEnvironmentVariables()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.App.Profile = profile

	return &cfg, nil
}

func getProfile() string {
	if profile := os.Getenv("APP_PROFILE"); profile != "" {
		return profile
	}
	if profile := viper.GetString("app.profile"); profile != "" {
		return profile
	}
	return "local"
}

func loadConfigFile(configName string) error {
	viper.SetConfigName(configName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	return viper.MergeInConfig()
}

func setupEnvironmentVariables() {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.BindEnv("redis.addr", "REDIS_ADDR")
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("monitoring.health_check_port", "MONITORING_HEALTH_CHECK_PORT")
	viper.BindEnv("app.profile", "APP_PROFILE")

	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		for i, broker := range brokers {
			brokers[i] = strings.TrimSpace(broker)
		}
		viper.Set("kafka.brokers", brokers)
	}
}

func setDefaults() {
	viper.SetDefault("app.name", "central-system")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.profile", "local")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.websocket_path", "/ocpp")
	viper.SetDefault("server.read_timeout", "60s")
	viper.SetDefault("server.write_timeout", "60s")
	viper.SetDefault("server.max_connections", 20000)

	viper.SetDefault("websocket.read_buffer_size", 4096)
	viper.SetDefault("websocket.write_buffer_size", 4096)
	viper.SetDefault("websocket.handshake_timeout", "10s")
	viper.SetDefault("websocket.ping_interval", "30s")
	viper.SetDefault("websocket.pong_timeout", "10s")
	viper.SetDefault("websocket.max_message_size", 1048576)
	viper.SetDefault("websocket.enable_compression", false)
	viper.SetDefault("websocket.check_origin", false)
	viper.SetDefault("websocket.allowed_origins", []string{})
	viper.SetDefault("websocket.max_outbound_queue", 100)
	viper.SetDefault("websocket.duplicate_policy", "takeover")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 50)
	viper.SetDefault("redis.min_idle_conns", 5)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.read_timeout", "3s")
	viper.SetDefault("redis.write_timeout", "3s")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.history_limit", 500)

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "ocpp-events")
	viper.SetDefault("kafka.enabled", false)

	viper.SetDefault("cache.shards", 8)
	viper.SetDefault("cache.ttl", "30s")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")

	viper.SetDefault("monitoring.metrics_addr", ":9090")
	viper.SetDefault("monitoring.health_check_port", 8081)

	viper.SetDefault("ocpp.supported_versions", []string{"1.6", "1.6.1"})
	viper.SetDefault("ocpp.heartbeat_interval", "300s")
	viper.SetDefault("ocpp.pending_request_ttl", "30s")
	viper.SetDefault("ocpp.accept_unknown_tags", false)

	viper.SetDefault("security.tls_enabled", false)
	viper.SetDefault("security.cert_file", "")
	viper.SetDefault("security.key_file", "")
}

// GetServerAddr returns the listen address for the WebSocket/HTTP server.
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsProduction reports whether the active profile is "prod".
func (c *Config) IsProduction() bool {
	return c.App.Profile == "prod"
}
