package config

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	pkgconfig "github.com/weiawesome/wes-io-live/pkg/config"
	"github.com/weiawesome/wes-io-live/pkg/database"
	pkglog "github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
	"github.com/weiawesome/wes-io-live/pkg/storage"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	PubSub    pubsub.Config `mapstructure:"pubsub"`
	Cassandra CassandraConfig
	Storage   storage.Config
	JWT       JWTConfig `mapstructure:"jwt"`
	Presence  PresenceConfig
	Chat      ChatConfig
	Archive   ArchiveConfig
	Log       pkglog.Config
	Metrics   MetricsConfig
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

// ToDatabaseConfig converts to the shared database package config.
func (c DatabaseConfig) ToDatabaseConfig() *database.Config {
	return &database.Config{
		Driver:          c.Driver,
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		DBName:          c.DBName,
		SSLMode:         c.SSLMode,
		FilePath:        c.FilePath,
		MaxIdleConns:    c.MaxIdleConns,
		MaxOpenConns:    c.MaxOpenConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		LogLevel:        c.LogLevel,
	}
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type CassandraConfig struct {
	Hosts          []string
	Keyspace       string
	Consistency    string
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	Timeout        time.Duration
	Username       string
	Password       string
}

type JWTConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	Issuer        string
}

type PresenceConfig struct {
	// ActiveWindow is how long after its last heartbeat a session still counts.
	ActiveWindow time.Duration `mapstructure:"active_window"`
	// StaleGrace is added to ActiveWindow before the sweeper deletes a session.
	StaleGrace    time.Duration `mapstructure:"stale_grace"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepEnabled  bool          `mapstructure:"sweep_enabled"`
}

type ChatConfig struct {
	Store            string        // "gorm" or "cassandra"
	MaxContentLength int           `mapstructure:"max_content_length"`
	DefaultLimit     int           `mapstructure:"default_limit"`
	MaxLimit         int           `mapstructure:"max_limit"`
	RoomCacheTTL     time.Duration `mapstructure:"room_cache_ttl"`
}

type ArchiveConfig struct {
	Enabled   bool
	Prefix    string
	URLExpiry time.Duration `mapstructure:"url_expiry"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

func Load() (*Config, error) {
	cfg, _, err := load(pkgconfig.GetEnv("CONFIG_PATH", "./config"))
	return cfg, err
}

// LoadAndWatch loads the configuration and calls onChange with the fresh
// configuration every time the config file changes. Reloads that fail to
// decode are logged and skipped.
func LoadAndWatch(onChange func(*Config)) (*Config, error) {
	cfg, v, err := load(pkgconfig.GetEnv("CONFIG_PATH", "./config"))
	if err != nil {
		return nil, err
	}

	pkgconfig.Watch(v, func(e fsnotify.Event) {
		var next Config
		if err := v.Unmarshal(&next); err != nil {
			l := pkglog.L()
			l.Warn().Err(err).Str("file", e.Name).Msg("ignoring invalid config reload")
			return
		}
		onChange(&next)
	})
	return cfg, nil
}

func load(configPath string) (*Config, *viper.Viper, error) {
	v, err := pkgconfig.Load(configPath, "config")
	if err != nil {
		return nil, nil, err
	}

	setDefaults(v)
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, err
	}

	return &cfg, v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "stream_service")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/stream.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("pubsub.driver", "redis")
	v.SetDefault("pubsub.redis.address", "localhost:6379")
	v.SetDefault("pubsub.redis.pool_size", 10)
	v.SetDefault("pubsub.redis.read_timeout", 3*time.Second)
	v.SetDefault("pubsub.redis.write_timeout", 3*time.Second)
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.group_id", "stream-service")
	v.SetDefault("pubsub.kafka.partitions", 4)

	v.SetDefault("cassandra.hosts", []string{"localhost"})
	v.SetDefault("cassandra.keyspace", "stream_chat")
	v.SetDefault("cassandra.consistency", "LOCAL_QUORUM")
	v.SetDefault("cassandra.connect_timeout", 10*time.Second)
	v.SetDefault("cassandra.timeout", 5*time.Second)

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local.base_path", "./data/objects")
	v.SetDefault("storage.local.url_base", "/files")
	v.SetDefault("storage.s3.region", "us-east-1")

	v.SetDefault("jwt.public_key_path", "./config/jwt_public.pem")
	v.SetDefault("jwt.issuer", "")

	v.SetDefault("presence.active_window", 5*time.Minute)
	v.SetDefault("presence.stale_grace", 10*time.Minute)
	v.SetDefault("presence.sweep_interval", time.Minute)
	v.SetDefault("presence.sweep_enabled", true)

	v.SetDefault("chat.store", "gorm")
	v.SetDefault("chat.max_content_length", 500)
	v.SetDefault("chat.default_limit", 50)
	v.SetDefault("chat.max_limit", 100)
	v.SetDefault("chat.room_cache_ttl", 5*time.Minute)

	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.prefix", "transcripts")
	v.SetDefault("archive.url_expiry", 15*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "stream-service")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("websocket.ping_interval", 30*time.Second)
	v.SetDefault("websocket.pong_wait", 60*time.Second)
	v.SetDefault("websocket.write_wait", 10*time.Second)
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.send_buffer", 256)
}

func bindEnv(v *viper.Viper) {
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("pubsub.redis.address", "PUBSUB_REDIS_ADDRESS", "REDIS_ADDRESS")
	v.BindEnv("pubsub.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("cassandra.hosts", "CASSANDRA_HOSTS")
	v.BindEnv("storage.driver", "STORAGE_DRIVER")
	v.BindEnv("storage.s3.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.s3.bucket", "S3_BUCKET")
	v.BindEnv("storage.s3.access_key_id", "S3_ACCESS_KEY_ID")
	v.BindEnv("storage.s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	v.BindEnv("jwt.public_key_path", "JWT_PUBLIC_KEY_PATH")
	v.BindEnv("jwt.issuer", "JWT_ISSUER")
	v.BindEnv("presence.active_window", "PRESENCE_ACTIVE_WINDOW")
	v.BindEnv("chat.store", "CHAT_STORE")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.pretty", "LOG_PRETTY")
}
