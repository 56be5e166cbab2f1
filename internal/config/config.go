// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Timing    TimingConfig    `mapstructure:"timing"`
	Historian HistorianConfig `mapstructure:"historian"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	// RoomIdle is how long a room with no connected client is kept.
	RoomIdle time.Duration `mapstructure:"room_idle"`
}

type BroadcastConfig struct {
	Driver  string `mapstructure:"driver"`
	NATSURL string `mapstructure:"nats_url"`
}

type SnapshotConfig struct {
	Driver string        `mapstructure:"driver"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	DB   int    `mapstructure:"db"`

	// ActionLog pushes every accepted action onto the historian queue.
	ActionLog bool `mapstructure:"action_log"`
}

type PostgresConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Database string `mapstructure:"database"`
}

// Enabled reports whether a database host was configured.
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

// ConnString is the pgx connection URL.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", p.User, p.Password, p.Host, p.Port, p.Database)
}

type AuthConfig struct {
	// TokenExpire is "never", "0" or a Go duration.
	TokenExpire string `mapstructure:"token_expire"`

	// Raw ed25519 key files. Processes sharing a broadcast driver need the
	// same pair to accept each other's cookies; unset means a fresh pair
	// per process.
	PrivateKeyPath string `mapstructure:"private_key_path"`
	PublicKeyPath  string `mapstructure:"public_key_path"`
}

// KeysFromFiles reports whether a signing key pair was configured.
func (a AuthConfig) KeysFromFiles() bool {
	return a.PrivateKeyPath != "" && a.PublicKeyPath != ""
}

// TokenTTL parses TokenExpire; zero means tokens never expire.
func (a AuthConfig) TokenTTL() (time.Duration, error) {
	switch a.TokenExpire {
	case "", "0", "never":
		return 0, nil
	}
	d, err := time.ParseDuration(a.TokenExpire)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token expire time: %w", err)
	}
	return d, nil
}

type TimingConfig struct {
	BotThinkMs   int `mapstructure:"bot_think_ms"`
	TrickPauseMs int `mapstructure:"trick_pause_ms"`
	RoundPauseMs int `mapstructure:"round_pause_ms"`
}

func (t TimingConfig) BotThink() time.Duration {
	return time.Duration(t.BotThinkMs) * time.Millisecond
}

func (t TimingConfig) TrickPause() time.Duration {
	return time.Duration(t.TrickPauseMs) * time.Millisecond
}

func (t TimingConfig) RoundPause() time.Duration {
	return time.Duration(t.RoundPauseMs) * time.Millisecond
}

type HistorianConfig struct {
	QueueName     string `mapstructure:"queue_name"`
	BatchSize     int    `mapstructure:"batch_size"`
	FlushMs       int    `mapstructure:"flush_ms"`
	InactivitySec int    `mapstructure:"inactivity_sec"`
}

// envKeys maps config keys onto the environment variable names used in
// deployment.
var envKeys = map[string]string{
	"server.port":              "PORT",
	"server.log_level":         "LOG_LEVEL",
	"server.room_idle":         "ROOM_IDLE_TIMEOUT",
	"broadcast.driver":         "BROADCAST_DRIVER",
	"broadcast.nats_url":       "NATS_URL",
	"snapshot.driver":          "SNAPSHOT_DRIVER",
	"snapshot.ttl":             "SNAPSHOT_TTL",
	"redis.addr":               "REDIS_ADDR",
	"redis.db":                 "REDIS_DB",
	"redis.action_log":         "ACTION_LOG",
	"postgres.user":            "POSTGRES_USER",
	"postgres.password":        "POSTGRES_PASSWORD",
	"postgres.host":            "PG_HOST",
	"postgres.port":            "PG_PORT",
	"postgres.database":        "PG_DATABASE",
	"auth.token_expire":        "TOKEN_EXPIRE_TIME",
	"auth.private_key_path":    "JWT_PRIVATE_KEY_PATH",
	"auth.public_key_path":     "JWT_PUBLIC_KEY_PATH",
	"timing.bot_think_ms":      "BOT_THINK_MS",
	"timing.trick_pause_ms":    "TRICK_PAUSE_MS",
	"timing.round_pause_ms":    "ROUND_PAUSE_MS",
	"historian.queue_name":     "HISTORIAN_QUEUE_NAME",
	"historian.batch_size":     "HISTORIAN_BATCH_SIZE",
	"historian.flush_ms":       "HISTORIAN_FLUSH_MS",
	"historian.inactivity_sec": "GAME_INACTIVITY_TIMEOUT_SEC",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.room_idle", "10m")
	v.SetDefault("broadcast.driver", "memory")
	v.SetDefault("broadcast.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("snapshot.driver", "memory")
	v.SetDefault("snapshot.ttl", "24h")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.action_log", false)
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("auth.token_expire", "72h")
	v.SetDefault("timing.bot_think_ms", 900)
	v.SetDefault("timing.trick_pause_ms", 1500)
	v.SetDefault("timing.round_pause_ms", 3000)
	v.SetDefault("historian.queue_name", "omi_actions")
	v.SetDefault("historian.batch_size", 20)
	v.SetDefault("historian.flush_ms", 500)
	v.SetDefault("historian.inactivity_sec", 600)
}

// Load reads defaults, then the optional YAML file at path, then the
// environment, later sources winning.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.Broadcast.Driver = strings.ToLower(c.Broadcast.Driver)
	switch c.Broadcast.Driver {
	case "memory", "nats", "redis":
	default:
		return fmt.Errorf("unknown broadcast driver %q", c.Broadcast.Driver)
	}
	c.Snapshot.Driver = strings.ToLower(c.Snapshot.Driver)
	switch c.Snapshot.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown snapshot driver %q", c.Snapshot.Driver)
	}
	if _, err := c.Auth.TokenTTL(); err != nil {
		return err
	}
	if (c.Auth.PrivateKeyPath == "") != (c.Auth.PublicKeyPath == "") {
		return fmt.Errorf("both JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH must be set")
	}
	return nil
}

// NeedsRedis reports whether any configured driver talks to Redis.
func (c *Config) NeedsRedis() bool {
	return c.Broadcast.Driver == "redis" || c.Snapshot.Driver == "redis" || c.Redis.ActionLog
}
