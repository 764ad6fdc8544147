package config

import "time"

// Sync definition sync_service YAML structure
type Sync struct {
	Port     string `mapstructure:"port"`
	GRPCPort string `mapstructure:"grpc_port"`

	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	Redis      RedisConfig    `mapstructure:"redis"`
	RabbitMQ   DatabaseConfig `mapstructure:"rabbitmq"`
	Kafka      KafkaConfig    `mapstructure:"kafka"`
	MinIO      MinIOConfig    `mapstructure:"minio"`

	Engine EngineConfig `mapstructure:"sync"`
}

// BusType 選擇 invalidation signal 的傳輸方式
type BusType string

const (
	// BusRedis redis pub/sub
	BusRedis BusType = "redis"
	// BusRabbitMQ rabbitmq topic exchange
	BusRabbitMQ BusType = "rabbitmq"
	// BusMemory 單一 process, 本機開發用
	BusMemory BusType = "memory"
)

// EngineConfig 同步引擎的時間參數
type EngineConfig struct {
	Bus                 BusType       `mapstructure:"bus"`
	TypingDebounce      time.Duration `mapstructure:"typing_debounce"`
	TypingStaleness     time.Duration `mapstructure:"typing_staleness"`
	HeartbeatInterval   time.Duration `mapstructure:"heartbeat_interval"`
	PresenceTimeout     time.Duration `mapstructure:"presence_timeout"`
	ReaperInterval      time.Duration `mapstructure:"reaper_interval"`
	NotificationDismiss time.Duration `mapstructure:"notification_dismiss"`
	HistoryLimit        int           `mapstructure:"history_limit"`
	ProfileCacheTTL     time.Duration `mapstructure:"profile_cache_ttl"`
	AvatarURLExpiry     time.Duration `mapstructure:"avatar_url_expiry"`
}

// DefaultEngine 未設定時使用的值
func DefaultEngine() EngineConfig {
	return EngineConfig{
		Bus:                 BusRedis,
		TypingDebounce:      2000 * time.Millisecond,
		TypingStaleness:     4000 * time.Millisecond,
		HeartbeatInterval:   10 * time.Second,
		PresenceTimeout:     30 * time.Second,
		ReaperInterval:      15 * time.Second,
		NotificationDismiss: 5 * time.Second,
		HistoryLimit:        100,
		ProfileCacheTTL:     5 * time.Minute,
		AvatarURLExpiry:     time.Hour,
	}
}

// WithDefaults 補上零值欄位
func (e EngineConfig) WithDefaults() EngineConfig {
	d := DefaultEngine()
	if e.Bus == "" {
		e.Bus = d.Bus
	}
	if e.TypingDebounce <= 0 {
		e.TypingDebounce = d.TypingDebounce
	}
	if e.TypingStaleness <= 0 {
		e.TypingStaleness = 2 * e.TypingDebounce
	}
	if e.HeartbeatInterval <= 0 {
		e.HeartbeatInterval = d.HeartbeatInterval
	}
	if e.PresenceTimeout <= 0 {
		e.PresenceTimeout = d.PresenceTimeout
	}
	if e.ReaperInterval <= 0 {
		e.ReaperInterval = d.ReaperInterval
	}
	if e.NotificationDismiss <= 0 {
		e.NotificationDismiss = d.NotificationDismiss
	}
	if e.HistoryLimit <= 0 {
		e.HistoryLimit = d.HistoryLimit
	}
	if e.ProfileCacheTTL <= 0 {
		e.ProfileCacheTTL = d.ProfileCacheTTL
	}
	if e.AvatarURLExpiry <= 0 {
		e.AvatarURLExpiry = d.AvatarURLExpiry
	}
	return e
}

// RedisConfig definition redis setting
type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	RedisDB int    `mapstructure:"redis_db"`
}

// KafkaConfig definition kafka setting
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryInterval int      `mapstructure:"retry_interval"`
	RetryCount    int      `mapstructure:"retry_count"`
}

// MinIOConfig definition minio setting
type MinIOConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Bucket        string `mapstructure:"bucket"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}
