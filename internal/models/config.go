package models

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Ledger   LedgerConfig
	Engine   EngineConfig
	Bonus    BonusConfig
	Kafka    KafkaConfig
	Metrics  MetricsConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver           string // "sqlite" or "postgres"
	Path             string
	PostgresDSN      string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	PingTimeout      time.Duration
	CreateDummyUsers bool
}

// LedgerConfig selects the balance ledger backend
type LedgerConfig struct {
	Backend  string // "sqlite" or "formance"
	Formance FormanceConfig
}

// FormanceConfig holds Formance Stack connection settings
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// EngineConfig holds provider and catalogue settings
type EngineConfig struct {
	ProvidersFile    string
	GamesFile        string
	DefaultMaxPayout string
	StaleAfter       time.Duration // pending actions older than this are reclaimed
}

// BonusConfig holds bonus template cache settings
type BonusConfig struct {
	RedisAddr     string
	ShortTTL      time.Duration
	LongTTL       time.Duration
	TemplatesFile string
}

// KafkaConfig holds callback intake and publishing settings
type KafkaConfig struct {
	Brokers       string
	CallbackTopic string
	ReplyTopic    string
	CloseoutTopic string
	GroupID       string
}

// MetricsConfig holds the metrics/health server settings
type MetricsConfig struct {
	Port string
}
