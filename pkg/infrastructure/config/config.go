package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	AppID string `mapstructure:"app_id"`

	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

type HTTPConfig struct {
	ListenAddress   string        `mapstructure:"listen_address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type BrokerConfig struct {
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Vhost          string        `mapstructure:"vhost"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	Exchange string `mapstructure:"exchange"`
	Queue    string `mapstructure:"queue"`
}

type RelayConfig struct {
	BatchSize       uint          `mapstructure:"batch_size"`
	Interval        time.Duration `mapstructure:"interval"`
	ProcessingGrace time.Duration `mapstructure:"processing_grace"`
	LockName        string        `mapstructure:"lock_name"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	IdempotencyTTL  time.Duration `mapstructure:"idempotency_ttl"`
}

type ConsumerConfig struct {
	PrefetchCount  int           `mapstructure:"prefetch_count"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

type CacheConfig struct {
	OrderTTL time.Duration `mapstructure:"order_ttl"`
}

// Load reads configuration from the environment, with an optional .env
// file for local runs. A missing .env is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_id", "orders")

	v.SetDefault("http.listen_address", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.dsn", "orders:orders@tcp(localhost:3306)/orders?parseTime=true&multiStatements=true")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("broker.user", "guest")
	v.SetDefault("broker.password", "guest")
	v.SetDefault("broker.host", "localhost")
	v.SetDefault("broker.port", 5672)
	v.SetDefault("broker.vhost", "")
	v.SetDefault("broker.connect_timeout", time.Minute)
	v.SetDefault("broker.exchange", "outbox.exchange")
	v.SetDefault("broker.queue", "order.events.queue")

	v.SetDefault("relay.batch_size", 50)
	v.SetDefault("relay.interval", 5*time.Second)
	v.SetDefault("relay.processing_grace", 5*time.Minute)
	v.SetDefault("relay.lock_name", "outbox:processing:lock")
	v.SetDefault("relay.lock_ttl", 10*time.Second)
	v.SetDefault("relay.idempotency_ttl", 24*time.Hour)

	v.SetDefault("consumer.prefetch_count", 10)
	v.SetDefault("consumer.idempotency_ttl", 24*time.Hour)

	v.SetDefault("cache.order_ttl", 5*time.Minute)
}
