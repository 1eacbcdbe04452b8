package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"

	UnroutedDrop       = "drop"
	UnroutedDeadLetter = "dead_letter"

	defaultPath = "config.yaml"
	redacted    = "******"
)

type Config struct {
	App      App      `yaml:"app"`
	HTTP     HTTP     `yaml:"http"`
	Log      Log      `yaml:"log"`
	Storage  Storage  `yaml:"storage"`
	Postgres Postgres `yaml:"postgres"`
	MySQL    MySQL    `yaml:"mysql"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
	Inbox    Inbox    `yaml:"inbox"`
	Relay    Relay    `yaml:"relay"`
	Metrics  Metrics  `yaml:"metrics"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"message-inbox"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type HTTP struct {
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
	// File enables size based rotation when set; logs go to stdout otherwise.
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB" env-default:"100"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"3"`
	MaxAgeDays int    `yaml:"max_age_days" env:"LOG_MAX_AGE_DAYS" env-default:"7"`
}

type Storage struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"user"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"inbox_db"`
	SSLMode  string `yaml:"sslmode" env:"POSTGRES_SSLMODE" env-default:"disable"`
	MaxConns int32  `yaml:"max_conns" env:"POSTGRES_MAX_CONNS" env-default:"10"`
}

type MySQL struct {
	Host         string `yaml:"host" env:"MYSQL_HOST" env-default:"localhost"`
	Port         string `yaml:"port" env:"MYSQL_PORT" env-default:"3306"`
	User         string `yaml:"user" env:"MYSQL_USER" env-default:"user"`
	Password     string `yaml:"password" env:"MYSQL_PASSWORD" env-default:"password"`
	DBName       string `yaml:"dbname" env:"MYSQL_DB" env-default:"inbox_db"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"MYSQL_MAX_OPEN_CONNS" env-default:"10"`
}

type Redis struct {
	Enabled  bool          `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
	Addr     string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	SeenTTL  time.Duration `yaml:"seen_ttl" env:"REDIS_SEEN_TTL" env-default:"24h"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"REDIS_CACHE_TTL" env-default:"30s"`
}

type Kafka struct {
	Brokers     []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	Topics      []string `yaml:"topics" env:"KAFKA_TOPICS" env-separator:"," env-default:"inbox-events"`
	GroupID     string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"message-inbox"`
	StartOffset string   `yaml:"start_offset" env:"KAFKA_START_OFFSET" env-default:"earliest"`
	OutboxTopic string   `yaml:"outbox_topic" env:"KAFKA_OUTBOX_TOPIC" env-default:"inbox-outbox"`
}

type Inbox struct {
	PollInterval   time.Duration `yaml:"poll_interval" env:"INBOX_POLL_INTERVAL" env-default:"2s"`
	MaxBackoff     time.Duration `yaml:"max_backoff" env:"INBOX_MAX_BACKOFF" env-default:"30s"`
	RetryBackoff   time.Duration `yaml:"retry_backoff" env:"INBOX_RETRY_BACKOFF" env-default:"500ms"`
	Workers        int           `yaml:"workers" env:"INBOX_WORKERS" env-default:"1"`
	HandlerTimeout time.Duration `yaml:"handler_timeout" env:"INBOX_HANDLER_TIMEOUT" env-default:"0s"`
	Unrouted       string        `yaml:"unrouted" env:"INBOX_UNROUTED" env-default:"drop"`
}

type Relay struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"RELAY_POLL_INTERVAL" env-default:"2s"`
	BatchSize    int           `yaml:"batch_size" env:"RELAY_BATCH_SIZE" env-default:"10"`
	StaleAfter   time.Duration `yaml:"stale_after" env:"RELAY_STALE_AFTER" env-default:"5m"`
}

type Metrics struct {
	Addr string `yaml:"addr" env:"METRICS_ADDR" env-default:":9090"`
}

// New loads the config from the -config flag, then CONFIG_PATH, then
// config.yaml.
func New() (*Config, error) {
	return Load(fetchConfigPath())
}

func fetchConfigPath() string {
	var result string

	flag.StringVar(&result, "config", "", "Path to config file")
	flag.Parse()

	if result == "" {
		result = os.Getenv("CONFIG_PATH")
	}

	return result
}

// Load reads path and applies env overrides on top. A missing file falls back
// to env vars and defaults only.
func Load(path string) (*Config, error) {
	if path == "" {
		path = defaultPath
	}

	cfg := &Config{}
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case DriverPostgres, DriverMySQL:
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be %q or %q, got %q", DriverPostgres, DriverMySQL, c.Storage.Driver))
	}

	switch c.Inbox.Unrouted {
	case UnroutedDrop, UnroutedDeadLetter:
	default:
		errs = append(errs, fmt.Errorf("inbox.unrouted must be %q or %q, got %q", UnroutedDrop, UnroutedDeadLetter, c.Inbox.Unrouted))
	}
	if c.Inbox.Unrouted == UnroutedDeadLetter && c.Storage.Driver != DriverPostgres {
		errs = append(errs, errors.New("inbox.unrouted dead_letter requires the postgres driver"))
	}

	if c.Inbox.Workers < 1 {
		errs = append(errs, fmt.Errorf("inbox.workers must be at least 1, got %d", c.Inbox.Workers))
	}
	if c.Inbox.PollInterval <= 0 {
		errs = append(errs, errors.New("inbox.poll_interval must be positive"))
	}
	if c.Inbox.MaxBackoff < c.Inbox.PollInterval {
		errs = append(errs, errors.New("inbox.max_backoff must not be shorter than inbox.poll_interval"))
	}

	switch strings.ToLower(c.Kafka.StartOffset) {
	case "earliest", "latest":
	default:
		errs = append(errs, fmt.Errorf("kafka.start_offset must be earliest or latest, got %q", c.Kafka.StartOffset))
	}

	return errors.Join(errs...)
}

// Print writes the effective config as YAML with secrets masked.
func Print(w io.Writer, cfg *Config) error {
	masked := *cfg
	if masked.Postgres.Password != "" {
		masked.Postgres.Password = redacted
	}
	if masked.MySQL.Password != "" {
		masked.MySQL.Password = redacted
	}
	if masked.Redis.Password != "" {
		masked.Redis.Password = redacted
	}

	data, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	_, err = w.Write(data)
	return err
}
