package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"

	ModePush = "push"
	ModePull = "pull"
)

type Config struct {
	Server    ServerConfig
	Gateway   GatewayConfig
	Store     StoreConfig
	Notify    NotifyConfig
	Redis     RedisConfig
	Ticketing TicketingConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address        string
	AllowedOrigins []string
	StaticDir      string
}

type GatewayConfig struct {
	URL         string
	Sender      string
	Username    string
	Password    string
	HTTPTimeout time.Duration
}

// Configured reports whether real credentials were supplied. The service
// still starts without them; replies fail at the gateway.
func (g GatewayConfig) Configured() bool {
	return usable(g.Username) && usable(g.Password)
}

func usable(v string) bool {
	return v != "" && !strings.HasPrefix(v, "your_46elks_api_")
}

type StoreConfig struct {
	Driver      string
	Table       string
	PostgresURL string
	BoltPath    string
	ListLimit   int
}

type NotifyConfig struct {
	Mode         string
	PollInterval time.Duration
	Heartbeat    time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	Channel  string
}

type TicketingConfig struct {
	Enabled     bool
	URL         string
	Token       string
	Members     []string
	CountryCode string
	Timeout     time.Duration
}

type LogConfig struct {
	Level  slog.Level
	Format string
}

func LoadAll() (*Config, error) {
	var errs []error

	intVar := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	timeout := time.Duration(intVar("HTTP_TIMEOUT_SECONDS", 10)) * time.Second

	cfg := &Config{
		Server: ServerConfig{
			Address:        serverAddress(),
			AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),
			StaticDir:      os.Getenv("STATIC_DIR"),
		},
		Gateway: GatewayConfig{
			URL:         getEnv("GATEWAY_URL", "https://api.46elks.com/a1/sms"),
			Sender:      getEnv("GATEWAY_SENDER", "Inbox"),
			Username:    os.Getenv("API_USERNAME"),
			Password:    os.Getenv("API_PASSWORD"),
			HTTPTimeout: timeout,
		},
		Store: StoreConfig{
			Driver:    strings.ToLower(getEnv("STORE_DRIVER", DriverMemory)),
			Table:     getEnv("STORE_TABLE", "messages"),
			BoltPath:  getEnv("BOLT_PATH", "data/inbox.bolt"),
			ListLimit: intVar("LIST_LIMIT", 100),
		},
		Notify: NotifyConfig{
			Mode:         strings.ToLower(getEnv("NOTIFY_MODE", ModePush)),
			PollInterval: time.Duration(intVar("POLL_INTERVAL_SECONDS", 5)) * time.Second,
			Heartbeat:    time.Duration(intVar("HEARTBEAT_SECONDS", 30)) * time.Second,
		},
		Ticketing: TicketingConfig{
			Token:       os.Getenv("TELAVOX_TOKEN"),
			URL:         getEnv("TELAVOX_URL", "https://api.telavox.se"),
			Members:     getEnvList("TELAVOX_MEMBERS"),
			CountryCode: getEnv("TELAVOX_COUNTRY_CODE", "+46"),
			Timeout:     timeout,
		},
	}
	cfg.Ticketing.Enabled = cfg.Ticketing.Token != ""

	if cfg.Store.Driver == DriverPostgres {
		url, err := requireEnv("POSTGRES_URL")
		if err != nil {
			errs = append(errs, err)
		}
		cfg.Store.PostgresURL = url
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		errs = append(errs, err)
	}
	cfg.Redis = redisCfg

	logCfg, err := loadLogConfig()
	if err != nil {
		errs = append(errs, err)
	}
	cfg.Log = logCfg

	errs = append(errs, validate(cfg)...)

	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serverAddress() string {
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		return v
	}
	if p := os.Getenv("PORT"); p != "" {
		return ":" + p
	}
	return ":3000"
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, err := getEnvInt("REDIS_DB", 0)
	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		Channel:  getEnv("REDIS_CHANNEL", "inbox:events"),
	}, err
}

func loadLogConfig() (LogConfig, error) {
	cfg := LogConfig{Format: strings.ToLower(getEnv("LOG_FORMAT", "text"))}
	if err := cfg.Level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return cfg, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return cfg, nil
}

func validate(cfg *Config) []error {
	var errs []error

	switch cfg.Store.Driver {
	case DriverMemory, DriverPostgres, DriverBolt:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be one of memory, postgres, bolt: %q", cfg.Store.Driver))
	}
	switch cfg.Notify.Mode {
	case ModePush, ModePull:
	default:
		errs = append(errs, fmt.Errorf("NOTIFY_MODE must be push or pull: %q", cfg.Notify.Mode))
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json: %q", cfg.Log.Format))
	}

	if cfg.Store.ListLimit <= 0 {
		errs = append(errs, errors.New("LIST_LIMIT must be > 0"))
	}
	if cfg.Gateway.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT_SECONDS must be > 0"))
	}
	if cfg.Notify.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Notify.Heartbeat <= 0 {
		errs = append(errs, errors.New("HEARTBEAT_SECONDS must be > 0"))
	}
	if cfg.Store.Driver == DriverBolt && cfg.Store.BoltPath == "" {
		errs = append(errs, errors.New("BOLT_PATH must not be empty"))
	}
	return errs
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
