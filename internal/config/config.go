package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	BusNone  = "none"
	BusRedis = "redis"
	BusNats  = "nats"
)

var (
	ErrBadPort = errors.New("port must be a number between 1 and 65535")
	ErrBadBus  = errors.New("bus must be one of none, redis, nats")
	ErrBadEnv  = errors.New("invalid environment value")
)

type Config struct {
	Env             string
	Addr            string
	Port            string
	OutboxSize      int
	MaxMessageBytes int64
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	PongWait        time.Duration

	Bus           string
	InstanceID    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NatsURL       string
}

// HostAddr is the listen address.
func (c Config) HostAddr() string {
	return fmt.Sprintf("%s:%s", c.Addr, c.Port)
}

// LoadDotEnv reads .env files into the process environment. Missing files are
// fine; variables already set win.
func LoadDotEnv(files ...string) {
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Load resolves settings from flags, then HUB_* environment variables, then
// defaults.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("hub-server", flag.ContinueOnError)

	var (
		cfg     Config
		origins string
		env     envReader
	)
	fs.StringVar(&cfg.Env, "env", envOr("HUB_ENV", "dev"), "runtime environment (dev|prod)")
	fs.StringVar(&cfg.Addr, "a", envOr("HUB_ADDR", "localhost"), "http server ip address")
	fs.StringVar(&cfg.Port, "p", envOr("HUB_PORT", "50160"), "http server port")
	fs.IntVar(&cfg.OutboxSize, "outbox", env.getInt("HUB_OUTBOX_SIZE", 256), "frames buffered per connection before the oldest is dropped")
	fs.Int64Var(&cfg.MaxMessageBytes, "max-message", int64(env.getInt("HUB_MAX_MESSAGE_BYTES", 64*1024)), "largest inbound frame in bytes")
	fs.StringVar(&origins, "origins", envOr("HUB_ALLOWED_ORIGINS", "*"), "comma separated websocket origins, * allows any")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", env.getDuration("HUB_SHUTDOWN_TIMEOUT", 10*time.Second), "graceful shutdown budget")
	fs.DurationVar(&cfg.PongWait, "pong-wait", env.getDuration("HUB_PONG_WAIT", 60*time.Second), "drop a peer that has not answered a ping for this long")
	fs.StringVar(&cfg.Bus, "bus", envOr("HUB_BUS", BusNone), "cross-instance relay (none|redis|nats)")
	fs.StringVar(&cfg.InstanceID, "instance", envOr("HUB_INSTANCE_ID", ""), "instance id on the relay bus, random when empty")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", envOr("HUB_REDIS_ADDR", "localhost:6379"), "redis host:port")
	fs.StringVar(&cfg.RedisPassword, "redis-password", envOr("HUB_REDIS_PASSWORD", ""), "redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", env.getInt("HUB_REDIS_DB", 0), "redis database")
	fs.StringVar(&cfg.NatsURL, "nats-url", envOr("HUB_NATS_URL", "nats://localhost:4222"), "nats server url")

	if env.err != nil {
		return Config{}, env.err
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, errors.Wrap(err, "parse flags")
	}
	cfg.AllowedOrigins = splitCSV(origins)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return errors.Wrapf(ErrBadPort, "got %q", c.Port)
	}
	switch c.Bus {
	case BusNone, BusRedis, BusNats:
	default:
		return errors.Wrapf(ErrBadBus, "got %q", c.Bus)
	}
	if c.OutboxSize <= 0 {
		return errors.Errorf("outbox size must be positive, got %d", c.OutboxSize)
	}
	if c.PongWait <= 0 {
		return errors.Errorf("pong wait must be positive, got %s", c.PongWait)
	}
	if c.MaxMessageBytes <= 0 {
		return errors.Errorf("max message size must be positive, got %d", c.MaxMessageBytes)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envReader parses typed environment values and keeps the first failure.
type envReader struct {
	err error
}

func (r *envReader) getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v)
		return def
	}
	return i
}

func (r *envReader) getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v)
		return def
	}
	return d
}

func (r *envReader) fail(key, value string) {
	if r.err == nil {
		r.err = errors.Wrapf(ErrBadEnv, "%s=%q", key, value)
	}
}

func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
