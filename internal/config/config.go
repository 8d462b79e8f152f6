// Package config loads the API configuration: built-in defaults, then an
// optional TOML file, then environment overrides.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"
)

var log = logging.Logger("config")

type Duration time.Duration

// UnmarshalText implements interface for TOML decoding
func (dur *Duration) UnmarshalText(text []byte) error {
	d, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*dur = Duration(d)
	return nil
}

func (dur Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(dur).String()), nil
}

func (dur Duration) Std() time.Duration { return time.Duration(dur) }

type Config struct {
	LogLevel string `toml:"log_level"`

	HTTP    HTTP    `toml:"http"`
	Auth    Auth    `toml:"auth"`
	Storage Storage `toml:"storage"`
	Kafka   Kafka   `toml:"kafka"`
	Redis   Redis   `toml:"redis"`
	Stripe  Stripe  `toml:"stripe"`
	SMTP    SMTP    `toml:"smtp"`
	Market  Market  `toml:"market"`
}

type HTTP struct {
	Addr            string   `toml:"addr"`
	RateLimit       float64  `toml:"rate_limit"`
	RateBurst       int      `toml:"rate_burst"`
	MaxUploadBytes  int64    `toml:"max_upload_bytes"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type Auth struct {
	JWTSecret string   `toml:"jwt_secret"`
	TokenTTL  Duration `toml:"token_ttl"`
}

type Storage struct {
	UploadDir string `toml:"upload_dir"`
	EventDir  string `toml:"event_dir"`
}

// Kafka with an empty Broker sends events to the JSONL sink under
// Storage.EventDir and runs no consumers.
type Kafka struct {
	Broker string `toml:"broker"`
	Topic  string `toml:"topic"`
}

// Redis with an empty Addr disables the leaderboards and keeps locks
// in-process.
type Redis struct {
	Addr    string   `toml:"addr"`
	Prefix  string   `toml:"prefix"`
	Lock    bool     `toml:"lock"`
	LockTTL Duration `toml:"lock_ttl"`
}

// Stripe with an empty SecretKey refuses every checkout unless Fake is set.
// Fake confirms any intent without moving money and is for development only.
type Stripe struct {
	SecretKey string   `toml:"secret_key"`
	BaseURL   string   `toml:"base_url"`
	Timeout   Duration `toml:"timeout"`
	Fake      bool     `toml:"fake"`
}

// SMTP with an empty Addr logs emails instead of sending them.
type SMTP struct {
	Addr     string `toml:"addr"`
	From     string `toml:"from"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type Market struct {
	PendingPurchaseTTL Duration `toml:"pending_purchase_ttl"`
}

func Default() *Config {
	return &Config{
		LogLevel: "info",
		HTTP: HTTP{
			Addr:            ":5000",
			RateLimit:       50,
			RateBurst:       100,
			MaxUploadBytes:  500 << 20,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Auth: Auth{
			TokenTTL: Duration(7 * 24 * time.Hour),
		},
		Storage: Storage{
			UploadDir: "uploads",
			EventDir:  "data/events",
		},
		Kafka: Kafka{
			Topic: "market.events",
		},
		Redis: Redis{
			Prefix:  "datanest:",
			LockTTL: Duration(30 * time.Second),
		},
		Stripe: Stripe{
			BaseURL: "https://api.stripe.com",
			Timeout: Duration(15 * time.Second),
		},
		SMTP: SMTP{
			From: "no-reply@datanest.local",
		},
		Market: Market{
			PendingPurchaseTTL: Duration(30 * time.Minute),
		},
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, xerrors.Errorf("decoding config %s: %w", path, err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if c.Auth.JWTSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		log.Warnw("no JWT secret configured; tokens will not survive a restart")
		c.Auth.JWTSecret = secret
	}
	return c, c.Validate()
}

func (c *Config) Validate() error {
	switch {
	case c.HTTP.Addr == "":
		return xerrors.New("http.addr is required")
	case c.HTTP.RateLimit < 0 || c.HTTP.RateBurst < 0:
		return xerrors.New("http rate limits must not be negative")
	case c.Storage.UploadDir == "":
		return xerrors.New("storage.upload_dir is required")
	case c.Redis.Lock && c.Redis.Addr == "":
		return xerrors.New("redis.lock requires redis.addr")
	case c.Kafka.Broker != "" && c.Kafka.Topic == "":
		return xerrors.New("kafka.topic is required with a broker")
	case c.Stripe.Fake && c.Stripe.SecretKey != "":
		return xerrors.New("stripe.fake cannot be combined with stripe.secret_key")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (c *Config) applyEnv() error {
	c.LogLevel = getEnv("DATANEST_LOG_LEVEL", c.LogLevel)
	c.HTTP.Addr = getEnv("DATANEST_HTTP_ADDR", c.HTTP.Addr)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Storage.UploadDir = getEnv("UPLOAD_DIR", c.Storage.UploadDir)
	c.Storage.EventDir = getEnv("EVENT_DIR", c.Storage.EventDir)
	c.Kafka.Broker = getEnv("KAFKA_BROKER", c.Kafka.Broker)
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Stripe.SecretKey = getEnv("STRIPE_SECRET_KEY", c.Stripe.SecretKey)
	c.Stripe.BaseURL = getEnv("STRIPE_BASE_URL", c.Stripe.BaseURL)
	c.SMTP.Addr = getEnv("SMTP_ADDR", c.SMTP.Addr)
	c.SMTP.From = getEnv("SMTP_FROM", c.SMTP.From)
	c.SMTP.Username = getEnv("SMTP_USERNAME", c.SMTP.Username)
	c.SMTP.Password = getEnv("SMTP_PASSWORD", c.SMTP.Password)

	if v := os.Getenv("REDIS_LOCK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return xerrors.Errorf("REDIS_LOCK: %w", err)
		}
		c.Redis.Lock = b
	}
	if v := os.Getenv("STRIPE_FAKE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return xerrors.Errorf("STRIPE_FAKE: %w", err)
		}
		c.Stripe.Fake = b
	}
	if v := os.Getenv("PENDING_PURCHASE_TTL"); v != "" {
		if err := c.Market.PendingPurchaseTTL.UnmarshalText([]byte(v)); err != nil {
			return xerrors.Errorf("PENDING_PURCHASE_TTL: %w", err)
		}
	}
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", xerrors.Errorf("generating JWT secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
