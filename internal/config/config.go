package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	EventBusRedis  = "redis"
	EventBusMemory = "memory"

	ChangeFeedInline = "inline"
	ChangeFeedListen = "listen"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort            string        `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL         string        `env:"DATABASE_URL,required,notEmpty"`
	RedisAddr           string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword       string        `env:"REDIS_PASSWORD"`
	RedisDB             int           `env:"REDIS_DB" envDefault:"0"`
	RedisOpTimeout      time.Duration `env:"REDIS_OP_TIMEOUT" envDefault:"500ms"`
	JWTSecret           string        `env:"JWT_SECRET,required,notEmpty"`
	JWTAccessTTLMinutes int           `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"30"`
	JWTRefreshTTLHours  int           `env:"JWT_REFRESH_TTL_HOURS" envDefault:"720"`
	EventBus            string        `env:"EVENT_BUS" envDefault:"redis"`
	ChangeFeedMode      string        `env:"CHANGEFEED_MODE" envDefault:"inline"`
	StreamHeartbeat     time.Duration `env:"STREAM_HEARTBEAT" envDefault:"15s"`
	StartupRetries      int           `env:"STARTUP_RETRIES" envDefault:"5"`
	StartupBackoff      time.Duration `env:"STARTUP_BACKOFF" envDefault:"500ms"`
	PostRateLimit       int           `env:"POST_RATE_LIMIT" envDefault:"60"`
	PostRateWindow      time.Duration `env:"POST_RATE_WINDOW" envDefault:"1m"`
	MessageCacheTTL     time.Duration `env:"MESSAGE_CACHE_TTL" envDefault:"1h"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate revisa los valores enumerados.
func (c *Config) Validate() error {
	switch c.EventBus {
	case EventBusRedis, EventBusMemory:
	default:
		return fmt.Errorf("EVENT_BUS must be %q or %q, got %q", EventBusRedis, EventBusMemory, c.EventBus)
	}
	switch c.ChangeFeedMode {
	case ChangeFeedInline, ChangeFeedListen:
	default:
		return fmt.Errorf("CHANGEFEED_MODE must be %q or %q, got %q", ChangeFeedInline, ChangeFeedListen, c.ChangeFeedMode)
	}
	if c.StreamHeartbeat <= 0 {
		return fmt.Errorf("STREAM_HEARTBEAT must be positive")
	}
	return nil
}
