package session

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-errors"
)

// EnvConfig is the environment-driven configuration. It satisfies the
// Config interface consumed by NewOrchestrator.
type EnvConfig struct {
	SigningKey  string        `env:"SESSION_SIGNING_KEY,required,notEmpty"`
	Issuer      string        `env:"SESSION_ISSUER" envDefault:"vijanaworks"`
	Audience    []string      `env:"SESSION_AUDIENCE" envSeparator:","`
	AccessTTL   time.Duration `env:"SESSION_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL  time.Duration `env:"SESSION_REFRESH_TTL" envDefault:"168h"`
	PhoneRegion string        `env:"SESSION_PHONE_REGION" envDefault:"KE"`

	RedisAddr     string `env:"SESSION_REDIS_ADDR"`
	RedisPassword string `env:"SESSION_REDIS_PASSWORD"`
	RedisDB       int    `env:"SESSION_REDIS_DB" envDefault:"0"`

	BreakerFailureThreshold int           `env:"SESSION_BREAKER_FAILURES" envDefault:"5"`
	BreakerWindow           time.Duration `env:"SESSION_BREAKER_WINDOW" envDefault:"1m"`
	BreakerCoolDown         time.Duration `env:"SESSION_BREAKER_COOLDOWN" envDefault:"30s"`

	LookupTimeout time.Duration `env:"SESSION_LOOKUP_TIMEOUT" envDefault:"5s"`
}

var _ Config = (*EnvConfig)(nil)

// LoadConfig reads configuration from the environment.
func LoadConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to parse session configuration")
	}
	return cfg, nil
}

func (c *EnvConfig) GetSigningKey() string { return c.SigningKey }

func (c *EnvConfig) GetIssuer() string { return c.Issuer }

func (c *EnvConfig) GetAudience() []string { return c.Audience }

func (c *EnvConfig) GetAccessTokenTTL() time.Duration { return c.AccessTTL }

func (c *EnvConfig) GetRefreshTokenTTL() time.Duration { return c.RefreshTTL }

func (c *EnvConfig) GetDefaultPhoneRegion() string { return c.PhoneRegion }
