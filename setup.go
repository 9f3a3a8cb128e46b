package session

import (
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"github.com/vijanaworks/go-session/breaker"
	"github.com/vijanaworks/go-session/revocation"
)

// Runtime bundles the wired session subsystem for embedding in an
// application.
type Runtime struct {
	Config   *EnvConfig
	Repo     RepositoryManager
	Auth     *Orchestrator
	Registry revocation.Registry
	Breaker  *breaker.Breaker
}

// NewRuntime wires the subsystem from environment configuration and an
// application-owned database handle. With a Redis address configured
// the revocation registry is shared across instances; without one it
// falls back to the in-process registry.
func NewRuntime(cfg *EnvConfig, db *bun.DB, logger Logger) *Runtime {
	if logger == nil {
		logger = defLogger{}
	}

	repo := NewRepositoryManager(db, WithPhoneRegion(cfg.GetDefaultPhoneRegion()))
	repo.MustValidate()

	var registry revocation.Registry
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		registry = revocation.NewRedis(client, "")
	} else {
		logger.Warn("no redis address configured, using in-process revocation registry")
		registry = revocation.NewMemory()
	}

	cb := breaker.New(breaker.Config{
		Name:             "identity-store",
		FailureThreshold: cfg.BreakerFailureThreshold,
		Window:           cfg.BreakerWindow,
		CoolDown:         cfg.BreakerCoolDown,
		IsFailure:        IsUnavailable,
	})

	auth := NewOrchestrator(repo.Users(), repo.RefreshTokens(), registry, cfg,
		WithLogger(logger),
		WithBreaker(cb),
		WithLookupTimeout(cfg.LookupTimeout),
	)

	return &Runtime{
		Config:   cfg,
		Repo:     repo,
		Auth:     auth,
		Registry: registry,
		Breaker:  cb,
	}
}
