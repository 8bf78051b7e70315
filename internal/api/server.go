package api

import (
	"context"
	"net/http"
	"strings"

	"depotassign/internal/auth"
	"depotassign/internal/config"
	"depotassign/internal/solver"
	"depotassign/internal/store"
	"depotassign/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Pub    *webhooks.Publisher
	Auth   *auth.Verifier
	Broker EventBroker
	Solver solver.Gateway
	Cfg    config.Config

	limits *tenantLimiter
}

// NewServer wires the server from config. Without DATABASE_URL it uses the
// in-memory store; without REDIS_URL the in-process broker.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		_ = sp.MigrateDir("db/migrations")
		s = sp
	}
	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}
	var gw solver.Gateway
	if cfg.Solver.Backend == "http" {
		gw = solver.NewHTTP(cfg.Solver.URL)
	} else {
		gw = solver.NewCBC(cfg.Solver.CBCPath)
	}
	return &Server{
		Store:  s,
		Pub:    webhooks.NewPublisher(s),
		Auth:   auth.NewVerifierFromEnv(),
		Broker: broker,
		Solver: gw,
		Cfg:    cfg,
		limits: newTenantLimiter(cfg.RateLimit.RunsPerSec, cfg.RateLimit.Burst),
	}, nil
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = "t_demo"
	}
	ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
	return ctx, tenant
}

type ctxKeyTenant struct{}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
