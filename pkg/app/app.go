// Package app wires the session manager, payment coordinator and their
// collaborators into one explicitly constructed service graph. Nothing here
// is a singleton: tests hand in their own SDK client, bus or verifier.
package app

import (
	"log/slog"

	"github.com/palaceofquests/pinet/infra/cache"
	"github.com/palaceofquests/pinet/infra/notify"
	"github.com/palaceofquests/pinet/infra/verification"
	"github.com/palaceofquests/pinet/pkg/config"
	"github.com/palaceofquests/pinet/pkg/eventbus"
	"github.com/palaceofquests/pinet/pkg/registry"
	"github.com/palaceofquests/pinet/pkg/sdk"
	paymentsvc "github.com/palaceofquests/pinet/pkg/service/payment"
	sessionsvc "github.com/palaceofquests/pinet/pkg/service/session"
)

// App is the assembled client.
type App struct {
	Config   *config.AppConfig
	Bus      *eventbus.MemoryBus
	Registry *registry.Pending
	Sessions *sessionsvc.Manager
	Payments *paymentsvc.Coordinator
	Logger   *slog.Logger
}

// New assembles the service graph around the given SDK client.
func New(client sdk.Client, cfg *config.AppConfig, logger *slog.Logger) *App {
	bus := eventbus.NewMemoryBus(logger)
	pending := registry.New()
	sessionCache := cache.NewSessionCache()

	sessions := sessionsvc.NewManager(client, bus, sessionCache, sessionsvc.Config{
		SDK: sdk.Config{
			Version: cfg.SDK.Version,
			Sandbox: cfg.SDK.Sandbox,
			Timeout: cfg.SDK.Timeout,
		},
		TTL:            cfg.Session.TTL,
		CacheKey:       cfg.Session.CacheKey,
		RetryInterval:  cfg.SDK.RetryInterval,
		InitMaxElapsed: cfg.SDK.InitMaxElapsed,
	}, logger)

	verifier := verification.New(
		cfg.API.BaseURL,
		cfg.API.HTTPTimeout,
		logger,
		verification.WithMaxRetries(cfg.API.VerifyMaxRetries),
		verification.WithOnUnauthorized(sessions.SignOut),
	)
	notifier := notify.New(cfg.API.BaseURL, cfg.API.HTTPTimeout, logger)

	payments := paymentsvc.NewCoordinator(
		client,
		sessions,
		verifier,
		notifier,
		pending,
		bus,
		paymentsvc.Config{
			MaxAmount: cfg.Payment.MaxAmount,
			MemoLimit: cfg.Payment.MemoLimit,
			Timeout:   cfg.Payment.Timeout,
		},
		logger,
	)
	sessions.SetReconciler(payments)

	return &App{
		Config:   cfg,
		Bus:      bus,
		Registry: pending,
		Sessions: sessions,
		Payments: payments,
		Logger:   logger,
	}
}
