package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/example/hwidlock/config"
	"github.com/example/hwidlock/metrics"
	"github.com/example/hwidlock/models"
	"github.com/example/hwidlock/services"
	"github.com/example/hwidlock/store"
)

// app is the wired service graph shared by serve and the admin commands.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      store.Store
	geo        *services.GeoIPResolver
	metrics    *metrics.Metrics
	settings   *services.SettingsStore
	validation *services.ValidationService
	admin      *services.AdminService
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch strings.ToLower(cfg.Store) {
	case "memory":
		return store.NewMemoryStore(cfg.LogCapacity), nil
	case "sqlite", "":
		db, err := models.OpenDB(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store.NewGormStore(db, cfg.LogCapacity), nil
	}
	return nil, fmt.Errorf("unknown store %q (want sqlite or memory)", cfg.Store)
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		metrics:  metrics.New(),
		settings: services.NewSettingsStore(services.Settings{MaxKeysPerHWID: cfg.MaxKeysPerHWID, AuditRejected: cfg.AuditRejected}),
	}

	if cfg.GeoIPDB != "" {
		geo, err := services.NewGeoIPResolver(cfg.GeoIPDB)
		if err != nil {
			logger.Warn("geoip lookups disabled", "error", err)
		} else {
			a.geo = geo
		}
	}

	fallback := services.NewFallbackSet(cfg.FallbackKeys)

	a.validation = services.NewValidationService(st, a.settings, fallback, logger)
	a.validation.Metrics = a.metrics
	if a.geo != nil {
		a.validation.Geo = a.geo
	}

	a.admin = services.NewAdminService(st, a.settings, services.NewKeyGenerator(cfg.KeyLength), fallback, logger)
	a.admin.Metrics = a.metrics
	if cfg.MaxGenerate > 0 {
		a.admin.MaxGenerate = cfg.MaxGenerate
	}
	return a, nil
}

func (a *app) Close() error {
	if a.geo != nil {
		_ = a.geo.Close()
	}
	return a.store.Close()
}

// openAdminApp wires the services for one-shot commands. Those only make
// sense against a durable store.
func openAdminApp() (*app, error) {
	cfg := config.AppConfig
	if strings.EqualFold(cfg.Store, "memory") {
		return nil, fmt.Errorf("the memory store does not persist between commands; set HWIDLOCK_STORE=sqlite")
	}
	return newApp(cfg, newLogger(cfg))
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
