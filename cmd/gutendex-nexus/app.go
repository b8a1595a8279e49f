package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drallgood/gutendex-nexus/internal/api/gutendex"
	"github.com/drallgood/gutendex-nexus/internal/config"
	"github.com/drallgood/gutendex-nexus/internal/crypto"
	"github.com/drallgood/gutendex-nexus/internal/favorites"
	"github.com/drallgood/gutendex-nexus/internal/history"
	"github.com/drallgood/gutendex-nexus/internal/logger"
	"github.com/drallgood/gutendex-nexus/internal/notify"
	"github.com/drallgood/gutendex-nexus/internal/search"
	"github.com/drallgood/gutendex-nexus/internal/settings"
	"github.com/drallgood/gutendex-nexus/internal/storage"
)

// app holds the wired components for one CLI invocation
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	out        io.Writer
	store      storage.Store
	catalog    *gutendex.Client
	favorites  *favorites.Store
	history    *history.History
	settings   *settings.Service
	controller *search.Controller
	notifier   notify.Notifier
	metricsSrv *http.Server
}

// newApp wires every component from cfg. The caller must call close.
func newApp(ctx context.Context, cfg *config.Config, out io.Writer, log *logger.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		log:      log,
		out:      out,
		notifier: notify.Multi(consoleNotifier(out), notify.NewLogNotifier(logger.ForComponent("notify"))),
	}

	store, err := storage.Open(cfg.Storage.Type, cfg.Storage.Path, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a.store = store

	userAgent := cfg.Catalog.UserAgent
	if userAgent == "" {
		userAgent = "gutendex-nexus/" + version
	}
	a.catalog = gutendex.NewClient(&gutendex.ClientConfig{
		BaseURL:   cfg.Catalog.BaseURL,
		Timeout:   cfg.Catalog.Timeout,
		RateLimit: cfg.Catalog.RateLimit,
		Burst:     cfg.Catalog.Burst,
		CacheTTL:  cfg.Catalog.CacheTTL,
		UserAgent: userAgent,
	}, log)

	a.favorites, err = favorites.New(ctx, store, favorites.Options{
		Policy:        cfg.Favorites.LoadPolicy,
		MaxConcurrent: cfg.Catalog.MaxConcurrent,
		Notifier:      a.notifier,
		Logger:        log,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	a.history, err = history.New(ctx, store, cfg.Search.HistoryLimit, log)
	if err != nil {
		a.close()
		return nil, err
	}

	a.controller, err = search.New(search.Options{
		Catalog:     a.catalog,
		Favorites:   a.favorites,
		History:     a.history,
		Notifier:    a.notifier,
		Logger:      log,
		DefaultSort: cfg.Search.DefaultSort,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	if cfg.Metrics.Addr != "" {
		a.startMetrics(cfg.Metrics.Addr)
	}
	return a, nil
}

// settingsService builds the settings service on first use so commands that
// never touch the API key do not create a key file
func (a *app) settingsService() (*settings.Service, error) {
	if a.settings != nil {
		return a.settings, nil
	}
	enc, err := crypto.NewEncryptionManager(a.cfg.Security.EncryptionKey, a.cfg.Security.KeyFile, a.log)
	if err != nil {
		return nil, err
	}
	a.settings = settings.NewService(a.store, enc, a.log)
	return a.settings, nil
}

func (a *app) startMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.metricsSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.log.Info("Serving metrics", map[string]interface{}{"addr": addr})
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Metrics server failed", map[string]interface{}{"error": err.Error()})
		}
	}()
}

func (a *app) close() {
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metricsSrv.Shutdown(ctx)
	}
	if a.favorites != nil {
		a.favorites.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("Failed to close storage", map[string]interface{}{"error": err.Error()})
		}
	}
}
