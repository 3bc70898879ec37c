package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"assistdb/pkg/api/handlers"
	"assistdb/pkg/bridge"
	"assistdb/pkg/config"
	"assistdb/pkg/events"
	"assistdb/pkg/live"
	"assistdb/pkg/logger"
	"assistdb/pkg/store"
	"assistdb/pkg/sweeper"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	deps *handlers.Deps
	ws   *bridge.Handler

	sweepCancel context.CancelFunc
	srv         *http.Server
}

// New initializes resources that do not need a running context: config
// validation, runtime keys, the store and the live broker. Call Run to
// start the publisher, sweeper and HTTP server and block until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	// runtime keys: backend API keys double as identity signing keys
	runtimeCfg := &config.RuntimeConfig{BackendKeys: map[string]struct{}{}, SigningKeys: map[string]struct{}{}}
	for _, k := range eff.Config.Security.APIKeys.Backend {
		runtimeCfg.BackendKeys[k] = struct{}{}
		runtimeCfg.SigningKeys[k] = struct{}{}
	}
	config.SetRuntime(runtimeCfg)

	if dir := eff.Config.Security.AuditDir; dir != "" {
		if err := logger.AttachAuditFileSink(dir); err != nil {
			return nil, fmt.Errorf("failed to attach audit sink: %w", err)
		}
	}

	if err := store.Open(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	broker := live.NewBroker(eff.Config.Live.Buffer)
	ttl := time.Duration(eff.Config.Widget.SessionTTLSeconds) * time.Second
	deps := &handlers.Deps{
		Live:       broker,
		Stream:     broker,
		Events:     events.Nop{},
		SessionTTL: ttl,
	}

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		deps:      deps,
	}
	return a, nil
}

// Run starts the event publisher, session sweeper and HTTP server, and
// blocks until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.eff.Config.Events.Enabled {
		pub, err := events.NewAMQP(a.eff.Config.Events.URL, a.eff.Config.Events.Exchange)
		if err != nil {
			return fmt.Errorf("failed to connect event publisher: %w", err)
		}
		defer pub.Close()
		a.deps.Events = pub
	}

	a.ws = bridge.NewHandler(a.deps.Events, a.eff.Config.Widget.MaxWidth, a.eff.Config.Widget.MaxHeight)

	cancel, err := sweeper.Start(ctx, a.eff.Config.Sweeper.Enabled, a.eff.Config.Sweeper.Cron)
	if err != nil {
		return fmt.Errorf("failed to start session sweeper: %w", err)
	}
	a.sweepCancel = cancel
	defer a.sweepCancel()

	a.printBanner()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shCancel()
		if err := a.srv.Shutdown(shCtx); err != nil {
			logger.Warn("http_shutdown_failed", "error", err)
		}
		if err := store.Close(); err != nil {
			logger.Warn("store_close_failed", "error", err)
		}
		return nil
	case err := <-errCh:
		if cerr := store.Close(); cerr != nil {
			logger.Warn("store_close_failed", "error", cerr)
		}
		return err
	}
}
