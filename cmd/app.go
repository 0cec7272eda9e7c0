package main

import (
	"fmt"
	"log/slog"

	"remindcal/internal/access"
	"remindcal/internal/analysis"
	"remindcal/internal/caldav"
	"remindcal/internal/config"
	"remindcal/internal/google"
	"remindcal/internal/ics"
	"remindcal/internal/notify"
	"remindcal/internal/reconcile"
	"remindcal/internal/reminder"
	"remindcal/internal/store"
	"remindcal/internal/store/postgres"
	"remindcal/internal/store/sqlite"
	"remindcal/internal/syncer"

	"github.com/urfave/cli/v2"
)

// runtime holds the services every command is built from.
type runtime struct {
	cfg    config.Config
	logger *slog.Logger
	events store.EventStore
	perms  store.PermissionStore
	close  func() error

	engine   *reconcile.Engine
	gate     *access.Gate
	analyzer *analysis.Analyzer
}

func openRuntime(c *cli.Context) (*runtime, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := setupLogger(cfg.LogLevel)

	rt := &runtime{cfg: cfg, logger: logger, close: func() error { return nil }}
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Warn("Using the in-memory store; nothing survives a restart.")
		rt.events = store.NewMemoryEventStore()
		rt.perms = store.NewMemoryPermissionStore()
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		rt.events, rt.perms, rt.close = db, db, db.Close
	case config.DriverPostgres:
		db, err := postgres.Open(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		rt.events, rt.perms, rt.close = db, db, db.Close
	}
	logger.Debug("Opened store.", "driver", cfg.Store.Driver)

	rt.engine = reconcile.NewEngine(logger, rt.events)
	rt.gate = access.NewGate(logger, rt.perms, rt.events)
	rt.analyzer = analysis.NewAnalyzer(rt.engine, cfg.Location)
	return rt, nil
}

func (rt *runtime) Close() {
	if err := rt.close(); err != nil {
		rt.logger.Error("Failed to close store", "error", err)
	}
}

// bindings builds one import binding per configured source. Google is bound for every
// owner holding a token when OAuth credentials are available.
func (rt *runtime) bindings() ([]syncer.Binding, error) {
	var out []syncer.Binding

	tokens := google.NewTokenStore(rt.cfg.Google.TokenDir)
	owners, err := tokens.Owners()
	if err != nil {
		return nil, fmt.Errorf("could not list google tokens: %w", err)
	}
	if len(owners) > 0 {
		oauth, err := google.OAuthConfig(rt.cfg.Google.ClientID, rt.cfg.Google.ClientSecret)
		if err != nil {
			rt.logger.Warn("Google tokens found but no OAuth credentials, skipping Google import.", "error", err)
		} else {
			src := google.NewSource(rt.logger, oauth, tokens, rt.cfg.Location)
			for _, owner := range owners {
				out = append(out, syncer.Binding{OwnerID: owner, Source: src})
			}
		}
	}

	for _, feed := range rt.cfg.ICS {
		src := ics.NewSource(rt.logger, feed.URL, 0, rt.cfg.Location)
		out = append(out, syncer.Binding{OwnerID: feed.Owner, Source: src})
	}

	for _, acc := range rt.cfg.CalDAV {
		src, err := caldav.NewSource(rt.logger, caldav.Config{
			Endpoint: acc.Endpoint,
			Username: acc.Username,
			Password: acc.Password,
			Calendar: acc.Calendar,
		}, rt.cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("failed to create caldav source for owner %d: %w", acc.Owner, err)
		}
		out = append(out, syncer.Binding{OwnerID: acc.Owner, Source: src})
	}
	return out, nil
}

func (rt *runtime) syncer(dryRun bool) (*syncer.Syncer, error) {
	bindings, err := rt.bindings()
	if err != nil {
		return nil, err
	}
	return syncer.NewSyncer(rt.logger, rt.engine, bindings, rt.cfg.Import.HorizonDays, rt.cfg.Location, dryRun), nil
}

func (rt *runtime) sink() notify.Sink {
	if rt.cfg.Notify.WebhookURL != "" {
		return notify.NewWebhookSink(rt.logger, rt.cfg.Notify.WebhookURL, rt.cfg.Notify.Timeout)
	}
	return notify.NewLogSink(rt.logger)
}

func (rt *runtime) scheduler() *reminder.Scheduler {
	return reminder.NewScheduler(rt.logger, rt.events, rt.sink(), reminder.Config{
		Interval:    rt.cfg.Reminder.Interval,
		Grace:       rt.cfg.Reminder.Grace,
		SendTimeout: rt.cfg.Reminder.SendTimeout,
		Location:    rt.cfg.Location,
	})
}

// requireOwner reads a non-zero owner id flag.
func requireOwner(c *cli.Context, name string) (int64, error) {
	id := c.Int64(name)
	if id == 0 {
		return 0, fmt.Errorf("--%s is required", name)
	}
	return id, nil
}
