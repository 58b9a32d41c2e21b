package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"robopanel/internal/api"
	"robopanel/internal/commands"
	"robopanel/internal/config"
	"robopanel/internal/device"
	"robopanel/internal/launch"
	"robopanel/internal/logging"
	"robopanel/internal/metrics"
	"robopanel/internal/process"
	"robopanel/internal/robot"
	"robopanel/internal/session"
	"robopanel/internal/watcher"
)

// application holds every long-lived component the host owns.
type application struct {
	settings config.Settings
	logger   *logging.Logger

	store    *robot.Store
	watcher  *watcher.Watcher
	poller   *device.Poller
	builder  *commands.Builder
	workers  *process.Registry
	sessions *session.Manager
	metrics  *metrics.Registry
	handler  *api.Handler
	mux      *http.ServeMux
}

type appOptions struct {
	// Enumerator replaces serial port discovery; nil uses the OS.
	Enumerator device.Enumerator
	Now        func() time.Time
}

func buildApp(settings config.Settings, logger *logging.Logger, opts appOptions) (*application, error) {
	catalog, err := robot.LoadCatalog(settings.Store.Models)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(settings.Store.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	store, err := robot.Open(settings.Store.Path, robot.Options{
		Catalog: catalog,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	app := &application{
		settings: settings,
		logger:   logger,
		store:    store,
		metrics:  metrics.NewRegistry(),
	}

	fsWatcher, err := watcher.New(watcher.Options{Logger: logger})
	if err != nil {
		logger.Warn("filesystem watcher unavailable", map[string]string{
			"error": err.Error(),
		})
	} else if err := store.Watch(fsWatcher); err != nil {
		logger.Warn("robot store watch failed", map[string]string{
			"path":  store.Path(),
			"error": err.Error(),
		})
		_ = fsWatcher.Close()
	} else {
		app.watcher = fsWatcher
	}

	app.poller = device.NewPoller(device.Options{
		Enumerator: opts.Enumerator,
		Interval:   settings.Devices.PollInterval,
		Logger:     logger,
	})

	app.builder = commands.NewBuilder(settings.Worker.Python, store, catalog)
	stop := process.Options{
		InterruptWait: settings.Stop.InterruptWait,
		TerminateWait: settings.Stop.TerminateWait,
	}
	app.workers = process.NewRegistry(stop)
	resolver := launch.Resolver{Root: settings.Worker.Root}
	if settings.Worker.Root == "" {
		resolver.Candidates = launch.DefaultCandidates()
	}
	app.sessions = session.NewManager(session.Options{
		Builder:     app.builder,
		Environment: resolver,
		MarkerDir:   settings.Worker.MarkerDir,
		Stop:        stop,
		KillWait:    settings.Stop.KillWait,
		Workers:     app.workers,
		Metrics:     app.metrics,
		Logger:      logger,
	})

	mode := settings.Worker.DryRun
	app.handler = &api.Handler{
		Sessions:  app.sessions,
		Robots:    store,
		Ports:     app.poller,
		Metrics:   app.metrics,
		Logger:    logger,
		AuthToken: settings.Server.Token,
		DryRun: func() bool {
			return mode.Resolve(app.builder.Available)
		},
		StartedAt: time.Now().UTC(),
		Now:       opts.Now,
	}
	app.mux = http.NewServeMux()
	api.RegisterRoutes(app.mux, app.handler)

	logger.Info("robot panel assembled", map[string]string{
		"robots":    strconv.Itoa(len(store.List())),
		"models":    fmt.Sprint(catalog.Names()),
		"dry_run":   string(mode),
		"store":     store.Path(),
		"worker":    resolver.WorkerRoot(),
		"python":    settings.Worker.Python,
		"lerobot":   strconv.FormatBool(app.builder.Available()),
		"stop_wait": settings.Stop.InterruptWait.String(),
	})
	return app, nil
}

// shutdownPhases registers teardown that follows the HTTP server shutdown:
// workers first, then the devices and the store. Each phase reports what it
// stopped so the exit log shows whether any worker outlived the panel.
func (app *application) shutdownPhases(coordinator *shutdownCoordinator) {
	coordinator.Add("sessions", func(ctx context.Context) (phaseReport, error) {
		before := app.runningSessions()
		err := app.sessions.Shutdown(ctx)
		return phaseReport{
			"stopped":   strconv.Itoa(before - app.runningSessions()),
			"remaining": strconv.Itoa(app.runningSessions()),
		}, err
	})
	coordinator.Add("workers", func(ctx context.Context) (phaseReport, error) {
		tracked := app.workers.Len()
		err := app.workers.StopAll(ctx)
		return phaseReport{
			"tracked":   strconv.Itoa(tracked),
			"remaining": strconv.Itoa(app.workers.Len()),
		}, err
	})
	coordinator.Add("devices", func(context.Context) (phaseReport, error) {
		app.poller.Stop()
		return phaseReport{"ports": strconv.Itoa(len(app.poller.Snapshot()))}, nil
	})
	coordinator.Add("store", func(context.Context) (phaseReport, error) {
		report := phaseReport{"robots": strconv.Itoa(len(app.store.List()))}
		var err error
		if app.watcher != nil {
			err = app.watcher.Close()
		}
		return report, errors.Join(app.store.Close(), err)
	})
}

func (app *application) runningSessions() int {
	running := 0
	for _, snapshot := range app.sessions.List("") {
		if snapshot.Running {
			running++
		}
	}
	return running
}
