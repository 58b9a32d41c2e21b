package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"robopanel/internal/config"
	"robopanel/internal/logging"
	"robopanel/internal/version"
)

const sessionShutdownTimeout = 15 * time.Second

func run(args []string, environ []string, stdout, stderr io.Writer) int {
	flags, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}
	if flags.ShowVersion {
		fmt.Fprintln(stdout, version.GetVersionInfo().String())
		return 0
	}

	settings, err := config.Load(config.LoadOptions{
		Path:      flags.ConfigPath,
		Required:  flags.ConfigSet,
		Environ:   environ,
		Overrides: flags.overrides(),
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	logger := newLogger(settings.Log.Level, stderr)
	defer logger.Close()
	logVersionInfo(logger)

	app, err := buildApp(settings, logger, appOptions{})
	if err != nil {
		logger.Error("startup failed", map[string]string{
			"error": err.Error(),
		})
		return 1
	}

	listener, port, err := listenOnPort(settings.Server.Port)
	if err != nil {
		logger.Error("listen failed", map[string]string{
			"port":  strconv.Itoa(settings.Server.Port),
			"error": err.Error(),
		})
		return 1
	}
	server := &http.Server{
		Handler:           app.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("robopanel listening", map[string]string{
		"addr":    listener.Addr().String(),
		"port":    strconv.Itoa(port),
		"version": version.Version,
	})

	stopCtx, stopCancel := context.WithCancel(context.Background())
	defer stopCancel()
	app.poller.Start(stopCtx)

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	stopWatching := watchShutdownSignals(logger, stopCancel, signals, app.workers.Len)
	defer stopWatching()

	coordinator := newShutdownCoordinator(logger)
	app.shutdownPhases(coordinator)

	runner := &ServerRunner{
		Logger:          logger,
		ShutdownTimeout: httpServerShutdownTimeout,
	}
	serverErr := runner.Run(stopCtx, ManagedServer{
		Name: "http",
		Serve: func() error {
			return server.Serve(listener)
		},
		Shutdown: server.Shutdown,
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), sessionShutdownTimeout)
	defer cancel()
	if err := coordinator.Run(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", map[string]string{
			"error": err.Error(),
		})
	}
	logger.Info("robopanel stopped", summary(coordinator.Results()))
	if serverErr != nil {
		return 1
	}
	return 0
}

func newLogger(rawLevel string, output io.Writer) *logging.Logger {
	level, ok := logging.ParseLevel(rawLevel)
	if !ok {
		level = logging.LevelInfo
	}
	return logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), level, output)
}

func logVersionInfo(logger *logging.Logger) {
	info := version.GetVersionInfo()
	fields := map[string]string{
		"version":    info.Version,
		"go_version": info.GoVersion,
	}
	if info.GitCommit != "" {
		fields["commit"] = info.GitCommit
	}
	if info.Built != "" {
		fields["built"] = info.Built
	}
	logger.Info("robopanel starting", fields)
}

func listenOnPort(port int) (net.Listener, int, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, 0, err
	}
	tcpAddress, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		_ = listener.Close()
		return nil, 0, fmt.Errorf("unexpected listener address: %T", listener.Addr())
	}
	return listener, tcpAddress.Port, nil
}
