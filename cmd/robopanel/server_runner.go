package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"robopanel/internal/logging"
)

const httpServerShutdownTimeout = 5 * time.Second

// ManagedServer is a listener the runner starts and later drains.
type ManagedServer struct {
	Name     string
	Serve    func() error
	Shutdown func(context.Context) error
}

type ServerRunner struct {
	Logger          *logging.Logger
	ShutdownTimeout time.Duration
}

// ServerError names the server whose Serve call failed.
type ServerError struct {
	Server string
	Err    error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s server: %v", e.Server, e.Err)
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// Run serves until stop ends or a server returns, then drains every server.
// A server that stopped with http.ErrServerClosed counts as a clean stop.
func (runner *ServerRunner) Run(stop context.Context, servers ...ManagedServer) error {
	results := make(chan *ServerError, len(servers))
	serving := 0
	for _, server := range servers {
		if server.Serve == nil {
			continue
		}
		serving++
		go func() {
			results <- &ServerError{Server: server.Name, Err: server.Serve()}
		}()
	}
	if serving == 0 {
		return nil
	}

	var first *ServerError
	select {
	case first = <-results:
		serving--
		runner.report(first)
	case <-stop.Done():
	}

	timeout := runner.shutdownTimeout()
	drainCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, server := range servers {
		if server.Shutdown == nil {
			continue
		}
		if err := server.Shutdown(drainCtx); err != nil {
			runner.warn(fmt.Sprintf("%s server shutdown failed", server.Name), err)
		}
	}

	deadline := time.After(timeout)
	for ; serving > 0; serving-- {
		select {
		case result := <-results:
			runner.report(result)
		case <-deadline:
			serving = 0
		}
	}

	if first == nil || first.Err == nil || errors.Is(first.Err, http.ErrServerClosed) {
		return nil
	}
	return first
}

func (runner *ServerRunner) shutdownTimeout() time.Duration {
	if runner.ShutdownTimeout <= 0 {
		return httpServerShutdownTimeout
	}
	return runner.ShutdownTimeout
}

func (runner *ServerRunner) report(result *ServerError) {
	if result == nil || result.Err == nil || errors.Is(result.Err, http.ErrServerClosed) {
		return
	}
	if runner.Logger == nil {
		return
	}
	runner.Logger.Error("server stopped", map[string]string{
		"server": result.Server,
		"error":  result.Err.Error(),
	})
}

func (runner *ServerRunner) warn(message string, err error) {
	if runner.Logger == nil {
		return
	}
	runner.Logger.Warn(message, map[string]string{"error": err.Error()})
}
