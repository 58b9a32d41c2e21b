package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"robopanel/internal/logging"
)

// phaseReport is what a teardown phase has to say about the state it left
// behind, such as how many workers it stopped.
type phaseReport map[string]string

type shutdownPhase struct {
	name string
	stop func(context.Context) (phaseReport, error)
}

type phaseResult struct {
	Name     string
	Duration time.Duration
	Report   phaseReport
	Err      error
}

// shutdownCoordinator runs the registered phases once, in order, and keeps
// going past failures.
type shutdownCoordinator struct {
	logger  *logging.Logger
	once    sync.Once
	phases  []shutdownPhase
	results []phaseResult
}

func newShutdownCoordinator(logger *logging.Logger) *shutdownCoordinator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &shutdownCoordinator{logger: logger.Component("shutdown")}
}

func (coordinator *shutdownCoordinator) Add(name string, stop func(context.Context) (phaseReport, error)) {
	if coordinator == nil || stop == nil {
		return
	}
	coordinator.phases = append(coordinator.phases, shutdownPhase{name: name, stop: stop})
}

// Run executes the phases and returns their joined errors. Later calls return
// the first run's error without repeating any phase.
func (coordinator *shutdownCoordinator) Run(ctx context.Context) error {
	if coordinator == nil {
		return nil
	}
	coordinator.once.Do(func() {
		for _, phase := range coordinator.phases {
			coordinator.results = append(coordinator.results, coordinator.runPhase(ctx, phase))
		}
	})
	var err error
	for _, result := range coordinator.results {
		err = errors.Join(err, result.Err)
	}
	return err
}

// Results lists what each phase reported, in run order.
func (coordinator *shutdownCoordinator) Results() []phaseResult {
	if coordinator == nil {
		return nil
	}
	return append([]phaseResult(nil), coordinator.results...)
}

func (coordinator *shutdownCoordinator) runPhase(ctx context.Context, phase shutdownPhase) phaseResult {
	started := time.Now()
	report, err := phase.stop(ctx)
	result := phaseResult{Name: phase.name, Duration: time.Since(started), Report: report, Err: err}

	fields := make(map[string]string, len(report)+3)
	for key, value := range report {
		fields[key] = value
	}
	fields["phase"] = phase.name
	fields["duration"] = result.Duration.Round(time.Millisecond).String()
	if err != nil {
		fields["error"] = err.Error()
		coordinator.logger.Warn("shutdown phase failed", fields)
		return result
	}
	coordinator.logger.Info("shutdown phase finished", fields)
	return result
}

// summary flattens the phase reports into "<phase>.<key>" fields for the
// final exit log line.
func summary(results []phaseResult) map[string]string {
	fields := map[string]string{}
	for _, result := range results {
		for key, value := range result.Report {
			fields[result.Name+"."+key] = value
		}
		if result.Err != nil {
			fields[result.Name+".failed"] = "true"
		}
	}
	return fields
}
