package main

import (
	"context"
	"os"
	"strconv"
	"sync/atomic"

	"robopanel/internal/logging"
)

// watchShutdownSignals cancels on the first signal. Later signals do not cut
// the worker stop sequence short; the first of them is logged together with
// the number of workers still being stopped, as reported by pending.
func watchShutdownSignals(logger *logging.Logger, shutdownCancel context.CancelFunc, signalCh <-chan os.Signal, pending func() int) func() {
	if signalCh == nil {
		return func() {}
	}
	if logger == nil {
		logger = logging.Discard()
	}

	done := make(chan struct{})
	var received atomic.Int32

	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signalCh:
				if !ok {
					return
				}
				fields := map[string]string{}
				if sig != nil {
					fields["signal"] = sig.String()
				}
				switch received.Add(1) {
				case 1:
					logger.Info("shutdown signal received", fields)
					if shutdownCancel != nil {
						shutdownCancel()
					}
				case 2:
					if pending != nil {
						fields["workers"] = strconv.Itoa(pending())
					}
					logger.Warn("workers still stopping; ignoring signal", fields)
				}
			}
		}
	}()

	return func() {
		close(done)
	}
}
