package device

import (
	"context"
	"maps"
	"strconv"
	"strings"
	"sync"
	"time"

	"robopanel/internal/logging"
	"robopanel/internal/robot"
)

const DefaultInterval = 2 * time.Second

type Options struct {
	Enumerator Enumerator
	Interval   time.Duration
	Logger     *logging.Logger
}

// Poller keeps a snapshot of the serial ports present on the host. A failed
// enumeration yields an empty snapshot rather than an error.
type Poller struct {
	enumerator Enumerator
	interval   time.Duration
	logger     *logging.Logger

	mu      sync.RWMutex
	ports   map[string]string
	updated time.Time

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(opts Options) *Poller {
	enumerator := opts.Enumerator
	if enumerator == nil {
		enumerator = SerialEnumerator{}
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Poller{
		enumerator: enumerator,
		interval:   interval,
		logger:     logger.Component("devices"),
		ports:      map[string]string{},
	}
}

// Start polls immediately and then every interval until ctx ends or Stop is
// called. Calling Start on a running poller has no effect.
func (p *Poller) Start(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done

	p.Refresh()
	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Refresh()
			}
		}
	}()
}

func (p *Poller) Stop() {
	p.runMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Refresh enumerates ports once and replaces the snapshot.
func (p *Poller) Refresh() map[string]string {
	ports, err := p.enumerator.Ports()
	if err != nil {
		p.logger.Debug("serial enumeration failed", map[string]string{"error": err.Error()})
		ports = map[string]string{}
	}
	if ports == nil {
		ports = map[string]string{}
	}

	p.mu.Lock()
	changed := !maps.Equal(p.ports, ports)
	p.ports = ports
	p.updated = time.Now().UTC()
	p.mu.Unlock()

	if changed {
		p.logger.Info("serial ports changed", map[string]string{"ports": strconv.Itoa(len(ports))})
	}
	return maps.Clone(ports)
}

func (p *Poller) Snapshot() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.ports)
}

func (p *Poller) Updated() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updated
}

// Decorate sets the robot's status from the port snapshot. An online robot
// gets last_seen set to now; the boolean reports whether it was online.
func Decorate(r robot.Robot, ports map[string]string, now time.Time) (robot.Robot, bool) {
	online := present(ports, r.ComPort)
	if online {
		r.Status = robot.StatusOnline
		seen := now.UTC()
		r.LastSeen = &seen
	} else {
		r.Status = robot.StatusOffline
	}
	return r, online
}

func present(ports map[string]string, port string) bool {
	port = strings.TrimSpace(port)
	if port == "" {
		return false
	}
	if _, ok := ports[port]; ok {
		return true
	}
	for name := range ports {
		if strings.EqualFold(name, port) {
			return true
		}
	}
	return false
}
