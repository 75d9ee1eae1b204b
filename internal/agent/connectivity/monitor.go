// Package connectivity tracks whether the remote API is reachable. The
// upload worker subscribes so a drain starts as soon as the link comes
// back instead of waiting for the next tick.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/ksolodov/fieldreporter/internal/logging"
)

// Pinger is the liveness probe, normally the remote API client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor reports the current link state and notifies on changes.
type Monitor interface {
	// Online returns the last observed state.
	Online() bool

	// Subscribe returns a channel that receives the new state on every
	// transition. The channel is buffered; a slow reader misses
	// intermediate flips, not the latest state.
	Subscribe() <-chan bool
}

// PingMonitor probes the server on a fixed interval. It starts
// pessimistic: the state stays offline until the first probe succeeds.
type PingMonitor struct {
	pinger      Pinger
	logger      logging.Logger
	interval    time.Duration
	pingTimeout time.Duration

	mu     sync.Mutex
	online bool
	subs   []chan bool
}

func NewPingMonitor(pinger Pinger, logger logging.Logger, interval time.Duration) *PingMonitor {
	return &PingMonitor{
		pinger:      pinger,
		logger:      logger,
		interval:    interval,
		pingTimeout: 3 * time.Second,
	}
}

func (m *PingMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *PingMonitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Run probes until ctx is cancelled. The first probe fires immediately.
func (m *PingMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ticker.C:
			m.probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *PingMonitor) probe(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, m.pingTimeout)
	err := m.pinger.Ping(pingCtx)
	cancel()

	m.set(ctx, err == nil)
}

func (m *PingMonitor) set(ctx context.Context, online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	var subs []chan bool
	if changed {
		subs = append(subs, m.subs...)
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	if online {
		m.logger.Info(ctx, "connectivity restored")
	} else {
		m.logger.Warn(ctx, "connectivity lost")
	}

	for _, ch := range subs {
		select {
		case ch <- online:
		default:
			// drop the stale value so the latest state wins
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- online:
			default:
			}
		}
	}
}
