package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/campusfeed/syncd/internal/events"
)

// Prober reports whether the platform API is currently reachable.
type Prober func(ctx context.Context) bool

// Monitor tracks online/offline state for the engine. Transitions are
// published on the event bus; every network-issuing component checks
// IsOnline before attempting a call.
type Monitor struct {
	bus    *events.Bus
	logger *slog.Logger

	mu     sync.RWMutex
	online bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewMonitor constructs a monitor that starts in the online state.
func NewMonitor(bus *events.Bus, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{bus: bus, logger: logger, online: true}
}

// IsOnline reports the current connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline records a connectivity transition. Repeated reports of the same
// state are ignored. Callers include the probe loop and the API client, which
// reports observed transport failures and successes.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "online", online)
	if m.bus != nil {
		m.bus.Publish(events.TopicConnectivity, events.ConnectivityChanged{Online: online})
		if !online {
			m.bus.Publish(events.TopicNotice, events.Notice{
				Kind:    events.NoticeOffline,
				Message: "offline, showing cached data",
				Sticky:  true,
			})
		}
	}
}

// StartProbing launches a background loop that re-evaluates reachability on
// the given interval. It is the daemon analog of the platform online/offline
// signals a browser would deliver.
func (m *Monitor) StartProbing(interval time.Duration, probe Prober) {
	if probe == nil || interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, probeCancel := context.WithTimeout(ctx, interval)
				m.SetOnline(probe(probeCtx))
				probeCancel()
			}
		}
	}()
}

// Stop terminates the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.once.Do(func() {
		m.mu.Lock()
		cancel := m.cancel
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
	m.wg.Wait()
}
