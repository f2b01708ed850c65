package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/crewcore/crew/pkg/logger"
)

// CoordinatorWork is one piece of pending cross-bot coordination work the
// leader's coordinator tick found (spec §4.6: "an insight waiting for
// distribution; a decision awaiting a vote").
type CoordinatorWork func(ctx context.Context) error

// Manager registers all bots' Services, starts/stops them together, and
// runs the leader's cross-bot coordinator tick on its own interval
// (spec §4.6 MultiHeartbeatManager).
type Manager struct {
	mu       sync.Mutex
	services map[string]*Service

	leaderInterval time.Duration
	coordinatorFn  CoordinatorWork

	stop chan struct{}
	done chan struct{}
}

// NewManager builds an empty Manager. leaderInterval and coordinatorFn
// configure the global coordinator-tick loop; pass a zero interval to
// disable it.
func NewManager(leaderInterval time.Duration, coordinatorFn CoordinatorWork) *Manager {
	return &Manager{
		services:       map[string]*Service{},
		leaderInterval: leaderInterval,
		coordinatorFn:  coordinatorFn,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Register adds a bot's Service to the managed set.
func (m *Manager) Register(bot string, svc *Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[bot] = svc
}

// Service returns a registered bot's Service, if any.
func (m *Manager) Service(bot string) (*Service, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	svc, ok := m.services[bot]
	return svc, ok
}

// StartAll starts every registered bot's loop plus the coordinator tick.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.Lock()
	services := make([]*Service, 0, len(m.services))
	for _, svc := range m.services {
		services = append(services, svc)
	}
	m.mu.Unlock()

	for _, svc := range services {
		svc.Start(ctx)
	}

	if m.leaderInterval > 0 && m.coordinatorFn != nil {
		go m.coordinatorLoop(ctx)
	} else {
		close(m.done)
	}
}

// StopAll stops every registered bot's loop and the coordinator tick.
func (m *Manager) StopAll() {
	m.mu.Lock()
	services := make([]*Service, 0, len(m.services))
	for _, svc := range m.services {
		services = append(services, svc)
	}
	m.mu.Unlock()

	for _, svc := range services {
		svc.Stop()
	}

	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	<-m.done
}

func (m *Manager) coordinatorLoop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.leaderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			if err := m.coordinatorFn(ctx); err != nil {
				logger.WarnCF("heartbeat", "coordinator tick failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}
