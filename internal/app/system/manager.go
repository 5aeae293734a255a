package system

import (
	"context"
	"fmt"

	"github.com/verse-social/verse/pkg/logger"
)

// Manager starts registered services in order and stops them in reverse.
type Manager struct {
	services []Service
	started  []Service
	log      *logger.Logger
}

// NewManager constructs a service manager.
func NewManager(log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault("system")
	}
	return &Manager{log: log}
}

// Register appends a service to the start order.
func (m *Manager) Register(s Service) {
	m.services = append(m.services, s)
}

// Start starts every registered service. On failure, already-started
// services are stopped before returning.
func (m *Manager) Start(ctx context.Context) error {
	for _, s := range m.services {
		if err := s.Start(ctx); err != nil {
			m.log.WithError(err).WithField("service", s.Name()).Error("service failed to start")
			_ = m.Stop(ctx)
			return fmt.Errorf("start %s: %w", s.Name(), err)
		}
		m.started = append(m.started, s)
		m.log.WithField("service", s.Name()).Info("service started")
	}
	return nil
}

// Stop stops started services in reverse order. The first error is returned
// but every service gets a stop attempt.
func (m *Manager) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(m.started) - 1; i >= 0; i-- {
		s := m.started[i]
		if err := s.Stop(ctx); err != nil {
			m.log.WithError(err).WithField("service", s.Name()).Error("service failed to stop")
			if firstErr == nil {
				firstErr = fmt.Errorf("stop %s: %w", s.Name(), err)
			}
			continue
		}
		m.log.WithField("service", s.Name()).Info("service stopped")
	}
	m.started = nil
	return firstErr
}
