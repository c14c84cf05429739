/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"pgedge-nl2sql/internal/logging"
)

// minSweepInterval bounds how often idle sessions are swept
const minSweepInterval = time.Second

// Manager keeps the server-side controllers keyed by session ID
type Manager struct {
	deps        Deps
	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Controller
}

// NewManager creates a manager; idleTimeout <= 0 disables eviction
func NewManager(deps Deps, idleTimeout time.Duration) *Manager {
	return &Manager{
		deps:        deps,
		idleTimeout: idleTimeout,
		now:         time.Now,
		sessions:    make(map[string]*Controller),
	}
}

// Get returns the controller for id
func (m *Manager) Get(id string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[id]
	return c, ok
}

// GetOrCreate returns the controller for id, creating a session with a new
// ID when id is empty or unknown
func (m *Manager) GetOrCreate(id string) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.sessions[id]; ok && id != "" {
		return c
	}

	c := NewController(uuid.NewString(), m.deps)
	c.now = m.now
	c.touch()
	m.sessions[c.ID()] = c
	m.deps.Metrics.SetActiveSessions(len(m.sessions))
	logging.Debug("session_created", "session", c.ID())
	return c
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// EvictIdle removes sessions idle for longer than the idle timeout. Busy
// sessions are kept. It returns the number removed.
func (m *Manager) EvictIdle() int {
	if m.idleTimeout <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.idleTimeout)
	removed := 0
	for id, c := range m.sessions {
		if c.Busy() || c.LastActive().After(cutoff) {
			continue
		}
		delete(m.sessions, id)
		removed++
	}
	if removed > 0 {
		m.deps.Metrics.SetActiveSessions(len(m.sessions))
		logging.Info("sessions_evicted", "count", removed, "remaining", len(m.sessions))
	}
	return removed
}

// Run sweeps idle sessions until ctx is cancelled
func (m *Manager) Run(ctx context.Context) error {
	if m.idleTimeout <= 0 {
		<-ctx.Done()
		return nil
	}

	interval := m.idleTimeout / 2
	if interval < minSweepInterval {
		interval = minSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.EvictIdle()
		}
	}
}
