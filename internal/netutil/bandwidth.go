// Package netutil provides bandwidth shaping and per-host congestion
// control, adapted from the teacher's internal/network package
// (bandwidth.go, congestion.go), generalized from the teacher's global
// task-priority model to the scheduler's folder/global rate scopes.
package netutil

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Manager hands out *rate.Limiter handles scoped globally or per
// folder, with zero overhead when a scope is unlimited.
type Manager struct {
	global       *rate.Limiter
	globalSet    atomic.Bool
	mu           sync.RWMutex
	folderLimits map[string]*rate.Limiter
}

// NewManager builds a Manager with no limits configured.
func NewManager() *Manager {
	return &Manager{
		global:       rate.NewLimiter(rate.Inf, 0),
		folderLimits: make(map[string]*rate.Limiter),
	}
}

// SetGlobalLimit sets the aggregate bytes/sec ceiling across every
// download. 0 disables the limit.
func (m *Manager) SetGlobalLimit(bytesPerSec int) {
	if bytesPerSec <= 0 {
		m.globalSet.Store(false)
		m.global.SetLimit(rate.Inf)
		return
	}
	m.globalSet.Store(true)
	m.global.SetLimit(rate.Limit(bytesPerSec))
	m.global.SetBurst(bytesPerSec)
}

// SetFolderLimit sets a per-folder bytes/sec ceiling. 0 removes it.
func (m *Manager) SetFolderLimit(folderID string, bytesPerSec int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bytesPerSec <= 0 {
		delete(m.folderLimits, folderID)
		return
	}
	l := rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec)
	m.folderLimits[folderID] = l
}

// Wait blocks until n bytes may be consumed under both the global and
// the folder's limiter, returning fast if neither is configured.
func (m *Manager) Wait(ctx context.Context, folderID string, n int) error {
	m.mu.RLock()
	folderLimiter := m.folderLimits[folderID]
	m.mu.RUnlock()

	// WaitN rejects requests larger than the limiter's burst, so n is
	// consumed in burst-sized steps.
	waitN := func(l *rate.Limiter) error {
		for left := n; left > 0; {
			step := left
			if b := l.Burst(); b > 0 && step > b {
				step = b
			}
			if err := l.WaitN(ctx, step); err != nil {
				return err
			}
			left -= step
		}
		return nil
	}

	if folderLimiter != nil {
		if err := waitN(folderLimiter); err != nil {
			return err
		}
	}
	if !m.globalSet.Load() {
		return nil
	}
	return waitN(m.global)
}

// LimiterFor returns one limiter usable directly as
// httpfetch.StreamParams.Limiter for the hot read loop: the folder
// limiter when present, otherwise the global limiter when one is set,
// otherwise nil. The two are not combined; Wait is the call that
// enforces both scopes.
func (m *Manager) LimiterFor(folderID string) *rate.Limiter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if l, ok := m.folderLimits[folderID]; ok {
		return l
	}
	if m.globalSet.Load() {
		return m.global
	}
	return nil
}

