package app

import (
	"sync/atomic"

	"github.com/nightvault/nightvault/internal/server"
)

// Health is the readiness flag behind /readyz. It starts unready; Start flips
// it once the server is listening and clears it when shutdown begins.
type Health struct {
	ready atomic.Bool
}

var _ server.ReadinessChecker = (*Health)(nil)

// NewHealth returns an unready Health.
func NewHealth() *Health {
	return &Health{}
}

// SetReady records the readiness state.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the last recorded readiness state.
func (h *Health) IsReady() bool {
	return h.ready.Load()
}
