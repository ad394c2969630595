// Package tcpserver is a reference TCP accept loop and connection registry
// wiring the core engine up as an embedded protocol: each accepted socket
// becomes a stratum.Transport bound to a fresh post-connect
// stratum.ConnectionState, registered in an idle-evicting registry so a
// long-silent connection is reclaimed (spec.md §4.5's "surrounding
// collaborator", not part of the core's own contract).
package tcpserver

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/stratumrpc/stratum"
)

// defaultIdleTimeout is the idle window named in spec.md §4.5.
const defaultIdleTimeout = 5 * time.Minute

// Registry tracks live connections by ConnectionID, evicting (and closing)
// any connection that has gone silent for the idle timeout.
//
// Unlike the core's own PendingRequestTable, this cache keeps ttlcache's
// default touch-on-hit behaviour (no WithDisableTouchOnHit anywhere), so the
// Get in Touch refreshes a connection's idle window on inbound traffic,
// where the correlation table deliberately wants write-time-only expiry
// instead.
type Registry struct {
	cache  *ttlcache.Cache[string, *stratum.Transport]
	logger *zap.Logger
}

// NewRegistry constructs a registry with the given idle timeout (0 for the
// 5-minute default).
func NewRegistry(idleTimeout time.Duration, logger *zap.Logger) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, *stratum.Transport](idleTimeout),
	)
	cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *stratum.Transport]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		logger.Info("evicting idle connection", zap.String("connection_id", item.Key()))
		_ = item.Value().Close()
	})

	return &Registry{cache: cache, logger: logger}
}

// Start runs the registry's background eviction loop.
func (r *Registry) Start() { go r.cache.Start() }

// Stop halts the background eviction loop.
func (r *Registry) Stop() { r.cache.Stop() }

// Add assigns a new ConnectionID to t and registers it, returning the id.
func (r *Registry) Add(t *stratum.Transport) string {
	id := uuid.NewString()
	t.ConnectionID = id
	r.cache.Set(id, t, ttlcache.DefaultTTL)
	return id
}

// Touch refreshes id's idle window. Server's channel wrapper calls it after
// every Read that returned at least one byte.
func (r *Registry) Touch(id string) {
	r.cache.Get(id)
}

// Remove evicts id without closing its transport (the caller is assumed to
// already be closing it, e.g. from the driver's own read-loop exit).
func (r *Registry) Remove(id string) {
	r.cache.Delete(id)
}

// Len reports the number of currently-registered connections.
func (r *Registry) Len() int {
	return r.cache.Len()
}
