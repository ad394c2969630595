package stratum

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
)

// defaultIgnoredRequestWindow is the default pending-request expiry (spec §3
// "ignored-request window").
const defaultIgnoredRequestWindow = 10 * time.Minute

// ResponseVariant is the opaque handle a pending request registers: the
// ResponseKind the eventual response should be dispatched as, and an
// optional parser that builds the concrete response variant from the
// generic Response. A nil Parser means the generic Response is itself the
// dispatched value (REDESIGN FLAG "Reflective construction of message
// variants" — explicit functions in place of type handles).
type ResponseVariant struct {
	Kind   ResponseKind
	Parser ResponseParser
}

// ResponseKind identifies a registered Response variant.
type ResponseKind string

// ResponseParser builds a concrete response variant from the generic,
// already-parsed Response.
type ResponseParser func(generic *Response) (interface{}, error)

// ExpiryCallback observes a pending request that expired before a matching
// response arrived. The default callback logs at error level.
type ExpiryCallback func(id Identifier, variant ResponseVariant)

// PendingRequestTable is the request correlation table (spec §3/§4.3): a
// mapping from request identifier to expected response variant, backed by
// a write-time-expiring cache with an eviction callback.
//
// Built on github.com/jellydator/ttlcache/v3 rather than a hand-rolled
// map+timer — the library is exactly an expireAfterWrite cache with an
// OnEviction hook, the shape spec §9's open question calls for. Every Get
// on the cache passes ttlcache.WithDisableTouchOnHit(), so a lookup never
// refreshes an entry's TTL: this implements write-time expiry, per spec
// §9's decision to follow the write-time reading.
type PendingRequestTable struct {
	cache  *ttlcache.Cache[Identifier, ResponseVariant]
	window time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	started bool
}

// NewPendingRequestTable constructs a table with the given ignored-request
// window (pass 0 for the default of 10 minutes) and expiry callback.
func NewPendingRequestTable(window time.Duration, onExpire ExpiryCallback, logger *zap.Logger) *PendingRequestTable {
	if window <= 0 {
		window = defaultIgnoredRequestWindow
	}
	if logger == nil {
		logger = defaultLogger()
	}
	if onExpire == nil {
		onExpire = func(id Identifier, variant ResponseVariant) {
			logger.Error("pending request expired", zap.String("id", string(id)), zap.String("kind", string(variant.Kind)))
		}
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[Identifier, ResponseVariant](window),
	)
	cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[Identifier, ResponseVariant]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		onExpire(item.Key(), item.Value())
	})

	t := &PendingRequestTable{cache: cache, window: window, logger: logger}
	return t
}

// Start runs the cache's background expiry loop. Call once; safe to omit
// for tests that drive expiry manually via the underlying cache.
func (t *PendingRequestTable) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	go t.cache.Start()
}

// Stop halts the background expiry loop. A no-op if Start was never called;
// safe to call again after a subsequent Start (e.g. a ConnectionState
// re-entered after moveToState).
func (t *PendingRequestTable) Stop() {
	t.mu.Lock()
	wasStarted := t.started
	t.started = false
	t.mu.Unlock()
	if !wasStarted {
		return
	}
	t.cache.Stop()
}

// Register inserts a pending request. Returns ErrDuplicatePendingRequest if
// id is already pending (spec §3 invariant: an id may be pending at most
// once concurrently).
func (t *PendingRequestTable) Register(id Identifier, variant ResponseVariant) error {
	if item := t.cache.Get(id, ttlcache.WithDisableTouchOnHit()); item != nil {
		return ErrDuplicatePendingRequest
	}
	t.cache.Set(id, variant, ttlcache.DefaultTTL)
	return nil
}

// Resolve looks up and removes the pending entry for id, returning
// (variant, true) on a hit, or (zero, false) if id has no pending request
// (spec §4.3 "unsolicited response").
//
// The library only removes entries on expiry or explicit deletion, so
// Resolve must delete the entry itself after a successful Get.
func (t *PendingRequestTable) Resolve(id Identifier) (ResponseVariant, bool) {
	item := t.cache.Get(id, ttlcache.WithDisableTouchOnHit())
	if item == nil {
		return ResponseVariant{}, false
	}
	variant := item.Value()
	t.cache.Delete(id)
	return variant, true
}

// Len reports the number of currently-pending requests.
func (t *PendingRequestTable) Len() int {
	return t.cache.Len()
}
