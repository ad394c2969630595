package stratum

import (
	"time"

	"go.uber.org/zap"
)

// This file collects the Marshaller-facing functional options (spec §4.8).
// Transport- and ConnectionState-facing options live alongside their
// owners in transport.go and state.go, following the teacher's convention
// of an Options func(*Conn) pattern rather than a config struct or
// environment parsing — this is a library, not a service.

// WithMarshallerLogger sets the logger a Marshaller (and the
// PendingRequestTable it owns) uses.
func WithMarshallerLogger(logger *zap.Logger) MarshallerOption {
	return func(c *marshallerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithIgnoredRequestWindow overrides the correlation table's pending-
// request expiry (spec §3 "ignored-request window", default 10 minutes).
func WithIgnoredRequestWindow(d time.Duration) MarshallerOption {
	return func(c *marshallerConfig) { c.ignoredRequestWindow = d }
}

// WithExpiryCallback overrides the default logging expiry callback invoked
// when a pending request times out unanswered (spec §4.3).
func WithExpiryCallback(cb ExpiryCallback) MarshallerOption {
	return func(c *marshallerConfig) { c.onExpire = cb }
}
