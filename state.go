package stratum

import (
	"sync"

	"go.uber.org/zap"
)

// RequestHandler handles a dispatched inbound request.
type RequestHandler func(in *InboundRequest)

// ResponseHandler handles a dispatched inbound response.
type ResponseHandler func(in *InboundResponse)

// ConnectionState is a named conversational phase: it owns a fresh
// Marshaller scoping which request methods and response kinds are legal
// while it is active, and dispatch tables binding each to a handler
// (spec §3/§4.2).
//
// States form a hierarchy via an explicit parent reference rather than
// classical inheritance (REDESIGN FLAG "Per-state marshaller with
// chain-of-responsibility dispatch"): processRequest/processResponse
// consult the parent's dispatch table when this state does not itself
// handle a message, returning a boolean handled/not-handled signal.
type ConnectionState struct {
	Name   string
	parent *ConnectionState

	marshaller *Marshaller
	logger     *zap.Logger

	mu               sync.RWMutex
	requestHandlers  map[RequestKind]RequestHandler
	responseHandlers map[ResponseKind]ResponseHandler

	transport *Transport
}

// ConnectionStateOption configures a ConnectionState at construction time.
type ConnectionStateOption func(*connectionStateConfig)

type connectionStateConfig struct {
	logger        *zap.Logger
	marshallerOpt []MarshallerOption
}

// WithStateLogger sets the logger used for dispatch logging.
func WithStateLogger(logger *zap.Logger) ConnectionStateOption {
	return func(c *connectionStateConfig) { c.logger = logger }
}

// WithStateMarshallerOptions forwards options to the state's owned
// Marshaller.
func WithStateMarshallerOptions(opts ...MarshallerOption) ConnectionStateOption {
	return func(c *connectionStateConfig) { c.marshallerOpt = append(c.marshallerOpt, opts...) }
}

// NewConnectionState constructs a state with a fresh Marshaller. parent may
// be nil (no chain-of-responsibility fallback).
func NewConnectionState(name string, parent *ConnectionState, opts ...ConnectionStateOption) *ConnectionState {
	cfg := &connectionStateConfig{logger: defaultLogger()}
	for _, opt := range opts {
		opt(cfg)
	}
	return &ConnectionState{
		Name:             name,
		parent:           parent,
		marshaller:       NewMarshaller(cfg.marshallerOpt...),
		logger:           cfg.logger,
		requestHandlers:  make(map[RequestKind]RequestHandler),
		responseHandlers: make(map[ResponseKind]ResponseHandler),
	}
}

// Marshaller returns the instance to be used by readers/writers while this
// state is active (spec §4.2).
func (s *ConnectionState) Marshaller() *Marshaller { return s.marshaller }

// RegisterRequestHandler teaches this state's marshaller that method
// deserialises to kind (via parser, which may be nil to use the generic
// Request), and binds kind to handler. A duplicate registration of either
// the method or the kind without replace is rejected.
func (s *ConnectionState) RegisterRequestHandler(method string, kind RequestKind, parser RequestParser, handler RequestHandler, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requestHandlers[kind]; exists && !replace {
		return ErrDuplicateHandler
	}
	if err := s.marshaller.RegisterMethod(method, kind, parser, replace); err != nil {
		return err
	}
	s.requestHandlers[kind] = handler
	return nil
}

// RegisterResponseHandler binds kind to handler. This has no marshaller-
// side effect — responses are keyed by the pending-request table, not by a
// method-name lookup (spec §4.2).
func (s *ConnectionState) RegisterResponseHandler(kind ResponseKind, handler ResponseHandler, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.responseHandlers[kind]; exists && !replace {
		return ErrDuplicateHandler
	}
	s.responseHandlers[kind] = handler
	return nil
}

// processRequest looks up a handler keyed by the request's kind, invokes
// it, and returns true iff a handler was found — falling back to the
// parent state's dispatch table otherwise (spec §4.2).
func (s *ConnectionState) processRequest(in *InboundRequest) bool {
	s.mu.RLock()
	handler, ok := s.requestHandlers[in.Kind]
	s.mu.RUnlock()
	if ok {
		handler(in)
		return true
	}
	if s.parent != nil {
		return s.parent.processRequest(in)
	}
	return false
}

// processResponse is symmetric to processRequest for Response variants.
func (s *ConnectionState) processResponse(in *InboundResponse) bool {
	s.mu.RLock()
	handler, ok := s.responseHandlers[in.Kind]
	s.mu.RUnlock()
	if ok {
		handler(in)
		return true
	}
	if s.parent != nil {
		return s.parent.processResponse(in)
	}
	return false
}

// OnRequest implements RequestListener, dispatching through processRequest
// and logging unhandled messages (spec §7 "Unhandled method" policy at the
// state level; marshaller-level unknown methods are already malformed
// before reaching here).
func (s *ConnectionState) OnRequest(in *InboundRequest) {
	if !s.processRequest(in) {
		s.logger.Warn("unhandled request", zap.String("kind", string(in.Kind)))
	}
}

// OnResponse implements ResponseListener, symmetric to OnRequest.
func (s *ConnectionState) OnResponse(in *InboundResponse) {
	if !s.processResponse(in) {
		s.logger.Warn("unhandled response", zap.String("kind", string(in.Kind)))
	}
}

// start subscribes this state's listeners to the transport's broadcast
// channels and starts this state's marshaller's correlation-table sweep
// (spec §4.2 "start()", spec §4.3's background expiry), so a request sent
// while this state is active is evicted and reported even if its peer
// never answers.
func (s *ConnectionState) start(t *Transport) {
	s.transport = t
	t.RegisterRequestListener(s)
	t.RegisterResponseListener(s)
	s.marshaller.Start()
}

// end unsubscribes this state's listeners and stops this state's
// marshaller's correlation-table sweep (spec §4.2 "end()").
func (s *ConnectionState) end(t *Transport) {
	t.UnregisterRequestListener(s)
	t.UnregisterResponseListener(s)
	s.marshaller.Stop()
	s.transport = nil
}

// MoveToState asks the transport this state is currently attached to, to
// transition to next. After this call returns, this state will receive no
// further messages from that transport (spec §4.2 "moveToState").
func (s *ConnectionState) MoveToState(next *ConnectionState) error {
	if s.transport == nil {
		return ErrNotConnected
	}
	return s.transport.SetState(next)
}

var (
	_ RequestListener  = (*ConnectionState)(nil)
	_ ResponseListener = (*ConnectionState)(nil)
)
