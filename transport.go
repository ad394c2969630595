package stratum

import (
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ByteChannel is the implementation-specific full-duplex byte channel a
// Transport is bound to: a TCP socket, an in-memory pipe, or any other
// stream of LF-framed JSON lines (spec §3 "an implementation-specific byte
// channel").
type ByteChannel interface {
	io.Reader
	io.Writer
	Close() error
}

// Transport is the stateful façade combining a marshaller-aware current
// state with listener registration and the sending primitives (spec §4.4).
// It is created detached, bound to a concrete ByteChannel and a
// post-connect state by a driver, and processes messages until closed. A
// TCP client is single-shot: once closed, it cannot reconnect (Bind may
// only be called once).
type Transport struct {
	mu      sync.Mutex
	state   *ConnectionState
	channel ByteChannel
	closed  bool

	requestListeners  *orderedSet[RequestListener]
	responseListeners *orderedSet[ResponseListener]

	queue *sendQueue
	done  chan struct{}

	ids *IdentifierGenerator

	polled       bool
	pollInterval time.Duration
	logger       *zap.Logger

	// ConnectionID is an opaque token assigned by the surrounding
	// connection registry at accept time (spec §3). The core never reads
	// or interprets it.
	ConnectionID string
}

// TransportOption configures a Transport at construction time.
type TransportOption func(*Transport)

// WithLogger sets the transport's logger (default zap.NewNop()).
func WithLogger(logger *zap.Logger) TransportOption {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithPolled marks this transport as a polled transport, so
// PollForMessages emits a poll request instead of being a no-op.
func WithPolled() TransportOption {
	return func(t *Transport) { t.polled = true }
}

// WithPollInterval sets the interval RunPollLoop waits between automatic
// calls to PollForMessages on a polled transport. Has no effect on direct
// transports.
func WithPollInterval(d time.Duration) TransportOption {
	return func(t *Transport) { t.pollInterval = d }
}

// WithSendQueueCapacity pre-allocates the outbound send queue's backing
// slice, avoiding reallocation for workloads with a known typical depth.
// The queue remains unbounded (spec §4.5 "reference is unbounded") — this
// is a sizing hint, not a limit.
func WithSendQueueCapacity(n int) TransportOption {
	return func(t *Transport) {
		if n > 0 {
			t.queue.items = make([]Message, 0, n)
		}
	}
}

// NewTransport constructs a detached Transport, not yet bound to any
// ByteChannel or ConnectionState.
func NewTransport(opts ...TransportOption) *Transport {
	t := &Transport{
		requestListeners:  newOrderedSet[RequestListener](),
		responseListeners: newOrderedSet[ResponseListener](),
		queue:             newSendQueue(),
		done:              make(chan struct{}),
		ids:               NewIdentifierGenerator(),
		pollInterval:      defaultPollInterval,
		logger:            defaultLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Bind attaches channel and transitions into the post-connect state. It may
// be called exactly once per transport.
func (t *Transport) Bind(channel ByteChannel, postConnect *ConnectionState) error {
	t.mu.Lock()
	if t.channel != nil {
		t.mu.Unlock()
		return ErrAlreadyBound
	}
	t.channel = channel
	t.mu.Unlock()
	return t.SetState(postConnect)
}

// NextID returns the next identifier from this transport's generator, for
// locally-initiated requests.
func (t *Transport) NextID() Identifier { return t.ids.Next() }

// CurrentState returns the active state, or nil when disconnected.
func (t *Transport) CurrentState() *ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetState transitions to s: if s is already the current state this is a
// no-op; otherwise the current state's end() runs, s becomes current, and
// s.start() runs (spec §4.4). s must not be nil.
func (t *Transport) SetState(s *ConnectionState) error {
	if s == nil {
		return ErrNilState
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == s {
		return nil
	}
	prev := t.state
	if prev != nil {
		prev.end(t)
	}
	t.state = s
	s.start(t)
	t.logger.Debug("state transition", zap.String("state", s.Name))
	return nil
}

// SendRequest enqueues req for transmission. If expect is non-nil, (id,
// expect) is first registered in the current state's marshaller — req.ID
// must then be non-nil. Fails with ErrNotConnected if disconnected, or
// ErrClosed if closed.
func (t *Transport) SendRequest(req *Request, expect *ResponseVariant) error {
	state, err := t.sendableState()
	if err != nil {
		return err
	}
	if expect != nil {
		if req.ID == nil {
			return newMalformedMessageError(req.Method, "sendRequest with an expected response requires a non-nil id", nil)
		}
		if err := state.Marshaller().RegisterPendingRequest(*req.ID, *expect); err != nil {
			return err
		}
	}
	t.queue.Push(req)
	return nil
}

// SendResponse enqueues resp for transmission. Fails with ErrNotConnected
// if disconnected, or ErrClosed if closed.
func (t *Transport) SendResponse(resp *Response) error {
	if _, err := t.sendableState(); err != nil {
		return err
	}
	t.queue.Push(resp)
	return nil
}

// PollForMessages is a no-op for direct transports like TCP. For polled
// transports (constructed with WithPolled), it enqueues the distinguished
// poll request (spec §4.1/§4.4).
func (t *Transport) PollForMessages() error {
	if !t.polled {
		return nil
	}
	return t.SendRequest(NewPollRequest(), nil)
}

// defaultPollInterval is used by RunPollLoop when WithPollInterval was not
// supplied at construction.
const defaultPollInterval = 5 * time.Second

// RunPollLoop calls PollForMessages on a timer until stop is closed or the
// transport closes. It is a no-op (returns immediately) on a transport not
// constructed with WithPolled. Callers typically run this in its own
// goroutine alongside a Driver.
func (t *Transport) RunPollLoop(stop <-chan struct{}) {
	if !t.polled {
		return
	}
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.done:
			return
		case <-ticker.C:
			_ = t.PollForMessages()
		}
	}
}

func (t *Transport) sendableState() (*ConnectionState, error) {
	t.mu.Lock()
	closed := t.closed
	state := t.state
	t.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if state == nil {
		return nil, ErrNotConnected
	}
	return state, nil
}

// dequeueSend blocks up to timeout for the next outbound message. ok is
// false on timeout or once the transport is closed and the queue drained.
func (t *Transport) dequeueSend(timeout time.Duration) (Message, bool) {
	return t.queue.Dequeue(timeout)
}

// RegisterRequestListener subscribes l to inbound requests. Duplicates are
// absorbed; listeners are notified in insertion order.
func (t *Transport) RegisterRequestListener(l RequestListener) {
	t.requestListeners.Add(l)
}

// UnregisterRequestListener unsubscribes l.
func (t *Transport) UnregisterRequestListener(l RequestListener) {
	t.requestListeners.Remove(l)
}

// RegisterResponseListener subscribes l to inbound responses.
func (t *Transport) RegisterResponseListener(l ResponseListener) {
	t.responseListeners.Add(l)
}

// UnregisterResponseListener unsubscribes l.
func (t *Transport) UnregisterResponseListener(l ResponseListener) {
	t.responseListeners.Remove(l)
}

// ReceiveMessages dispatches a batch of parsed wire messages, in the order
// they were received, to the matching listener set (spec §4.4, §8
// invariant 6 "dispatch ordering").
func (t *Transport) ReceiveMessages(msgs []Inbound) {
	for _, m := range msgs {
		switch {
		case m.Request != nil:
			t.requestListeners.Each(func(l RequestListener) { l.OnRequest(m.Request) })
		case m.Response != nil:
			t.responseListeners.Each(func(l ResponseListener) { l.OnResponse(m.Response) })
		}
	}
}

// Done returns a channel that is closed once Close has run.
func (t *Transport) Done() <-chan struct{} { return t.done }

// Close is idempotent: it releases the byte channel and signals the
// reader/writer workers to exit at their next suspension point.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	state := t.state
	t.state = nil
	channel := t.channel
	t.mu.Unlock()

	if state != nil {
		state.end(t)
	}
	t.queue.Close()
	close(t.done)

	if channel != nil {
		return channel.Close()
	}
	return nil
}

// sendQueue is the transport's FIFO outbound message queue: unbounded by
// default (reference policy, spec §4.5), with a time-bounded dequeue so a
// writer worker can observe closure without indefinite blocking.
type sendQueue struct {
	mu     sync.Mutex
	items  []Message
	closed bool
	notify chan struct{}
}

func newSendQueue() *sendQueue {
	return &sendQueue{notify: make(chan struct{}, 1)}
}

func (q *sendQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Push appends m to the queue. Push on a closed queue is silently dropped.
func (q *sendQueue) Push(m Message) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, m)
	q.mu.Unlock()
	q.wake()
}

// Close marks the queue closed and wakes any blocked Dequeue.
func (q *sendQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Dequeue blocks up to timeout for the next item. ok is false if the wait
// timed out, or the queue is closed and empty.
func (q *sendQueue) Dequeue(timeout time.Duration) (Message, bool) {
	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			m := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return m, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		timer := time.NewTimer(remaining)
		select {
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
			return nil, false
		}
	}
}
