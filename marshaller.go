package stratum

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RequestKind identifies a registered Request variant, standing in for the
// source's per-type reflective handles (REDESIGN FLAG "Reflective
// construction of message variants").
type RequestKind string

// RequestParser builds a concrete request variant from the generic,
// already-parsed Request.
type RequestParser func(generic *Request) (interface{}, error)

// InboundRequest is a parsed inbound request, tagged with the RequestKind
// its method resolved to and (if a parser was registered) the concrete
// variant value.
type InboundRequest struct {
	Kind    RequestKind
	Generic *Request
	Variant interface{}
}

// InboundResponse is a parsed inbound response, tagged with the
// ResponseKind its pending request was registered under and (if a parser
// was registered) the concrete variant value.
type InboundResponse struct {
	Kind    ResponseKind
	Generic *Response
	Variant interface{}
}

// Inbound is a single parsed wire message, exactly one of Request or
// Response set. A slice of Inbound preserves wire order across a batch
// (spec §8 invariant 6 "dispatch ordering").
type Inbound struct {
	Request  *InboundRequest
	Response *InboundResponse
}

type methodEntry struct {
	kind   RequestKind
	parser RequestParser
}

// Marshaller converts between wire lines and typed messages and owns the
// short-lived request-correlation table for this conversational state
// (spec §4.3). Each ConnectionState owns a fresh Marshaller so its legal
// vocabulary (registered methods) is scoped to that state.
type Marshaller struct {
	methods map[string]methodEntry
	pending *PendingRequestTable
	logger  *zap.Logger
}

// MarshallerOption configures a Marshaller at construction time.
type MarshallerOption func(*marshallerConfig)

type marshallerConfig struct {
	logger               *zap.Logger
	ignoredRequestWindow time.Duration
	onExpire             ExpiryCallback
}

// NewMarshaller constructs a Marshaller with an empty method table and a
// fresh pending-request table.
func NewMarshaller(opts ...MarshallerOption) *Marshaller {
	cfg := &marshallerConfig{logger: defaultLogger()}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Marshaller{
		methods: make(map[string]methodEntry),
		pending: NewPendingRequestTable(cfg.ignoredRequestWindow, cfg.onExpire, cfg.logger),
		logger:  cfg.logger,
	}
}

// RegisterMethod teaches the marshaller that method deserialises to kind,
// using parser to build the concrete variant (spec §4.2
// "registerRequestHandler"'s marshaller-side effect). A duplicate
// registration without replace is rejected with ErrDuplicateHandler.
func (m *Marshaller) RegisterMethod(method string, kind RequestKind, parser RequestParser, replace bool) error {
	if _, exists := m.methods[method]; exists && !replace {
		return ErrDuplicateHandler
	}
	m.methods[method] = methodEntry{kind: kind, parser: parser}
	return nil
}

// RegisterPendingRequest inserts (id, variant) into the correlation table,
// as sendRequest does before enqueueing a request with an expected
// response (spec §4.4).
func (m *Marshaller) RegisterPendingRequest(id Identifier, variant ResponseVariant) error {
	return m.pending.Register(id, variant)
}

// Start begins the correlation table's background expiry loop.
func (m *Marshaller) Start() { m.pending.Start() }

// Stop halts the correlation table's background expiry loop.
func (m *Marshaller) Stop() { m.pending.Stop() }

// Parse decodes a wire line into zero or more Inbound messages, in wire
// order, classifying and resolving each against the method table and the
// pending-request table (spec §4.3). A returned MalformedMessageError whose
// failing step had no payload of its own carries line as its Payload.
func (m *Marshaller) Parse(line []byte) ([]Inbound, error) {
	withPayload := func(err error) error {
		if malformed, ok := err.(*MalformedMessageError); ok && malformed.Payload == nil {
			malformed.Payload = line
		}
		return err
	}

	msgs, err := DecodeMessages(line)
	if err != nil {
		return nil, withPayload(err)
	}

	out := make([]Inbound, 0, len(msgs))
	for _, msg := range msgs {
		switch typed := msg.(type) {
		case *Request:
			in, err := m.resolveRequest(typed)
			if err != nil {
				return nil, withPayload(err)
			}
			out = append(out, Inbound{Request: in})
		case *Response:
			in, err := m.resolveResponse(typed)
			if err != nil {
				return nil, withPayload(err)
			}
			out = append(out, Inbound{Response: in})
		default:
			return nil, newMalformedMessageError("", fmt.Sprintf("unexpected message type %T", msg), line)
		}
	}
	return out, nil
}

func (m *Marshaller) resolveRequest(req *Request) (*InboundRequest, error) {
	if req.IsPoll() {
		return &InboundRequest{Kind: "", Generic: req}, nil
	}

	entry, ok := m.methods[req.Method]
	if !ok {
		m.logger.Warn("unknown method", zap.String("method", req.Method))
		malformed := newMalformedMessageError(req.Method, "unknown method", nil)
		malformed.err = ErrUnknownMethod
		return nil, malformed
	}

	in := &InboundRequest{Kind: entry.kind, Generic: req}
	if entry.parser != nil {
		variant, err := entry.parser(req)
		if err != nil {
			return nil, err
		}
		in.Variant = variant
	}
	m.logger.Debug("parsed request", zap.String("method", req.Method), zap.String("kind", string(entry.kind)))
	return in, nil
}

func (m *Marshaller) resolveResponse(resp *Response) (*InboundResponse, error) {
	variant, ok := m.pending.Resolve(resp.ID)
	if !ok {
		m.logger.Warn("unsolicited response", zap.String("id", string(resp.ID)))
		malformed := newMalformedMessageError("", "unsolicited response for id "+string(resp.ID), nil)
		malformed.err = ErrUnsolicitedResponse
		return nil, malformed
	}

	in := &InboundResponse{Kind: variant.Kind, Generic: resp}
	if variant.Parser != nil {
		built, err := variant.Parser(resp)
		if err != nil {
			return nil, err
		}
		in.Variant = built
	}
	m.logger.Debug("parsed response", zap.String("id", string(resp.ID)), zap.String("kind", string(variant.Kind)))
	return in, nil
}

// Serialize renders a Message as a wire line (spec §4.3 "unmarshal"), with
// no trailing newline.
func (m *Marshaller) Serialize(msg Message) ([]byte, error) {
	return EncodeMessage(msg)
}
