package stratum

import (
	"bytes"
	"encoding/json"

	"github.com/francoispqt/gojay"
)

// Message is the closed Request/Response wire message model (spec §3). The
// private marker method closes the interface to this package, mirroring the
// teacher's Message/Requester split.
type Message interface {
	isMessage()
}

// Request is a request message: a method name and an ordered list of
// heterogeneous JSON parameters. The identifier is optional — nil means
// fire-and-forget.
//
// The distinguished poll request carries neither identifier nor method and
// serialises to an empty JSON object; construct one with NewPollRequest.
type Request struct {
	ID     *Identifier
	Method string
	Params []json.RawMessage

	isPoll bool
}

func (*Request) isMessage() {}

// NewRequest builds a Request with the given (possibly nil) identifier,
// method, and ordered parameters.
func NewRequest(id *Identifier, method string, params ...json.RawMessage) *Request {
	return &Request{ID: id, Method: method, Params: params}
}

// NewPollRequest returns the distinguished poll request used by polled
// transports to ask "anything pending?" without inventing a method name.
func NewPollRequest() *Request {
	return &Request{isPoll: true}
}

// IsPoll reports whether this is the distinguished poll request.
func (r *Request) IsPoll() bool { return r.isPoll }

// MarshalJSON implements json.Marshaler.
func (r *Request) MarshalJSON() ([]byte, error) {
	if r.isPoll {
		return []byte("{}"), nil
	}
	params := r.Params
	if params == nil {
		params = []json.RawMessage{}
	}
	out := struct {
		ID     *Identifier       `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}{ID: r.ID, Method: r.Method, Params: params}
	return json.Marshal(out)
}

// Response is a response message: the triggering request's identifier, and
// either a Result or an error string (or, in the boundary case the wire
// format permits, both). Successful reports false whenever Error is
// non-nil, regardless of Result.
type Response struct {
	ID     Identifier
	Result Result
	Error  *string
}

func (*Response) isMessage() {}

// NewResponse builds a Response. result may be nil, in which case the
// serialised "result" slot is JSON null.
func NewResponse(id Identifier, result Result, errStr *string) *Response {
	return &Response{ID: id, Result: result, Error: errStr}
}

// Successful reports whether the response indicates success. A response
// with both result and error non-null still reports false: error dominates.
// A response with result:null, error:null reports true, per spec §8's
// boundary behaviour — this is preserved source behaviour, not validated
// further by this package.
func (r *Response) Successful() bool { return r.Error == nil }

// MarshalJSON implements json.Marshaler. Both result and error slots are
// always present, per spec §4.1.
func (r *Response) MarshalJSON() ([]byte, error) {
	resultRaw := json.RawMessage("null")
	if r.Result != nil {
		raw, err := r.Result.Raw()
		if err != nil {
			return nil, err
		}
		resultRaw = raw
	}
	out := struct {
		ID     Identifier      `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *string         `json:"error"`
	}{ID: r.ID, Result: resultRaw, Error: r.Error}
	return json.Marshal(out)
}

// wireEnvelope is the gojay-backed generic probe used to classify a JSON
// object as request- or response-shaped before any typed construction
// happens, mirroring the teacher's combined/Combined raw-decode structs in
// wire_gojay.go. The hasX flags record key presence, since
// UnmarshalJSONObject is only invoked for keys actually present on the
// wire — this is what makes the response/request presence test in spec
// §4.3 exact even when "result" is present with a JSON null value.
type wireEnvelope struct {
	id    gojay.EmbeddedJSON
	hasID bool

	method    string
	hasMethod bool

	params    gojay.EmbeddedJSON
	hasParams bool

	result    gojay.EmbeddedJSON
	hasResult bool

	errVal   gojay.EmbeddedJSON
	hasError bool
}

// UnmarshalJSONObject implements gojay.UnmarshalerJSONObject.
func (w *wireEnvelope) UnmarshalJSONObject(dec *gojay.Decoder, k string) error {
	switch k {
	case "id":
		w.hasID = true
		return dec.EmbeddedJSON(&w.id)
	case "method":
		w.hasMethod = true
		return dec.String(&w.method)
	case "params":
		w.hasParams = true
		return dec.EmbeddedJSON(&w.params)
	case "result":
		w.hasResult = true
		return dec.EmbeddedJSON(&w.result)
	case "error":
		w.hasError = true
		return dec.EmbeddedJSON(&w.errVal)
	}
	return nil
}

// NKeys implements gojay.UnmarshalerJSONObject. Zero means "decode every key
// present", the same convention the teacher's version/ID probes use.
func (w *wireEnvelope) NKeys() int { return 0 }

// IsNil implements gojay.UnmarshalerJSONObject.
func (w *wireEnvelope) IsNil() bool { return w == nil }

var _ gojay.UnmarshalerJSONObject = (*wireEnvelope)(nil)

// isPollShaped reports whether the envelope carried none of the recognised
// keys at all, i.e. the wire object was "{}".
func (w *wireEnvelope) isPollShaped() bool {
	return !w.hasID && !w.hasMethod && !w.hasParams && !w.hasResult && !w.hasError
}

func (w *wireEnvelope) toResponse(raw []byte) (*Response, error) {
	if !w.hasID {
		return nil, newMalformedMessageError("", "response is missing \"id\"", raw)
	}
	id, ok, err := parseIdentifier(w.id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newMalformedMessageError("", "response \"id\" must not be null", raw)
	}

	var errStr *string
	if w.hasError {
		errStr, err = decodeErrorField(w.errVal)
		if err != nil {
			return nil, err
		}
	}

	resultRaw := json.RawMessage("null")
	if w.hasResult && len(bytes.TrimSpace(w.result)) > 0 {
		resultRaw = json.RawMessage(w.result)
	}
	// result:null, error:null is a silent success per spec §8/§9; preserved
	// as specified.
	result, err := NewResult(resultRaw)
	if err != nil {
		return nil, err
	}

	return &Response{ID: id, Result: result, Error: errStr}, nil
}

func decodeErrorField(raw []byte) (*string, error) {
	trimmed := trimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return &s, nil
	}
	// stringifiable scalar (e.g. a bare number): use the literal text.
	s = string(trimmed)
	return &s, nil
}

func (w *wireEnvelope) toRequest(raw []byte) (*Request, error) {
	var id *Identifier
	if w.hasID {
		parsed, ok, err := parseIdentifier(w.id)
		if err != nil {
			return nil, err
		}
		if ok {
			id = &parsed
		}
	}

	if !w.hasMethod || w.method == "" {
		return nil, newMalformedMessageError("", "request \"method\" must be a non-empty string", raw)
	}

	if !w.hasParams {
		return nil, newMalformedMessageError(w.method, "request \"params\" must be a JSON array", raw)
	}
	params, err := decodeParamsArray(w.params, w.method, raw)
	if err != nil {
		return nil, err
	}

	return &Request{ID: id, Method: w.method, Params: params}, nil
}

func decodeParamsArray(raw []byte, method string, full []byte) ([]json.RawMessage, error) {
	trimmed := trimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, newMalformedMessageError(method, "request \"params\" must be a JSON array", full)
	}
	var params []json.RawMessage
	if err := json.Unmarshal(trimmed, &params); err != nil {
		return nil, newMalformedMessageError(method, "params is not valid JSON: "+err.Error(), full)
	}
	return params, nil
}

// decodeOne classifies and decodes a single JSON object into a Message, per
// spec §4.3's presence-of-"result" test.
func decodeOne(obj []byte) (Message, error) {
	env := &wireEnvelope{}
	if err := gojay.Unsafe.Unmarshal(obj, env); err != nil {
		return nil, newMalformedMessageError("", "invalid JSON object: "+err.Error(), obj)
	}

	if env.isPollShaped() {
		return NewPollRequest(), nil
	}
	if env.hasResult {
		return env.toResponse(obj)
	}
	return env.toRequest(obj)
}

// decodeLine splits a wire line into its JSON objects — a batch if the line
// begins with '[', a single object otherwise, none for a blank line.
// Decoding each object is left to DecodeMessages.
func decodeLine(line []byte) ([][]byte, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] != '[' {
		return [][]byte{trimmed}, nil
	}
	var objs []json.RawMessage
	if err := json.Unmarshal(trimmed, &objs); err != nil {
		return nil, newMalformedMessageError("", "batch is not a valid JSON array: "+err.Error(), trimmed)
	}
	raw := make([][]byte, len(objs))
	for i, o := range objs {
		raw[i] = o
	}
	return raw, nil
}

// DecodeMessages parses a single wire line (spec §6) into zero or more
// Messages. A blank line yields no messages. Messages MAY arrive as a JSON
// array of objects, each an independent message (spec's "batch").
func DecodeMessages(line []byte) ([]Message, error) {
	objs, err := decodeLine(line)
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(objs))
	for _, obj := range objs {
		m, err := decodeOne(obj)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// EncodeMessage renders a Message as a single-line JSON object, with no
// trailing newline — newline framing is the driver's concern (spec §4.3).
func EncodeMessage(m Message) ([]byte, error) {
	return json.Marshal(m)
}
