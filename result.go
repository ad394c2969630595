package stratum

import (
	"bytes"
	"encoding/json"
)

// Result is the polymorphic response payload: either a ScalarResult or an
// ArrayResult. It is a closed tagged union (REDESIGN FLAG: "Polymorphic
// Result hierarchy") rather than a class hierarchy; the private marker
// method closes it to this package.
type Result interface {
	isResult()
	// Raw returns the JSON encoding of the result's top-level value, the way
	// it would appear in a response's "result" slot.
	Raw() (json.RawMessage, error)
}

// ScalarResult wraps a single JSON scalar, array, or object verbatim.
type ScalarResult struct {
	Value json.RawMessage
}

func (ScalarResult) isResult() {}

// Raw implements Result.
func (s ScalarResult) Raw() (json.RawMessage, error) {
	if len(s.Value) == 0 {
		return json.RawMessage("null"), nil
	}
	return s.Value, nil
}

// SubjectTuple is the optional leading element of an ArrayResult, giving a
// human-readable subject and an opaque correlation key the receiver may
// quote back later. Invariant: SubjectKey != nil implies Subject != "".
type SubjectTuple struct {
	Subject    string
	SubjectKey *string
}

// ArrayResult is an ordered list of data elements with an optional leading
// subject tuple.
type ArrayResult struct {
	Subject *SubjectTuple
	Data    []json.RawMessage
}

func (ArrayResult) isResult() {}

// Raw implements Result.
func (a ArrayResult) Raw() (json.RawMessage, error) {
	elems := make([]json.RawMessage, 0, len(a.Data)+1)
	if a.Subject != nil {
		tuple := []json.RawMessage{mustQuote(a.Subject.Subject)}
		if a.Subject.SubjectKey != nil {
			tuple = append(tuple, mustQuote(*a.Subject.SubjectKey))
		}
		raw, err := json.Marshal(tuple)
		if err != nil {
			return nil, err
		}
		elems = append(elems, raw)
	}
	elems = append(elems, a.Data...)
	if elems == nil {
		elems = []json.RawMessage{}
	}
	return json.Marshal(elems)
}

func mustQuote(s string) json.RawMessage {
	raw, err := json.Marshal(s)
	if err != nil {
		// strings always marshal; this cannot fail.
		panic(err)
	}
	return raw
}

// NewResult implements the Result factory (spec §4.1): a pure function of a
// raw JSON value to the appropriate Result variant. It is a free function,
// not a singleton object, per REDESIGN FLAG "Singleton result factory".
func NewResult(raw json.RawMessage) (Result, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		trimmed = []byte("null")
	}
	if trimmed[0] != '[' {
		return ScalarResult{Value: append(json.RawMessage(nil), trimmed...)}, nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, newMalformedMessageError("", "result array is not valid JSON: "+err.Error(), raw)
	}
	if len(elems) == 0 {
		return ArrayResult{Data: elems}, nil
	}

	first := bytes.TrimSpace(elems[0])
	if len(first) == 0 || first[0] != '[' {
		return ArrayResult{Data: elems}, nil
	}

	var tuple []json.RawMessage
	if err := json.Unmarshal(first, &tuple); err != nil {
		return nil, newMalformedMessageError("", "subject tuple is not valid JSON: "+err.Error(), raw)
	}
	if len(tuple) == 0 || len(tuple) > 2 {
		return nil, newMalformedMessageError("", "subject tuple must have length 1 or 2", raw)
	}

	var subject string
	if err := json.Unmarshal(tuple[0], &subject); err != nil {
		return nil, newMalformedMessageError("", "subject tuple's first element must be a string", raw)
	}

	st := &SubjectTuple{Subject: subject}
	if len(tuple) == 2 {
		var key string
		if err := json.Unmarshal(tuple[1], &key); err != nil {
			return nil, newMalformedMessageError("", "subject tuple's second element must be a string", raw)
		}
		st.SubjectKey = &key
	}

	return ArrayResult{Subject: st, Data: elems[1:]}, nil
}
