package stratum

import (
	"encoding/json"
	"strconv"

	"go.uber.org/atomic"
)

// Identifier is a non-empty textual message identifier, opaque to the core.
// The wire form may be a JSON string or a JSON integer; both coerce to the
// same canonical string form on parse, and serialise back as a JSON string.
type Identifier string

// String implements fmt.Stringer.
func (id Identifier) String() string { return string(id) }

// MarshalJSON implements json.Marshaler. Identifiers always serialise as a
// JSON string, regardless of the wire form they were parsed from.
func (id Identifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

// parseIdentifier coerces a raw JSON value (string, number, or null) to an
// Identifier. ok is false for JSON null.
func parseIdentifier(raw []byte) (id Identifier, ok bool, err error) {
	trimmed := trimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return "", false, nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return Identifier(s), true, nil
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err == nil {
		return Identifier(n.String()), true, nil
	}

	return "", false, &MalformedMessageError{Description: "id must be a string, a number, or null"}
}

func trimSpace(b []byte) []byte {
	start := 0
	for start < len(b) && isJSONSpace(b[start]) {
		start++
	}
	end := len(b)
	for end > start && isJSONSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isJSONSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// IdentifierGenerator produces strictly increasing, process-unique
// identifiers for locally-initiated requests. The zero value is not usable;
// construct with NewIdentifierGenerator.
type IdentifierGenerator struct {
	seq *atomic.Int64
}

// NewIdentifierGenerator returns a generator whose first call to Next
// returns "1".
func NewIdentifierGenerator() *IdentifierGenerator {
	return &IdentifierGenerator{seq: atomic.NewInt64(0)}
}

// Next returns the next identifier in the sequence, as a decimal string.
func (g *IdentifierGenerator) Next() Identifier {
	n := g.seq.Add(1)
	return Identifier(strconv.FormatInt(n, 10))
}
