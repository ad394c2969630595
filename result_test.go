package stratum

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResultScalar(t *testing.T) {
	for _, raw := range []string{`"hello"`, `42`, `null`, `{"a":1}`, `true`} {
		result, err := NewResult(json.RawMessage(raw))
		require.NoError(t, err)
		scalar, ok := result.(ScalarResult)
		require.True(t, ok, "expected ScalarResult for %s", raw)
		out, err := scalar.Raw()
		require.NoError(t, err)
		assert.JSONEq(t, raw, string(out))
	}
}

// TestNewResultArrayNoSubject covers spec §8 scenario 2 ("Electrum history
// response"): first element is a string, not an array, so no subject.
func TestNewResultArrayNoSubject(t *testing.T) {
	result, err := NewResult(json.RawMessage(`["1DiiVSnksihdpdP1Pex7jghMAZffZiBY9q"]`))
	require.NoError(t, err)
	arr, ok := result.(ArrayResult)
	require.True(t, ok)
	assert.Nil(t, arr.Subject)
	require.Len(t, arr.Data, 1)
	assert.JSONEq(t, `"1DiiVSnksihdpdP1Pex7jghMAZffZiBY9q"`, string(arr.Data[0]))
}

// TestNewResultArrayWithSubject covers spec §8 scenario 1 ("Mining
// subscribe response").
func TestNewResultArrayWithSubject(t *testing.T) {
	raw := `[["mining.notify","ae6812eb4cd7735a302a8a9dd95cf71f"],"08000002",4]`
	result, err := NewResult(json.RawMessage(raw))
	require.NoError(t, err)
	arr, ok := result.(ArrayResult)
	require.True(t, ok)
	require.NotNil(t, arr.Subject)
	assert.Equal(t, "mining.notify", arr.Subject.Subject)
	require.NotNil(t, arr.Subject.SubjectKey)
	assert.Equal(t, "ae6812eb4cd7735a302a8a9dd95cf71f", *arr.Subject.SubjectKey)
	require.Len(t, arr.Data, 2)
	assert.JSONEq(t, `"08000002"`, string(arr.Data[0]))
	assert.JSONEq(t, `4`, string(arr.Data[1]))

	rendered, err := arr.Raw()
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(rendered))
}

func TestNewResultSubjectTupleLengthInvariant(t *testing.T) {
	for _, raw := range []string{`[[],"x"]`, `[["a","b","c"],"x"]`} {
		_, err := NewResult(json.RawMessage(raw))
		assert.Error(t, err, "subject tuple of invalid length must be malformed: %s", raw)
	}
}

func TestNewResultSubjectTupleFirstElementMustBeString(t *testing.T) {
	_, err := NewResult(json.RawMessage(`[[1,"x"],"data"]`))
	assert.Error(t, err)
}

func TestArrayResultLengthInvariant(t *testing.T) {
	noSubject := ArrayResult{Data: []json.RawMessage{json.RawMessage(`1`), json.RawMessage(`2`)}}
	raw, err := noSubject.Raw()
	require.NoError(t, err)
	var elems []json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &elems))
	assert.Len(t, elems, len(noSubject.Data))

	key := "k"
	withSubject := ArrayResult{
		Subject: &SubjectTuple{Subject: "s", SubjectKey: &key},
		Data:    []json.RawMessage{json.RawMessage(`1`), json.RawMessage(`2`)},
	}
	raw, err = withSubject.Raw()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &elems))
	assert.Len(t, elems, 1+len(withSubject.Data))
}
