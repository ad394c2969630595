package stratum

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshallerRequestDispatch(t *testing.T) {
	m := NewMarshaller()
	require.NoError(t, m.RegisterMethod("mining.submit", "submit", nil, false))

	inbound, err := m.Parse([]byte(`{"id":"1","method":"mining.submit","params":["w","j",1]}`))
	require.NoError(t, err)
	require.Len(t, inbound, 1)
	require.NotNil(t, inbound[0].Request)
	assert.Equal(t, RequestKind("submit"), inbound[0].Request.Kind)
	assert.Equal(t, "mining.submit", inbound[0].Request.Generic.Method)
}

// TestMarshallerUnknownMethod covers spec §8 scenario 4: an unregistered
// method is rejected as malformed.
func TestMarshallerUnknownMethod(t *testing.T) {
	m := NewMarshaller()
	_, err := m.Parse([]byte(`{"id":"7","method":"bogus","params":[]}`))
	assert.Error(t, err)
	var malformed *MalformedMessageError
	assert.ErrorAs(t, err, &malformed)
}

func TestMarshallerDuplicateMethodRejected(t *testing.T) {
	m := NewMarshaller()
	require.NoError(t, m.RegisterMethod("foo", "foo-kind", nil, false))
	err := m.RegisterMethod("foo", "foo-kind-2", nil, false)
	assert.ErrorIs(t, err, ErrDuplicateHandler)

	assert.NoError(t, m.RegisterMethod("foo", "foo-kind-2", nil, true))
}

func TestMarshallerResponseDispatch(t *testing.T) {
	m := NewMarshaller()
	require.NoError(t, m.RegisterPendingRequest("1", ResponseVariant{Kind: "generic"}))

	inbound, err := m.Parse([]byte(`{"id":"1","result":"ok","error":null}`))
	require.NoError(t, err)
	require.Len(t, inbound, 1)
	require.NotNil(t, inbound[0].Response)
	assert.Equal(t, ResponseKind("generic"), inbound[0].Response.Kind)
}

// TestMarshallerUnsolicitedResponse covers spec §4.3/§7: a response with no
// matching pending id is rejected as malformed.
func TestMarshallerUnsolicitedResponse(t *testing.T) {
	m := NewMarshaller()
	_, err := m.Parse([]byte(`{"id":"1","result":"ok","error":null}`))
	assert.Error(t, err)
}

func TestMarshallerRequestParserBuildsVariant(t *testing.T) {
	type submitParams struct{ worker string }
	parser := func(generic *Request) (interface{}, error) {
		var worker string
		if len(generic.Params) > 0 {
			if err := json.Unmarshal(generic.Params[0], &worker); err != nil {
				return nil, err
			}
		}
		return submitParams{worker: worker}, nil
	}
	m := NewMarshaller()
	require.NoError(t, m.RegisterMethod("mining.submit", "submit", parser, false))

	inbound, err := m.Parse([]byte(`{"id":"1","method":"mining.submit","params":["w"]}`))
	require.NoError(t, err)
	variant, ok := inbound[0].Request.Variant.(submitParams)
	require.True(t, ok)
	assert.Equal(t, "w", variant.worker)
}

func TestMarshallerSerialize(t *testing.T) {
	m := NewMarshaller()
	req := NewRequest(nil, "foo")
	out, err := m.Serialize(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":null,"method":"foo","params":[]}`, string(out))
}

// TestMarshallerBatchOrdering covers spec §8 invariant 6 at the marshaller
// layer: a batch containing a request and a response in wire order
// resolves both in that order.
func TestMarshallerBatchOrdering(t *testing.T) {
	m := NewMarshaller()
	require.NoError(t, m.RegisterMethod("foo", "foo-kind", nil, false))
	require.NoError(t, m.RegisterPendingRequest("9", ResponseVariant{Kind: "generic"}))

	line := `[{"id":"1","method":"foo","params":[]},{"id":"9","result":1,"error":null}]`
	inbound, err := m.Parse([]byte(line))
	require.NoError(t, err)
	require.Len(t, inbound, 2)
	assert.NotNil(t, inbound[0].Request)
	assert.NotNil(t, inbound[1].Response)
}
