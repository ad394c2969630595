package stratum

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeSingle(t *testing.T, line string) Message {
	t.Helper()
	msgs, err := DecodeMessages([]byte(line))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	return msgs[0]
}

func TestDecodeRequestRoundTrip(t *testing.T) {
	line := `{"id":"7","method":"mining.submit","params":["worker1","jobid",1]}`
	msg := decodeSingle(t, line)
	req, ok := msg.(*Request)
	require.True(t, ok)
	require.NotNil(t, req.ID)
	assert.Equal(t, Identifier("7"), *req.ID)
	assert.Equal(t, "mining.submit", req.Method)
	require.Len(t, req.Params, 3)

	out, err := EncodeMessage(req)
	require.NoError(t, err)
	assert.JSONEq(t, line, string(out))
}

func TestDecodeRequestNullID(t *testing.T) {
	line := `{"id":null,"method":"foo","params":[1,"x"]}`
	msg := decodeSingle(t, line)
	req, ok := msg.(*Request)
	require.True(t, ok)
	assert.Nil(t, req.ID)

	out, err := EncodeMessage(req)
	require.NoError(t, err)
	assert.JSONEq(t, line, string(out))
}

// TestEmptyParamsRoundTrip covers spec §8's boundary behaviour: empty
// params array parses and serialises back with an empty array.
func TestEmptyParamsRoundTrip(t *testing.T) {
	line := `{"id":"1","method":"noop","params":[]}`
	msg := decodeSingle(t, line)
	req := msg.(*Request)
	assert.Len(t, req.Params, 0)

	out, err := EncodeMessage(req)
	require.NoError(t, err)
	assert.JSONEq(t, line, string(out))
}

func TestDecodeRequestRejectsEmptyMethod(t *testing.T) {
	_, err := DecodeMessages([]byte(`{"id":"1","method":"","params":[]}`))
	assert.Error(t, err)
}

func TestDecodeRequestRejectsNonArrayParams(t *testing.T) {
	_, err := DecodeMessages([]byte(`{"id":"1","method":"m","params":{}}`))
	assert.Error(t, err)
}

// TestIdentifierCoercion covers spec §8's boundary behaviour: id as JSON
// integer vs string, both accepted, coerced to the same string form.
func TestIdentifierCoercion(t *testing.T) {
	intMsg := decodeSingle(t, `{"id":1,"result":"ok","error":null}`)
	strMsg := decodeSingle(t, `{"id":"1","result":"ok","error":null}`)
	assert.Equal(t, intMsg.(*Response).ID, strMsg.(*Response).ID)

	out, err := EncodeMessage(intMsg)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "1", decoded["id"])
}

func TestDecodeResponseRejectsNullID(t *testing.T) {
	_, err := DecodeMessages([]byte(`{"id":null,"result":1,"error":null}`))
	assert.Error(t, err)
}

// TestResponseBothResultAndErrorSet covers spec §8's boundary behaviour:
// error dominates Successful().
func TestResponseBothResultAndErrorSet(t *testing.T) {
	msg := decodeSingle(t, `{"id":"1","result":"ok","error":"boom"}`)
	resp := msg.(*Response)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "boom", *resp.Error)
	assert.False(t, resp.Successful())
}

// TestResponseNullResultNullErrorIsSuccess covers spec §8/§9: result:null,
// error:null reports success with a null Scalar Result. Preserved source
// behaviour, not validated further.
func TestResponseNullResultNullErrorIsSuccess(t *testing.T) {
	msg := decodeSingle(t, `{"id":"1","result":null,"error":null}`)
	resp := msg.(*Response)
	assert.True(t, resp.Successful())
	scalar, ok := resp.Result.(ScalarResult)
	require.True(t, ok)
	raw, err := scalar.Raw()
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}

func TestPollRequestRoundTrip(t *testing.T) {
	msg := decodeSingle(t, `{}`)
	req, ok := msg.(*Request)
	require.True(t, ok)
	assert.True(t, req.IsPoll())

	out, err := EncodeMessage(NewPollRequest())
	require.NoError(t, err)
	assert.Equal(t, "{}", string(out))
}

// TestBatchPreservesOrder covers spec §8 invariant 6: messages within a
// batched array are decoded in wire order.
func TestBatchPreservesOrder(t *testing.T) {
	line := `[{"id":"1","method":"a","params":[]},{"id":"2","method":"b","params":[]}]`
	msgs, err := DecodeMessages([]byte(line))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].(*Request).Method)
	assert.Equal(t, "b", msgs[1].(*Request).Method)
}

func TestBlankLineDecodesToNoMessages(t *testing.T) {
	msgs, err := DecodeMessages([]byte("   "))
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

// TestResponseDistinguishedByResultPresence covers spec §4.3's
// presence-only classification: a response with a "result" key present
// (even when its value is JSON null) is never mistaken for a request.
func TestResponseDistinguishedByResultPresence(t *testing.T) {
	msg := decodeSingle(t, `{"id":"1","result":null,"error":"nope"}`)
	_, ok := msg.(*Response)
	assert.True(t, ok)
}
