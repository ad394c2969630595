package mining

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumrpc/stratum"
)

func TestParseSubscribeParamsEmpty(t *testing.T) {
	req := stratum.NewRequest(nil, "mining.subscribe")
	variant, err := ParseSubscribeParams(req)
	require.NoError(t, err)
	assert.Equal(t, SubscribeParams{}, variant)
}

func TestParseSubmitParamsRejectsShortParams(t *testing.T) {
	req := stratum.NewRequest(nil, "mining.submit", raw(t, "worker"))
	_, err := ParseSubmitParams(req)
	require.Error(t, err)
	var malformed *stratum.MalformedMessageError
	assert.ErrorAs(t, err, &malformed)
}

func TestParseSubmitParamsOK(t *testing.T) {
	req := stratum.NewRequest(nil, "mining.submit",
		raw(t, "worker1"), raw(t, "job1"), raw(t, "ab12"), raw(t, "504e86ed"), raw(t, "b2957c02"))
	variant, err := ParseSubmitParams(req)
	require.NoError(t, err)
	p := variant.(SubmitParams)
	assert.Equal(t, "worker1", p.WorkerName)
	assert.Equal(t, "job1", p.JobID)
}

// TestNewSubscribeResultMatchesScenarioOne reproduces spec.md §8 scenario 1:
// subject "mining.notify", a session-id subjectKey, and extranonce data.
func TestNewSubscribeResultMatchesScenarioOne(t *testing.T) {
	result, err := NewSubscribeResult("ae6812eb4cd7735a302a8a9dd95cf71f", "08000002", 4)
	require.NoError(t, err)
	out, err := result.Raw()
	require.NoError(t, err)
	assert.JSONEq(t, `[["mining.notify","ae6812eb4cd7735a302a8a9dd95cf71f"],"08000002",4]`, string(out))
}

func TestMiningErrorRoundTrip(t *testing.T) {
	errStr := NewMiningError(ErrUnauthorizedWorker, "Unauthorized worker")
	code, message, ok := UnwrapMiningError(errStr)
	require.True(t, ok)
	assert.Equal(t, ErrUnauthorizedWorker, code)
	assert.Equal(t, "Unauthorized worker", message)
}

func TestUnwrapMiningErrorPlainStringIsNotMiningShaped(t *testing.T) {
	plain := "boom"
	_, _, ok := UnwrapMiningError(&plain)
	assert.False(t, ok)
}

func TestRegisterDispatchesToTypedHandler(t *testing.T) {
	state := stratum.NewConnectionState("mining", nil)
	var got SubmitParams
	require.NoError(t, Register(state, Handlers{
		OnSubmit: func(in *stratum.InboundRequest, params SubmitParams) {
			got = params
		},
	}))

	inbound, err := state.Marshaller().Parse([]byte(
		`{"id":"1","method":"mining.submit","params":["worker1","job1","ab12","504e86ed","b2957c02"]}`))
	require.NoError(t, err)
	require.Len(t, inbound, 1)
	require.NotNil(t, inbound[0].Request)

	// state itself implements RequestListener; OnRequest runs the same
	// dispatch chain Transport.ReceiveMessages drives.
	state.OnRequest(inbound[0].Request)
	assert.Equal(t, "worker1", got.WorkerName)
}

func raw(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	out, err := json.Marshal(v)
	require.NoError(t, err)
	return out
}
