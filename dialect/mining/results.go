package mining

import (
	"encoding/json"

	"github.com/stratumrpc/stratum"
)

// NewSubscribeResult builds the mining.subscribe response result: an array
// Result whose subject tuple names the notify channel the miner is now
// subscribed to, carrying the pool's extranonce assignment as data. This is
// the exact shape of spec.md §8 scenario 1 (subject "mining.notify",
// subjectKey a hex session id, data [extranonce1, extranonce2Size]).
func NewSubscribeResult(subscriptionID, extranonce1 string, extranonce2Size int) (stratum.Result, error) {
	en1, err := json.Marshal(extranonce1)
	if err != nil {
		return nil, err
	}
	size, err := json.Marshal(extranonce2Size)
	if err != nil {
		return nil, err
	}
	return stratum.ArrayResult{
		Subject: &stratum.SubjectTuple{Subject: "mining.notify", SubjectKey: &subscriptionID},
		Data:    []json.RawMessage{en1, size},
	}, nil
}

// NewBoolResult wraps a plain boolean, used for mining.authorize and
// mining.submit acceptance responses.
func NewBoolResult(ok bool) stratum.Result {
	raw, _ := json.Marshal(ok)
	return stratum.ScalarResult{Value: raw}
}

// NewMiningError renders (code, message) as the 3-element Stratum error
// array, stringified the way the core's Response.Error slot expects (a
// response's error slot is a *string; the literal text is a JSON array).
func NewMiningError(code int, message string) *string {
	raw, _ := json.Marshal([3]interface{}{code, message, nil})
	s := string(raw)
	return &s
}

// UnwrapMiningError parses a response's error slot back into (code,
// message), if it has the Stratum error-array shape. ok is false for a
// plain string error or a nil error.
func UnwrapMiningError(errStr *string) (code int, message string, ok bool) {
	if errStr == nil {
		return 0, "", false
	}
	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(*errStr), &arr); err != nil || len(arr) < 2 {
		return 0, "", false
	}
	if err := json.Unmarshal(arr[0], &code); err != nil {
		return 0, "", false
	}
	if err := json.Unmarshal(arr[1], &message); err != nil {
		return 0, "", false
	}
	return code, message, true
}

// Stratum mining error codes, named directly by the Viddhanaa-pool
// reference file under other_examples/.
const (
	ErrUnauthorizedWorker = 24
	ErrNotSubscribed      = 25
	ErrDuplicateShare     = 22
	ErrLowDifficultyShare = 23
	ErrJobNotFound        = 21
	ErrStaleShare         = 20
)
