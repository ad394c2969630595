// Package mining is a minimal Stratum mining dialect built on the core
// engine: subscribe, authorize, submit, set_difficulty, and notify, wired
// against a stratum.ConnectionState the way a pool or a miner would. It is
// a worked example of the registration hooks, not part of the core's
// contract.
package mining

import (
	"encoding/json"

	"github.com/stratumrpc/stratum"
)

// Request kinds registered against a ConnectionState's Marshaller.
const (
	KindSubscribe     stratum.RequestKind = "mining.subscribe"
	KindAuthorize     stratum.RequestKind = "mining.authorize"
	KindSubmit        stratum.RequestKind = "mining.submit"
	KindSetDifficulty stratum.RequestKind = "mining.set_difficulty"
	KindNotify        stratum.RequestKind = "mining.notify"
)

// Response kinds registered in the correlation table when a client sends
// one of the above as a request and expects a matching response.
const (
	RespSubscribe stratum.ResponseKind = "mining.subscribe"
	RespAuthorize stratum.ResponseKind = "mining.authorize"
	RespSubmit    stratum.ResponseKind = "mining.submit"
)

// SubscribeParams is mining.subscribe's positional parameter list: an
// optional user agent and an optional previously-issued session id to
// resume. Grounded on miningmeter-rpc2/stratumrpc's positional-params
// convention and the Viddhanaa-pool reference's SubscribeParams shape.
type SubscribeParams struct {
	UserAgent string
	SessionID string
}

// ParseSubscribeParams implements stratum.RequestParser for mining.subscribe.
// Empty params is valid: an unauthenticated miner may subscribe bare.
func ParseSubscribeParams(generic *stratum.Request) (interface{}, error) {
	raw := generic.Params
	p := SubscribeParams{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw[0], &p.UserAgent)
	}
	if len(raw) > 1 {
		_ = json.Unmarshal(raw[1], &p.SessionID)
	}
	return p, nil
}

// AuthorizeParams is mining.authorize's positional parameter list.
type AuthorizeParams struct {
	Username string
	Password string
}

// ParseAuthorizeParams implements stratum.RequestParser for mining.authorize.
func ParseAuthorizeParams(generic *stratum.Request) (interface{}, error) {
	if len(generic.Params) < 2 {
		return nil, newDialectError(generic.Method, "mining.authorize requires [username, password]")
	}
	var p AuthorizeParams
	if err := json.Unmarshal(generic.Params[0], &p.Username); err != nil {
		return nil, newDialectError(generic.Method, "username must be a string")
	}
	if err := json.Unmarshal(generic.Params[1], &p.Password); err != nil {
		return nil, newDialectError(generic.Method, "password must be a string")
	}
	return p, nil
}

// SubmitParams is mining.submit's positional parameter list: a worker's
// share submission.
type SubmitParams struct {
	WorkerName  string
	JobID       string
	Extranonce2 string
	NTime       string
	Nonce       string
}

// ParseSubmitParams implements stratum.RequestParser for mining.submit.
func ParseSubmitParams(generic *stratum.Request) (interface{}, error) {
	if len(generic.Params) < 5 {
		return nil, newDialectError(generic.Method, "mining.submit requires 5 positional params")
	}
	var p SubmitParams
	fields := []*string{&p.WorkerName, &p.JobID, &p.Extranonce2, &p.NTime, &p.Nonce}
	for i, f := range fields {
		if err := json.Unmarshal(generic.Params[i], f); err != nil {
			return nil, newDialectError(generic.Method, "submit positional params must all be strings")
		}
	}
	return p, nil
}

// SetDifficultyParams is mining.set_difficulty's single-element parameter
// list, sent by the pool to a subscribed miner.
type SetDifficultyParams struct {
	Difficulty float64
}

// ParseSetDifficultyParams implements stratum.RequestParser for
// mining.set_difficulty.
func ParseSetDifficultyParams(generic *stratum.Request) (interface{}, error) {
	if len(generic.Params) < 1 {
		return nil, newDialectError(generic.Method, "mining.set_difficulty requires [difficulty]")
	}
	var p SetDifficultyParams
	if err := json.Unmarshal(generic.Params[0], &p.Difficulty); err != nil {
		return nil, newDialectError(generic.Method, "difficulty must be a number")
	}
	return p, nil
}

// NotifyParams is mining.notify's positional parameter list describing a
// new work template.
type NotifyParams struct {
	JobID         string
	PrevBlockHash string
	Coinbase1     string
	Coinbase2     string
	MerkleBranch  []string
	Version       string
	NBits         string
	NTime         string
	CleanJobs     bool
}

// ParseNotifyParams implements stratum.RequestParser for mining.notify.
func ParseNotifyParams(generic *stratum.Request) (interface{}, error) {
	if len(generic.Params) < 9 {
		return nil, newDialectError(generic.Method, "mining.notify requires 9 positional params")
	}
	p := NotifyParams{}
	strs := []*string{&p.JobID, &p.PrevBlockHash, &p.Coinbase1, &p.Coinbase2, nil, &p.Version, &p.NBits, &p.NTime, nil}
	for i, f := range strs {
		if f == nil {
			continue
		}
		if err := json.Unmarshal(generic.Params[i], f); err != nil {
			return nil, newDialectError(generic.Method, "notify positional params malformed")
		}
	}
	if err := json.Unmarshal(generic.Params[4], &p.MerkleBranch); err != nil {
		return nil, newDialectError(generic.Method, "merkle_branch must be an array of strings")
	}
	if err := json.Unmarshal(generic.Params[8], &p.CleanJobs); err != nil {
		return nil, newDialectError(generic.Method, "clean_jobs must be a bool")
	}
	return p, nil
}

func newDialectError(method, description string) error {
	return stratum.NewMalformedMessageError(method, description, nil)
}
