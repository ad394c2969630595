package mining

import "github.com/stratumrpc/stratum"

// Handlers bundles the callbacks a consumer supplies for each mining
// request kind. A nil field leaves that method unregistered.
type Handlers struct {
	OnSubscribe     func(in *stratum.InboundRequest, params SubscribeParams)
	OnAuthorize     func(in *stratum.InboundRequest, params AuthorizeParams)
	OnSubmit        func(in *stratum.InboundRequest, params SubmitParams)
	OnSetDifficulty func(in *stratum.InboundRequest, params SetDifficultyParams)
	OnNotify        func(in *stratum.InboundRequest, params NotifyParams)
}

// Register binds the mining dialect's methods and parsers to state,
// dispatching each to the matching Handlers field. It is the consumer-side
// analogue of the core's own RegisterMethod/RegisterRequestHandler pair,
// specialised to this dialect's five methods.
func Register(state *stratum.ConnectionState, h Handlers) error {
	type registration struct {
		method string
		kind   stratum.RequestKind
		parser stratum.RequestParser
		handle stratum.RequestHandler
	}

	regs := []registration{
		{"mining.subscribe", KindSubscribe, ParseSubscribeParams, dispatch(h.OnSubscribe)},
		{"mining.authorize", KindAuthorize, ParseAuthorizeParams, dispatch(h.OnAuthorize)},
		{"mining.submit", KindSubmit, ParseSubmitParams, dispatch(h.OnSubmit)},
		{"mining.set_difficulty", KindSetDifficulty, ParseSetDifficultyParams, dispatch(h.OnSetDifficulty)},
		{"mining.notify", KindNotify, ParseNotifyParams, dispatch(h.OnNotify)},
	}

	for _, r := range regs {
		if r.handle == nil {
			continue
		}
		if err := state.RegisterRequestHandler(r.method, r.kind, r.parser, r.handle, false); err != nil {
			return err
		}
	}
	return nil
}

// dispatch adapts a typed handler func(in, P) to the generic
// stratum.RequestHandler the core expects, recovering the typed params from
// in.Variant (populated by the matching Parse*Params function). A nil fn
// yields a nil handler, which Register treats as "not registered".
func dispatch[P any](fn func(in *stratum.InboundRequest, params P)) stratum.RequestHandler {
	if fn == nil {
		return nil
	}
	return func(in *stratum.InboundRequest) {
		params, _ := in.Variant.(P)
		fn(in, params)
	}
}
