// Package stratum implements the Stratum JSON line-oriented request/response
// protocol: a lightweight, transport-agnostic RPC dialect in which either
// side may originate a request at any time and responses are correlated to
// requests by an opaque identifier.
//
// The package provides the message model (Request/Response/Result), the
// Marshaller that turns wire lines into typed messages while tracking
// outstanding requests, and a ConnectionState/Transport pair implementing a
// chain-of-responsibility state machine so callers can negotiate
// multi-phase conversations (e.g. subscribe, then authorize, then work)
// without this package knowing any specific method name.
//
// stratum does not implement any particular Stratum dialect (mining,
// Electrum, or otherwise) and does not wire up a concrete network listener;
// see the dialect/mining and tcpserver packages for worked examples built
// on top of this engine.
package stratum
