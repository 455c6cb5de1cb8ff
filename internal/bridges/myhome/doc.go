// Package myhome bridges one MyHOME (OpenWebNet) gateway to push-style
// device handlers.
//
// A Gateway owns the gateway identity, one event Listener and a Pool of
// command workers draining a shared Queue:
//
//	gateway event session ──► Listener ──► Classify ──► Registry handler
//	                                          │            (HandleEvent / AsyncUpdate)
//	                                          ├──► EventBus (broadcasts, buttons)
//	                                          └──► Queue (status re-queries)
//	Send / SendStatusRequest ──► Queue ──► Pool workers ──► gateway command sessions
//
// # Classification
//
// Classify is a pure function from a decoded message and the set of
// registered keys to exactly one Decision: Ignore, Broadcast, Requery,
// Routed, Button or Unknown. The listener only acts on decisions.
//
// # Delivery
//
// Send and SendStatusRequest only enqueue. Delivery is asynchronous and
// unacknowledged: a failed send is logged and counted, never reported to
// the caller. With several workers only per-worker FIFO order holds.
//
// # Connection loss
//
// The listener and every worker run under a supervisor that reconnects with
// exponential backoff (see Backoff). Authentication errors are never
// retried; they stop the supervisor and are reported through AuthError.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use.
package myhome
