// Package audit implements async event dispatching for security-relevant
// operations.
//
// The package owns buffering and sink delivery only. Which events get
// emitted, and with what payload, is decided by the engine; sinks supplied
// by callers decide where they land. Delivery is fire-and-forget: a slow or
// absent sink must never slow down an authorization decision.
package audit
