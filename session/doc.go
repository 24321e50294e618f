// Package session is the Redis-backed session registry: the single source of
// truth for whether a login is still live, independent of token expiry.
//
// Sessions are stored as JSON blobs with a TTL of expiry plus a retention
// window, so a revoked or expired record stays inspectable until retention
// lapses and Redis sweeps it. Revocation and refresh-token rotation are Lua
// compare-and-swap scripts: once a session is marked revoked, no subsequent
// read can observe it as active (read-after-write), and two concurrent
// refresh calls can never both rotate the same hash.
//
// # Key layout
//
//	<prefix>:s:<sessionID>   session JSON blob
//	<prefix>:u:<userID>      set of the user's session IDs
//	<prefix>:rh:<hash>       refresh-token hash -> session ID
//
// # What this package must NOT do
//
//   - Make authorization decisions; it answers liveness only.
//   - Hard-delete a session outside TTL lapse or [Store.SweepExpired].
package session
