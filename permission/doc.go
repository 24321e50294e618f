// Package permission implements capability-string matching for the guard chain.
//
// A permission is either a three-part string domain:resource:action or a
// legacy two-part string domain:action. The legacy form carries no resource
// segment and is interpreted as "any resource within the domain". The `*`
// wildcard is honored in the resource and action positions of either the held
// or the required permission. Domains never wildcard and compare
// case-sensitively.
//
// # Fail-closed contract
//
// A string that is not a well-formed two- or three-part permission matches
// nothing, on either side of the comparison. Callers never need to
// pre-validate inputs to stay safe.
//
// # What this package must NOT do
//
//   - Perform I/O or consult any store; held permissions are supplied by the
//     caller from the live credential source on every request.
//   - Cache parse results between calls.
package permission
