package permission

import "strings"

// Wildcard is the segment value that matches any counterpart resource or
// action within the same domain.
const Wildcard = "*"

// Permission is the parsed form of a capability string. HasResource is false
// for legacy two-part permissions, which grant the action on every resource
// in the domain.
type Permission struct {
	Domain      string
	Resource    string
	HasResource bool
	Action      string
}

// Parse splits a capability string into its segments. It returns ok=false for
// anything that is not a two- or three-part permission with non-empty
// segments; such strings must never match.
func Parse(s string) (Permission, bool) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return Permission{}, false
		}
		return Permission{Domain: parts[0], Action: parts[1]}, true
	case 3:
		if parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return Permission{}, false
		}
		return Permission{Domain: parts[0], Resource: parts[1], HasResource: true, Action: parts[2]}, true
	default:
		return Permission{}, false
	}
}

// Matches reports whether a held permission satisfies a required one.
//
// Domains must be equal. Resources match when either side is absent (legacy
// two-part form) or `*`, or when both are equal; actions match when either
// side is `*` or both are equal. Note that the absent-resource rule makes a
// two-part permission a domain-wide grant — intentionally broad, kept for
// compatibility with capability strings issued before the three-part format.
func Matches(held, required string) bool {
	if held == required {
		_, ok := Parse(held)
		return ok
	}

	h, ok := Parse(held)
	if !ok {
		return false
	}
	r, ok := Parse(required)
	if !ok {
		return false
	}

	if h.Domain != r.Domain {
		return false
	}
	if !segmentsMatch(h, r) {
		return false
	}
	return h.Action == r.Action || h.Action == Wildcard || r.Action == Wildcard
}

func segmentsMatch(h, r Permission) bool {
	if !h.HasResource || !r.HasResource {
		return true
	}
	return h.Resource == r.Resource || h.Resource == Wildcard || r.Resource == Wildcard
}

// HasPermission reports whether any held permission satisfies required.
func HasPermission(held []string, required string) bool {
	for _, h := range held {
		if Matches(h, required) {
			return true
		}
	}
	return false
}

// HasAll reports whether every required permission is satisfied by at least
// one held permission. An empty required list is trivially satisfied.
func HasAll(held, required []string) bool {
	for _, r := range required {
		if !HasPermission(held, r) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one required permission is satisfied.
// An empty required list is never satisfied.
func HasAny(held, required []string) bool {
	for _, r := range required {
		if HasPermission(held, r) {
			return true
		}
	}
	return false
}

// Missing returns the subset of required permissions not satisfied by the
// held set, preserving order. Callers use it to enumerate denials.
func Missing(held, required []string) []string {
	var missing []string
	for _, r := range required {
		if !HasPermission(held, r) {
			missing = append(missing, r)
		}
	}
	return missing
}
