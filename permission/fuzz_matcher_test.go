package permission

import (
	"strings"
	"testing"
)

// FuzzMatches checks the fail-closed contract: no input pair may panic, and a
// held string that does not parse must never grant anything.
func FuzzMatches(f *testing.F) {
	f.Add("billing:invoices:read", "billing:invoices:read")
	f.Add("billing:*:read", "billing:read")
	f.Add("", "billing:read")
	f.Add("a:b:c:d", "a:b:c")
	f.Add("billing::read", "billing:*:*")

	f.Fuzz(func(t *testing.T, held, required string) {
		got := Matches(held, required)

		if _, ok := Parse(held); !ok && got {
			t.Fatalf("unparseable held %q matched %q", held, required)
		}
		if _, ok := Parse(required); !ok && got {
			t.Fatalf("unparseable required %q matched %q", required, held)
		}
		if got {
			hd := strings.SplitN(held, ":", 2)[0]
			rd := strings.SplitN(required, ":", 2)[0]
			if hd != rd {
				t.Fatalf("cross-domain match: %q vs %q", held, required)
			}
		}
	})
}
