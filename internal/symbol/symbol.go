// Package symbol canonicalizes instrument identifiers across venues.
//
// The canonical form is opaque, uppercase, and slashless (e.g. EURUSD).
// Each Broker Session owns the mapping between its own wire form and the
// canonical one.
package symbol

import (
	"strings"

	"github.com/fxcore/tickpipe/internal/fxerr"
)

// Canonicalize strips separators and upper-cases s. It is idempotent:
// Canonicalize(Canonicalize(x)) == Canonicalize(x).
func Canonicalize(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	replacer := strings.NewReplacer("/", "", "-", "", "_", "", " ", "")
	return replacer.Replace(s)
}

// Valid reports whether s is a well-formed canonical symbol: non-empty,
// uppercase letters only, no separators.
func Valid(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Allowlist is a fixed set of instruments the historical importer is
// permitted to operate on.
type Allowlist map[string]struct{}

// NewAllowlist canonicalizes and indexes the given symbols.
func NewAllowlist(symbols ...string) Allowlist {
	a := make(Allowlist, len(symbols))
	for _, s := range symbols {
		a[Canonicalize(s)] = struct{}{}
	}
	return a
}

// Check returns fxerr.ErrInvalidInput if symbol is not present in the
// allowlist (after canonicalization).
func (a Allowlist) Check(sym string) error {
	if _, ok := a[Canonicalize(sym)]; !ok {
		return fxerr.ErrInvalidInput
	}
	return nil
}

// DefaultAllowlist is the baseline set of major forex pairs the
// historical importer and CLI validate against when no override is
// configured.
func DefaultAllowlist() Allowlist {
	return NewAllowlist(
		"EURUSD", "GBPUSD", "USDJPY", "USDCHF", "AUDUSD",
		"USDCAD", "NZDUSD", "EURGBP", "EURJPY", "GBPJPY",
	)
}
