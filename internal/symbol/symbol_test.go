package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize(t *testing.T) {
	assert.Equal(t, "EURUSD", Canonicalize("eur/usd"))
	assert.Equal(t, "EURUSD", Canonicalize("EUR-USD"))
	assert.Equal(t, "EURUSD", Canonicalize("  eurusd  "))
}

func TestCanonicalize_Idempotent(t *testing.T) {
	for _, in := range []string{"eur/usd", "GBP_JPY", "usdchf"} {
		once := Canonicalize(in)
		twice := Canonicalize(once)
		assert.Equal(t, once, twice)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("EURUSD"))
	assert.False(t, Valid("EUR/USD"))
	assert.False(t, Valid(""))
	assert.False(t, Valid("eurusd"))
}

func TestAllowlist_Check(t *testing.T) {
	a := NewAllowlist("EURUSD", "GBPUSD")
	assert.NoError(t, a.Check("eur/usd"))
	assert.Error(t, a.Check("XAUUSD"))
}
