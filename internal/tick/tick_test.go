package tick

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTick_Mid(t *testing.T) {
	tk := Tick{T: 1704067200, Bid: 1.1000, Ask: 1.1002}
	assert.InDelta(t, 1.1001, tk.Mid(), 1e-9)
}

func TestTick_Validate(t *testing.T) {
	cases := []struct {
		name    string
		tk      Tick
		wantErr bool
	}{
		{"valid", Tick{T: 1704067200, Bid: 1.1, Ask: 1.1002}, false},
		{"zero timestamp", Tick{T: 0, Bid: 1.1, Ask: 1.1002}, true},
		{"out of range year", Tick{T: 1893456000, Bid: 1.1, Ask: 1.1002}, true},
		{"nan timestamp", Tick{T: math.NaN(), Bid: 1.1, Ask: 1.1002}, true},
		{"zero bid", Tick{T: 1704067200, Bid: 0, Ask: 1.1002}, true},
		{"negative ask", Tick{T: 1704067200, Bid: 1.1, Ask: -1}, true},
		{"crossed spread", Tick{T: 1704067200, Bid: 1.2, Ask: 1.1}, true},
		{"equal spread", Tick{T: 1704067200, Bid: 1.1, Ask: 1.1}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.tk.Validate()
			if c.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
