package lake

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxcore/tickpipe/internal/tick"
)

func TestKey_Format(t *testing.T) {
	asOf := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "ticks/EURUSD/2026/03/07/part-1.json", Key("EURUSD", asOf, 1))
}

func TestKey_UsesUTCEvenForNonUTCInput(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	asOf := time.Date(2026, 3, 7, 23, 30, 0, 0, loc) // 2026-03-08 04:30 UTC
	assert.Equal(t, "ticks/EURUSD/2026/03/08/part-1.json", Key("EURUSD", asOf, 1))
}

func TestMemoryStore_UploadGetList(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	asOf := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)

	blob := Blob{Symbol: "EURUSD", Ticks: []tick.Tick{{T: 1, Bid: 1.1, Ask: 1.1001}}}
	key, err := store.Upload(ctx, "EURUSD", asOf, 1, blob)
	require.NoError(t, err)

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	keys, err := store.List(ctx, "EURUSD", asOf)
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)
}

func TestMemoryStore_GetMissingKey(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "ticks/EURUSD/2026/03/07/part-1.json")
	assert.Error(t, err)
}

func TestBlob_MarshalJSON_IsBareArray(t *testing.T) {
	blob := Blob{Symbol: "EURUSD", Ticks: []tick.Tick{{T: 1, Bid: 1.1, Ask: 1.1001}}}
	data, err := json.Marshal(blob)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"timestamp":1,"bid":1.1,"ask":1.1001}]`, string(data))
}

func TestBlob_UnmarshalJSON_FromBareArray(t *testing.T) {
	var blob Blob
	err := json.Unmarshal([]byte(`[{"timestamp":1,"bid":1.1,"ask":1.1001}]`), &blob)
	require.NoError(t, err)
	assert.Equal(t, []tick.Tick{{T: 1, Bid: 1.1, Ask: 1.1001}}, blob.Ticks)
	assert.Empty(t, blob.Symbol)
}

func TestParseKey_RecoversSymbolAndDate(t *testing.T) {
	sym, date, ok := ParseKey("ticks/EURUSD/2026/03/07/part-1.json")
	require.True(t, ok)
	assert.Equal(t, "EURUSD", sym)
	assert.Equal(t, time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC), date)
}
