package historical

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxcore/tickpipe/internal/fxerr"
	"github.com/fxcore/tickpipe/internal/netutil"
)

func newTestProviderClient() *netutil.ProviderClient {
	return netutil.NewProviderClient(netutil.ProviderClientConfig{
		Provider:       "test",
		RequestTimeout: time.Second,
		RPS:            1000,
		Burst:          1000,
		DailyLimit:     1000000,
	})
}

func TestHTTPProvider_Fetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"t":1700000000000,"bid":1.1,"ask":1.1002}]`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(newTestProviderClient(), srv.URL)
	ticks, err := p.Fetch(context.Background(), "EURUSD", time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, int64(1700000000000), ticks[0].TimestampMS)
}

func TestHTTPProvider_Fetch_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewHTTPProvider(newTestProviderClient(), srv.URL)
	_, err := p.Fetch(context.Background(), "EURUSD", time.Now(), time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.ErrorIs(t, err, fxerr.ErrAuth)
}

func TestHTTPProvider_Fetch_ProviderBuffer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewHTTPProvider(newTestProviderClient(), srv.URL)
	_, err := p.Fetch(context.Background(), "EURUSD", time.Now(), time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.ErrorIs(t, err, fxerr.ErrProviderBuffer)
}
