package historical

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fxcore/tickpipe/internal/fxerr"
	"github.com/fxcore/tickpipe/internal/netutil"
)

// HTTPProvider implements Fetcher against a REST historical-tick
// endpoint, routed through netutil.ProviderClient for pacing, a daily
// budget, and circuit breaking (spec.md §4.D's "finite retry budget,
// never infinite retry" contract lives in ProviderClient, not here).
type HTTPProvider struct {
	client  *netutil.ProviderClient
	baseURL string
}

// NewHTTPProvider builds an HTTPProvider. baseURL points at the
// provider's tick-history endpoint root, e.g. "https://history.example.com".
func NewHTTPProvider(client *netutil.ProviderClient, baseURL string) *HTTPProvider {
	return &HTTPProvider{client: client, baseURL: baseURL}
}

type tickRecord struct {
	T   int64   `json:"t"`
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// Fetch requests raw ticks for instrument over [from, to) and maps the
// provider's HTTP response into historical.RawTick and the fxerr
// taxonomy: 401/403 is an auth failure, 429/503 is the provider's
// "buffer" signature, anything else is a transport error.
func (p *HTTPProvider) Fetch(ctx context.Context, instrument string, from, to time.Time) ([]RawTick, error) {
	url := fmt.Sprintf("%s/v1/ticks?instrument=%s&from=%d&to=%d",
		p.baseURL, instrument, from.UnixMilli(), to.UnixMilli())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("historical: build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &fxerr.TransportError{Endpoint: url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &fxerr.AuthError{Venue: instrument, Err: fmt.Errorf("http %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return nil, &fxerr.ProviderBufferError{
			Symbol:       instrument,
			ChunkStartMS: from.UnixMilli(),
			ChunkEndMS:   to.UnixMilli(),
			Err:          fmt.Errorf("http %d", resp.StatusCode),
		}
	case resp.StatusCode >= 400:
		return nil, &fxerr.TransportError{Endpoint: url, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &fxerr.TransportError{Endpoint: url, Err: err}
	}

	var records []tickRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("historical: decode response: %w", err)
	}

	out := make([]RawTick, len(records))
	for i, r := range records {
		out[i] = RawTick{TimestampMS: r.T, Bid: r.Bid, Ask: r.Ask}
	}
	return out, nil
}
