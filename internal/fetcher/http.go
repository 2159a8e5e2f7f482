package fetcher

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/plansight/enroll-cli/internal/resilience"
)

// HTTPFetcher downloads source files over HTTP with a shared rate limiter,
// so bulk historical loads stay polite to the publisher. Transient server
// failures are retried with backoff; a 404 is a final answer.
type HTTPFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	retry   resilience.Policy
}

// NewHTTP creates an HTTPFetcher allowing rps requests per second.
func NewHTTP(rps float64, timeout time.Duration) *HTTPFetcher {
	if rps <= 0 {
		rps = 2
	}
	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		retry:   resilience.DefaultPolicy(),
	}
}

// Fetch downloads the URI. A 404 or 410 maps to ErrNotFound.
func (f *HTTPFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	return resilience.Do(ctx, f.retry, "http get "+uri, func(ctx context.Context) ([]byte, error) {
		return f.get(ctx, uri)
	})
}

func (f *HTTPFetcher) get(ctx context.Context, uri string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "http: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "http: build request for %s", uri)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "http: get %s", uri)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return nil, eris.Wrapf(ErrNotFound, "http: %s", uri)
	case resilience.TransientStatus(resp.StatusCode):
		return nil, resilience.MarkTransient(
			eris.Errorf("http: get %s: status %d", uri, resp.StatusCode), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("http: get %s: unexpected status %d", uri, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "http: read body of %s", uri)
	}
	return body, nil
}
