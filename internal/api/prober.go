package api

import (
	"context"
	"net/http"
	"time"

	"github.com/dl-alexandre/gosync/internal/utils"
	"github.com/jonboulle/clockwork"
)

// Prober reports whether the internet is reachable
type Prober interface {
	Reachable(ctx context.Context) bool
}

// ProberFunc adapts a function to Prober
type ProberFunc func(ctx context.Context) bool

func (f ProberFunc) Reachable(ctx context.Context) bool {
	return f(ctx)
}

// AlwaysReachable never reports an outage
type AlwaysReachable struct{}

func (AlwaysReachable) Reachable(context.Context) bool { return true }

// HTTPProber sends a HEAD request to a well-known endpoint with a short timeout
type HTTPProber struct {
	URL    string
	client *http.Client
}

func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	if url == "" {
		url = utils.ConnectivityProbeURL
	}
	if timeout <= 0 {
		timeout = utils.ConnectivityTimeout
	}
	return &HTTPProber{URL: url, client: &http.Client{Timeout: timeout}}
}

// Reachable is true when any HTTP response comes back
func (p *HTTPProber) Reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// WaitForConnectivity polls prober every interval until it succeeds or ctx ends
func WaitForConnectivity(ctx context.Context, prober Prober, clock clockwork.Clock, interval time.Duration) error {
	for {
		if prober.Reachable(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(interval):
		}
	}
}
