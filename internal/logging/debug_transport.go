package logging

import (
	"net/http"
	"time"
)

// DebugTransport logs each HTTP round trip at debug level
type DebugTransport struct {
	base   http.RoundTripper
	logger Logger
}

// NewDebugTransport wraps base; a nil base means http.DefaultTransport
func NewDebugTransport(base http.RoundTripper, logger Logger) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{base: base, logger: logger}
}

// Wrap returns a copy of the transport delegating to base
func (t *DebugTransport) Wrap(base http.RoundTripper) *DebugTransport {
	return NewDebugTransport(base, t.logger)
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	logger := t.logger.WithContext(req.Context())
	start := time.Now()

	fields := []Field{
		F("method", req.Method),
		F("url", req.URL.Redacted()),
	}
	if r := req.Header.Get("Range"); r != "" {
		fields = append(fields, F("range", r))
	}
	logger.Debug("HTTP request", fields...)

	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		logger.Debug("HTTP request failed", F("url", req.URL.Redacted()), F("durationMs", elapsed), Err(err))
		return nil, err
	}
	logger.Debug("HTTP response",
		F("url", req.URL.Redacted()),
		F("status", resp.StatusCode),
		F("durationMs", elapsed),
	)
	return resp, nil
}
