package logging

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"DEBUG":   DEBUG,
		"info":    INFO,
		"warning": WARN,
		"warn":    WARN,
		"error":   ERROR,
		"bogus":   INFO,
		"":        INFO,
	}
	for name, want := range tests {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestConsoleLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(ConsoleLoggerConfig{Writer: &buf, Level: DEBUG, RedactSensitive: true})

	logger.WithTraceID("abcdef123456").With(F("account", "a@b.c")).Info("Sync started", F("mode", "full"))

	got := strings.TrimSpace(buf.String())
	want := "INFO  [abcdef12] Sync started account=a@b.c, mode=full"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestConsoleLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(ConsoleLoggerConfig{Writer: &buf, Level: INFO, RedactSensitive: true})

	logger.Info("token refreshed", F("header", "Bearer ya29.secret"))

	if strings.Contains(buf.String(), "ya29.secret") {
		t.Errorf("Token was not redacted: %s", buf.String())
	}
}

func TestConsoleLogger_DerivedShareLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(ConsoleLoggerConfig{Writer: &buf, Level: DEBUG})
	derived := logger.With(F("component", "engine"))

	logger.SetLevel(ERROR)
	derived.Info("filtered")

	if buf.Len() != 0 {
		t.Errorf("Expected no output after SetLevel(ERROR), got %q", buf.String())
	}
}

func TestWithContextWithoutTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(ConsoleLoggerConfig{Writer: &buf, Level: INFO})

	if logger.WithContext(context.Background()) != Logger(logger) {
		t.Error("Expected the same logger when context carries no trace ID")
	}
}

func TestDebugTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := NewConsoleLogger(ConsoleLoggerConfig{Writer: &buf, Level: DEBUG})
	client := &http.Client{Transport: NewDebugTransport(nil, logger)}

	resp, err := client.Get(server.URL + "/changes")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	out := buf.String()
	if !strings.Contains(out, "HTTP request") || !strings.Contains(out, "status=204") {
		t.Errorf("Expected request and response lines, got %q", out)
	}
}
