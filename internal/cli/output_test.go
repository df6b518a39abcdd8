package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dl-alexandre/gosync/internal/config"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
)

func testOutput(format types.OutputFormat) (*OutputWriter, *bytes.Buffer, *bytes.Buffer) {
	out := NewOutputWriter(format, false, false)
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	out.w = stdout
	out.errW = stderr
	return out, stdout, stderr
}

func TestWriteSuccessJSONEnvelope(t *testing.T) {
	out, stdout, _ := testOutput(types.OutputFormatJSON)
	out.AddWarning(utils.ErrCodeConfigLoadFailed, "configuration was reset", "warning")

	if err := out.WriteSuccess("selection list", map[string]string{"account": "user@example.com"}); err != nil {
		t.Fatalf("WriteSuccess failed: %v", err)
	}

	var envelope types.CLIOutput
	if err := json.Unmarshal(stdout.Bytes(), &envelope); err != nil {
		t.Fatalf("Expected valid JSON, got %v: %s", err, stdout.String())
	}
	if envelope.Command != "selection list" {
		t.Errorf("Expected command 'selection list', got %s", envelope.Command)
	}
	if envelope.SchemaVersion != utils.SchemaVersion {
		t.Errorf("Expected schema %s, got %s", utils.SchemaVersion, envelope.SchemaVersion)
	}
	if envelope.TraceID == "" {
		t.Error("Expected a trace id")
	}
	if len(envelope.Warnings) != 1 || envelope.Warnings[0].Code != utils.ErrCodeConfigLoadFailed {
		t.Errorf("Expected the config warning, got %v", envelope.Warnings)
	}
}

func TestWriteSuccessTable(t *testing.T) {
	out, stdout, _ := testOutput(types.OutputFormatTable)
	result := selectionResult{
		Account:   "user@example.com",
		Selection: config.Selection{{Path: "Photos", ID: "id-photos"}},
	}
	if err := out.WriteSuccess("selection list", result); err != nil {
		t.Fatalf("WriteSuccess failed: %v", err)
	}
	got := stdout.String()
	if !strings.Contains(got, "Photos") || !strings.Contains(got, "id-photos") {
		t.Errorf("Expected the selected folder in the table, got:\n%s", got)
	}
}

func TestWriteSuccessEmptyTable(t *testing.T) {
	out, stdout, _ := testOutput(types.OutputFormatTable)
	if err := out.WriteSuccess("tree", treeResult{Account: "user@example.com"}); err != nil {
		t.Fatalf("WriteSuccess failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "Tree cache is empty") {
		t.Errorf("Expected empty message, got %q", stdout.String())
	}
}

func TestWriteErrorTable(t *testing.T) {
	out, stdout, stderr := testOutput(types.OutputFormatTable)
	cliErr := utils.NewCLIError(utils.ErrCodeAuthRequired, "sign in first").Build()
	if err := out.WriteError("sync", cliErr); err != nil {
		t.Fatalf("WriteError failed: %v", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("Expected nothing on stdout, got %q", stdout.String())
	}
	if got := stderr.String(); got != "Error: sign in first (AUTH_REQUIRED)\n" {
		t.Errorf("Expected error line, got %q", got)
	}
}

func TestQuietSuppressesNotices(t *testing.T) {
	out, _, stderr := testOutput(types.OutputFormatTable)
	out.quiet = true
	out.Log("Synced %s", "user@example.com")
	out.Verbose("not shown")
	if stderr.Len() != 0 {
		t.Errorf("Expected no output, got %q", stderr.String())
	}
}

func TestReportErrorExitCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", utils.NewCLIError(utils.ErrCodeInvalidSyncSelection, "missing").Err(), utils.ExitInvalidSyncSelection},
		{"wrapped app error", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeDiskFull, "full").Build(), errors.New("enospc")), utils.ExitDiskFull},
		{"cancelled", context.Canceled, utils.ExitCancelled},
		{"plain error", errors.New("boom"), utils.ExitUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, _ := testOutput(types.OutputFormatTable)
			if got := reportError(out, "sync", tt.err); got != tt.want {
				t.Errorf("Expected exit code %d, got %d", tt.want, got)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "-"},
		{-1, "-"},
		{512, "512 B"},
		{1536, "1.5 KiB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.in); got != tt.want {
			t.Errorf("formatSize(%d): Expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("Expected short, got %s", got)
	}
	if got := truncate("a-very-long-name", 10); got != "a-very-..." {
		t.Errorf("Expected a-very-..., got %s", got)
	}
}
