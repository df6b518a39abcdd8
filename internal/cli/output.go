package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
)

// OutputWriter renders command results as a JSON envelope or a table
type OutputWriter struct {
	format   types.OutputFormat
	quiet    bool
	verbose  bool
	w        io.Writer
	errW     io.Writer
	warnings []types.CLIWarning
}

// NewOutputWriter writes results to stdout and notices to stderr
func NewOutputWriter(format types.OutputFormat, quiet, verbose bool) *OutputWriter {
	return &OutputWriter{
		format:   format,
		quiet:    quiet,
		verbose:  verbose,
		w:        os.Stdout,
		errW:     os.Stderr,
		warnings: []types.CLIWarning{},
	}
}

func newOutput() *OutputWriter {
	return NewOutputWriter(globalFlags.OutputFormat, globalFlags.Quiet, globalFlags.Verbose)
}

// AddWarning attaches a warning to the next envelope
func (w *OutputWriter) AddWarning(code, message, severity string) {
	w.warnings = append(w.warnings, types.CLIWarning{
		Code:     code,
		Message:  message,
		Severity: severity,
	})
}

// WriteSuccess writes data under the command name
func (w *OutputWriter) WriteSuccess(command string, data interface{}) error {
	if w.format == types.OutputFormatJSON {
		return w.writeJSON(types.CLIOutput{
			SchemaVersion: utils.SchemaVersion,
			TraceID:       uuid.New().String(),
			Command:       command,
			Data:          data,
			Warnings:      w.warnings,
			Errors:        []types.CLIError{},
		})
	}
	for _, warning := range w.warnings {
		w.Log("Warning: %s", warning.Message)
	}
	return w.writeTable(data)
}

// WriteError writes a failed envelope, or a single line in table mode
func (w *OutputWriter) WriteError(command string, cliErr types.CLIError) error {
	if w.format != types.OutputFormatJSON {
		fmt.Fprintf(w.errW, "Error: %s (%s)\n", cliErr.Message, cliErr.Code)
		return nil
	}
	return w.writeJSON(types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       uuid.New().String(),
		Command:       command,
		Data:          nil,
		Warnings:      w.warnings,
		Errors:        []types.CLIError{cliErr},
	})
}

func (w *OutputWriter) writeJSON(output types.CLIOutput) error {
	encoder := json.NewEncoder(w.w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func (w *OutputWriter) writeTable(data interface{}) error {
	switch v := data.(type) {
	case types.TableRenderable:
		return w.renderTable(v.AsTableRenderer())
	case types.TableRenderer:
		return w.renderTable(v)
	case string:
		if !w.quiet {
			fmt.Fprintln(w.w, v)
		}
		return nil
	default:
		encoder := json.NewEncoder(w.w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	}
}

func (w *OutputWriter) renderTable(renderer types.TableRenderer) error {
	rows := renderer.Rows()
	if len(rows) == 0 {
		if !w.quiet {
			fmt.Fprintln(w.w, renderer.EmptyMessage())
		}
		return nil
	}

	table := tablewriter.NewWriter(w.w)
	table.SetHeader(renderer.Headers())
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(rows)
	table.Render()
	return nil
}

// Log writes a notice to stderr unless quiet
func (w *OutputWriter) Log(format string, args ...interface{}) {
	if !w.quiet {
		fmt.Fprintf(w.errW, format+"\n", args...)
	}
}

// Verbose writes to stderr when verbose is enabled
func (w *OutputWriter) Verbose(format string, args ...interface{}) {
	if w.verbose {
		fmt.Fprintf(w.errW, "[VERBOSE] "+format+"\n", args...)
	}
}

// toCLIError maps any error onto the taxonomy
func toCLIError(err error) types.CLIError {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError
	}
	if errors.Is(err, context.Canceled) {
		return utils.NewCLIError(utils.ErrCodeCancelled, "operation cancelled").Build()
	}
	return utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build()
}

// reportError prints err and returns the process exit code for it
func reportError(out *OutputWriter, command string, err error) int {
	cliErr := toCLIError(err)
	if writeErr := out.WriteError(command, cliErr); writeErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return utils.GetExitCode(cliErr.Code)
}

// table is a ready made TableRenderer
type table struct {
	headers []string
	rows    [][]string
	empty   string
}

func (t table) Headers() []string    { return t.headers }
func (t table) Rows() [][]string     { return t.rows }
func (t table) EmptyMessage() string { return t.empty }

func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytes))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
