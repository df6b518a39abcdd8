package cli

import (
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dl-alexandre/gosync/internal/config"
	"github.com/dl-alexandre/gosync/internal/events"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show drive usage by category",
	Long: `Show the byte totals of the remote drive split into audio, video,
documents, photos and everything else. The totals are cached; they are
recomputed when a sync changed something since or --refresh is given.`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

var usageRefresh bool

func init() {
	usageCmd.Flags().BoolVar(&usageRefresh, "refresh", false, "Recompute the totals even when the cache is current")
	rootCmd.AddCommand(usageCmd)
}

const usageBarTemplate = `{{ string . "prefix" }} {{ counters . }} files {{ etime . }}`

// usageProgress feeds UsageProgress events into a running file counter
type usageProgress struct {
	bar *pb.ProgressBar
}

func newUsageProgress(out *OutputWriter) *usageProgress {
	if out.quiet || out.format == types.OutputFormatJSON {
		return &usageProgress{}
	}
	bar := pb.New64(0)
	bar.SetTemplateString(usageBarTemplate)
	bar.Set("prefix", "Scanning")
	bar.SetWriter(out.errW)
	bar.SetRefreshRate(200 * time.Millisecond)
	return &usageProgress{bar: bar}
}

func (p *usageProgress) Notify(e events.Event) {
	if p.bar == nil {
		return
	}
	switch ev := e.(type) {
	case events.UsageStarted:
		p.bar.Start()
	case events.UsageProgress:
		p.bar.SetCurrent(ev.FilesScanned)
	case events.UsageDone:
		if p.bar.IsStarted() {
			p.bar.Finish()
		}
	}
}

type usageResult struct {
	Account string             `json:"account"`
	Usage   *config.DriveUsage `json:"usage"`
}

func (r usageResult) AsTableRenderer() types.TableRenderer {
	u := r.Usage
	if u == nil {
		return table{empty: "No usage computed yet"}
	}
	rows := [][]string{
		{"Audio", formatSize(u.AudioSize)},
		{"Movies", formatSize(u.MoviesSize)},
		{"Documents", formatSize(u.DocumentSize)},
		{"Photos", formatSize(u.PhotoSize)},
		{"Others", formatSize(u.OthersSize)},
		{"Total", formatSize(u.TotalSize) + " in " + humanize.Comma(u.TotalFiles) + " files"},
	}
	if u.QuotaLimit > 0 {
		rows = append(rows, []string{"Quota", formatSize(u.QuotaLimit)})
	}
	if !u.ComputedAt.IsZero() {
		rows = append(rows, []string{"Computed", humanize.Time(u.ComputedAt)})
	}
	return table{headers: []string{"Category", "Size"}, rows: rows}
}

func runUsage(cmd *cobra.Command, args []string) error {
	out := newOutput()
	s, err := openSession(out, true)
	if err != nil {
		return err
	}
	eng, closeIndex, err := s.engine(cmd.Context(), newUsageProgress(out))
	if err != nil {
		return err
	}
	defer closeIndex()

	usage, err := eng.CalculateUsage(cmd.Context(), usageRefresh)
	if err != nil {
		return err
	}
	return out.WriteSuccess("usage", usageResult{Account: s.account, Usage: usage})
}
