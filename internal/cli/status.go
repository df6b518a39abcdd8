package cli

import (
	"strconv"
	"time"

	"github.com/dl-alexandre/gosync/internal/sync/index"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local sync state of the account",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusResult struct {
	Account      string    `json:"account"`
	MirrorDir    string    `json:"mirrorDir"`
	SignedIn     bool      `json:"signedIn"`
	HasToken     bool      `json:"hasChangeToken"`
	AutoStart    bool      `json:"autoStart"`
	Selected     []string  `json:"syncSelection"`
	CachedNodes  int       `json:"cachedNodes"`
	LastSync     time.Time `json:"lastSync,omitempty"`
	LastFullSync time.Time `json:"lastFullSync,omitempty"`
	FreeSpace    uint64    `json:"freeSpace"`
}

func (r statusResult) AsTableRenderer() types.TableRenderer {
	when := func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return humanize.Time(t)
	}
	free := "-"
	if r.FreeSpace > 0 {
		free = humanize.IBytes(r.FreeSpace)
	}
	rows := [][]string{
		{"Account", r.Account},
		{"Mirror", r.MirrorDir},
		{"Signed in", strconv.FormatBool(r.SignedIn)},
		{"Auto start", strconv.FormatBool(r.AutoStart)},
		{"Change token", strconv.FormatBool(r.HasToken)},
		{"Cached entries", humanize.Comma(int64(r.CachedNodes))},
		{"Last sync", when(r.LastSync)},
		{"Last full sync", when(r.LastFullSync)},
		{"Free space", free},
	}
	for _, p := range r.Selected {
		rows = append(rows, []string{"Selected", p})
	}
	return table{headers: []string{"Field", "Value"}, rows: rows}
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := newOutput()
	s, err := openSession(out, true)
	if err != nil {
		return err
	}
	cfg := s.store.Get(s.account)
	mirror, err := cfg.MirrorDir(s.account)
	if err != nil {
		return err
	}

	result := statusResult{
		Account:   s.account,
		MirrorDir: mirror,
		HasToken:  cfg.ChangeToken != "",
		AutoStart: cfg.AutoStart,
		FreeSpace: freeSpace(mirror),
	}
	for _, entry := range cfg.SyncSelection {
		result.Selected = append(result.Selected, entry.Path)
	}
	if _, err := s.auth.LoadCredentials(s.account); err == nil {
		result.SignedIn = true
	}

	db, err := s.openIndex()
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := cmd.Context()
	if t, err := db.LoadTree(ctx, s.account); err == nil {
		// the root node is not an entry
		result.CachedNodes = t.Len() - 1
	}
	if result.LastSync, err = db.GetTime(ctx, s.account, index.StateLastSync); err != nil {
		return err
	}
	if result.LastFullSync, err = db.GetTime(ctx, s.account, index.StateLastFullSync); err != nil {
		return err
	}
	return out.WriteSuccess("status", result)
}
