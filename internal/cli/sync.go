package cli

import (
	"strconv"

	"github.com/dl-alexandre/gosync/internal/config"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle and exit",
	Long: `Validate the sync selection and run one cycle: a full reconciliation when
no change token is stored or --full is given, otherwise the incremental
change log.`,
	Args: cobra.NoArgs,
	RunE: runSyncOnce,
}

var syncFull bool

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "Reconcile the whole tree instead of applying the change log")
	rootCmd.AddCommand(syncCmd)
}

type syncResult struct {
	Account     string           `json:"account"`
	MirrorDir   string           `json:"mirrorDir"`
	Full        bool             `json:"full"`
	CachedNodes int              `json:"cachedNodes"`
	Selection   config.Selection `json:"syncSelection"`
}

func runSyncOnce(cmd *cobra.Command, args []string) error {
	out := newOutput()
	s, err := openSession(out, true)
	if err != nil {
		return err
	}
	eng, closeIndex, err := s.engine(cmd.Context(), eventLogger())
	if err != nil {
		return err
	}
	defer closeIndex()

	full := syncFull || s.store.Get(s.account).ChangeToken == ""
	err = eng.RunOnce(cmd.Context(), syncFull)
	eng.Shutdown()
	if err != nil {
		return err
	}

	status := eng.Status()
	return out.WriteSuccess("sync", syncResult{
		Account:     s.account,
		MirrorDir:   status.MirrorDir,
		Full:        full,
		CachedNodes: status.CachedNodes,
		Selection:   status.Selection,
	})
}

func (r syncResult) AsTableRenderer() types.TableRenderer {
	mode := "incremental"
	if r.Full {
		mode = "full"
	}
	return table{
		headers: []string{"Account", "Mirror", "Mode", "Cached"},
		rows:    [][]string{{r.Account, r.MirrorDir, mode, strconv.Itoa(r.CachedNodes)}},
	}
}
