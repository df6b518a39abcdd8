package cli

import (
	"github.com/dl-alexandre/gosync/internal/config"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/spf13/cobra"
)

var selectionCmd = &cobra.Command{
	Use:   "selection",
	Short: "Manage the mirrored remote folders",
	Long: `The sync selection lists the remote folders mirrored below the account
directory. Files directly in the drive root are always mirrored. Changing the
selection makes the next cycle run a full reconciliation.`,
}

var selectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the sync selection",
	Args:  cobra.NoArgs,
	RunE:  runSelectionList,
}

var selectionAddCmd = &cobra.Command{
	Use:   "add <remote-path>",
	Short: "Mirror a remote folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runSelectionAdd,
}

var selectionRemoveCmd = &cobra.Command{
	Use:   "remove <remote-path>",
	Short: "Stop mirroring a remote folder and everything below it",
	Args:  cobra.ExactArgs(1),
	RunE:  runSelectionRemove,
}

var selectionResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Mirror the whole drive",
	Args:  cobra.NoArgs,
	RunE:  runSelectionReset,
}

func init() {
	selectionCmd.AddCommand(selectionListCmd, selectionAddCmd, selectionRemoveCmd, selectionResetCmd)
	rootCmd.AddCommand(selectionCmd)
}

type selectionResult struct {
	Account   string           `json:"account"`
	Selection config.Selection `json:"syncSelection"`
}

func (r selectionResult) AsTableRenderer() types.TableRenderer {
	rows := make([][]string, 0, len(r.Selection))
	for _, entry := range r.Selection {
		id := entry.ID
		if id == "" {
			id = "-"
		}
		rows = append(rows, []string{entry.Path, id})
	}
	return table{
		headers: []string{"Path", "Folder ID"},
		rows:    rows,
		empty:   "No folders selected",
	}
}

func runSelectionList(cmd *cobra.Command, args []string) error {
	out := newOutput()
	s, err := openSession(out, true)
	if err != nil {
		return err
	}
	return out.WriteSuccess("selection list", selectionResult{
		Account:   s.account,
		Selection: s.store.Get(s.account).SyncSelection,
	})
}

func runSelectionAdd(cmd *cobra.Command, args []string) error {
	return changeSelection(cmd, "selection add", args[0], true)
}

func runSelectionRemove(cmd *cobra.Command, args []string) error {
	return changeSelection(cmd, "selection remove", args[0], false)
}

func runSelectionReset(cmd *cobra.Command, args []string) error {
	return changeSelection(cmd, "selection reset", "", true)
}

func changeSelection(cmd *cobra.Command, command, p string, add bool) error {
	out := newOutput()
	s, err := openSession(out, true)
	if err != nil {
		return err
	}
	eng, closeIndex, err := s.engine(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer closeIndex()

	if add {
		err = eng.SetSyncSelection(cmd.Context(), p)
	} else {
		err = eng.RemoveSyncSelection(p)
	}
	if err != nil {
		return err
	}

	// the engine's full sync request dies with this process; dropping the
	// change token carries it over to the next run
	err = s.store.Update(s.account, func(c *config.AccountConfig) {
		c.ChangeToken = ""
	})
	if err != nil {
		return err
	}
	return out.WriteSuccess(command, selectionResult{
		Account:   s.account,
		Selection: eng.Selection(),
	})
}
