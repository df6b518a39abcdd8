package sync

import (
	"context"
	"fmt"

	"github.com/dl-alexandre/gosync/internal/config"
	"github.com/dl-alexandre/gosync/internal/logging"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
)

// SetSyncSelection adds the remote folder at p to the selection, or resets
// the selection to the whole drive when p is empty. The bare name root also
// resets unless the drive has a top-level folder of that name. The next cycle
// runs a full reconciliation.
func (e *Engine) SetSyncSelection(ctx context.Context, p string) error {
	p = config.CleanPath(p)
	e.mu.Lock()
	defer e.mu.Unlock()

	id := ""
	if p != "" {
		var folder *types.DriveFile
		err := e.withConnectivity(ctx, func() error {
			var err error
			folder, err = e.locateRemote(ctx, p, false)
			return err
		})
		switch {
		case utils.IsNotFound(err) && p == utils.RootSelectionPath:
		case utils.IsNotFound(err):
			return utils.NewCLIError(utils.ErrCodeInvalidSyncSelection,
				fmt.Sprintf("remote folder %s does not exist", displayPath(p))).
				WithContext("path", p).Err()
		case err != nil:
			return err
		default:
			id = folder.ID
		}
	}

	err := e.store.Update(e.account, func(c *config.AccountConfig) {
		c.SyncSelection = c.SyncSelection.Add(p, id)
	})
	if err != nil {
		return err
	}
	e.logger.Info("Sync selection updated", logging.F("added", p))
	e.ForceFullSync()
	return nil
}

// RemoveSyncSelection drops p and anything selected below it. Local copies
// outside the new selection are pruned by the next full reconciliation.
func (e *Engine) RemoveSyncSelection(p string) error {
	p = config.CleanPath(p)
	e.mu.Lock()
	defer e.mu.Unlock()

	sel := e.store.Get(e.account).SyncSelection
	if !sel.Contains(p) {
		return utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("%s is not part of the sync selection", displayPath(p))).Err()
	}
	err := e.store.Update(e.account, func(c *config.AccountConfig) {
		c.SyncSelection = c.SyncSelection.Remove(p)
	})
	if err != nil {
		return err
	}
	e.logger.Info("Sync selection updated", logging.F("removed", p))
	e.ForceFullSync()
	return nil
}
