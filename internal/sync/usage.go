package sync

import (
	"context"

	"github.com/dl-alexandre/gosync/internal/config"
	"github.com/dl-alexandre/gosync/internal/events"
	"github.com/dl-alexandre/gosync/internal/logging"
	"github.com/dl-alexandre/gosync/internal/sync/scanner"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
)

const usageProgressEvery = 100

// RequestUsage wakes the usage worker. Without force the aggregation is
// skipped when cached totals exist and no sync produced changes since.
func (e *Engine) RequestUsage(force bool) {
	if force {
		e.usageForce.Store(true)
	}
	e.usageGate.Set()
}

func (e *Engine) usageWorker(ctx context.Context) error {
	for {
		if err := e.usageGate.Wait(ctx); err != nil {
			return err
		}
		e.usageGate.Clear()
		if _, err := e.CalculateUsage(ctx, e.usageForce.Swap(false)); err != nil && ctx.Err() == nil {
			e.logger.Warn("Usage calculation failed", logging.Err(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// CalculateUsage walks the whole remote drive under the sync lock and stores
// per-category totals in the account configuration
func (e *Engine) CalculateUsage(ctx context.Context, force bool) (*config.DriveUsage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cached := e.store.Get(e.account).DriveUsage
	if cached != nil && !e.updated && !force {
		e.logger.Debug("Usage totals up to date")
		return cached, nil
	}

	e.notify(events.UsageStarted{})
	e.progress("Calculating drive usage")
	usage, err := e.aggregateUsage(ctx)
	if err != nil {
		e.notify(events.UsageDone{Success: false})
		return nil, err
	}

	err = e.store.Update(e.account, func(c *config.AccountConfig) {
		c.DriveUsage = usage
	})
	if err != nil {
		e.notify(events.UsageDone{Success: false})
		return nil, err
	}
	e.updated = false
	e.notify(events.UsageDone{Success: true})
	e.logger.Info("Usage calculated",
		logging.F("files", usage.TotalFiles),
		logging.F("bytes", usage.TotalSize))
	return usage, nil
}

func (e *Engine) aggregateUsage(ctx context.Context) (*config.DriveUsage, error) {
	var usage *config.DriveUsage
	err := e.withConnectivity(ctx, func() error {
		usage = &config.DriveUsage{}
		return scanner.WalkRemote(ctx, e.remote, utils.RootFolderID, func(_ scanner.RemoteEntry, f *types.DriveFile) error {
			if f.IsFolder() || f.IsNativeDocument() {
				return nil
			}
			usage.TotalFiles++
			usage.TotalSize += f.Size
			switch utils.CategoryForMimeType(f.MimeType) {
			case utils.CategoryAudio:
				usage.AudioSize += f.Size
			case utils.CategoryVideo:
				usage.MoviesSize += f.Size
			case utils.CategoryImage:
				usage.PhotoSize += f.Size
			case utils.CategoryDocument:
				usage.DocumentSize += f.Size
			default:
				usage.OthersSize += f.Size
			}
			if usage.TotalFiles%usageProgressEvery == 0 {
				e.notify(events.UsageProgress{FilesScanned: usage.TotalFiles})
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	var about *types.About
	err = e.withConnectivity(ctx, func() error {
		var err error
		about, err = e.remote.About(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	usage.QuotaLimit = about.QuotaLimit
	usage.ComputedAt = e.clock.Now()
	return usage, nil
}
