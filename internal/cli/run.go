package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dl-alexandre/gosync/internal/events"
	"github.com/dl-alexandre/gosync/internal/logging"
	"github.com/dl-alexandre/gosync/internal/sync/exclude"
	"github.com/dl-alexandre/gosync/internal/watcher"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync daemon in the foreground",
	Long: `Run the periodic sync, the usage worker and the filesystem watcher until
interrupted. SIGINT or SIGTERM shut down cleanly, persisting the tree cache.`,
	RunE: runDaemon,
}

var (
	runNoWatch bool
	runStart   bool
)

func init() {
	runCmd.Flags().BoolVar(&runNoWatch, "no-watch", false, "Do not watch the mirror directory for local changes")
	runCmd.Flags().BoolVar(&runStart, "start", false, "Start syncing even when autoStart is disabled")
	rootCmd.AddCommand(runCmd)
}

// eventLogger turns engine events into log lines
func eventLogger() events.Observer {
	return events.ObserverFunc(func(e events.Event) {
		switch ev := e.(type) {
		case events.SyncTimer:
			if ev.SecondsLeft%60 == 0 {
				logger.Debug(events.Describe(e), logging.F("event", e.Kind()))
			}
		case events.UsageProgress:
			logger.Debug(events.Describe(e), logging.F("event", e.Kind()))
		case events.SyncDone:
			if !ev.Success && ev.Err != nil {
				logger.Warn(events.Describe(e), logging.F("event", e.Kind()))
				return
			}
			logger.Info(events.Describe(e), logging.F("event", e.Kind()))
		default:
			logger.Info(events.Describe(e), logging.F("event", e.Kind()))
		}
	})
}

func runDaemon(cmd *cobra.Command, args []string) error {
	out := newOutput()
	s, err := openSession(out, true)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, closeIndex, err := s.engine(ctx, eventLogger())
	if err != nil {
		return err
	}
	defer closeIndex()

	fs := afero.NewOsFs()
	if err := fs.MkdirAll(eng.MirrorDir(), 0755); err != nil {
		return errors.Wrap(err, "create mirror directory")
	}
	logger.Info("Starting gosync",
		logging.F("account", s.account),
		logging.F("mirror", eng.MirrorDir()),
		logging.F("watch", !runNoWatch))

	var w *watcher.Watcher
	if !runNoWatch {
		w, err = watcher.New(watcher.Options{
			Root:    eng.MirrorDir(),
			Handler: eng,
			Fs:      fs,
			Matcher: exclude.New(nil),
			Logger:  logger,
		})
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	if w != nil {
		g.Go(func() error { return w.Run(gctx) })
	}
	if runStart {
		eng.StartSync()
	}

	err = g.Wait()
	eng.Shutdown()
	logger.Info("gosync stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
