package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newWatchCmd(opts *options) *cobra.Command {
	var delay time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run the fixture's checks every time the file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			defer watcher.Close()

			// editors often replace the file, so watch its directory
			path, err := filepath.Abs(opts.fixturePath)
			if err != nil {
				return err
			}
			if err := watcher.Add(filepath.Dir(path)); err != nil {
				return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
			}

			out := cmd.OutOrStdout()
			run := func() {
				evaluate(cmd.Context(), out, opts, path)
			}
			run()
			opts.log.Infof("watching %s", path)
			return watchLoop(cmd.Context(), watcher, path, delay, opts.log, run)
		},
	}

	cmd.Flags().DurationVar(&delay, "delay", 250*time.Millisecond, "Wait this long after the last change before re-running")
	return cmd
}

// evaluate reloads the fixture and reports its checks; failures are
// reported, not returned, so the watch keeps going.
func evaluate(ctx context.Context, out io.Writer, opts *options, path string) {
	fmt.Fprintf(out, "--- %s %s\n", filepath.Base(path), time.Now().Format(time.TimeOnly))
	s, err := loadSite(ctx, path, opts.log)
	if err != nil {
		fmt.Fprintf(out, "fixture error: %v\n", err)
		return
	}
	results, err := s.runChecks(ctx)
	if err != nil {
		fmt.Fprintf(out, "check error: %v\n", err)
		return
	}
	if err := reportChecks(out, results, opts.json); err != nil {
		opts.log.Warn(err.Error())
	}
}

// watchLoop calls run once changes to path have been quiet for delay
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, delay time.Duration, log *logrus.Logger, run func()) error {
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.WithField("op", event.Op.String()).Debug("fixture changed")
			if timer == nil {
				timer = time.NewTimer(delay)
			} else {
				timer.Reset(delay)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			run()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("watcher error")
		}
	}
}
