package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/entmoot/internal/console"
)

const debounceWindow = 100 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch PATH...",
	Short: "Reload PATHs into a fresh session whenever they change",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watch(ctx, cmd.OutOrStdout(), args)
	},
}

func watch(ctx context.Context, out io.Writer, paths []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dirs, err := watchDirs(paths)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	reload(ctx, out, paths)

	timer := time.NewTimer(debounceWindow)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			if logger != nil {
				logger.Debug("change", zap.String("path", ev.Name), zap.Stringer("op", ev.Op))
			}
			timer.Reset(debounceWindow)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if logger != nil {
				logger.Warn("watcher error", zap.Error(err))
			}
		case <-timer.C:
			reload(ctx, out, paths)
		}
	}
}

// reload runs paths in a fresh session and prints the outcome.
func reload(ctx context.Context, out io.Writer, paths []string) {
	fmt.Fprintf(out, "--- %s\n", time.Now().Format(time.TimeOnly))
	if err := runPaths(ctx, out, paths, false); err != nil {
		console.New(out, false).Error(err)
	}
}

// watchDirs returns the directories to watch: each directory argument with
// its subdirectories, and the parent of each file argument. Editors often
// replace files on save, so files are watched through their directory.
func watchDirs(paths []string) ([]string, error) {
	seen := map[string]bool{}
	var dirs []string
	add := func(dir string) {
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(filepath.Dir(path))
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return dirs, nil
}

func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return false
	}
	switch strings.ToLower(filepath.Ext(ev.Name)) {
	case ".ent", ".md", ".markdown":
		return true
	default:
		return false
	}
}
