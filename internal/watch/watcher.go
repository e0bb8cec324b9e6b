// Package watch turns ledger files dropped into the inbox into IMPORT jobs.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"repairdesk/internal/config"
	"repairdesk/internal/importer"
	"repairdesk/internal/jobs"
)

// Watcher monitors INBOX_DIR for new ledger files and enqueues import jobs.
type Watcher struct {
	cfg    config.Config
	runner *jobs.Runner
	log    *slog.Logger
}

func New(cfg config.Config, runner *jobs.Runner, log *slog.Logger) *Watcher {
	return &Watcher{cfg: cfg, runner: runner, log: log}
}

func (w *Watcher) Start(ctx context.Context) error {
	if !w.cfg.EnableWatcher {
		w.log.Info("watcher disabled")
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.cfg.InboxDir); err != nil {
		watcher.Close()
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if evt.Op&(fsnotify.Create|fsnotify.Rename) == 0 || !importer.IsLedgerFile(evt.Name) {
					continue
				}
				name := filepath.Base(evt.Name)
				if _, err := w.runner.Enqueue(ctx, name, jobs.StageImport, nil); err != nil {
					w.log.Warn("enqueue import failed", "file", name, "err", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.log.Error("watcher error", "err", err)
			}
		}
	}()
	w.log.Info("watching inbox", "dir", w.cfg.InboxDir)
	return nil
}
