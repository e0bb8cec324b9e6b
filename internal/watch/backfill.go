package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"repairdesk/internal/importer"
	"repairdesk/internal/jobs"
)

// Candidate is an inbox file considered for backfill.
type Candidate struct {
	Filename string
	ModTime  time.Time
	Imported bool
}

// Summary captures backfill execution counts.
type Summary struct {
	TotalCandidates     int `json:"total"`
	AlreadyImported     int `json:"already_imported"`
	Pending             int `json:"pending"`
	SelectedForBackfill int `json:"selected"`
	EnqueueSucceeded    int `json:"enqueued"`
	EnqueueDroppedFull  int `json:"dropped_full"`
	EnqueueFailed       int `json:"failed"`
}

// SelectPending returns up to limit not-yet-imported candidates, newest first.
func SelectPending(candidates []Candidate, limit int) ([]Candidate, Summary) {
	sorted := append([]Candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ModTime.After(sorted[j].ModTime)
	})

	summary := Summary{TotalCandidates: len(sorted)}
	pending := make([]Candidate, 0, len(sorted))
	for _, c := range sorted {
		if c.Imported {
			summary.AlreadyImported++
			continue
		}
		pending = append(pending, c)
	}
	summary.Pending = len(pending)
	if limit >= 0 && limit < len(pending) {
		pending = pending[:limit]
	}
	summary.SelectedForBackfill = len(pending)
	return pending, summary
}

// ImportChecker reports whether a file was already imported.
type ImportChecker interface {
	IsImported(ctx context.Context, filename string) (bool, error)
}

// ListCandidates scans dir for ledger files.
func ListCandidates(ctx context.Context, dir string, imports ImportChecker) ([]Candidate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []Candidate
	for _, e := range entries {
		if e.IsDir() || !importer.IsLedgerFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		done, err := imports.IsImported(ctx, e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, Candidate{Filename: e.Name(), ModTime: info.ModTime(), Imported: done})
	}
	return out, nil
}

// Backfill enqueues imports for ledger files already sitting in the inbox.
func (w *Watcher) Backfill(ctx context.Context, imports ImportChecker) (Summary, error) {
	candidates, err := ListCandidates(ctx, w.cfg.InboxDir, imports)
	if err != nil {
		return Summary{}, err
	}
	selected, summary := SelectPending(candidates, w.cfg.BackfillLimit)
	for _, c := range selected {
		_, err := w.runner.Enqueue(ctx, filepath.Base(c.Filename), jobs.StageImport, nil)
		switch {
		case err == nil:
			summary.EnqueueSucceeded++
		case errors.Is(err, jobs.ErrQueueFull):
			summary.EnqueueDroppedFull++
		default:
			summary.EnqueueFailed++
		}
	}
	w.log.Info("backfill summary",
		"total", summary.TotalCandidates,
		"pending", summary.Pending,
		"selected", summary.SelectedForBackfill,
		"enqueued", summary.EnqueueSucceeded,
		"dropped_full", summary.EnqueueDroppedFull,
		"already_imported", summary.AlreadyImported)
	return summary, nil
}
