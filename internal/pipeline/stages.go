// Package pipeline implements the job stages: ledger imports and repeat-risk
// sweeps.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"repairdesk/internal/config"
	"repairdesk/internal/importer"
	"repairdesk/internal/jobs"
	"repairdesk/internal/metrics"
	"repairdesk/internal/servicehistory"
	"repairdesk/internal/store"
)

// ErrBadSubject is returned for import subjects that are not plain file names.
var ErrBadSubject = errors.New("import subject must be a file name")

// BuildRegistry wires the stage functions.
func BuildRegistry(cfg config.Config, st *store.Store, svc *servicehistory.Service, m *metrics.Metrics) jobs.Registry {
	return jobs.Registry{
		jobs.StageImport: importStage(cfg, st, svc, m),
		jobs.StageSweep:  sweepStage(svc),
	}
}

func importStage(cfg config.Config, st *store.Store, svc *servicehistory.Service, m *metrics.Metrics) jobs.StageFunc {
	return func(ctx context.Context, exec jobs.ExecutionContext, subject string, params map[string]any) error {
		if subject == "" || filepath.Base(subject) != subject {
			return fmt.Errorf("%q: %w", subject, ErrBadSubject)
		}
		src := filepath.Join(cfg.InboxDir, subject)
		res, err := importer.ParseFile(src)
		if err != nil {
			return fmt.Errorf("parse %s: %w", subject, err)
		}
		for _, rej := range res.Rejected {
			exec.Logf("rejected record %d (id=%q): %s", rej.Index, rej.ID, rej.Error)
		}
		if len(res.Records) > 0 {
			if err := st.UpsertRecords(ctx, res.Records, subject); err != nil {
				return fmt.Errorf("store records: %w", err)
			}
		}
		m.RecordsImported.Add(float64(len(res.Records)))
		exec.Logf("imported %d records, rejected %d", len(res.Records), len(res.Rejected))

		if err := st.RecordImport(ctx, store.Import{
			Filename:   subject,
			ImportID:   res.ImportID,
			Records:    len(res.Records),
			Rejected:   len(res.Rejected),
			ImportedAt: config.Now(),
		}); err != nil {
			return fmt.Errorf("record import: %w", err)
		}

		dst := filepath.Join(cfg.ProcessedDir(), subject)
		if err := moveFile(src, dst); err != nil {
			return fmt.Errorf("archive %s: %w", subject, err)
		}
		exec.Logf("archived to %s", dst)

		out, err := svc.Evaluate(ctx, res.Contacts())
		if err != nil {
			return fmt.Errorf("evaluate: %w", err)
		}
		exec.Logf("evaluated %d contacts, %d flagged devices", out.Contacts, out.FlaggedDevices)
		return nil
	}
}

func sweepStage(svc *servicehistory.Service) jobs.StageFunc {
	return func(ctx context.Context, exec jobs.ExecutionContext, subject string, params map[string]any) error {
		out, err := svc.Sweep(ctx)
		if err != nil {
			return err
		}
		exec.Logf("sweep: %d contacts, %d customers flagged, %d devices flagged", out.Contacts, out.FlaggedCustomers, out.FlaggedDevices)
		return nil
	}
}

func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Rename fails across filesystems; fall back to copy and remove.
	if _, err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := out.ReadFrom(in)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// The source is only removed after a complete copy.
		_ = os.Remove(dst)
		return n, fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	return n, nil
}
