package store

import (
	"context"
	"database/sql"
	"time"
)

// Import is one processed ledger file.
type Import struct {
	Filename   string    `json:"filename"`
	ImportID   string    `json:"import_id"`
	Records    int       `json:"records"`
	Rejected   int       `json:"rejected"`
	ImportedAt time.Time `json:"imported_at"`
}

func (s *Store) RecordImport(ctx context.Context, imp Import) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO imports(filename, import_id, records, rejected, imported_at) VALUES(?,?,?,?,?)
		ON CONFLICT(filename) DO UPDATE SET import_id=excluded.import_id, records=excluded.records, rejected=excluded.rejected, imported_at=excluded.imported_at`,
		imp.Filename, imp.ImportID, imp.Records, imp.Rejected, imp.ImportedAt.UTC())
	return err
}

func (s *Store) IsImported(ctx context.Context, filename string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM imports WHERE filename=?`, filename).Scan(&n)
	switch err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, err
	}
}

func (s *Store) ListImports(ctx context.Context, limit int) ([]Import, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT filename, import_id, records, rejected, imported_at FROM imports ORDER BY imported_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Import
	for rows.Next() {
		var imp Import
		if err := rows.Scan(&imp.Filename, &imp.ImportID, &imp.Records, &imp.Rejected, &imp.ImportedAt); err != nil {
			return nil, err
		}
		out = append(out, imp)
	}
	return out, rows.Err()
}

// MarkAlerted records an alert key and reports whether it was new.
func (s *Store) MarkAlerted(ctx context.Context, key, deviceKey string, totalServices int, ts time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO risk_alerts(alert_key, device_key, total_services, created_at) VALUES(?,?,?,?)`,
		key, deviceKey, totalServices, ts.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UnmarkAlerted forgets an alert key so the warning can be sent again.
func (s *Store) UnmarkAlerted(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM risk_alerts WHERE alert_key=?`, key)
	return err
}
