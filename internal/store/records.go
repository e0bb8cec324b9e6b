package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"repairdesk/internal/ledger"
)

var ErrNotFound = errors.New("not found")

const recordColumns = `id, customer_name, customer_phone, device_brand, device_model, damage_tags_json, complaint, items_json, service_date`

const upsertRecordSQL = `INSERT INTO service_records(id, customer_name, customer_phone, device_brand, device_model, damage_tags_json, complaint, items_json, service_date, source_file, created_at)
	VALUES(?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(id) DO UPDATE SET customer_name=excluded.customer_name, customer_phone=excluded.customer_phone,
		device_brand=excluded.device_brand, device_model=excluded.device_model, damage_tags_json=excluded.damage_tags_json,
		complaint=excluded.complaint, items_json=excluded.items_json, service_date=excluded.service_date, source_file=excluded.source_file`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertRecord(ctx context.Context, db execer, rec ledger.ServiceRecord, source string) error {
	tags, err := json.Marshal(rec.DamageTags)
	if err != nil {
		return err
	}
	items, err := json.Marshal(rec.Items)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, upsertRecordSQL,
		rec.ID, rec.CustomerName, rec.CustomerPhone, rec.DeviceBrand, rec.DeviceModel,
		string(tags), rec.Complaint, string(items), rec.ServiceDate.UTC(), source, time.Now().UTC())
	return err
}

// UpsertRecord inserts or replaces one service record.
func (s *Store) UpsertRecord(ctx context.Context, rec ledger.ServiceRecord, source string) error {
	return upsertRecord(ctx, s.db, rec, source)
}

// UpsertRecords writes a batch of records in one transaction.
func (s *Store) UpsertRecords(ctx context.Context, recs []ledger.ServiceRecord, source string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := upsertRecord(ctx, tx, rec, source); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// GetRecord loads one record by id.
func (s *Store) GetRecord(ctx context.Context, id string) (ledger.ServiceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM service_records WHERE id=?`, id)
	if err != nil {
		return ledger.ServiceRecord{}, err
	}
	recs, err := scanRecords(rows)
	if err != nil {
		return ledger.ServiceRecord{}, err
	}
	if len(recs) == 0 {
		return ledger.ServiceRecord{}, ErrNotFound
	}
	return recs[0], nil
}

// ListRecords returns the most recent records first.
func (s *Store) ListRecords(ctx context.Context, limit int) ([]ledger.ServiceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM service_records ORDER BY service_date DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// CustomerRecords returns every record whose phone or name equals the
// contact's, oldest first. Empty contact fields never match.
func (s *Store) CustomerRecords(ctx context.Context, contact ledger.Contact) ([]ledger.ServiceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM service_records
		WHERE (? <> '' AND customer_phone = ?) OR (? <> '' AND customer_name = ?)
		ORDER BY service_date ASC, rowid ASC`, contact.Phone, contact.Phone, contact.Name, contact.Name)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// ListContacts returns every distinct (name, phone) pair in the ledger.
func (s *Store) ListContacts(ctx context.Context) ([]ledger.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT customer_name, customer_phone FROM service_records
		GROUP BY customer_name, customer_phone ORDER BY MIN(rowid)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Contact
	for rows.Next() {
		var c ledger.Contact
		if err := rows.Scan(&c.Name, &c.Phone); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanRecords(rows *sql.Rows) ([]ledger.ServiceRecord, error) {
	defer rows.Close()
	var out []ledger.ServiceRecord
	for rows.Next() {
		var r ledger.ServiceRecord
		var tags, items sql.NullString
		var date sql.NullTime
		if err := rows.Scan(&r.ID, &r.CustomerName, &r.CustomerPhone, &r.DeviceBrand, &r.DeviceModel, &tags, &r.Complaint, &items, &date); err != nil {
			return nil, err
		}
		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &r.DamageTags); err != nil {
				return nil, fmt.Errorf("record %s tags: %w", r.ID, err)
			}
		}
		if items.Valid && items.String != "" {
			if err := json.Unmarshal([]byte(items.String), &r.Items); err != nil {
				return nil, fmt.Errorf("record %s items: %w", r.ID, err)
			}
		}
		if date.Valid {
			r.ServiceDate = date.Time.UTC()
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
