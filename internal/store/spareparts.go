package store

import (
	"context"
	"time"

	"repairdesk/internal/sparepart"
)

func (s *Store) UpsertSparepart(ctx context.Context, p sparepart.Part) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO spareparts(id, name, category, brand, vendor, supplier, stock, price, updated_at) VALUES(?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, category=excluded.category, brand=excluded.brand, vendor=excluded.vendor,
			supplier=excluded.supplier, stock=excluded.stock, price=excluded.price, updated_at=excluded.updated_at`,
		p.ID, p.Name, p.Category, p.Brand, p.Vendor, p.Supplier, p.Stock, p.Price, time.Now().UTC())
	return err
}

// ListSpareparts returns parts ordered by category then name. An empty
// category lists everything.
func (s *Store) ListSpareparts(ctx context.Context, category string) ([]sparepart.Part, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, category, COALESCE(brand,''), COALESCE(vendor,''), COALESCE(supplier,''), stock, price
		FROM spareparts WHERE ? = '' OR category = ? COLLATE NOCASE ORDER BY category, name`, category, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []sparepart.Part
	for rows.Next() {
		var p sparepart.Part
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Brand, &p.Vendor, &p.Supplier, &p.Stock, &p.Price); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
