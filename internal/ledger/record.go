// Package ledger defines repair service records and the customer matching
// rule used to select one customer's history.
package ledger

import "time"

// SubItem is one itemized line of a service order.
type SubItem struct {
	Category string `json:"category" yaml:"category"`
	Name     string `json:"name,omitempty" yaml:"name"`
	Qty      int    `json:"qty,omitempty" yaml:"qty"`
	Price    int64  `json:"price,omitempty" yaml:"price"`
}

// ServiceRecord is one repair job for a customer's device. Optional fields
// are left at their zero value when absent.
type ServiceRecord struct {
	ID            string    `json:"id"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
	DeviceBrand   string    `json:"device_brand,omitempty"`
	DeviceModel   string    `json:"device_model,omitempty"`
	DamageTags    []string  `json:"damage_tags,omitempty"`
	Complaint     string    `json:"complaint,omitempty"`
	Items         []SubItem `json:"items,omitempty"`
	ServiceDate   time.Time `json:"service_date"`
}

// Contact identifies a customer by phone and/or name.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// IsZero reports whether neither identity field is set.
func (c Contact) IsZero() bool {
	return c.Name == "" && c.Phone == ""
}

// Matches reports whether rec belongs to the contact. A record matches when
// its phone or its name equals the contact's (exact, case-sensitive). Empty
// contact fields never match.
func (c Contact) Matches(rec ServiceRecord) bool {
	if c.Phone != "" && rec.CustomerPhone == c.Phone {
		return true
	}
	return c.Name != "" && rec.CustomerName == c.Name
}

// FilterByCustomer returns the records matching contact, preserving order.
func FilterByCustomer(records []ServiceRecord, contact Contact) []ServiceRecord {
	var out []ServiceRecord
	for _, rec := range records {
		if contact.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// ContactOf returns the contact stored on a record.
func ContactOf(rec ServiceRecord) Contact {
	return Contact{Name: rec.CustomerName, Phone: rec.CustomerPhone}
}
