package sparepart

import (
	"errors"
	"fmt"
	"strings"
)

var ErrFieldRequired = errors.New("field is required")

// Part is one inventory line.
type Part struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Brand    string `json:"brand"`
	Vendor   string `json:"vendor"`
	Supplier string `json:"supplier"`
	Stock    int    `json:"stock"`
	Price    int64  `json:"price"`
}

// FieldError names the part field that failed validation.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return fmt.Sprintf("%s: %v", e.Field, e.Err) }

func (e *FieldError) Unwrap() error { return e.Err }

// ApplyRules validates p against its category rule and fills defaults for
// hidden fields. The input is not modified.
func ApplyRules(p Part) (Part, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	if p.Name == "" {
		return p, &FieldError{Field: "name", Err: ErrFieldRequired}
	}
	if p.Category == "" {
		return p, &FieldError{Field: "category", Err: ErrFieldRequired}
	}
	if p.Stock < 0 {
		return p, &FieldError{Field: "stock", Err: errors.New("must not be negative")}
	}

	rule := GetCategoryRules(p.Category)
	if !rule.BrandVisible {
		p.Brand = rule.DefaultBrand
	} else if p.Brand == "" {
		p.Brand = rule.DefaultBrand
	}
	if !rule.VendorVisible {
		p.Vendor = rule.DefaultVendor
	} else if p.Vendor == "" {
		p.Vendor = rule.DefaultVendor
	}
	if !rule.SupplierVisible {
		p.Supplier = ""
	}

	switch {
	case rule.BrandRequired && p.Brand == "":
		return p, &FieldError{Field: "brand", Err: ErrFieldRequired}
	case rule.VendorRequired && p.Vendor == "":
		return p, &FieldError{Field: "vendor", Err: ErrFieldRequired}
	case rule.SupplierRequired && p.Supplier == "":
		return p, &FieldError{Field: "supplier", Err: ErrFieldRequired}
	}
	return p, nil
}
