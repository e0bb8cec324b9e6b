// Package sparepart holds the per-category field rules for sparepart forms
// and the inventory part type those rules apply to.
package sparepart

import "strings"

// CategoryType classifies how a sparepart category is attributed.
type CategoryType string

const (
	BrandBased  CategoryType = "brand-based"
	VendorBased CategoryType = "vendor-based"
	Generic     CategoryType = "generic"
)

// NoneValue is the default for hidden brand and vendor fields.
const NoneValue = "None"

// CategoryRule describes which attribution fields a category shows, requires
// and defaults.
type CategoryRule struct {
	Type             CategoryType `json:"type"`
	BrandRequired    bool         `json:"brand_required"`
	VendorRequired   bool         `json:"vendor_required"`
	SupplierRequired bool         `json:"supplier_required"`
	BrandVisible     bool         `json:"brand_visible"`
	VendorVisible    bool         `json:"vendor_visible"`
	SupplierVisible  bool         `json:"supplier_visible"`
	DefaultBrand     string       `json:"default_brand,omitempty"`
	DefaultVendor    string       `json:"default_vendor,omitempty"`
}

// NamedRule pairs a category name with its rule.
type NamedRule struct {
	Category string       `json:"category"`
	Rule     CategoryRule `json:"rule"`
}

// DefaultRule is returned for categories missing from the table.
var DefaultRule = CategoryRule{
	Type:            BrandBased,
	BrandVisible:    true,
	VendorVisible:   true,
	SupplierVisible: true,
}

// Brand-based rows are labelled as wanting a brand and vendor, but nothing
// is required. Keep it that way; forms rely on it.
var brandBased = CategoryRule{
	Type:            BrandBased,
	BrandVisible:    true,
	VendorVisible:   true,
	SupplierVisible: true,
}

var generic = CategoryRule{
	Type:            Generic,
	SupplierVisible: true,
	DefaultBrand:    NoneValue,
	DefaultVendor:   NoneValue,
}

var table = []NamedRule{
	{"LCD", brandBased},
	{"Baterai", brandBased},
	{"Kamera", brandBased},
	{"Papan Cas", brandBased},
	{"Flexible", brandBased},
	{"Backdoor", brandBased},
	{"Speaker", brandBased},
	{"Mic", brandBased},
	{"Konektor", brandBased},
	{"IC", brandBased},
	{"Aksesoris", generic},
	{"Kabel Data", generic},
	{"Charger", generic},
	{"Tempered Glass", generic},
	{"Casing", generic},
	{"Lem", generic},
	{"Tools", generic},
}

// GetCategoryRules returns the rule for name, matched case-insensitively.
// Unknown names get DefaultRule.
func GetCategoryRules(name string) CategoryRule {
	for _, r := range table {
		if strings.EqualFold(r.Category, name) {
			return r.Rule
		}
	}
	return DefaultRule
}

// Categories lists the known category names in table order.
func Categories() []string {
	out := make([]string, len(table))
	for i, r := range table {
		out[i] = r.Category
	}
	return out
}

// AllRules returns a copy of the rule table.
func AllRules() []NamedRule {
	out := make([]NamedRule, len(table))
	copy(out, table)
	return out
}
