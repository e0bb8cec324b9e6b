// Package report renders service histories and rule tables for humans.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"repairdesk/internal/ledger"
	"repairdesk/internal/servicehistory"
	"repairdesk/internal/sparepart"
)

// RepeatRiskBanner is printed above the table when any device hit the threshold.
const RepeatRiskBanner = "!! REPEAT SERVICE WARNING: a device has been serviced 3 or more times"

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	return tbl
}

// Table writes the device summary for one customer.
func Table(w io.Writer, contact ledger.Contact, res servicehistory.Result, now time.Time) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Service history for %s\n", describe(contact))
	if res.HasRepeatRisk {
		b.WriteString(RepeatRiskBanner + "\n")
	}

	tbl := newTable()
	tbl.AppendHeader(table.Row{"Device", "Services", "Top damage", "Damage breakdown", "Last service"})
	for _, d := range res.Summaries {
		top, n := d.TopDamage()
		last := "-"
		if !d.LastServiceAt.IsZero() {
			last = humanize.RelTime(d.LastServiceAt, now, "ago", "from now")
		}
		services := fmt.Sprintf("%d", d.TotalServices)
		if d.TotalServices >= servicehistory.RepeatServiceThreshold {
			services += " !"
		}
		tbl.AppendRow(table.Row{d.DeviceKey, services, fmt.Sprintf("%s (%d)", top, n), Breakdown(d.DamageBreakdown), last})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("%s records", humanize.Comma(int64(res.TotalRecords))), "", "", "", ""})
	b.WriteString(tbl.Render())
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// Breakdown formats a damage breakdown as "LCD 1, Mic 2", most frequent first.
func Breakdown(m map[string]int) string {
	labels := make([]string, 0, len(m))
	for l := range m {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if m[labels[i]] != m[labels[j]] {
			return m[labels[i]] > m[labels[j]]
		}
		return labels[i] < labels[j]
	})
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s %d", l, m[l])
	}
	return strings.Join(parts, ", ")
}

func describe(c ledger.Contact) string {
	switch {
	case c.Name != "" && c.Phone != "":
		return fmt.Sprintf("%s (%s)", c.Name, c.Phone)
	case c.Name != "":
		return c.Name
	default:
		return c.Phone
	}
}

// RulesTable writes the field rules for the named categories. An empty list
// prints the whole table.
func RulesTable(w io.Writer, names []string) error {
	if len(names) == 0 {
		names = sparepart.Categories()
	}
	tbl := newTable()
	tbl.AppendHeader(table.Row{"Category", "Type", "Brand", "Vendor", "Supplier", "Default brand", "Default vendor"})
	for _, name := range names {
		r := sparepart.GetCategoryRules(name)
		tbl.AppendRow(table.Row{
			name, string(r.Type),
			fieldState(r.BrandVisible, r.BrandRequired),
			fieldState(r.VendorVisible, r.VendorRequired),
			fieldState(r.SupplierVisible, r.SupplierRequired),
			orDash(r.DefaultBrand), orDash(r.DefaultVendor),
		})
	}
	_, err := fmt.Fprintln(w, tbl.Render())
	return err
}

// PartsTable writes an inventory listing.
func PartsTable(w io.Writer, parts []sparepart.Part) error {
	tbl := newTable()
	tbl.AppendHeader(table.Row{"ID", "Name", "Category", "Brand", "Vendor", "Supplier", "Stock", "Price"})
	for _, p := range parts {
		tbl.AppendRow(table.Row{p.ID, p.Name, p.Category, orDash(p.Brand), orDash(p.Vendor), orDash(p.Supplier), p.Stock, "Rp " + humanize.Comma(p.Price)})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d items", len(parts))})
	_, err := fmt.Fprintln(w, tbl.Render())
	return err
}

func fieldState(visible, required bool) string {
	switch {
	case !visible:
		return "hidden"
	case required:
		return "required"
	default:
		return "optional"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
