package servicehistory

import (
	"strings"

	"repairdesk/internal/ledger"
)

// DamageKeywords are scanned, in order, in a record's complaint text when it
// carries no damage tags.
var DamageKeywords = []string{"LCD", "Baterai", "Kamera", "Papan Cas", "Flexible", "Backdoor", "Speaker"}

// DamageSource extracts damage labels from one field of a record. An empty
// result passes the record on to the next source.
type DamageSource struct {
	Name    string
	Extract func(ledger.ServiceRecord) []string
}

// DamageSources is the priority order used by ResolveDamage.
var DamageSources = []DamageSource{
	{Name: "tags", Extract: tagLabels},
	{Name: "complaint", Extract: complaintLabels},
	{Name: "items", Extract: itemLabels},
}

// SourceDefault names the fallback used when every source came back empty.
const SourceDefault = "default"

// ResolveDamage returns the damage labels for rec and the source that
// produced them. The first source with a non-empty result wins.
func ResolveDamage(rec ledger.ServiceRecord) ([]string, string) {
	for _, src := range DamageSources {
		if labels := src.Extract(rec); len(labels) > 0 {
			return labels, src.Name
		}
	}
	return []string{GeneralService}, SourceDefault
}

func tagLabels(rec ledger.ServiceRecord) []string {
	return rec.DamageTags
}

func complaintLabels(rec ledger.ServiceRecord) []string {
	if rec.Complaint == "" {
		return nil
	}
	text := strings.ToLower(rec.Complaint)
	for _, kw := range DamageKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return []string{kw}
		}
	}
	return nil
}

func itemLabels(rec ledger.ServiceRecord) []string {
	for _, item := range rec.Items {
		if item.Category != "" {
			return []string{item.Category}
		}
	}
	return nil
}
