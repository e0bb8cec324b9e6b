package servicehistory

import (
	"sort"

	"repairdesk/internal/ledger"
)

// DeviceKey builds the grouping key for a record, substituting sentinels for
// a missing brand or model. No normalization is applied.
func DeviceKey(rec ledger.ServiceRecord) (key, brand, model string) {
	brand = rec.DeviceBrand
	if brand == "" {
		brand = UnknownBrand
	}
	model = rec.DeviceModel
	if model == "" {
		model = UnknownModel
	}
	return brand + " " + model, brand, model
}

// Summarize groups records by device and tallies damage labels. Records are
// expected to be pre-filtered to one customer.
func Summarize(records []ledger.ServiceRecord) Result {
	index := make(map[string]int)
	var devices []DeviceSummary

	for _, rec := range records {
		key, brand, model := DeviceKey(rec)
		i, ok := index[key]
		if !ok {
			i = len(devices)
			index[key] = i
			devices = append(devices, DeviceSummary{
				DeviceKey:       key,
				Brand:           brand,
				Model:           model,
				DamageBreakdown: make(map[string]int),
			})
		}
		d := &devices[i]
		d.TotalServices++
		if rec.ServiceDate.After(d.LastServiceAt) {
			d.LastServiceAt = rec.ServiceDate
		}
		labels, _ := ResolveDamage(rec)
		for _, label := range labels {
			d.DamageBreakdown[label]++
		}
	}

	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].TotalServices > devices[j].TotalServices
	})

	res := Result{Summaries: devices, TotalRecords: len(records)}
	if res.Summaries == nil {
		res.Summaries = []DeviceSummary{}
	}
	for _, d := range devices {
		if d.TotalServices >= RepeatServiceThreshold {
			res.HasRepeatRisk = true
			break
		}
	}
	return res
}

// RiskyDevices returns the summaries at or above RepeatServiceThreshold.
func (r Result) RiskyDevices() []DeviceSummary {
	var out []DeviceSummary
	for _, d := range r.Summaries {
		if d.TotalServices >= RepeatServiceThreshold {
			out = append(out, d)
		}
	}
	return out
}

// TopDamage returns the most frequent damage label and its count. Ties go to
// the alphabetically first label so output is deterministic.
func (d DeviceSummary) TopDamage() (string, int) {
	var top string
	best := 0
	for label, n := range d.DamageBreakdown {
		if n > best || (n == best && label < top) {
			top, best = label, n
		}
	}
	return top, best
}
