package servicehistory

import (
	"reflect"
	"testing"
	"time"

	"repairdesk/internal/ledger"
)

func rec(brand, model string, tags []string, complaint string) ledger.ServiceRecord {
	return ledger.ServiceRecord{CustomerName: "Budi", DeviceBrand: brand, DeviceModel: model, DamageTags: tags, Complaint: complaint}
}

func TestSummarizeExampleScenario(t *testing.T) {
	records := []ledger.ServiceRecord{
		rec("Infinix", "Hot 10", []string{"Mic"}, ""),
		rec("Infinix", "Hot 10", []string{"Mic"}, ""),
		rec("Infinix", "Hot 10", []string{}, "lcd pecah"),
		rec("Samsung", "A02", []string{"LCD"}, ""),
	}
	res := Summarize(records)

	if !res.HasRepeatRisk {
		t.Fatal("expected repeat risk")
	}
	if len(res.Summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(res.Summaries))
	}
	first, second := res.Summaries[0], res.Summaries[1]
	if first.DeviceKey != "Infinix Hot 10" || first.TotalServices != 3 {
		t.Fatalf("unexpected first summary %+v", first)
	}
	if !reflect.DeepEqual(first.DamageBreakdown, map[string]int{"Mic": 2, "LCD": 1}) {
		t.Fatalf("unexpected breakdown %v", first.DamageBreakdown)
	}
	if second.DeviceKey != "Samsung A02" || second.TotalServices != 1 {
		t.Fatalf("unexpected second summary %+v", second)
	}
	if !reflect.DeepEqual(second.DamageBreakdown, map[string]int{"LCD": 1}) {
		t.Fatalf("unexpected breakdown %v", second.DamageBreakdown)
	}
}

func TestSummarizeUnknownDevice(t *testing.T) {
	res := Summarize([]ledger.ServiceRecord{{CustomerName: "Budi"}})
	if res.Summaries[0].DeviceKey != "Unknown Brand Unknown Model" {
		t.Fatalf("unexpected key %q", res.Summaries[0].DeviceKey)
	}
	if res.Summaries[0].DamageBreakdown[GeneralService] != 1 {
		t.Fatalf("expected general service label, got %v", res.Summaries[0].DamageBreakdown)
	}
}

func TestSummarizeNoNormalization(t *testing.T) {
	records := []ledger.ServiceRecord{
		rec("Samsung", "A02", nil, ""),
		rec("samsung", "A02", nil, ""),
		rec("Samsung ", "A02", nil, ""),
	}
	if got := len(Summarize(records).Summaries); got != 3 {
		t.Fatalf("expected 3 distinct devices, got %d", got)
	}
}

func TestSummarizeConservation(t *testing.T) {
	records := []ledger.ServiceRecord{
		rec("Oppo", "A5", []string{"LCD", "Baterai", "Mic"}, ""),
		rec("Oppo", "A5", nil, "kamera buram"),
		rec("Vivo", "Y12", nil, ""),
		{DeviceBrand: "Vivo", DeviceModel: "Y12", Items: []ledger.SubItem{{Category: ""}, {Category: "Konektor"}}},
		rec("", "Y12", nil, "nothing known"),
	}
	res := Summarize(records)

	total := 0
	increments := 0
	for _, s := range res.Summaries {
		total += s.TotalServices
		for _, n := range s.DamageBreakdown {
			increments += n
		}
	}
	if total != len(records) || res.TotalRecords != len(records) {
		t.Fatalf("service count %d / %d, want %d", total, res.TotalRecords, len(records))
	}
	// 3 tags + 4 single-label fallbacks
	if increments != 7 {
		t.Fatalf("expected 7 label increments, got %d", increments)
	}
	if len(res.Summaries) != 3 {
		t.Fatalf("expected 3 devices, got %d", len(res.Summaries))
	}
}

func TestSummarizeTagsWinOverComplaint(t *testing.T) {
	res := Summarize([]ledger.ServiceRecord{rec("Xiaomi", "Redmi 9", []string{"Mic"}, "LCD pecah, baterai kembung")})
	want := map[string]int{"Mic": 1}
	if !reflect.DeepEqual(res.Summaries[0].DamageBreakdown, want) {
		t.Fatalf("got %v, want %v", res.Summaries[0].DamageBreakdown, want)
	}
}

func TestSummarizeRepeatRiskThreshold(t *testing.T) {
	two := []ledger.ServiceRecord{rec("A", "1", nil, ""), rec("A", "1", nil, ""), rec("B", "1", nil, ""), rec("B", "1", nil, "")}
	if Summarize(two).HasRepeatRisk {
		t.Fatal("max 2 services must not flag repeat risk")
	}
	three := append(two, rec("B", "1", nil, ""))
	if !Summarize(three).HasRepeatRisk {
		t.Fatal("3 services must flag repeat risk")
	}
	if Summarize(nil).HasRepeatRisk {
		t.Fatal("empty input must not flag")
	}
}

func TestSummarizeStableSort(t *testing.T) {
	records := []ledger.ServiceRecord{
		rec("C", "1", nil, ""),
		rec("A", "1", nil, ""),
		rec("B", "1", nil, ""),
		rec("B", "1", nil, ""),
		rec("A", "1", nil, ""),
	}
	res := Summarize(records)
	var keys []string
	for _, s := range res.Summaries {
		keys = append(keys, s.DeviceKey)
	}
	want := []string{"A 1", "B 1", "C 1"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("order %v, want %v", keys, want)
	}
}

func TestSummarizeDoesNotMutateInput(t *testing.T) {
	records := []ledger.ServiceRecord{rec("", "", []string{"LCD"}, "")}
	Summarize(records)
	if records[0].DeviceBrand != "" || records[0].DeviceModel != "" {
		t.Fatal("input record was modified")
	}
}

func TestSummarizeLastServiceAt(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)
	records := []ledger.ServiceRecord{
		{DeviceBrand: "A", DeviceModel: "1", ServiceDate: late},
		{DeviceBrand: "A", DeviceModel: "1", ServiceDate: early},
	}
	if got := Summarize(records).Summaries[0].LastServiceAt; !got.Equal(late) {
		t.Fatalf("last service %v, want %v", got, late)
	}
}

func TestTopDamage(t *testing.T) {
	d := DeviceSummary{DamageBreakdown: map[string]int{"Mic": 2, "LCD": 2, "Baterai": 1}}
	label, n := d.TopDamage()
	if label != "LCD" || n != 2 {
		t.Fatalf("got %s=%d", label, n)
	}
}
