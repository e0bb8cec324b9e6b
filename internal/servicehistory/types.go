// Package servicehistory aggregates a customer's repair records per device
// and flags devices that keep coming back.
package servicehistory

import (
	"time"

	"repairdesk/internal/ledger"
)

const (
	UnknownBrand   = "Unknown Brand"
	UnknownModel   = "Unknown Model"
	GeneralService = "General Service"

	// RepeatServiceThreshold is the service count at which a device is
	// considered a repeat-risk device.
	RepeatServiceThreshold = 3
)

// DeviceSummary is the per-device tally for one customer.
type DeviceSummary struct {
	DeviceKey       string         `json:"device_key"`
	Brand           string         `json:"brand"`
	Model           string         `json:"model"`
	TotalServices   int            `json:"total_services"`
	DamageBreakdown map[string]int `json:"damage_breakdown"`
	LastServiceAt   time.Time      `json:"last_service_at"`
}

// Result is the output of Summarize.
type Result struct {
	Summaries     []DeviceSummary `json:"summaries"`
	HasRepeatRisk bool            `json:"has_repeat_risk"`
	TotalRecords  int             `json:"total_records"`
}

// RepeatRiskEvent is published for every device at or above the threshold.
type RepeatRiskEvent struct {
	Contact         ledger.Contact `json:"contact"`
	DeviceKey       string         `json:"device_key"`
	Signature       string         `json:"signature"`
	TotalServices   int            `json:"total_services"`
	DamageBreakdown map[string]int `json:"damage_breakdown"`
	DetectedAt      time.Time      `json:"detected_at"`
}

// EvaluateResult counts the outcome of an evaluation pass.
type EvaluateResult struct {
	Contacts         int `json:"contacts"`
	FlaggedCustomers int `json:"flagged_customers"`
	FlaggedDevices   int `json:"flagged_devices"`
}
