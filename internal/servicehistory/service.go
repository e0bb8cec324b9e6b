package servicehistory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"repairdesk/internal/ledger"
	"repairdesk/internal/metrics"
)

// ErrEmptyContact is returned when neither phone nor name was given.
var ErrEmptyContact = errors.New("contact needs a phone or a name")

// RecordSource supplies ledger records. The store implements it.
type RecordSource interface {
	CustomerRecords(ctx context.Context, contact ledger.Contact) ([]ledger.ServiceRecord, error)
	ListContacts(ctx context.Context) ([]ledger.Contact, error)
}

// Publisher receives repeat-risk events.
type Publisher interface {
	Publish(ev any)
}

// Service loads customer records and runs Summarize over them.
type Service struct {
	src     RecordSource
	pub     Publisher
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

func NewService(src RecordSource, pub Publisher, m *metrics.Metrics, log *slog.Logger) *Service {
	return &Service{src: src, pub: pub, metrics: m, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// History returns the device summary for one customer.
func (s *Service) History(ctx context.Context, contact ledger.Contact) (Result, error) {
	_, res, err := s.load(ctx, contact)
	return res, err
}

func (s *Service) load(ctx context.Context, contact ledger.Contact) ([]ledger.ServiceRecord, Result, error) {
	if contact.IsZero() {
		return nil, Result{}, ErrEmptyContact
	}
	records, err := s.src.CustomerRecords(ctx, contact)
	if err != nil {
		return nil, Result{}, fmt.Errorf("load records: %w", err)
	}
	records = ledger.FilterByCustomer(records, contact)
	res := Summarize(records)
	s.metrics.Evaluations.Inc()
	return records, res, nil
}

// Evaluate summarizes each contact and publishes a RepeatRiskEvent for every
// device at or above the threshold. Contacts that match the same records
// (a name with and without its phone) yield one event per device.
func (s *Service) Evaluate(ctx context.Context, contacts []ledger.Contact) (EvaluateResult, error) {
	var out EvaluateResult
	seen := make(map[string]struct{})
	for _, c := range contacts {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if c.IsZero() {
			continue
		}
		records, res, err := s.load(ctx, c)
		if err != nil {
			return out, err
		}
		out.Contacts++
		flagged := 0
		for _, d := range res.RiskyDevices() {
			sig := DeviceSignature(records, d.DeviceKey)
			if _, dup := seen[sig]; dup {
				continue
			}
			seen[sig] = struct{}{}
			flagged++
			s.log.Info("repeat-risk device", "customer", c.Name, "phone", c.Phone, "device", d.DeviceKey, "services", d.TotalServices)
			if s.pub != nil {
				s.pub.Publish(RepeatRiskEvent{
					Contact:         c,
					DeviceKey:       d.DeviceKey,
					Signature:       sig,
					TotalServices:   d.TotalServices,
					DamageBreakdown: d.DamageBreakdown,
					DetectedAt:      s.now(),
				})
			}
		}
		if flagged == 0 {
			continue
		}
		out.FlaggedCustomers++
		out.FlaggedDevices += flagged
		s.metrics.RiskyDevices.Add(float64(flagged))
	}
	return out, nil
}

// DeviceSignature identifies the exact set of records behind one device's
// summary: the device key plus the sorted record IDs.
func DeviceSignature(records []ledger.ServiceRecord, deviceKey string) string {
	var ids []string
	for _, rec := range records {
		if key, _, _ := DeviceKey(rec); key == deviceKey {
			ids = append(ids, rec.ID)
		}
	}
	sort.Strings(ids)
	h := sha256.New()
	h.Write([]byte(deviceKey))
	for _, id := range ids {
		h.Write([]byte{0})
		h.Write([]byte(id))
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Sweep evaluates every contact known to the ledger.
func (s *Service) Sweep(ctx context.Context) (EvaluateResult, error) {
	contacts, err := s.src.ListContacts(ctx)
	if err != nil {
		return EvaluateResult{}, fmt.Errorf("list contacts: %w", err)
	}
	return s.Evaluate(ctx, contacts)
}
