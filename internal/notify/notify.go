// Package notify delivers repeat-risk warnings to external sinks.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"repairdesk/internal/metrics"
	"repairdesk/internal/servicehistory"
)

// Alert is the outbound representation of a repeat-risk warning.
type Alert struct {
	Text            string         `json:"text"`
	CustomerName    string         `json:"customer_name"`
	CustomerPhone   string         `json:"customer_phone"`
	DeviceKey       string         `json:"device_key"`
	TotalServices   int            `json:"total_services"`
	DamageBreakdown map[string]int `json:"damage_breakdown"`
	DetectedAt      time.Time      `json:"detected_at"`
}

// NewAlert builds an Alert from a risk event.
func NewAlert(ev servicehistory.RepeatRiskEvent) Alert {
	who := ev.Contact.Name
	if who == "" {
		who = ev.Contact.Phone
	} else if ev.Contact.Phone != "" {
		who += " (" + ev.Contact.Phone + ")"
	}
	return Alert{
		Text: fmt.Sprintf("Repeat service warning: %s has serviced %s %d times [%s]",
			who, ev.DeviceKey, ev.TotalServices, formatBreakdown(ev.DamageBreakdown)),
		CustomerName:    ev.Contact.Name,
		CustomerPhone:   ev.Contact.Phone,
		DeviceKey:       ev.DeviceKey,
		TotalServices:   ev.TotalServices,
		DamageBreakdown: ev.DamageBreakdown,
		DetectedAt:      ev.DetectedAt,
	}
}

func formatBreakdown(b map[string]int) string {
	labels := make([]string, 0, len(b))
	for l := range b {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s x%d", l, b[l])
	}
	return strings.Join(parts, ", ")
}

// AlertKey identifies one warning by the device and the records behind it,
// not by the contact that found it. A new service on a risky device yields
// a new key, so the warning fires again.
func AlertKey(ev servicehistory.RepeatRiskEvent) string {
	return fmt.Sprintf("%s|%d|%s", ev.DeviceKey, ev.TotalServices, ev.Signature)
}

// Sink delivers an alert somewhere.
type Sink interface {
	Name() string
	Send(ctx context.Context, a Alert) error
}

// Marker de-duplicates alerts. The store implements it.
type Marker interface {
	MarkAlerted(ctx context.Context, key, deviceKey string, totalServices int, ts time.Time) (bool, error)
	UnmarkAlerted(ctx context.Context, key string) error
}

// Dispatcher consumes risk events and fans them out to sinks once per key.
type Dispatcher struct {
	marker  Marker
	sinks   []Sink
	metrics *metrics.Metrics
	log     *slog.Logger
	timeout time.Duration
}

func NewDispatcher(marker Marker, m *metrics.Metrics, log *slog.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{marker: marker, sinks: sinks, metrics: m, log: log, timeout: 10 * time.Second}
}

// Sinks returns the names of the configured sinks.
func (d *Dispatcher) Sinks() []string {
	out := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		out[i] = s.Name()
	}
	return out
}

// Run handles events until ctx is done or the channel closes.
func (d *Dispatcher) Run(ctx context.Context, events <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			risk, ok := ev.(servicehistory.RepeatRiskEvent)
			if !ok {
				continue
			}
			d.Handle(ctx, risk)
		}
	}
}

// Handle delivers one event. It returns false when the event was a duplicate
// or no sink accepted it. Sink failures are logged and counted, never
// returned; when every sink fails the key is released so a later sweep
// retries the warning.
func (d *Dispatcher) Handle(ctx context.Context, ev servicehistory.RepeatRiskEvent) bool {
	key := AlertKey(ev)
	fresh, err := d.marker.MarkAlerted(ctx, key, ev.DeviceKey, ev.TotalServices, ev.DetectedAt)
	if err != nil {
		d.log.Error("mark alerted failed", "device", ev.DeviceKey, "err", err)
		return false
	}
	if !fresh {
		return false
	}
	alert := NewAlert(ev)
	delivered := len(d.sinks) == 0
	for _, s := range d.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := s.Send(sendCtx, alert)
		cancel()
		d.metrics.RecordNotification(s.Name(), err)
		if err != nil {
			d.log.Warn("notification failed", "sink", s.Name(), "device", ev.DeviceKey, "err", err)
			continue
		}
		delivered = true
		d.log.Info("notification sent", "sink", s.Name(), "device", ev.DeviceKey, "services", ev.TotalServices)
	}
	if !delivered {
		if err := d.marker.UnmarkAlerted(context.WithoutCancel(ctx), key); err != nil {
			d.log.Error("release alert key failed", "device", ev.DeviceKey, "err", err)
		}
		return false
	}
	return true
}
