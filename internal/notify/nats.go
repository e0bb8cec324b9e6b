package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes alerts as JSON on a subject.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// ConnectNATS dials url and returns a publisher for subject.
func ConnectNATS(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("repairdesk"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSPublisher{nc: nc, subject: subject}, nil
}

func (p *NATSPublisher) Name() string { return "nats" }

func (p *NATSPublisher) Send(ctx context.Context, a Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return err
	}
	return p.nc.FlushWithContext(ctx)
}

func (p *NATSPublisher) Close() {
	p.nc.Close()
}
