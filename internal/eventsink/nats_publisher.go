// Package eventsink adapts zones.EventSink onto a NATS subject, the
// external sink zone events are published to (spec.md §6 "Event
// output").
package eventsink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/brinkbyte/edgegw/internal/zones"
)

// publisher narrows *nats.Conn to what NATSPublisher calls, so tests can
// substitute a fake without a running NATS server.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes zone events to a per-stream subject, retrying
// with a linear backoff on a transient publish failure, grounded on the
// teacher's NATSPublisher.
type NATSPublisher struct {
	conn          publisher
	subjectPrefix string
	maxRetries    int
}

// NewNATSPublisher builds a publisher that writes to
// "<subjectPrefix>.<zone_id>" for every event it receives.
func NewNATSPublisher(conn *nats.Conn, subjectPrefix string, maxRetries int) *NATSPublisher {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &NATSPublisher{conn: conn, subjectPrefix: subjectPrefix, maxRetries: maxRetries}
}

// Publish implements zones.EventSink.
func (p *NATSPublisher) Publish(ctx context.Context, event zones.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventsink: marshal event for zone %s: %w", event.ZoneID, err)
	}

	subject := p.subjectPrefix + "." + event.ZoneID

	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		publishErr = p.conn.Publish(subject, data)
		if publishErr == nil {
			return nil
		}
		time.Sleep(time.Duration(attempt*100) * time.Millisecond)
	}

	return fmt.Errorf("eventsink: publish to %s failed after %d retries: %w", subject, p.maxRetries, publishErr)
}

var _ zones.EventSink = (*NATSPublisher)(nil)
