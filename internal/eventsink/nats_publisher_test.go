package eventsink

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brinkbyte/edgegw/internal/zones"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	failN    int // fail the first failN calls, then succeed
	calls    int
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.calls++
	if f.calls <= f.failN {
		return errors.New("connection reset")
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func newTestPublisher(conn *fakeConn, maxRetries int) *NATSPublisher {
	return &NATSPublisher{conn: conn, subjectPrefix: "zones.events", maxRetries: maxRetries}
}

func TestNATSPublisher_PublishesToZoneSubject(t *testing.T) {
	conn := &fakeConn{}
	p := newTestPublisher(conn, 2)

	err := p.Publish(context.Background(), zones.Event{
		ZoneID: "L1", ObjectID: "7", Type: zones.EventLineCrossingOut,
	})
	require.NoError(t, err)
	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "zones.events.L1", conn.subjects[0])
	assert.Contains(t, string(conn.payloads[0]), "line_crossing_out")
}

func TestNATSPublisher_RetriesThenSucceeds(t *testing.T) {
	conn := &fakeConn{failN: 2}
	p := newTestPublisher(conn, 3)

	err := p.Publish(context.Background(), zones.Event{ZoneID: "L1"})
	require.NoError(t, err)
	assert.Equal(t, 3, conn.calls)
}

func TestNATSPublisher_ExhaustsRetriesAndFails(t *testing.T) {
	conn := &fakeConn{failN: 10}
	p := newTestPublisher(conn, 2)

	err := p.Publish(context.Background(), zones.Event{ZoneID: "L1"})
	assert.Error(t, err)
	assert.Equal(t, 3, conn.calls) // initial attempt + 2 retries
}

func TestNATSPublisher_ContextCancelledStopsRetrying(t *testing.T) {
	conn := &fakeConn{failN: 100}
	p := newTestPublisher(conn, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Publish(ctx, zones.Event{ZoneID: "L1"})
	assert.Error(t, err)
}
