// Package notify delivers change events for stored complaints to live
// subscribers (dashboards, websocket and SSE clients).
//
// The Hub is the in-process fan-out. Cross-instance delivery is layered on
// top of it: RedisBroker relays events through a Redis pub/sub channel and
// PGListener relays Postgres NOTIFY payloads emitted by a table trigger.
// Delivery is best effort; a publish failure never affects the write that
// caused it.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventType is the kind of row change.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ComplaintsTable is the table name carried by complaint events.
const ComplaintsTable = "complaints"

// ErrPublish wraps every failure to hand an event to a backend.
var ErrPublish = errors.New("notify: publish failed")

// ErrBadEvent is returned by DecodeEvent for unusable payloads.
var ErrBadEvent = errors.New("notify: malformed event")

// Event describes one change to a stored record.
type Event struct {
	Type  EventType `json:"type"  example:"INSERT"`
	Table string    `json:"table" example:"complaints"`
	ID    string    `json:"id"    example:"6f1c1f1e-8d4b-4b8e-9a57-0d3c1b2a9e10"`
	At    time.Time `json:"at"`
}

// Inserted returns the event for a newly stored complaint.
func Inserted(id string, at time.Time) Event {
	return Event{Type: EventInsert, Table: ComplaintsTable, ID: id, At: at.UTC()}
}

// Publisher hands events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Source is something clients can subscribe to.
type Source interface {
	Subscribe(buffer int) *Subscription
}

// DecodeEvent parses a JSON payload from Redis or Postgres. The type is
// upper-cased and must be one of the known kinds; id is required.
func DecodeEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	ev.Type = EventType(strings.ToUpper(strings.TrimSpace(string(ev.Type))))
	switch ev.Type {
	case EventInsert, EventUpdate, EventDelete:
	default:
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrBadEvent, ev.Type)
	}
	if ev.ID == "" {
		return Event{}, fmt.Errorf("%w: missing id", ErrBadEvent)
	}
	if ev.Table == "" {
		ev.Table = ComplaintsTable
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return ev, nil
}
