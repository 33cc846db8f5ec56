// Package events carries review domain events from the service layer to
// connected WebSocket clients, either in-process or through RabbitMQ.
package events

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Event types.
const (
	BankCreated   = "bank.created"
	BankUpdated   = "bank.updated"
	BankDeleted   = "bank.deleted"
	ReportDecided = "report.decided"
	CommentAdded  = "comment.added"
	SessionEnded  = "session.ended"
)

// Event is a change notification pushed to clients.  Data holds the
// affected entity or a small map of ids.
type Event struct {
	Type  string    `json:"type"`
	At    time.Time `json:"at"`
	Actor string    `json:"actor,omitempty"`
	Data  any       `json:"data,omitempty"`
}

// New stamps an event with the current UTC time.
func New(typ, actor string, data any) Event {
	return Event{Type: typ, At: time.Now().UTC(), Actor: actor, Data: data}
}

// Publisher delivers events to every interested client.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Sink receives events for local delivery, typically the WebSocket hub.
type Sink interface {
	Broadcast(ev Event)
}

// Local publishes by handing events straight to a sink.
type Local struct{ Sink Sink }

func (l Local) Publish(_ context.Context, ev Event) error {
	l.Sink.Broadcast(ev)
	return nil
}

// Observed wraps a Publisher and reports every outcome to Observe.
// Publish failures are logged and swallowed: a lost notification never
// fails the mutation that produced it.
type Observed struct {
	Next    Publisher
	Log     logrus.FieldLogger
	Observe func(eventType, outcome string)
}

func (o Observed) Publish(ctx context.Context, ev Event) error {
	err := o.Next.Publish(ctx, ev)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if o.Log != nil {
			o.Log.WithError(err).WithField("event", ev.Type).Warn("events: publish failed")
		}
	}
	if o.Observe != nil {
		o.Observe(ev.Type, outcome)
	}
	return nil
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
