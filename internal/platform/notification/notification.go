// Package notification publishes revenue-cycle events (KPI alerts, denial
// analyses, fraud holds, batch and payment progress) to RabbitMQ, partner
// webhooks, the websocket hub and the log.
package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType names a published event. It doubles as the AMQP routing key.
type EventType string

const (
	EventKPIAlert           EventType = "kpi.alert"
	EventKPIAlertResolved   EventType = "kpi.alert.resolved"
	EventDenialAnalyzed     EventType = "denial.analyzed"
	EventAppealGenerated    EventType = "denial.appeal"
	EventManualReview       EventType = "denial.manual_review"
	EventFraudReview        EventType = "fraud.review"
	EventPaymentPosted      EventType = "payment.posted"
	EventBatchStatus        EventType = "batch.status"
	EventClaimSubmitted     EventType = "claim.submitted"
	EventReconciliationDone EventType = "reconciliation.completed"
)

// Severity mirrors alert severities; critical events are escalated.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

type Event struct {
	ID             uuid.UUID   `json:"id"`
	Type           EventType   `json:"type"`
	OrganizationID uuid.UUID   `json:"organization_id"`
	SubjectID      uuid.UUID   `json:"subject_id"`
	Severity       Severity    `json:"severity"`
	Message        string      `json:"message,omitempty"`
	Payload        interface{} `json:"payload,omitempty"`
	OccurredAt     time.Time   `json:"occurred_at"`
}

// NewEvent fills in the id, timestamp and default severity.
func NewEvent(typ EventType, org, subject uuid.UUID, payload interface{}) Event {
	return Event{
		ID:             uuid.New(),
		Type:           typ,
		OrganizationID: org,
		SubjectID:      subject,
		Severity:       SeverityInfo,
		Payload:        payload,
		OccurredAt:     time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Fanout delivers to every publisher and joins their errors. One failing
// sink does not stop the others.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	lvl := zerolog.InfoLevel
	switch evt.Severity {
	case SeverityWarning:
		lvl = zerolog.WarnLevel
	case SeverityError, SeverityCritical:
		lvl = zerolog.ErrorLevel
	}
	p.logger.WithLevel(lvl).
		Str("event_id", evt.ID.String()).
		Str("type", string(evt.Type)).
		Str("organization_id", evt.OrganizationID.String()).
		Str("subject_id", evt.SubjectID.String()).
		Str("severity", string(evt.Severity)).
		Msg(evt.Message)
	return nil
}

// Recorder keeps published events in memory. Tests and the dev server use it.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, evt)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of typ in publish order.
func (r *Recorder) OfType(typ EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
