package notification

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestRoutingKey_EscalatesCritical(t *testing.T) {
	evt := NewEvent(EventKPIAlert, uuid.New(), uuid.New(), nil)
	if got := RoutingKey(evt); got != "kpi.alert" {
		t.Errorf("expected kpi.alert, got %s", got)
	}
	evt.Severity = SeverityCritical
	if got := RoutingKey(evt); got != "escalation.kpi.alert" {
		t.Errorf("expected escalation.kpi.alert, got %s", got)
	}
}

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	ok := &Recorder{}
	broken := &Recorder{Err: errors.New("broker down")}
	later := &Recorder{}

	err := Fanout{ok, broken, later}.Publish(context.Background(), NewEvent(EventDenialAnalyzed, uuid.New(), uuid.New(), nil))
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ok.Events()) != 1 || len(later.Events()) != 1 {
		t.Error("healthy publishers should still receive the event")
	}
}

func TestRecorder_OfType(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()
	org := uuid.New()
	r.Publish(ctx, NewEvent(EventKPIAlert, org, uuid.New(), nil))
	r.Publish(ctx, NewEvent(EventFraudReview, org, uuid.New(), nil))
	r.Publish(ctx, NewEvent(EventKPIAlert, org, uuid.New(), nil))

	if got := len(r.OfType(EventKPIAlert)); got != 2 {
		t.Errorf("expected 2 kpi alerts, got %d", got)
	}
}

func TestLogPublisher_LevelFromSeverity(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf))
	evt := NewEvent(EventKPIAlert, uuid.New(), uuid.New(), nil)
	evt.Severity = SeverityCritical
	evt.Message = "daysInAR critical"

	if err := p.Publish(context.Background(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"level":"error"`) || !strings.Contains(out, "daysInAR critical") {
		t.Errorf("unexpected log line: %s", out)
	}
}

func TestTemplateEngine_RenderAppeal(t *testing.T) {
	e := NewTemplateEngine()
	subject, body, err := e.Render(TemplateAppealTechnical, map[string]string{
		"claim_number":  "CLM-1001",
		"payer_name":    "Acme Health",
		"denial_code":   "16",
		"denial_reason": "Missing modifier",
	})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if subject != "Request for reconsideration of claim CLM-1001" {
		t.Errorf("unexpected subject %q", subject)
	}
	if !strings.Contains(body, "To Acme Health:") || !strings.Contains(body, "code 16 (Missing modifier)") {
		t.Errorf("unexpected body %q", body)
	}
	if !strings.Contains(body, "{{root_cause}}") {
		t.Error("unknown placeholders should be left untouched")
	}

	if _, _, err := e.Render("missing", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}
