package denial

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/notification"
)

var appealTemplates = map[Category]string{
	CategoryTechnical:     notification.TemplateAppealTechnical,
	CategoryAuthorization: notification.TemplateAppealAuthorization,
}

// AppealWriter renders appeal letters from the notification templates.
type AppealWriter struct {
	templates *notification.TemplateEngine
}

func NewAppealWriter(templates *notification.TemplateEngine) *AppealWriter {
	if templates == nil {
		templates = notification.NewTemplateEngine()
	}
	return &AppealWriter{templates: templates}
}

func (w *AppealWriter) Write(a *Analysis, claim *ClaimRef, now time.Time) (*Appeal, error) {
	id, ok := appealTemplates[a.Category]
	if !ok {
		return nil, fmt.Errorf("no appeal template for %s denials", a.Category)
	}
	deadline := ""
	if a.AppealDeadline != nil {
		deadline = a.AppealDeadline.Format("2006-01-02")
	}
	subject, body, err := w.templates.Render(id, map[string]string{
		"claim_number":    claim.ClaimNumber,
		"payer_name":      claim.PayerName,
		"denied_date":     a.DeniedAt.Format("2006-01-02"),
		"denial_code":     a.DenialCode,
		"denial_reason":   a.DenialReason,
		"root_cause":      a.RootCause,
		"appeal_deadline": deadline,
	})
	if err != nil {
		return nil, err
	}
	return &Appeal{
		ID:             uuid.New(),
		OrganizationID: a.OrganizationID,
		AnalysisID:     a.ID,
		ClaimID:        a.ClaimID,
		Subject:        subject,
		Letter:         body,
		Status:         AppealGenerated,
		CreatedAt:      now,
	}, nil
}
