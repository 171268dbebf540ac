package notification

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Template is a text template with {{key}} placeholders.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// Built-in appeal letter templates, one per auto-appealed denial category.
const (
	TemplateAppealTechnical     = "appeal-technical"
	TemplateAppealAuthorization = "appeal-authorization"
)

// TemplateEngine renders registered templates by plain placeholder
// substitution. Unknown placeholders are left as-is.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	e.Register(Template{
		ID:      TemplateAppealTechnical,
		Subject: "Request for reconsideration of claim {{claim_number}}",
		Body: "To {{payer_name}}:\n\n" +
			"We request reconsideration of claim {{claim_number}} denied on {{denied_date}} " +
			"with code {{denial_code}} ({{denial_reason}}). The technical defect has been corrected " +
			"and the claim is resubmitted for processing.\n\n" +
			"Root cause: {{root_cause}}\n\nPlease respond by {{appeal_deadline}}.",
	})
	e.Register(Template{
		ID:      TemplateAppealAuthorization,
		Subject: "Appeal of authorization denial for claim {{claim_number}}",
		Body: "To {{payer_name}}:\n\n" +
			"Claim {{claim_number}} was denied on {{denied_date}} with code {{denial_code}} " +
			"({{denial_reason}}). Authorization documentation is enclosed and we ask that the " +
			"claim be reprocessed.\n\n" +
			"Root cause: {{root_cause}}\n\nPlease respond by {{appeal_deadline}}.",
	})
	return e
}

func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

func (e *TemplateEngine) Render(id string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", id)
	}

	pairs := make([]string, 0, len(data)*2)
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", data[k])
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Subject), r.Replace(t.Body), nil
}
