package denial

import (
	"context"
	"fmt"
)

type RootCause struct {
	Cause      string
	Prevention string
}

// RootCauseAnalyzer explains why a denial happened and how to avoid the
// next one. The analyzer calls it exactly once per analysis.
type RootCauseAnalyzer interface {
	Analyze(ctx context.Context, in Input, category Category) (RootCause, error)
}

// RuleBasedRootCause answers from a fixed table per category.
type RuleBasedRootCause struct{}

var rootCauseRules = map[Category]RootCause{
	CategoryAuthorization: {
		Cause:      "service rendered without a valid prior authorization on file",
		Prevention: "verify authorization requirements at scheduling and attach the authorization number before submission",
	},
	CategoryCoverage: {
		Cause:      "patient coverage did not include the service on the date rendered",
		Prevention: "run real-time eligibility checks before each visit and collect updated insurance at check-in",
	},
	CategoryDuplicate: {
		Cause:      "claim was submitted more than once for the same service",
		Prevention: "check submission history before resubmitting and use corrected-claim frequency codes",
	},
	CategoryTimelyFiling: {
		Cause:      "claim reached the payer after its filing limit",
		Prevention: "monitor unsubmitted claims against payer filing limits and prioritize claims nearing the limit",
	},
	CategoryClinical: {
		Cause:      "documentation did not establish medical necessity for the service",
		Prevention: "review documentation against payer medical policy and capture supporting diagnoses",
	},
	CategoryTechnical: {
		Cause:      "claim data failed payer edits",
		Prevention: "tighten front-end claim scrubbing for coding and demographic completeness",
	},
}

func (RuleBasedRootCause) Analyze(_ context.Context, in Input, category Category) (RootCause, error) {
	rc, ok := rootCauseRules[category]
	if !ok {
		rc = rootCauseRules[CategoryTechnical]
	}
	if in.DenialCode != "" {
		rc.Cause = fmt.Sprintf("%s (code %s)", rc.Cause, in.DenialCode)
	}
	return rc, nil
}
