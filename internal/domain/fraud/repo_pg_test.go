package fraud

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/db/pgtest"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
)

func TestDetectionRepoPG_Supersedes(t *testing.T) {
	pool := pgtest.Start(t, 15491)
	ctx := context.Background()
	repo := NewRepoPG(pool)

	org, payment := uuid.New(), uuid.New()
	at := time.Date(2024, 6, 1, 2, 30, 0, 0, time.UTC)
	first := &Detection{
		OrganizationID: org,
		SubjectType:    SubjectPayment,
		SubjectID:      payment,
		RiskFactors: []RiskFactor{
			{Name: FactorLargeAmount, Weight: 0.3, Score: 1, Contribution: 0.3, Severity: SeverityHigh},
			{Name: FactorOffHours, Weight: 0.2, Score: 1, Contribution: 0.2, Severity: SeverityMedium},
		},
		RiskScore: 0.5,
		Status:    StatusPendingReview,
		CreatedAt: at,
	}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	reviewer := "reviewer-1"
	second := &Detection{
		OrganizationID: org,
		SubjectType:    SubjectPayment,
		SubjectID:      payment,
		RiskFactors:    first.RiskFactors,
		RiskScore:      first.RiskScore,
		Status:         StatusApproved,
		SupersedesID:   &first.ID,
		Reviewer:       &reviewer,
		CreatedAt:      at.Add(time.Hour),
	}
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("create review: %v", err)
	}

	latest, err := repo.LatestForSubject(ctx, SubjectPayment, payment)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != second.ID || latest.Status != StatusApproved {
		t.Errorf("expected review to supersede, got %+v", latest)
	}
	if latest.SupersedesID == nil || *latest.SupersedesID != first.ID || *latest.Reviewer != reviewer {
		t.Errorf("review links not round-tripped: %+v", latest)
	}
	if len(latest.RiskFactors) != 2 || latest.RiskFactors[0].Name != FactorLargeAmount {
		t.Errorf("risk factors = %+v", latest.RiskFactors)
	}

	history, err := repo.ListForSubject(ctx, SubjectPayment, payment)
	if err != nil || len(history) != 2 || history[0].ID != first.ID {
		t.Errorf("history: %d %v", len(history), err)
	}

	if _, err := repo.LatestForSubject(ctx, SubjectClaim, payment); failure.KindOf(err) != failure.KindNotFound {
		t.Errorf("expected not found for other subject type, got %v", err)
	}
}
