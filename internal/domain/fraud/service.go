package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
)

// History reports a patient's other payment amounts inside a window. The
// payment package supplies it.
type History interface {
	RecentAmounts(ctx context.Context, orgID, patientID uuid.UUID, since time.Time, exclude uuid.UUID) ([]decimal.Decimal, error)
}

// Service scores subjects against history and keeps the detection trail.
type Service struct {
	scorer  *Scorer
	repo    Repository
	history History
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(scorer *Scorer, repo Repository, history History, logger zerolog.Logger) *Service {
	return &Service{
		scorer:  scorer,
		repo:    repo,
		history: history,
		logger:  logger.With().Str("component", "fraud").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Assess scores in and persists the detection. Payments also get velocity
// and duplicate signals from the patient's payment history.
func (s *Service) Assess(ctx context.Context, in Input) (*Detection, error) {
	if s.history != nil && in.SubjectType == SubjectPayment && in.PatientID != uuid.Nil {
		at := in.At
		if at.IsZero() {
			at = s.now()
		}
		amounts, err := s.history.RecentAmounts(ctx, in.OrganizationID, in.PatientID, at.Add(-s.scorer.cfg.Window), in.SubjectID)
		if err != nil {
			return nil, failure.Persistence("fraud.assess", fmt.Errorf("load payment history: %w", err))
		}
		in.RecentCount = len(amounts)
		for _, a := range amounts {
			if a.Equal(in.Amount) {
				in.DuplicateAmount = true
				break
			}
		}
	}

	d := s.scorer.Score(in)
	d.CreatedAt = s.now()
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, failure.Persistence("fraud.assess", err)
	}

	evt := s.logger.Info()
	if d.RequiresReview() {
		evt = s.logger.Warn()
	}
	evt.Str("subject_type", string(d.SubjectType)).
		Str("subject_id", d.SubjectID.String()).
		Float64("risk_score", d.RiskScore).
		Str("status", string(d.Status)).
		Msg("fraud assessment recorded")
	return d, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Detection, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Latest(ctx context.Context, subjectType SubjectType, subjectID uuid.UUID) (*Detection, error) {
	return s.repo.LatestForSubject(ctx, subjectType, subjectID)
}

// Review records a reviewer's decision as a new detection superseding the
// subject's current one. The original detection is never modified.
func (s *Service) Review(ctx context.Context, subjectType SubjectType, subjectID uuid.UUID, decision Decision, reviewer string) (*Detection, error) {
	if reviewer == "" {
		return nil, failure.Malformed("fraud.review", "reviewer is required")
	}
	var status Status
	switch decision {
	case DecisionApprove:
		status = StatusApproved
	case DecisionInvestigate:
		status = StatusInvestigating
	default:
		return nil, failure.Malformed("fraud.review", fmt.Sprintf("unknown decision %q", decision))
	}

	current, err := s.repo.LatestForSubject(ctx, subjectType, subjectID)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusApproved {
		return nil, failure.Conflict("fraud.review", "detection already approved")
	}

	prev := current.ID
	next := &Detection{
		ID:             uuid.New(),
		OrganizationID: current.OrganizationID,
		SubjectType:    current.SubjectType,
		SubjectID:      current.SubjectID,
		RiskFactors:    current.RiskFactors,
		RiskScore:      current.RiskScore,
		Status:         status,
		SupersedesID:   &prev,
		Reviewer:       &reviewer,
		CreatedAt:      s.now(),
	}
	if err := s.repo.Create(ctx, next); err != nil {
		return nil, failure.Persistence("fraud.review", err)
	}
	s.logger.Info().
		Str("subject_id", subjectID.String()).
		Str("decision", string(decision)).
		Str("reviewer", reviewer).
		Msg("fraud review recorded")
	return next, nil
}
