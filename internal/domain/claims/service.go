package claims

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
)

// Service owns claim intake and the status changes other packages request.
type Service struct {
	claims      ClaimRepository
	validations ValidationRepository
	processor   *Processor
	now         func() time.Time
}

func NewService(claims ClaimRepository, validations ValidationRepository, processor *Processor) *Service {
	return &Service{
		claims:      claims,
		validations: validations,
		processor:   processor,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, c *Claim) error {
	if err := s.processor.CheckIdentity(c); err != nil {
		return err
	}
	now := s.now()
	c.ID = uuid.New()
	if c.ClaimNumber == "" {
		c.ClaimNumber = fmt.Sprintf("CLM-%s-%s", now.Format("20060102"), strings.ToUpper(c.ID.String()[:8]))
	}
	if c.TotalCharges.IsZero() {
		c.TotalCharges = c.LineTotal()
	}
	if c.TotalCharges.IsNegative() {
		return failure.Malformed("claims.create", "total charges cannot be negative")
	}
	c.TotalPayments = decimal.Zero
	c.TotalAdjustments = decimal.Zero
	c.Recalculate()
	c.Status = StatusDraft
	c.QualityMetrics = QualityMetrics{}
	c.ValidationScore = 0
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := s.claims.Create(ctx, c); err != nil {
		return failure.Persistence("claims.create", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return s.claims.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, orgID uuid.UUID, status Status, limit, offset int) ([]*Claim, int, error) {
	return s.claims.ListByOrganization(ctx, orgID, status, limit, offset)
}

func (s *Service) Validations(ctx context.Context, claimID uuid.UUID) ([]*ValidationResult, error) {
	return s.validations.ListByClaim(ctx, claimID)
}

func (s *Service) Process(ctx context.Context, id uuid.UUID) (*ProcessResult, error) {
	c, err := s.claims.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.processor.Process(ctx, c)
}

// CheckPosting reports whether amount could be posted to the claim now.
func (s *Service) CheckPosting(ctx context.Context, claimID uuid.UUID, amount decimal.Decimal) error {
	c, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return err
	}
	if err := CheckPostingEligibility(c, amount); err != nil {
		return failure.Validation("claims.post_payment", err.Error())
	}
	return nil
}

// PostPayment applies amount to the claim's running totals. Run it inside
// the caller's transaction so the row lock covers the ledger write too.
func (s *Service) PostPayment(ctx context.Context, claimID uuid.UUID, amount decimal.Decimal) (*Claim, error) {
	c, err := s.claims.GetForUpdate(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if err := CheckPostingEligibility(c, amount); err != nil {
		return nil, failure.Validation("claims.post_payment", err.Error())
	}
	if err := c.ApplyPayment(amount); err != nil {
		return nil, failure.Conflict("claims.post_payment", err.Error())
	}
	c.UpdatedAt = s.now()
	if err := s.claims.Update(ctx, c); err != nil {
		return nil, failure.Persistence("claims.post_payment", err)
	}
	return c, nil
}

// Transition moves a claim to status, recording detail as LastError when
// given. Resolving a claim archives it.
func (s *Service) Transition(ctx context.Context, claimID uuid.UUID, status Status, detail string) (*Claim, error) {
	c, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if status == StatusResolved {
		err = c.Archive(now)
	} else {
		err = c.SetStatus(status)
	}
	if err != nil {
		return nil, failure.Conflict("claims.transition", err.Error())
	}
	if detail != "" {
		c.LastError = detail
	}
	c.UpdatedAt = now
	if err := s.claims.Update(ctx, c); err != nil {
		return nil, failure.Persistence("claims.transition", err)
	}
	return c, nil
}
