package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/fraud"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/db"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/lock"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/notification"
)

// FraudGate scores payments and records review decisions. *fraud.Service
// implements it.
type FraudGate interface {
	Assess(ctx context.Context, in fraud.Input) (*fraud.Detection, error)
	Review(ctx context.Context, subjectType fraud.SubjectType, subjectID uuid.UUID, decision fraud.Decision, reviewer string) (*fraud.Detection, error)
}

// ClaimLedger applies payments to claim totals.
type ClaimLedger interface {
	CheckPosting(ctx context.Context, claimID uuid.UUID, amount decimal.Decimal) error
	PostPayment(ctx context.Context, claimID uuid.UUID, amount decimal.Decimal) error
}

type ExecutorConfig struct {
	AutoPost       bool
	GatewayTimeout time.Duration
	LockTTL        time.Duration
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{AutoPost: true, GatewayTimeout: 30 * time.Second, LockTTL: 2 * time.Minute}
}

// Executor runs the fraud check, gateway execution and ledger posting for a
// payment while holding the payment's posting lock.
type Executor struct {
	payments  Repository
	ledger    LedgerRepository
	claims    ClaimLedger
	fraud     FraudGate
	gateway   Gateway
	locker    lock.Locker
	tx        db.Transactor
	publisher notification.Publisher
	cfg       ExecutorConfig
	validate  *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

func NewExecutor(
	payments Repository,
	ledger LedgerRepository,
	claims ClaimLedger,
	fraudGate FraudGate,
	gateway Gateway,
	locker lock.Locker,
	tx db.Transactor,
	publisher notification.Publisher,
	cfg ExecutorConfig,
	logger zerolog.Logger,
) *Executor {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 30 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &Executor{
		payments:  payments,
		ledger:    ledger,
		claims:    claims,
		fraud:     fraudGate,
		gateway:   gateway,
		locker:    locker,
		tx:        tx,
		publisher: publisher,
		cfg:       cfg,
		validate:  validator.New(),
		logger:    logger.With().Str("component", "payment_executor").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Intake validates and stores a new pending payment.
func (e *Executor) Intake(ctx context.Context, p *Payment) error {
	if err := e.validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return failure.Malformed("payment.intake", "invalid "+strings.Join(fields, ", "))
		}
		return failure.Malformed("payment.intake", err.Error())
	}
	if !p.Amount.IsPositive() {
		return failure.Malformed("payment.intake", "amount must be positive")
	}
	now := e.now()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Status = StatusPending
	p.ReconciliationStatus = ReconUnmatched
	p.PostedDate = nil
	p.ProcessedAt = nil
	p.TransactionID = ""
	p.FailureReason = ""
	if p.InitiatedAt.IsZero() {
		p.InitiatedAt = now
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := e.payments.Create(ctx, p); err != nil {
		return failure.Persistence("payment.intake", err)
	}
	return nil
}

// Execute takes a pending payment through the fraud gate and the gateway and
// posts it when auto-posting is on. A payment above the fraud threshold is
// returned disputed and never reaches the gateway. Gateway I/O failures
// leave the payment pending and return a retryable error.
func (e *Executor) Execute(ctx context.Context, p *Payment) (*Payment, error) {
	if p.ID == uuid.Nil {
		if err := e.Intake(ctx, p); err != nil {
			return nil, err
		}
	}
	release, err := e.acquire(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	defer e.release(release)

	p, err = e.payments.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusPending {
		return p, failure.Conflict("payment.execute", fmt.Sprintf("payment is %s", p.Status))
	}

	if p.ClaimID != nil {
		if err := e.claims.CheckPosting(ctx, *p.ClaimID, p.Amount); err != nil {
			if failure.KindOf(err) != failure.KindValidation {
				return p, err
			}
			p.Status = StatusFailed
			p.FailureReason = err.Error()
			return p, e.save(ctx, p)
		}
	}

	detection, err := e.fraud.Assess(ctx, fraud.Input{
		OrganizationID: p.OrganizationID,
		SubjectType:    fraud.SubjectPayment,
		SubjectID:      p.ID,
		PatientID:      p.PatientID,
		Amount:         p.Amount,
		PaymentMethod:  string(p.PaymentMethod),
		At:             p.InitiatedAt,
	})
	if err != nil {
		return p, err
	}
	if detection.RequiresReview() {
		p.Status = StatusDisputed
		p.FailureReason = fmt.Sprintf("held for fraud review (risk %.2f)", detection.RiskScore)
		if err := e.save(ctx, p); err != nil {
			return p, err
		}
		evt := notification.NewEvent(notification.EventFraudReview, p.OrganizationID, p.ID, detection)
		evt.Severity = notification.SeverityWarning
		evt.Message = p.FailureReason
		e.publish(ctx, evt)
		e.logger.Warn().Str("payment_id", p.ID.String()).Float64("risk_score", detection.RiskScore).Msg("payment held for fraud review")
		return p, nil
	}

	return e.executeCleared(ctx, p)
}

// executeCleared runs the gateway and auto-post steps. The caller holds the
// payment lock.
func (e *Executor) executeCleared(ctx context.Context, p *Payment) (*Payment, error) {
	gctx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout)
	res, err := e.gateway.Execute(gctx, p)
	cancel()
	if err != nil {
		p.FailureReason = err.Error()
		if serr := e.save(ctx, p); serr != nil {
			return p, serr
		}
		e.logger.Warn().Err(err).Str("payment_id", p.ID.String()).Msg("gateway call failed, payment left pending")
		return p, failure.External("payment.execute", err)
	}

	processed := res.ProcessedAt
	if processed.IsZero() {
		processed = e.now()
	}
	p.ProcessedAt = &processed
	p.TransactionID = res.TransactionID
	if res.Success {
		p.Status = StatusCompleted
		p.FailureReason = ""
	} else {
		p.Status = StatusFailed
		p.FailureReason = res.FailureReason
	}
	if err := e.save(ctx, p); err != nil {
		return p, err
	}

	if p.Status == StatusCompleted && e.cfg.AutoPost {
		if _, err := e.post(ctx, p); err != nil {
			return p, err
		}
	}
	return p, nil
}

// AutoPost posts a completed payment to the patient ledger and its claim.
// It reports false when the payment was already posted.
func (e *Executor) AutoPost(ctx context.Context, p *Payment) (bool, error) {
	release, err := e.acquire(ctx, p.ID)
	if err != nil {
		return false, err
	}
	defer e.release(release)

	current, err := e.payments.GetByID(ctx, p.ID)
	if err != nil {
		return false, err
	}
	*p = *current
	return e.post(ctx, p)
}

// post writes the ledger entry, the claim totals and the posted date in
// one transaction.
func (e *Executor) post(ctx context.Context, p *Payment) (bool, error) {
	if p.Status != StatusCompleted {
		return false, failure.Conflict("payment.post", fmt.Sprintf("payment is %s", p.Status))
	}
	if p.Posted() {
		return false, nil
	}
	postedAt := e.now()
	err := e.tx.WithTx(ctx, func(ctx context.Context) error {
		entry := &LedgerEntry{
			ID:             uuid.New(),
			OrganizationID: p.OrganizationID,
			PatientID:      p.PatientID,
			PaymentID:      p.ID,
			ClaimID:        p.ClaimID,
			Amount:         p.Amount,
			EntryType:      EntryPayment,
			CreatedAt:      postedAt,
		}
		if err := e.ledger.Create(ctx, entry); err != nil {
			return fmt.Errorf("ledger entry: %w", err)
		}
		if p.ClaimID != nil {
			if err := e.claims.PostPayment(ctx, *p.ClaimID, p.Amount); err != nil {
				return err
			}
		}
		posted := *p
		posted.PostedDate = &postedAt
		posted.UpdatedAt = postedAt
		if err := e.payments.Update(ctx, &posted); err != nil {
			return fmt.Errorf("payment posted date: %w", err)
		}
		return nil
	})
	if err != nil {
		e.logger.Error().Err(err).Str("payment_id", p.ID.String()).Msg("posting rolled back")
		if failure.KindOf(err) != "" {
			return false, err
		}
		return false, failure.Persistence("payment.post", err)
	}
	p.PostedDate = &postedAt
	p.UpdatedAt = postedAt

	evt := notification.NewEvent(notification.EventPaymentPosted, p.OrganizationID, p.ID, map[string]interface{}{
		"amount":   p.Amount,
		"claim_id": p.ClaimID,
	})
	evt.Message = "payment posted"
	e.publish(ctx, evt)
	e.logger.Info().Str("payment_id", p.ID.String()).Str("amount", p.Amount.StringFixed(2)).Msg("payment posted")
	return true, nil
}

// Review records a decision on a disputed payment. Approval executes the
// payment without scoring it again; investigation keeps it disputed.
func (e *Executor) Review(ctx context.Context, paymentID uuid.UUID, decision fraud.Decision, reviewer string) (*Payment, error) {
	release, err := e.acquire(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	defer e.release(release)

	p, err := e.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusDisputed {
		return p, failure.Conflict("payment.review", fmt.Sprintf("payment is %s", p.Status))
	}
	if _, err := e.fraud.Review(ctx, fraud.SubjectPayment, p.ID, decision, reviewer); err != nil {
		return p, err
	}
	if decision != fraud.DecisionApprove {
		return p, nil
	}

	p.Status = StatusPending
	p.FailureReason = ""
	if err := e.save(ctx, p); err != nil {
		return p, err
	}
	return e.executeCleared(ctx, p)
}

func (e *Executor) save(ctx context.Context, p *Payment) error {
	p.UpdatedAt = e.now()
	if err := e.payments.Update(ctx, p); err != nil {
		return failure.Persistence("payment.save", err)
	}
	return nil
}

func (e *Executor) acquire(ctx context.Context, id uuid.UUID) (lock.Release, error) {
	release, err := e.locker.Acquire(ctx, lock.PaymentKey(id.String()), e.cfg.LockTTL)
	if err != nil {
		return nil, failure.Persistence("payment.lock", err)
	}
	return release, nil
}

func (e *Executor) release(release lock.Release) {
	if err := release(context.Background()); err != nil {
		e.logger.Warn().Err(err).Msg("releasing posting lock")
	}
}

func (e *Executor) publish(ctx context.Context, evt notification.Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, evt); err != nil {
		e.logger.Warn().Err(err).Str("event", string(evt.Type)).Msg("publish failed")
	}
}
