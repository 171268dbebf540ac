package claims

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/fraud"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/notification"
)

// FraudAssessor scores a claim's charges. *fraud.Service implements it.
type FraudAssessor interface {
	Assess(ctx context.Context, in fraud.Input) (*fraud.Detection, error)
}

type ProcessorConfig struct {
	AutoSubmitEnabled   bool
	AutoSubmitThreshold float64
	SubmitTimeout       time.Duration
}

func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{AutoSubmitEnabled: true, AutoSubmitThreshold: 0.95, SubmitTimeout: 30 * time.Second}
}

// Processor runs a claim through validation, fraud scoring and the
// auto-submit gate.
type Processor struct {
	engine        *ValidationEngine
	fraud         FraudAssessor
	claims        ClaimRepository
	validations   ValidationRepository
	clearinghouse Clearinghouse
	router        Router
	publisher     notification.Publisher
	cfg           ProcessorConfig
	validate      *validator.Validate
	logger        zerolog.Logger
	now           func() time.Time
}

func NewProcessor(
	engine *ValidationEngine,
	fraudAssessor FraudAssessor,
	claims ClaimRepository,
	validations ValidationRepository,
	clearinghouse Clearinghouse,
	router Router,
	publisher notification.Publisher,
	cfg ProcessorConfig,
	logger zerolog.Logger,
) *Processor {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	return &Processor{
		engine:        engine,
		fraud:         fraudAssessor,
		claims:        claims,
		validations:   validations,
		clearinghouse: clearinghouse,
		router:        router,
		publisher:     publisher,
		cfg:           cfg,
		validate:      validator.New(),
		logger:        logger.With().Str("component", "claims_processor").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CheckIdentity rejects claims without an organization or patient.
func (p *Processor) CheckIdentity(claim *Claim) error {
	if claim == nil {
		return failure.Malformed("claims.identity", "claim is required")
	}
	if err := p.validate.Struct(claim); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return failure.Malformed("claims.identity", "missing "+strings.Join(fields, ", "))
		}
		return failure.Malformed("claims.identity", err.Error())
	}
	return nil
}

var processable = map[Status]bool{
	StatusDraft: true, StatusValidating: true, StatusPending: true, StatusRejected: true,
}

// Process validates and scores claim and auto-submits it when it clears
// every gate. A failed submission leaves the claim pending with LastError
// set; the failure is returned on the result, not as the error.
func (p *Processor) Process(ctx context.Context, claim *Claim) (*ProcessResult, error) {
	start := time.Now()
	if err := p.CheckIdentity(claim); err != nil {
		return nil, err
	}
	if claim.ArchivedAt != nil || !processable[claim.Status] {
		return nil, failure.Conflict("claims.process", fmt.Sprintf("claim in status %s cannot be processed", claim.Status))
	}

	if err := claim.SetStatus(StatusValidating); err != nil {
		return nil, failure.Conflict("claims.process", err.Error())
	}
	result, err := p.validateAndRecord(ctx, claim)
	if err != nil {
		return nil, err
	}
	if err := claim.SetStatus(StatusPending); err != nil {
		return nil, failure.Conflict("claims.process", err.Error())
	}

	detection, err := p.fraud.Assess(ctx, fraud.Input{
		OrganizationID: claim.OrganizationID,
		SubjectType:    fraud.SubjectClaim,
		SubjectID:      claim.ID,
		PatientID:      claim.PatientID,
		Amount:         claim.TotalCharges,
		At:             p.now(),
	})
	if err != nil {
		return nil, err
	}

	pr := &ProcessResult{
		Claim:            claim,
		ValidationResult: result,
		FraudDetection:   detection,
		FraudHold:        detection.RequiresReview(),
	}

	switch {
	case !result.IsValid:
		claim.LastError = "validation failed: " + issueCodes(result.Errors)
	case p.shouldAutoSubmit(result, pr.FraudHold):
		sub, err := p.submitOne(ctx, claim)
		if err != nil {
			claim.LastError = err.Error()
			pr.SubmissionError = err
			p.logger.Warn().Err(err).Str("claim_id", claim.ID.String()).Msg("auto-submission failed, claim left pending")
		} else {
			pr.Submission = sub
		}
	}

	claim.UpdatedAt = p.now()
	if err := p.claims.Update(ctx, claim); err != nil {
		return nil, failure.Persistence("claims.process", err)
	}
	if pr.Submission != nil && pr.Submission.IsAccepted {
		p.publish(ctx, notification.EventClaimSubmitted, claim, pr.Submission)
	}

	pr.ProcessingTimeMs = time.Since(start).Milliseconds()
	p.logger.Info().
		Str("claim_id", claim.ID.String()).
		Bool("valid", result.IsValid).
		Float64("validation_score", result.ValidationScore).
		Float64("risk_score", detection.RiskScore).
		Str("status", string(claim.Status)).
		Int64("elapsed_ms", pr.ProcessingTimeMs).
		Msg("claim processed")
	return pr, nil
}

func (p *Processor) shouldAutoSubmit(result *ValidationResult, fraudHold bool) bool {
	return p.cfg.AutoSubmitEnabled &&
		result.IsValid &&
		result.ValidationScore >= p.cfg.AutoSubmitThreshold &&
		!fraudHold
}

// Revalidate validates claim again and records the result without changing
// its status.
func (p *Processor) Revalidate(ctx context.Context, claim *Claim) (*ValidationResult, error) {
	result, err := p.validateAndRecord(ctx, claim)
	if err != nil {
		return nil, err
	}
	claim.UpdatedAt = p.now()
	if err := p.claims.Update(ctx, claim); err != nil {
		return nil, failure.Persistence("claims.revalidate", err)
	}
	return result, nil
}

func (p *Processor) validateAndRecord(ctx context.Context, claim *Claim) (*ValidationResult, error) {
	result := p.engine.Validate(claim)
	result.ID = uuid.New()
	if err := p.validations.Create(ctx, result); err != nil {
		return nil, failure.Persistence("claims.validate", err)
	}

	qm := &claim.QualityMetrics
	qm.ValidationAttempts++
	if qm.ValidationAttempts == 1 {
		qm.FirstPassClean = result.IsValid && len(result.Warnings) == 0
	}
	qm.LastErrorCount = len(result.Errors)
	qm.LastWarningCount = len(result.Warnings)
	at := result.ValidatedAt
	qm.LastValidatedAt = &at
	claim.ValidationScore = result.ValidationScore
	return result, nil
}

func (p *Processor) submitOne(ctx context.Context, claim *Claim) (*SubmissionResult, error) {
	chID, err := p.resolveClearinghouse(ctx, claim.OrganizationID, claim.ClearinghouseID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.SubmitTimeout)
	defer cancel()

	results, err := p.clearinghouse.Submit(ctx, chID, []uuid.UUID{claim.ID})
	if err != nil {
		return nil, failure.External("claims.submit", err)
	}
	for i := range results {
		if results[i].ClaimID == claim.ID {
			p.applySubmission(claim, chID, results[i])
			return &results[i], nil
		}
	}
	return nil, failure.External("claims.submit", fmt.Errorf("clearinghouse %s returned no result for claim %s", chID, claim.ID))
}

func (p *Processor) resolveClearinghouse(ctx context.Context, orgID uuid.UUID, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p.router == nil {
		return "", failure.Malformed("claims.route", "no clearinghouse given and no routing policy configured")
	}
	id, err := p.router.Route(ctx, orgID)
	if err != nil {
		return "", failure.Malformed("claims.route", err.Error())
	}
	return id, nil
}

// applySubmission records the clearinghouse outcome on claim.
func (p *Processor) applySubmission(claim *Claim, clearinghouseID string, res SubmissionResult) {
	claim.ClearinghouseID = clearinghouseID
	if !res.IsAccepted {
		if err := claim.SetStatus(StatusRejected); err != nil {
			p.logger.Error().Err(err).Msg("recording clearinghouse rejection")
		}
		claim.LastError = "rejected by clearinghouse: " + res.Message
		return
	}
	if err := claim.SetStatus(StatusSubmitted); err != nil {
		p.logger.Error().Err(err).Msg("recording clearinghouse acceptance")
		return
	}
	claim.AcknowledgmentCode = res.AcknowledgmentCode
	claim.SubmissionID = res.SubmissionID
	ts := res.Timestamp
	if ts.IsZero() {
		ts = p.now()
	}
	claim.SubmittedAt = &ts
	claim.LastError = ""
}

func (p *Processor) publish(ctx context.Context, typ notification.EventType, claim *Claim, payload interface{}) {
	if p.publisher == nil {
		return
	}
	evt := notification.NewEvent(typ, claim.OrganizationID, claim.ID, payload)
	evt.Message = "claim " + claim.ClaimNumber
	if err := p.publisher.Publish(ctx, evt); err != nil {
		p.logger.Warn().Err(err).Str("event", string(typ)).Msg("publish failed")
	}
}

func issueCodes(issues []Issue) string {
	codes := make([]string, 0, len(issues))
	for _, i := range issues {
		codes = append(codes, i.Code)
	}
	return strings.Join(codes, ", ")
}
