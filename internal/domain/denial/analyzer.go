package denial

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/db"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/notification"
)

// ClaimRef is the part of a claim the analyzer needs.
type ClaimRef struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	ClaimNumber    string
	PayerName      string
}

const (
	ClaimDenied   = "denied"
	ClaimAppealed = "appealed"
)

// Claims reads and moves claims. The claims service backs it in production.
type Claims interface {
	Get(ctx context.Context, id uuid.UUID) (*ClaimRef, error)
	Transition(ctx context.Context, id uuid.UUID, status string, detail string) error
}

type Config struct {
	AutoAppealEnabled bool
	AppealWindowDays  int
}

func DefaultConfig() Config {
	return Config{AutoAppealEnabled: true, AppealWindowDays: 90}
}

type Analyzer struct {
	analyses  Repository
	appeals   AppealRepository
	claims    Claims
	rootCause RootCauseAnalyzer
	writer    *AppealWriter
	tx        db.Transactor
	publisher notification.Publisher
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time
}

func NewAnalyzer(
	analyses Repository,
	appeals AppealRepository,
	claims Claims,
	rootCause RootCauseAnalyzer,
	writer *AppealWriter,
	tx db.Transactor,
	publisher notification.Publisher,
	cfg Config,
	logger zerolog.Logger,
) *Analyzer {
	if rootCause == nil {
		rootCause = RuleBasedRootCause{}
	}
	if writer == nil {
		writer = NewAppealWriter(nil)
	}
	if cfg.AppealWindowDays <= 0 {
		cfg.AppealWindowDays = 90
	}
	return &Analyzer{
		analyses:  analyses,
		appeals:   appeals,
		claims:    claims,
		rootCause: rootCause,
		writer:    writer,
		tx:        tx,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "denial_analyzer").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Analyze categorizes a denial, records it and routes it: technical and
// authorization denials get an appeal generated, other appealable denials
// queue for manual review and the rest are closed.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*Outcome, error) {
	if in.OrganizationID == uuid.Nil || in.ClaimID == uuid.Nil {
		return nil, failure.Malformed("denial.analyze", "organization_id and claim_id are required")
	}
	if in.DenialCode == "" && in.DenialReason == "" {
		return nil, failure.Malformed("denial.analyze", "denial_code or denial_reason is required")
	}
	now := a.now()
	if in.DeniedAt.IsZero() {
		in.DeniedAt = now
	}

	claim, err := a.claims.Get(ctx, in.ClaimID)
	if err != nil {
		return nil, err
	}
	if claim.OrganizationID != in.OrganizationID {
		return nil, failure.NotFound("denial.analyze", "claim not found")
	}

	category := Categorize(in.DenialCode, in.DenialReason)
	rc, err := a.rootCause.Analyze(ctx, in, category)
	if err != nil {
		return nil, failure.External("denial.root_cause", err)
	}

	analysis := &Analysis{
		ID:                 uuid.New(),
		OrganizationID:     in.OrganizationID,
		ClaimID:            in.ClaimID,
		DenialCode:         in.DenialCode,
		DenialReason:       in.DenialReason,
		Category:           category,
		IsAppealable:       category.Appealable(),
		RootCause:          rc.Cause,
		PreventionStrategy: rc.Prevention,
		DeniedAt:           in.DeniedAt,
		CreatedAt:          now,
	}
	switch {
	case !analysis.IsAppealable:
		analysis.Disposition = DispositionClosed
	case a.cfg.AutoAppealEnabled && category.AutoAppealable():
		analysis.Disposition = DispositionAutoAppeal
	default:
		analysis.Disposition = DispositionManualReview
	}
	if analysis.IsAppealable {
		deadline := in.DeniedAt.AddDate(0, 0, a.cfg.AppealWindowDays)
		analysis.AppealDeadline = &deadline
	}

	var appeal *Appeal
	if analysis.Disposition == DispositionAutoAppeal {
		appeal, err = a.writer.Write(analysis, claim, now)
		if err != nil {
			return nil, fmt.Errorf("write appeal: %w", err)
		}
	}

	detail := fmt.Sprintf("denied %s: %s", in.DenialCode, in.DenialReason)
	err = a.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := a.claims.Transition(ctx, in.ClaimID, ClaimDenied, detail); err != nil {
			return err
		}
		if err := a.analyses.Create(ctx, analysis); err != nil {
			return failure.Persistence("denial.analyze", err)
		}
		if appeal == nil {
			return nil
		}
		if err := a.appeals.Create(ctx, appeal); err != nil {
			return failure.Persistence("denial.appeal", err)
		}
		return a.claims.Transition(ctx, in.ClaimID, ClaimAppealed, "")
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info().
		Str("claim_id", in.ClaimID.String()).
		Str("category", string(category)).
		Str("disposition", string(analysis.Disposition)).
		Msg("denial analyzed")

	evt := notification.NewEvent(notification.EventDenialAnalyzed, in.OrganizationID, analysis.ID, analysis)
	evt.Message = fmt.Sprintf("claim %s denied (%s)", claim.ClaimNumber, category)
	if !analysis.IsAppealable {
		evt.Severity = notification.SeverityWarning
	}
	a.publish(ctx, evt)
	switch analysis.Disposition {
	case DispositionAutoAppeal:
		appealEvt := notification.NewEvent(notification.EventAppealGenerated, in.OrganizationID, appeal.ID, appeal)
		appealEvt.Message = appeal.Subject
		a.publish(ctx, appealEvt)
	case DispositionManualReview:
		reviewEvt := notification.NewEvent(notification.EventManualReview, in.OrganizationID, analysis.ID, analysis)
		reviewEvt.Severity = notification.SeverityWarning
		reviewEvt.Message = fmt.Sprintf("claim %s needs appeal review before %s", claim.ClaimNumber, analysis.AppealDeadline.Format("2006-01-02"))
		a.publish(ctx, reviewEvt)
	}
	return &Outcome{Analysis: analysis, Appeal: appeal}, nil
}

func (a *Analyzer) Get(ctx context.Context, id uuid.UUID) (*Analysis, error) {
	return a.analyses.GetByID(ctx, id)
}

func (a *Analyzer) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Analysis, error) {
	return a.analyses.ListByClaim(ctx, claimID)
}

// ReviewQueue lists unresolved denials waiting on a person.
func (a *Analyzer) ReviewQueue(ctx context.Context, orgID uuid.UUID) ([]*Analysis, error) {
	return a.analyses.ListOpen(ctx, orgID, DispositionManualReview)
}

func (a *Analyzer) Appeals(ctx context.Context, claimID uuid.UUID) ([]*Appeal, error) {
	return a.appeals.ListByClaim(ctx, claimID)
}

// Resolve marks an analysis resolved. Nothing else on it changes.
func (a *Analyzer) Resolve(ctx context.Context, id uuid.UUID) (*Analysis, error) {
	analysis, err := a.analyses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if analysis.IsResolved {
		return analysis, failure.Conflict("denial.resolve", "denial already resolved")
	}
	now := a.now()
	analysis.IsResolved = true
	analysis.ResolvedAt = &now
	if err := a.analyses.Update(ctx, analysis); err != nil {
		return nil, failure.Persistence("denial.resolve", err)
	}
	return analysis, nil
}

func (a *Analyzer) publish(ctx context.Context, evt notification.Event) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Publish(ctx, evt); err != nil {
		a.logger.Warn().Err(err).Str("event", string(evt.Type)).Msg("publish failed")
	}
}
