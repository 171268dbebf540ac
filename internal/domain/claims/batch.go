package claims

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/blobstore"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/lock"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/notification"
)

// Batch-level issue codes recorded when a claim cannot be re-validated.
const (
	CodeClaimNotFound       = "CLAIM_NOT_FOUND"
	CodeClaimNotSubmittable = "CLAIM_NOT_SUBMITTABLE"
)

var submittable = map[Status]bool{
	StatusPending:  true,
	StatusAppealed: true,
}

type BatchConfig struct {
	MaxBatchSize int
	// Concurrency bounds parallel re-validation inside one batch.
	Concurrency int
	LockTTL     time.Duration
}

func DefaultBatchConfig() BatchConfig {
	return BatchConfig{MaxBatchSize: 100, Concurrency: 8, LockTTL: 5 * time.Minute}
}

// BatchCoordinator drives submission batches through
// preparing, validating, submitting and a terminal status.
type BatchCoordinator struct {
	processor *Processor
	batches   BatchRepository
	locker    lock.Locker
	store     blobstore.Store
	cfg       BatchConfig
	logger    zerolog.Logger
	now       func() time.Time
}

func NewBatchCoordinator(processor *Processor, batches BatchRepository, locker lock.Locker, store blobstore.Store, cfg BatchConfig, logger zerolog.Logger) *BatchCoordinator {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	return &BatchCoordinator{
		processor: processor,
		batches:   batches,
		locker:    locker,
		store:     store,
		cfg:       cfg,
		logger:    logger.With().Str("component", "batch_coordinator").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SubmitBatch creates a batch from claimIDs and runs it. IDs beyond the
// maximum batch size are reported in DroppedClaimIDs and must be re-batched
// by the caller. A clearinghouse failure returns the batch, still
// submitting, together with a retryable error.
func (b *BatchCoordinator) SubmitBatch(ctx context.Context, orgID uuid.UUID, claimIDs []uuid.UUID, clearinghouseID string) (*SubmissionBatch, error) {
	if orgID == uuid.Nil {
		return nil, failure.Malformed("claims.batch", "organization is required")
	}
	ids := uniqueIDs(claimIDs)
	if len(ids) == 0 {
		return nil, failure.Malformed("claims.batch", "at least one claim id is required")
	}
	var dropped []uuid.UUID
	if len(ids) > b.cfg.MaxBatchSize {
		dropped = ids[b.cfg.MaxBatchSize:]
		ids = ids[:b.cfg.MaxBatchSize]
	}
	chID, err := b.processor.resolveClearinghouse(ctx, orgID, clearinghouseID)
	if err != nil {
		return nil, err
	}

	now := b.now()
	batch := &SubmissionBatch{
		ID:              uuid.New(),
		OrganizationID:  orgID,
		ClaimIDs:        ids,
		DroppedClaimIDs: dropped,
		ClearinghouseID: chID,
		Status:          BatchPreparing,
		StatusHistory:   []BatchTransition{{Status: BatchPreparing, At: now}},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	release, err := b.locker.Acquire(ctx, lock.BatchKey(batch.ID.String()), b.cfg.LockTTL)
	if err != nil {
		return nil, failure.Persistence("claims.batch", fmt.Errorf("acquire batch lock: %w", err))
	}
	defer b.release(release)

	if err := b.batches.Create(ctx, batch); err != nil {
		return nil, failure.Persistence("claims.batch", err)
	}
	if len(dropped) > 0 {
		b.logger.Warn().Str("batch_id", batch.ID.String()).Int("dropped", len(dropped)).Msg("claims beyond batch size dropped")
	}
	return b.run(ctx, batch)
}

// RetryBatch resumes a batch left in validating or submitting by a failed
// run. Validation results already recorded are kept.
func (b *BatchCoordinator) RetryBatch(ctx context.Context, batchID uuid.UUID) (*SubmissionBatch, error) {
	release, err := b.locker.Acquire(ctx, lock.BatchKey(batchID.String()), b.cfg.LockTTL)
	if err != nil {
		return nil, failure.Persistence("claims.batch.retry", fmt.Errorf("acquire batch lock: %w", err))
	}
	defer b.release(release)

	batch, err := b.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != BatchValidating && batch.Status != BatchSubmitting {
		return nil, failure.Conflict("claims.batch.retry", fmt.Sprintf("batch is %s", batch.Status))
	}
	b.logger.Info().Str("batch_id", batch.ID.String()).Str("status", string(batch.Status)).Msg("retrying batch")
	return b.run(ctx, batch)
}

func (b *BatchCoordinator) Get(ctx context.Context, id uuid.UUID) (*SubmissionBatch, error) {
	return b.batches.GetByID(ctx, id)
}

func (b *BatchCoordinator) run(ctx context.Context, batch *SubmissionBatch) (*SubmissionBatch, error) {
	if batch.Status == BatchPreparing {
		if err := b.advance(ctx, batch, BatchValidating); err != nil {
			return batch, err
		}
	}
	if batch.Status == BatchValidating {
		if err := b.validate(ctx, batch); err != nil {
			return batch, err
		}
		if len(batch.ValidClaimIDs()) == 0 {
			batch.LastError = "no claim passed validation"
			if err := b.advance(ctx, batch, BatchRejected); err != nil {
				return batch, err
			}
			b.publish(ctx, batch)
			return batch, nil
		}
		if err := b.advance(ctx, batch, BatchSubmitting); err != nil {
			return batch, err
		}
	}
	return b.submit(ctx, batch)
}

func (b *BatchCoordinator) validate(ctx context.Context, batch *SubmissionBatch) error {
	results := make([]*ValidationResult, len(batch.ClaimIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for i, id := range batch.ClaimIDs {
		g.Go(func() error {
			res, err := b.revalidate(gctx, batch.OrganizationID, id)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		batch.LastError = err.Error()
		b.save(ctx, batch)
		return err
	}
	batch.ValidationResults = results
	batch.LastError = ""
	return b.save(ctx, batch)
}

func (b *BatchCoordinator) revalidate(ctx context.Context, orgID, claimID uuid.UUID) (*ValidationResult, error) {
	claim, err := b.processor.claims.GetByID(ctx, claimID)
	if err != nil && failure.KindOf(err) != failure.KindNotFound {
		return nil, failure.Persistence("claims.batch.validate", err)
	}
	if err != nil || claim.OrganizationID != orgID {
		return b.blocked(claimID, CodeClaimNotFound, "claim not found in organization"), nil
	}
	if claim.ArchivedAt != nil || !submittable[claim.Status] {
		return b.blocked(claimID, CodeClaimNotSubmittable, fmt.Sprintf("claim is %s", claim.Status)), nil
	}
	return b.processor.Revalidate(ctx, claim)
}

func (b *BatchCoordinator) blocked(claimID uuid.UUID, code, msg string) *ValidationResult {
	return &ValidationResult{
		ID:      uuid.New(),
		ClaimID: claimID,
		Errors: []Issue{{
			Code: code, Field: "claim_id", Message: msg, Category: CategoryPayer, Severity: SeverityError,
		}},
		Warnings:        []Issue{},
		Recommendations: []Issue{},
		ValidatedAt:     b.now(),
	}
}

// submit sends the valid claims unless an earlier run already has the
// clearinghouse's answer, then applies the results to each claim.
func (b *BatchCoordinator) submit(ctx context.Context, batch *SubmissionBatch) (*SubmissionBatch, error) {
	valid := batch.ValidClaimIDs()
	if batch.SubmissionResults == nil {
		sctx, cancel := context.WithTimeout(ctx, b.processor.cfg.SubmitTimeout)
		results, err := b.processor.clearinghouse.Submit(sctx, batch.ClearinghouseID, valid)
		cancel()
		if err != nil {
			batch.LastError = err.Error()
			b.save(ctx, batch)
			b.logger.Warn().Err(err).Str("batch_id", batch.ID.String()).Msg("clearinghouse submission failed")
			return batch, failure.External("claims.batch.submit", err)
		}
		batch.SubmissionResults = completeResults(valid, results, b.now())
		if err := b.save(ctx, batch); err != nil {
			return batch, err
		}
	}

	accepted := 0
	for _, res := range batch.SubmissionResults {
		claim, err := b.processor.claims.GetByID(ctx, res.ClaimID)
		if err != nil {
			batch.LastError = err.Error()
			b.save(ctx, batch)
			return batch, failure.Persistence("claims.batch.apply", err)
		}
		b.processor.applySubmission(claim, batch.ClearinghouseID, res)
		claim.UpdatedAt = b.now()
		if err := b.processor.claims.Update(ctx, claim); err != nil {
			batch.LastError = err.Error()
			b.save(ctx, batch)
			return batch, failure.Persistence("claims.batch.apply", err)
		}
		if res.IsAccepted {
			accepted++
		}
	}

	batch.LastError = ""
	final := BatchSubmitted
	if accepted == 0 {
		final = BatchRejected
		batch.LastError = "clearinghouse rejected every claim"
	}
	if err := b.advance(ctx, batch, final); err != nil {
		return batch, err
	}
	b.archive(ctx, batch)
	b.publish(ctx, batch)
	b.logger.Info().
		Str("batch_id", batch.ID.String()).
		Int("submitted", len(valid)).
		Int("accepted", accepted).
		Str("status", string(batch.Status)).
		Msg("batch submitted")
	return batch, nil
}

// completeResults orders results by claim and fills in a rejection for any
// claim the clearinghouse did not answer for.
func completeResults(ids []uuid.UUID, results []SubmissionResult, now time.Time) []SubmissionResult {
	byID := make(map[uuid.UUID]SubmissionResult, len(results))
	for _, r := range results {
		byID[r.ClaimID] = r
	}
	out := make([]SubmissionResult, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			r = SubmissionResult{ClaimID: id, Timestamp: now, Message: "no result returned by clearinghouse"}
		}
		out = append(out, r)
	}
	return out
}

func (b *BatchCoordinator) advance(ctx context.Context, batch *SubmissionBatch, to BatchStatus) error {
	if err := batch.Advance(to, b.now()); err != nil {
		return failure.Conflict("claims.batch", err.Error())
	}
	return b.save(ctx, batch)
}

func (b *BatchCoordinator) save(ctx context.Context, batch *SubmissionBatch) error {
	batch.UpdatedAt = b.now()
	if err := b.batches.Update(ctx, batch); err != nil {
		b.logger.Error().Err(err).Str("batch_id", batch.ID.String()).Msg("saving batch")
		return failure.Persistence("claims.batch", err)
	}
	return nil
}

func (b *BatchCoordinator) archive(ctx context.Context, batch *SubmissionBatch) {
	if b.store == nil {
		return
	}
	key := fmt.Sprintf("batches/%s/%s.json", batch.OrganizationID, batch.ID)
	if err := blobstore.PutJSON(ctx, b.store, key, batch); err != nil {
		b.logger.Warn().Err(err).Str("key", key).Msg("archiving batch manifest failed")
	}
}

func (b *BatchCoordinator) publish(ctx context.Context, batch *SubmissionBatch) {
	if b.processor.publisher == nil {
		return
	}
	evt := notification.NewEvent(notification.EventBatchStatus, batch.OrganizationID, batch.ID, map[string]interface{}{
		"status":      batch.Status,
		"claim_count": len(batch.ClaimIDs),
		"valid_count": len(batch.ValidClaimIDs()),
		"dropped":     len(batch.DroppedClaimIDs),
	})
	if batch.Status == BatchRejected {
		evt.Severity = notification.SeverityWarning
	}
	evt.Message = "batch " + string(batch.Status)
	if err := b.processor.publisher.Publish(ctx, evt); err != nil {
		b.logger.Warn().Err(err).Msg("publish batch status failed")
	}
}

func (b *BatchCoordinator) release(release lock.Release) {
	if err := release(context.Background()); err != nil {
		b.logger.Warn().Err(err).Msg("releasing batch lock")
	}
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
