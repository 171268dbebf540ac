package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/payment"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/blobstore"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/lock"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/notification"
)

// Payments is the slice of the payment store reconciliation reads and
// marks. payment.Repository satisfies it.
type Payments interface {
	ListPosted(ctx context.Context, orgID uuid.UUID, bankAccountID string, from, to time.Time) ([]*payment.Payment, error)
	SetReconciliationStatus(ctx context.Context, id uuid.UUID, status payment.ReconciliationStatus) error
}

type Config struct {
	Matcher     MatcherConfig
	FeedTimeout time.Duration
	LockTTL     time.Duration
}

func DefaultConfig() Config {
	return Config{Matcher: DefaultMatcherConfig(), FeedTimeout: 30 * time.Second, LockTTL: 2 * time.Minute}
}

type Reconciler struct {
	runs      Repository
	payments  Payments
	feed      BankFeed
	matcher   *Matcher
	locker    lock.Locker
	store     blobstore.Store
	publisher notification.Publisher
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time
}

func NewReconciler(
	runs Repository,
	payments Payments,
	feed BankFeed,
	locker lock.Locker,
	store blobstore.Store,
	publisher notification.Publisher,
	cfg Config,
	logger zerolog.Logger,
) *Reconciler {
	if cfg.FeedTimeout <= 0 {
		cfg.FeedTimeout = 30 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if feed == nil {
		feed = UnavailableBankFeed{}
	}
	return &Reconciler{
		runs:      runs,
		payments:  payments,
		feed:      feed,
		matcher:   NewMatcher(cfg.Matcher),
		locker:    locker,
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "reconciliation").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile matches the account's bank transactions for the period against
// posted payments and stores the run. When the bank feed fails the run is
// kept in progress with LastError and a retryable error is returned; no
// payment is touched.
func (r *Reconciler) Reconcile(ctx context.Context, orgID uuid.UUID, bankAccountID string, period Period) (*BankReconciliation, error) {
	if orgID == uuid.Nil || bankAccountID == "" {
		return nil, failure.Malformed("reconciliation.reconcile", "organization_id and bank_account_id are required")
	}
	if !period.Valid() {
		return nil, failure.Malformed("reconciliation.reconcile", "period end must be after start")
	}

	opening := decimal.Zero
	prev, err := r.runs.Previous(ctx, orgID, bankAccountID, period.Start)
	if err != nil {
		return nil, failure.Persistence("reconciliation.previous", err)
	}
	if prev != nil {
		opening = prev.ClosingBalance
	}

	run := &BankReconciliation{
		ID:             uuid.New(),
		OrganizationID: orgID,
		BankAccountID:  bankAccountID,
		PeriodStart:    period.Start,
		PeriodEnd:      period.End,
		OpeningBalance: opening,
		ClosingBalance: opening,
		Status:         StatusInProgress,
		CreatedAt:      r.now(),
	}
	if err := r.runs.Create(ctx, run); err != nil {
		return nil, failure.Persistence("reconciliation.create", err)
	}
	return r.run(ctx, run)
}

// Retry repeats an in-progress run, typically one left behind by a bank
// feed outage.
func (r *Reconciler) Retry(ctx context.Context, id uuid.UUID) (*BankReconciliation, error) {
	run, err := r.runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Finished() {
		return run, failure.Conflict("reconciliation.retry", fmt.Sprintf("reconciliation is %s", run.Status))
	}
	return r.run(ctx, run)
}

func (r *Reconciler) Get(ctx context.Context, id uuid.UUID) (*BankReconciliation, error) {
	return r.runs.GetByID(ctx, id)
}

func (r *Reconciler) List(ctx context.Context, orgID uuid.UUID, bankAccountID string) ([]*BankReconciliation, error) {
	return r.runs.ListByAccount(ctx, orgID, bankAccountID)
}

func (r *Reconciler) run(ctx context.Context, run *BankReconciliation) (*BankReconciliation, error) {
	log := r.logger.With().Str("reconciliation_id", run.ID.String()).Str("bank_account_id", run.BankAccountID).Logger()

	fctx, cancel := context.WithTimeout(ctx, r.cfg.FeedTimeout)
	txns, err := r.feed.Transactions(fctx, run.BankAccountID, run.Period())
	cancel()
	if err != nil {
		run.LastError = err.Error()
		if uerr := r.runs.Update(ctx, run); uerr != nil {
			return run, failure.Persistence("reconciliation.update", uerr)
		}
		log.Warn().Err(err).Msg("bank feed failed, run left in progress")
		return run, failure.External("reconciliation.bank_feed", err)
	}

	set, err := r.candidates(ctx, run)
	if err != nil {
		return run, err
	}

	res := r.matcher.Match(txns, set.payments)
	run.MatchedTransactions = res.Matched
	run.Discrepancies = res.Discrepancies
	run.UnmatchedTransactions = res.UnmatchedTransactions
	run.UnmatchedPayments = nil
	for _, id := range res.UnmatchedPayments {
		if set.inPeriod[id] {
			run.UnmatchedPayments = append(run.UnmatchedPayments, id)
		}
	}
	run.SkippedPayments = nil

	run.TotalDeposits, run.TotalWithdrawals = decimal.Zero, decimal.Zero
	for _, t := range txns {
		t = t.normalize()
		if t.Type == TypeWithdrawal {
			run.TotalWithdrawals = run.TotalWithdrawals.Add(t.Amount)
		} else {
			run.TotalDeposits = run.TotalDeposits.Add(t.Amount)
		}
	}
	run.ClosingBalance = run.OpeningBalance.Add(run.TotalDeposits).Sub(run.TotalWithdrawals)
	run.SystemTotal = set.systemTotal

	for _, m := range res.Matched {
		r.mark(ctx, run, m.PaymentID, payment.ReconMatched, log)
	}
	for _, m := range res.Discrepancies {
		r.mark(ctx, run, m.PaymentID, payment.ReconDiscrepancy, log)
	}

	run.Status = StatusCompleted
	if len(run.Discrepancies) > 0 {
		run.Status = StatusDiscrepancy
	}
	run.LastError = ""
	done := r.now()
	run.CompletedAt = &done
	if err := r.runs.Update(ctx, run); err != nil {
		return run, failure.Persistence("reconciliation.update", err)
	}

	r.archive(ctx, run, log)
	evt := notification.NewEvent(notification.EventReconciliationDone, run.OrganizationID, run.ID, map[string]interface{}{
		"bank_account_id": run.BankAccountID,
		"status":          run.Status,
		"matched":         len(run.MatchedTransactions),
		"discrepancies":   len(run.Discrepancies),
		"unmatched":       len(run.UnmatchedTransactions),
	})
	evt.Message = fmt.Sprintf("reconciliation of %s finished: %s", run.BankAccountID, run.Status)
	if run.Status == StatusDiscrepancy {
		evt.Severity = notification.SeverityWarning
	}
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, evt); err != nil {
			log.Warn().Err(err).Msg("publish failed")
		}
	}

	log.Info().
		Int("matched", len(run.MatchedTransactions)).
		Int("discrepancies", len(run.Discrepancies)).
		Int("unmatched", len(run.UnmatchedTransactions)).
		Int("skipped", len(run.SkippedPayments)).
		Str("status", string(run.Status)).
		Msg("reconciliation finished")
	return run, nil
}

// candidates lists the posted payments the run may match. The fetch is
// widened by the date tolerance on both sides so money posted near a period
// edge can meet a deposit that cleared in the neighbouring period. Payments
// already paired by a finished run of another period are left out. The
// set also flags the payments posted inside the run's own period and sums
// them, claimed or not.
func (r *Reconciler) candidates(ctx context.Context, run *BankReconciliation) (*candidateSet, error) {
	tol := r.matcher.cfg.DateTolerance
	posted, err := r.payments.ListPosted(ctx, run.OrganizationID, run.BankAccountID, run.PeriodStart.Add(-tol), run.PeriodEnd.Add(tol))
	if err != nil {
		return nil, failure.Persistence("reconciliation.payments", err)
	}
	others, err := r.runs.ListByAccount(ctx, run.OrganizationID, run.BankAccountID)
	if err != nil {
		return nil, failure.Persistence("reconciliation.runs", err)
	}
	claimed := make(map[uuid.UUID]bool)
	for _, o := range others {
		if o.ID == run.ID || !o.Finished() || (o.PeriodStart.Equal(run.PeriodStart) && o.PeriodEnd.Equal(run.PeriodEnd)) {
			continue
		}
		for _, m := range o.MatchedTransactions {
			claimed[m.PaymentID] = true
		}
		for _, m := range o.Discrepancies {
			claimed[m.PaymentID] = true
		}
	}

	set := &candidateSet{
		payments:    make([]*payment.Payment, 0, len(posted)),
		inPeriod:    make(map[uuid.UUID]bool),
		systemTotal: decimal.Zero,
	}
	for _, p := range posted {
		if !p.PostedDate.Before(run.PeriodStart) && p.PostedDate.Before(run.PeriodEnd) {
			set.inPeriod[p.ID] = true
			set.systemTotal = set.systemTotal.Add(p.Amount)
		}
		if !claimed[p.ID] {
			set.payments = append(set.payments, p)
		}
	}
	return set, nil
}

type candidateSet struct {
	payments    []*payment.Payment
	inPeriod    map[uuid.UUID]bool
	systemTotal decimal.Decimal
}

// mark sets a payment's reconciliation status under its posting lock. A
// payment whose lock is held is mid-posting and is skipped.
func (r *Reconciler) mark(ctx context.Context, run *BankReconciliation, id uuid.UUID, status payment.ReconciliationStatus, log zerolog.Logger) {
	release, ok, err := r.locker.TryAcquire(ctx, lock.PaymentKey(id.String()), r.cfg.LockTTL)
	if err != nil || !ok {
		if err != nil {
			log.Warn().Err(err).Str("payment_id", id.String()).Msg("posting lock unavailable")
		}
		run.SkippedPayments = append(run.SkippedPayments, id)
		return
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			log.Warn().Err(err).Msg("releasing posting lock")
		}
	}()
	if err := r.payments.SetReconciliationStatus(ctx, id, status); err != nil {
		log.Error().Err(err).Str("payment_id", id.String()).Msg("set reconciliation status")
		run.SkippedPayments = append(run.SkippedPayments, id)
	}
}

func (r *Reconciler) archive(ctx context.Context, run *BankReconciliation, log zerolog.Logger) {
	if r.store == nil {
		return
	}
	key := fmt.Sprintf("reconciliations/%s/%s.json", run.OrganizationID, run.ID)
	if err := blobstore.PutJSON(ctx, r.store, key, run); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("archiving reconciliation report")
	}
}
