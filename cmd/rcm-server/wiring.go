package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/config"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/claims"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/denial"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/fraud"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/kpi"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/payment"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/reconciliation"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/blobstore"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/notification"
)

// claimLedger adapts the claims service to the payment executor, which
// only needs to know whether posting succeeded.
type claimLedger struct {
	svc *claims.Service
}

func (l claimLedger) CheckPosting(ctx context.Context, claimID uuid.UUID, amount decimal.Decimal) error {
	return l.svc.CheckPosting(ctx, claimID, amount)
}

func (l claimLedger) PostPayment(ctx context.Context, claimID uuid.UUID, amount decimal.Decimal) error {
	_, err := l.svc.PostPayment(ctx, claimID, amount)
	return err
}

// denialClaims adapts the claims service to the denial analyzer, avoiding
// an import from denial to claims.
type denialClaims struct {
	svc *claims.Service
}

func (d denialClaims) Get(ctx context.Context, id uuid.UUID) (*denial.ClaimRef, error) {
	c, err := d.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return claimRef(c), nil
}

func (d denialClaims) Transition(ctx context.Context, id uuid.UUID, status string, detail string) error {
	_, err := d.svc.Transition(ctx, id, claims.Status(status), detail)
	return err
}

func claimRef(c *claims.Claim) *denial.ClaimRef {
	return &denial.ClaimRef{
		ID:             c.ID,
		OrganizationID: c.OrganizationID,
		ClaimNumber:    c.ClaimNumber,
		PayerName:      c.PrimaryInsurance.PayerName,
	}
}

func minioConfig(cfg *config.Config) blobstore.MinioConfig {
	return blobstore.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}
}

func fraudConfig(cfg *config.Config) fraud.Config {
	fc := fraud.DefaultConfig()
	if cfg.FraudReviewThreshold > 0 {
		fc.ReviewThreshold = cfg.FraudReviewThreshold
	}
	return fc
}

func processorConfig(cfg *config.Config) claims.ProcessorConfig {
	return claims.ProcessorConfig{
		AutoSubmitEnabled:   cfg.AutoSubmitEnabled,
		AutoSubmitThreshold: cfg.AutoSubmitThreshold,
		SubmitTimeout:       cfg.ExternalTimeout,
	}
}

func batchConfig(cfg *config.Config) claims.BatchConfig {
	bc := claims.DefaultBatchConfig()
	if cfg.MaxBatchSize > 0 {
		bc.MaxBatchSize = cfg.MaxBatchSize
	}
	return bc
}

func executorConfig(cfg *config.Config) payment.ExecutorConfig {
	return payment.ExecutorConfig{
		AutoPost:       cfg.AutoPostEnabled,
		GatewayTimeout: cfg.ExternalTimeout,
		LockTTL:        cfg.PostingLockTTL,
	}
}

func denialConfig(cfg *config.Config) denial.Config {
	dc := denial.DefaultConfig()
	dc.AutoAppealEnabled = cfg.AutoAppealEnabled
	return dc
}

func reconcileConfig(cfg *config.Config) reconciliation.Config {
	rc := reconciliation.DefaultConfig()
	if cfg.ReconcileDateTolerance > 0 {
		rc.Matcher.DateTolerance = cfg.ReconcileDateTolerance
	}
	rc.Matcher.DiscrepancyRatio = cfg.ReconcileDiscrepancyRatio
	if cfg.ExternalTimeout > 0 {
		rc.FeedTimeout = cfg.ExternalTimeout
	}
	if cfg.PostingLockTTL > 0 {
		rc.LockTTL = cfg.PostingLockTTL
	}
	return rc
}

func kpiConfig(cfg *config.Config) kpi.Config {
	kc := kpi.DefaultConfig()
	if cfg.KPIPeriodDays > 0 {
		kc.PeriodDays = cfg.KPIPeriodDays
	}
	kc.CostPerClaim = decimal.NewFromFloat(cfg.KPICostPerClaim)
	return kc
}

func clearinghouse(cfg *config.Config) claims.Clearinghouse {
	if cfg.ClearinghouseURL == "" {
		return claims.UnavailableClearinghouse{}
	}
	return claims.NewHTTPClearinghouse(cfg.ClearinghouseURL, cfg.ClearinghouseRPS, cfg.ExternalTimeout)
}

// gateway settles cash and checks offline. Card and ACH payments fail as
// retryable until a gateway URL is configured.
func gateway(cfg *config.Config) payment.Gateway {
	router := payment.MethodRouter{Offline: payment.OfflineGateway{}}
	if cfg.PaymentGatewayURL != "" {
		router.Online = payment.NewHTTPGateway(cfg.PaymentGatewayURL, cfg.ExternalTimeout)
	}
	return router
}

func bankFeed(cfg *config.Config) reconciliation.BankFeed {
	if cfg.BankFeedURL == "" {
		return reconciliation.UnavailableBankFeed{}
	}
	return reconciliation.NewHTTPBankFeed(cfg.BankFeedURL, cfg.ExternalTimeout)
}

// webhookEndpoints subscribes every configured URL to the same event
// patterns under the shared secret.
func webhookEndpoints(cfg *config.Config) ([]notification.WebhookEndpoint, error) {
	eps := make([]notification.WebhookEndpoint, 0, len(cfg.WebhookURLs))
	for _, u := range cfg.WebhookURLs {
		ep := notification.WebhookEndpoint{URL: u, Secret: cfg.WebhookSecret, Events: cfg.WebhookEvents}
		if err := notification.ValidateEndpoint(ep); err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}
	return eps, nil
}
