package payment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gateway executes a payment against the processor that moves the money.
type Gateway interface {
	Execute(ctx context.Context, p *Payment) (*GatewayResult, error)
}

var ErrGatewayUnavailable = errors.New("payment gateway not configured")

// HTTPGateway calls a card/ACH processor over HTTP.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
}

func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{baseURL: strings.TrimRight(baseURL, "/"), client: &http.Client{Timeout: timeout}}
}

type gatewayRequest struct {
	PaymentID     uuid.UUID       `json:"payment_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod Method          `json:"payment_method"`
	PatientID     uuid.UUID       `json:"patient_id"`
}

func (g *HTTPGateway) Execute(ctx context.Context, p *Payment) (*GatewayResult, error) {
	body, err := json.Marshal(gatewayRequest{PaymentID: p.ID, Amount: p.Amount, PaymentMethod: p.PaymentMethod, PatientID: p.PatientID})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", p.ID.String())

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("payment gateway: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out GatewayResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("payment gateway: decode response: %w", err)
	}
	if out.ProcessedAt.IsZero() {
		out.ProcessedAt = time.Now().UTC()
	}
	return &out, nil
}

// OfflineGateway records cash and check payments as settled.
type OfflineGateway struct{}

func (OfflineGateway) Execute(_ context.Context, p *Payment) (*GatewayResult, error) {
	return &GatewayResult{
		Success:       true,
		TransactionID: "OFF-" + strings.ToUpper(p.ID.String()[:8]),
		ProcessedAt:   time.Now().UTC(),
	}, nil
}

// MethodRouter sends offline methods to Offline and everything else to
// Online. A nil Online gateway fails closed.
type MethodRouter struct {
	Online  Gateway
	Offline Gateway
}

func (r MethodRouter) Execute(ctx context.Context, p *Payment) (*GatewayResult, error) {
	if p.PaymentMethod.Offline() && r.Offline != nil {
		return r.Offline.Execute(ctx, p)
	}
	if r.Online == nil {
		return nil, ErrGatewayUnavailable
	}
	return r.Online.Execute(ctx, p)
}
