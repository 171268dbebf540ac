package claims

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
	"golang.org/x/time/rate"
)

// Clearinghouse accepts claims for routing to payers.
type Clearinghouse interface {
	Submit(ctx context.Context, clearinghouseID string, claimIDs []uuid.UUID) ([]SubmissionResult, error)
}

// Router picks a clearinghouse when the caller does not name one.
type Router interface {
	Route(ctx context.Context, orgID uuid.UUID) (string, error)
}

// StaticRouter routes by organization, falling back to Default.
type StaticRouter struct {
	Default string
	ByOrg   map[uuid.UUID]string
}

func (r StaticRouter) Route(_ context.Context, orgID uuid.UUID) (string, error) {
	if id, ok := r.ByOrg[orgID]; ok && id != "" {
		return id, nil
	}
	if r.Default == "" {
		return "", fmt.Errorf("no clearinghouse configured for organization %s", orgID)
	}
	return r.Default, nil
}

// ErrClearinghouseUnavailable is returned when no clearinghouse endpoint is
// configured.
var ErrClearinghouseUnavailable = errors.New("clearinghouse not configured")

// UnavailableClearinghouse fails every submission so claims stay pending.
type UnavailableClearinghouse struct{}

func (UnavailableClearinghouse) Submit(context.Context, string, []uuid.UUID) ([]SubmissionResult, error) {
	return nil, ErrClearinghouseUnavailable
}

// HTTPClearinghouse posts submissions to a clearinghouse gateway and
// throttles outgoing requests.
type HTTPClearinghouse struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewHTTPClearinghouse(baseURL string, rps float64, timeout time.Duration) *HTTPClearinghouse {
	if rps <= 0 {
		rps = 5
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &HTTPClearinghouse{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

type submitRequest struct {
	ClaimIDs []uuid.UUID `json:"claim_ids"`
}

type submitResponse struct {
	Results []SubmissionResult `json:"results"`
}

func (h *HTTPClearinghouse) Submit(ctx context.Context, clearinghouseID string, claimIDs []uuid.UUID) ([]SubmissionResult, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("clearinghouse throttle: %w", err)
	}
	body, err := json.Marshal(submitRequest{ClaimIDs: claimIDs})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/clearinghouses/%s/submissions", h.baseURL, clearinghouseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clearinghouse %s: %w", clearinghouseID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("clearinghouse %s: status %d: %s", clearinghouseID, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("clearinghouse %s: decode response: %w", clearinghouseID, err)
	}
	return out.Results, nil
}
