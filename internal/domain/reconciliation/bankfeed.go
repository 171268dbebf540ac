package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// BankFeed lists an account's transactions for a period.
type BankFeed interface {
	Transactions(ctx context.Context, bankAccountID string, period Period) ([]BankTransaction, error)
}

var ErrBankFeedUnavailable = errors.New("bank feed not configured")

// UnavailableBankFeed fails every call. It stands in when no feed URL is
// configured.
type UnavailableBankFeed struct{}

func (UnavailableBankFeed) Transactions(context.Context, string, Period) ([]BankTransaction, error) {
	return nil, ErrBankFeedUnavailable
}

// HTTPBankFeed reads transactions from a bank aggregation API.
type HTTPBankFeed struct {
	baseURL string
	client  *http.Client
}

func NewHTTPBankFeed(baseURL string, timeout time.Duration) *HTTPBankFeed {
	return &HTTPBankFeed{baseURL: strings.TrimRight(baseURL, "/"), client: &http.Client{Timeout: timeout}}
}

type feedResponse struct {
	Transactions []BankTransaction `json:"transactions"`
}

func (f *HTTPBankFeed) Transactions(ctx context.Context, bankAccountID string, period Period) ([]BankTransaction, error) {
	q := url.Values{}
	q.Set("from", period.Start.UTC().Format(time.RFC3339))
	q.Set("to", period.End.UTC().Format(time.RFC3339))
	endpoint := fmt.Sprintf("%s/accounts/%s/transactions?%s", f.baseURL, url.PathEscape(bankAccountID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bank feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("bank feed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("bank feed: decode response: %w", err)
	}
	for i := range out.Transactions {
		if out.Transactions[i].BankAccountID == "" {
			out.Transactions[i].BankAccountID = bankAccountID
		}
	}
	return out.Transactions, nil
}
