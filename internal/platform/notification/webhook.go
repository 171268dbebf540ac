package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	SignatureHeader = "X-RCM-Signature"
	EventHeader     = "X-RCM-Event"
	DeliveryHeader  = "X-RCM-Delivery"
)

// WebhookEndpoint is a partner URL subscribed to event patterns. A pattern
// is an exact type ("kpi.alert"), a prefix wildcard ("denial.*") or "*".
type WebhookEndpoint struct {
	URL    string
	Secret string
	Events []string
}

func (ep WebhookEndpoint) subscribed(typ EventType) bool {
	for _, p := range ep.Events {
		if eventMatches(p, string(typ)) {
			return true
		}
	}
	return false
}

func eventMatches(pattern, eventType string) bool {
	switch {
	case pattern == "*" || pattern == eventType:
		return true
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(eventType, pattern[1:])
	}
	return false
}

// ValidateEndpoint checks the URL scheme and that a secret is present.
func ValidateEndpoint(ep WebhookEndpoint) error {
	u, err := url.Parse(ep.URL)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return fmt.Errorf("webhook url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("webhook url %q has no host", ep.URL)
	}
	if ep.Secret == "" {
		return fmt.Errorf("webhook %s has no signing secret", u.Host)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a SignatureHeader value ("sha256=<hex>").
func VerifySignature(payload []byte, secret, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(sig))
}

// WebhookPublisher POSTs signed JSON events to subscribed endpoints.
// Transport failures and 5xx answers are retried; 4xx answers are not.
type WebhookPublisher struct {
	endpoints   []WebhookEndpoint
	client      *http.Client
	retryDelays []time.Duration
	logger      zerolog.Logger
}

func NewWebhookPublisher(endpoints []WebhookEndpoint, timeout time.Duration, logger zerolog.Logger) *WebhookPublisher {
	return &WebhookPublisher{
		endpoints:   endpoints,
		client:      &http.Client{Timeout: timeout},
		retryDelays: []time.Duration{500 * time.Millisecond, 2 * time.Second},
		logger:      logger.With().Str("component", "webhook").Logger(),
	}
}

func (p *WebhookPublisher) Publish(ctx context.Context, evt Event) error {
	var body []byte
	var errs []error
	for _, ep := range p.endpoints {
		if !ep.subscribed(evt.Type) {
			continue
		}
		if body == nil {
			b, err := json.Marshal(evt)
			if err != nil {
				return fmt.Errorf("marshal event %s: %w", evt.Type, err)
			}
			body = b
		}
		if err := p.deliver(ctx, ep, evt, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *WebhookPublisher) deliver(ctx context.Context, ep WebhookEndpoint, evt Event, body []byte) error {
	sig := "sha256=" + Sign(body, ep.Secret)
	var lastErr error
	for attempt := 0; attempt <= len(p.retryDelays); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.retryDelays[attempt-1]):
			case <-ctx.Done():
				return fmt.Errorf("webhook %s: %w", ep.URL, ctx.Err())
			}
		}
		retry, err := p.post(ctx, ep.URL, evt, body, sig)
		if err == nil {
			return nil
		}
		lastErr = err
		p.logger.Warn().Err(err).
			Str("event_id", evt.ID.String()).
			Int("attempt", attempt+1).
			Msg("webhook delivery failed")
		if !retry {
			break
		}
	}
	return lastErr
}

func (p *WebhookPublisher) post(ctx context.Context, endpoint string, evt Event, body []byte, sig string) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("webhook %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, sig)
	req.Header.Set(EventHeader, string(evt.Type))
	req.Header.Set(DeliveryHeader, evt.ID.String())

	resp, err := p.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("webhook %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return true, fmt.Errorf("webhook %s: status %d", endpoint, resp.StatusCode)
	default:
		return false, fmt.Errorf("webhook %s: status %d", endpoint, resp.StatusCode)
	}
}
