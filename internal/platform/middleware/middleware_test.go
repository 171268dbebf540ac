package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/auth"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestID()(func(c echo.Context) error {
		if rid, _ := c.Get("request_id").(string); rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "batch-7")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	RequestID()(func(c echo.Context) error { return nil })(c)

	if got := rec.Header().Get(RequestIDHeader); got != "batch-7" {
		t.Errorf("expected batch-7 in response header, got %s", got)
	}
}

func TestLogger_WritesRequestLine(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	org := uuid.MustParse("8f6a1c1e-2d3b-4c5d-9e7f-0a1b2c3d4e5f")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/claims", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "biller-1", []string{auth.RoleBilling}, org))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(RequestIDKey, "r-1")

	err := Logger(logger)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"request_id":"r-1"`, `"organization_id":"` + org.String() + `"`,
		`"subject":"biller-1"`, `"status":200`, `"level":"info"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log to contain %s, got %s", want, out)
		}
	}
}

func TestLogger_ClientErrorLogsWarn(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil), rec)

	err := Logger(zerolog.New(&buf))(func(echo.Context) error {
		return echo.NewHTTPError(http.StatusConflict, "payment held for fraud review")
	})(c)
	if err != nil {
		t.Fatalf("expected the error to be rendered, got %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 response, got %d", rec.Code)
	}
	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, "fraud review") {
		t.Errorf("expected warn line with the error, got %s", out)
	}
}

func TestRecovery_ConvertsPanic(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := Recovery(zerolog.Nop())(func(echo.Context) error {
		panic("ledger exploded")
	})(c)

	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 HTTPError, got %v", err)
	}
}

func TestRateLimit_RejectsOverBurst(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})
	h := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	var codes []int
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		if err := h(c); err != nil {
			if he, ok := err.(*echo.HTTPError); ok {
				codes = append(codes, he.Code)
				continue
			}
			t.Fatalf("unexpected error: %v", err)
		}
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("expected first two requests to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected third request to be throttled, got %d", codes[2])
	}
}

func TestBodyLimit(t *testing.T) {
	e := echo.New()
	h := BodyLimit("8")(func(c echo.Context) error {
		_, err := io.ReadAll(c.Request().Body)
		return err
	})

	small := e.NewContext(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("1234")), httptest.NewRecorder())
	if err := h(small); err != nil {
		t.Errorf("expected small body to pass, got %v", err)
	}

	large := e.NewContext(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789abcdef")), httptest.NewRecorder())
	err := h(large)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %v", err)
	}
}

func TestParseLimit(t *testing.T) {
	tests := map[string]int64{
		"":     1 << 20,
		"512K": 512 << 10,
		"2M":   2 << 20,
		"1GB":  1 << 30,
		"100":  100,
		"junk": 1 << 20,
	}
	for in, want := range tests {
		if got := parseLimit(in); got != want {
			t.Errorf("parseLimit(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestRequestTimeout_SetsDeadline(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/claims", nil), httptest.NewRecorder())

	RequestTimeout(time.Second)(func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected deadline on request context")
		}
		return nil
	})(c)

	ws := e.NewContext(httptest.NewRequest(http.MethodGet, "/ws", nil), httptest.NewRecorder())
	RequestTimeout(time.Second)(func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); ok {
			t.Error("websocket path must not get a deadline")
		}
		return nil
	})(ws)
}
