package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/auth"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/middleware"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture(testConfig())
	e := echo.New()
	e.Validator = middleware.NewRequestValidator()
	return NewHandler(f.svc), f, e
}

func newRequest(method, body string, org uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ctx := auth.WithIdentity(context.Background(), "user-1", []string{auth.RoleAdmin}, org)
	return req.WithContext(ctx)
}

func TestHandler_CreatePayment(t *testing.T) {
	h, _, e := newTestHandler()
	org := uuid.New()
	body := `{"patient_id":"` + uuid.New().String() + `","amount":"25.50","payment_method":"cash","bank_account_id":"ACCT-1"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, body, org), rec)

	if err := h.CreatePayment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var got Payment
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.OrganizationID != org || got.Status != StatusCompleted || got.Amount.String() != "25.5" {
		t.Errorf("unexpected payment %+v", got)
	}
}

func TestHandler_CreatePayment_Malformed(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, `{"amount":"10","payment_method":"cash"}`, uuid.New()), rec)

	err := h.CreatePayment(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_GatewayFailureReportsRetryable(t *testing.T) {
	h, f, e := newTestHandler()
	f.gateway.block = true
	body := `{"patient_id":"` + uuid.New().String() + `","amount":"10","payment_method":"ach"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, body, uuid.New()), rec)

	if err := h.CreatePayment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var got struct {
		Status    Status `json:"status"`
		Retryable bool   `json:"retryable"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPending || !got.Retryable {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_GetPayment_OtherOrganization(t *testing.T) {
	h, f, e := newTestHandler()
	p, err := f.svc.Create(context.Background(), newPayment(uuid.New(), uuid.New(), 10, MethodCash))
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "", uuid.New()), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	err = h.GetPayment(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404 for another organization's payment, got %v", err)
	}
}

func TestHandler_ReviewPayment(t *testing.T) {
	h, f, e := newTestHandler()
	held, err := f.executor.Execute(context.Background(), suspicious(t, f))
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, `{"decision":"approve"}`, held.OrganizationID), rec)
	c.SetParamNames("id")
	c.SetParamValues(held.ID.String())

	if err := h.ReviewPayment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Payment
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
}

func TestHandler_ReviewPayment_UnknownDecision(t *testing.T) {
	h, f, e := newTestHandler()
	held, err := f.executor.Execute(context.Background(), suspicious(t, f))
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, `{"decision":"ignore"}`, held.OrganizationID), rec)
	c.SetParamNames("id")
	c.SetParamValues(held.ID.String())

	err = h.ReviewPayment(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
	if got, _ := f.payments.GetByID(context.Background(), held.ID); got.Status == StatusCompleted {
		t.Error("payment should stay held after a rejected review")
	}
}
