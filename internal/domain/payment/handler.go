package payment

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/fraud"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/auth"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleBilling, auth.RoleAuditor))
	readGroup.GET("/payments", h.ListPayments)
	readGroup.GET("/payments/:id", h.GetPayment)
	readGroup.GET("/patients/:patient_id/ledger", h.GetLedger)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleBilling))
	writeGroup.POST("/payments", h.CreatePayment)
	writeGroup.POST("/payments/:id/retry", h.RetryPayment)
	writeGroup.POST("/payments/:id/post", h.PostPayment)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.POST("/payments/:id/review", h.ReviewPayment)
}

func httpError(err error) error {
	return echo.NewHTTPError(failure.HTTPStatus(err), err.Error())
}

// paymentResponse carries the payment even when execution reported an
// error so the caller can see its stored state.
type paymentResponse struct {
	*Payment
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func respond(c echo.Context, okStatus int, p *Payment, err error) error {
	if err != nil && p == nil {
		return httpError(err)
	}
	if err != nil {
		return c.JSON(failure.HTTPStatus(err), paymentResponse{Payment: p, Error: err.Error(), Retryable: failure.IsRetryable(err)})
	}
	return c.JSON(okStatus, paymentResponse{Payment: p})
}

func (h *Handler) CreatePayment(c echo.Context) error {
	var p Payment
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if org := auth.OrganizationFromContext(c.Request().Context()); org != uuid.Nil {
		p.OrganizationID = org
	}
	if err := c.Validate(&p); err != nil {
		return err
	}
	out, err := h.svc.Create(c.Request().Context(), &p)
	return respond(c, http.StatusCreated, out, err)
}

func (h *Handler) loadPayment(c echo.Context) (*Payment, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return nil, httpError(err)
	}
	if org := auth.OrganizationFromContext(c.Request().Context()); org != uuid.Nil && p.OrganizationID != org {
		return nil, echo.NewHTTPError(http.StatusNotFound, "payment not found")
	}
	return p, nil
}

func (h *Handler) GetPayment(c echo.Context) error {
	p, err := h.loadPayment(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPayments(c echo.Context) error {
	pg := pagination.FromContext(c)
	org := auth.OrganizationFromContext(c.Request().Context())
	items, total, err := h.svc.List(c.Request().Context(), org, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) RetryPayment(c echo.Context) error {
	p, err := h.loadPayment(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Retry(c.Request().Context(), p.ID)
	return respond(c, http.StatusOK, out, err)
}

func (h *Handler) PostPayment(c echo.Context) error {
	p, err := h.loadPayment(c)
	if err != nil {
		return err
	}
	out, posted, err := h.svc.Post(c.Request().Context(), p.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"payment": out, "posted": posted})
}

type reviewRequest struct {
	Decision fraud.Decision `json:"decision" validate:"required,oneof=approve investigate"`
}

func (h *Handler) ReviewPayment(c echo.Context) error {
	p, err := h.loadPayment(c)
	if err != nil {
		return err
	}
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	out, err := h.svc.Review(c.Request().Context(), p.ID, req.Decision, auth.UserIDFromContext(c.Request().Context()))
	return respond(c, http.StatusOK, out, err)
}

func (h *Handler) GetLedger(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	org := auth.OrganizationFromContext(c.Request().Context())
	items, err := h.svc.Ledger(c.Request().Context(), org, patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}
