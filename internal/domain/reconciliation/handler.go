package reconciliation

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/auth"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
)

type Handler struct {
	reconciler *Reconciler
}

func NewHandler(reconciler *Reconciler) *Handler {
	return &Handler{reconciler: reconciler}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleBilling, auth.RoleAuditor))
	readGroup.GET("/reconciliations", h.ListReconciliations)
	readGroup.GET("/reconciliations/:id", h.GetReconciliation)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleBilling))
	writeGroup.POST("/reconciliations", h.Reconcile)
	writeGroup.POST("/reconciliations/:id/retry", h.RetryReconciliation)
}

func httpError(err error) error {
	return echo.NewHTTPError(failure.HTTPStatus(err), err.Error())
}

type reconcileRequest struct {
	BankAccountID string `json:"bank_account_id" validate:"required"`
	Period        Period `json:"period"`
}

// runResponse returns a run that exists even when the call failed, so the
// caller can retry it.
func runResponse(c echo.Context, okStatus int, run *BankReconciliation, err error) error {
	if err != nil && run == nil {
		return httpError(err)
	}
	if err != nil {
		return c.JSON(failure.HTTPStatus(err), map[string]interface{}{"reconciliation": run, "error": err.Error(), "retryable": failure.IsRetryable(err)})
	}
	return c.JSON(okStatus, run)
}

func (h *Handler) Reconcile(c echo.Context) error {
	var req reconcileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	org := auth.OrganizationFromContext(c.Request().Context())
	run, err := h.reconciler.Reconcile(c.Request().Context(), org, req.BankAccountID, req.Period)
	return runResponse(c, http.StatusCreated, run, err)
}

func (h *Handler) loadRun(c echo.Context) (*BankReconciliation, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	run, err := h.reconciler.Get(c.Request().Context(), id)
	if err != nil {
		return nil, httpError(err)
	}
	if org := auth.OrganizationFromContext(c.Request().Context()); org != uuid.Nil && run.OrganizationID != org {
		return nil, echo.NewHTTPError(http.StatusNotFound, "reconciliation not found")
	}
	return run, nil
}

func (h *Handler) GetReconciliation(c echo.Context) error {
	run, err := h.loadRun(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, run)
}

func (h *Handler) RetryReconciliation(c echo.Context) error {
	run, err := h.loadRun(c)
	if err != nil {
		return err
	}
	run, err = h.reconciler.Retry(c.Request().Context(), run.ID)
	return runResponse(c, http.StatusOK, run, err)
}

func (h *Handler) ListReconciliations(c echo.Context) error {
	org := auth.OrganizationFromContext(c.Request().Context())
	items, err := h.reconciler.List(c.Request().Context(), org, c.QueryParam("bank_account_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}
