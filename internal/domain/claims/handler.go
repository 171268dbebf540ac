package claims

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/auth"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/pkg/pagination"
)

type Handler struct {
	svc   *Service
	batch *BatchCoordinator
}

func NewHandler(svc *Service, batch *BatchCoordinator) *Handler {
	return &Handler{svc: svc, batch: batch}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleBilling, auth.RoleAuditor))
	readGroup.GET("/claims", h.ListClaims)
	readGroup.GET("/claims/:id", h.GetClaim)
	readGroup.GET("/claims/:id/validations", h.ListValidations)
	readGroup.GET("/batches/:id", h.GetBatch)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleBilling))
	writeGroup.POST("/claims", h.CreateClaim)
	writeGroup.POST("/claims/:id/process", h.ProcessClaim)
	writeGroup.POST("/batches", h.SubmitBatch)
	writeGroup.POST("/batches/:id/retry", h.RetryBatch)
}

func httpError(err error) error {
	return echo.NewHTTPError(failure.HTTPStatus(err), err.Error())
}

func (h *Handler) CreateClaim(c echo.Context) error {
	var claim Claim
	if err := c.Bind(&claim); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if org := auth.OrganizationFromContext(c.Request().Context()); org != uuid.Nil {
		claim.OrganizationID = org
	}
	if err := c.Validate(&claim); err != nil {
		return err
	}
	if err := h.svc.Create(c.Request().Context(), &claim); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, claim)
}

// loadClaim fetches the :id claim, hiding claims of other organizations.
func (h *Handler) loadClaim(c echo.Context) (*Claim, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	claim, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return nil, httpError(err)
	}
	if org := auth.OrganizationFromContext(c.Request().Context()); org != uuid.Nil && claim.OrganizationID != org {
		return nil, echo.NewHTTPError(http.StatusNotFound, "claim not found")
	}
	return claim, nil
}

func (h *Handler) GetClaim(c echo.Context) error {
	claim, err := h.loadClaim(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, claim)
}

func (h *Handler) ListClaims(c echo.Context) error {
	pg := pagination.FromContext(c)
	org := auth.OrganizationFromContext(c.Request().Context())
	items, total, err := h.svc.List(c.Request().Context(), org, Status(c.QueryParam("status")), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListValidations(c echo.Context) error {
	claim, err := h.loadClaim(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Validations(c.Request().Context(), claim.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

type processResponse struct {
	*ProcessResult
	SubmissionError string `json:"submission_error,omitempty"`
	Retryable       bool   `json:"retryable,omitempty"`
}

func (h *Handler) ProcessClaim(c echo.Context) error {
	claim, err := h.loadClaim(c)
	if err != nil {
		return err
	}
	res, err := h.svc.processor.Process(c.Request().Context(), claim)
	if err != nil {
		return httpError(err)
	}
	out := processResponse{ProcessResult: res}
	if res.SubmissionError != nil {
		out.SubmissionError = res.SubmissionError.Error()
		out.Retryable = failure.IsRetryable(res.SubmissionError)
	}
	return c.JSON(http.StatusOK, out)
}

type submitBatchRequest struct {
	ClaimIDs        []uuid.UUID `json:"claim_ids" validate:"required,min=1"`
	ClearinghouseID string      `json:"clearinghouse_id"`
}

func (h *Handler) SubmitBatch(c echo.Context) error {
	var req submitBatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	org := auth.OrganizationFromContext(c.Request().Context())
	batch, err := h.batch.SubmitBatch(c.Request().Context(), org, req.ClaimIDs, req.ClearinghouseID)
	if err != nil && batch == nil {
		return httpError(err)
	}
	if err != nil {
		// The batch exists and can be retried.
		return c.JSON(failure.HTTPStatus(err), map[string]interface{}{"batch": batch, "error": err.Error(), "retryable": failure.IsRetryable(err)})
	}
	return c.JSON(http.StatusCreated, batch)
}

func (h *Handler) loadBatch(c echo.Context) (*SubmissionBatch, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	batch, err := h.batch.Get(c.Request().Context(), id)
	if err != nil {
		return nil, httpError(err)
	}
	if org := auth.OrganizationFromContext(c.Request().Context()); org != uuid.Nil && batch.OrganizationID != org {
		return nil, echo.NewHTTPError(http.StatusNotFound, "batch not found")
	}
	return batch, nil
}

func (h *Handler) GetBatch(c echo.Context) error {
	batch, err := h.loadBatch(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, batch)
}

func (h *Handler) RetryBatch(c echo.Context) error {
	batch, err := h.loadBatch(c)
	if err != nil {
		return err
	}
	batch, err = h.batch.RetryBatch(c.Request().Context(), batch.ID)
	if err != nil && batch == nil {
		return httpError(err)
	}
	if err != nil {
		return c.JSON(failure.HTTPStatus(err), map[string]interface{}{"batch": batch, "error": err.Error(), "retryable": failure.IsRetryable(err)})
	}
	return c.JSON(http.StatusOK, batch)
}
