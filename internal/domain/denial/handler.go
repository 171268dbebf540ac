package denial

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/auth"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
)

type Handler struct {
	analyzer *Analyzer
}

func NewHandler(analyzer *Analyzer) *Handler {
	return &Handler{analyzer: analyzer}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleBilling, auth.RoleAuditor))
	readGroup.GET("/denials/:id", h.GetDenial)
	readGroup.GET("/denials/review-queue", h.ReviewQueue)
	readGroup.GET("/claims/:id/denials", h.ListClaimDenials)
	readGroup.GET("/claims/:id/appeals", h.ListClaimAppeals)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleBilling))
	writeGroup.POST("/claims/:id/denials", h.AnalyzeDenial)
	writeGroup.POST("/denials/:id/resolve", h.ResolveDenial)
}

func httpError(err error) error {
	return echo.NewHTTPError(failure.HTTPStatus(err), err.Error())
}

func (h *Handler) AnalyzeDenial(c echo.Context) error {
	claimID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in.ClaimID = claimID
	if org := auth.OrganizationFromContext(c.Request().Context()); org != uuid.Nil {
		in.OrganizationID = org
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	out, err := h.analyzer.Analyze(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) loadAnalysis(c echo.Context) (*Analysis, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.analyzer.Get(c.Request().Context(), id)
	if err != nil {
		return nil, httpError(err)
	}
	if org := auth.OrganizationFromContext(c.Request().Context()); org != uuid.Nil && a.OrganizationID != org {
		return nil, echo.NewHTTPError(http.StatusNotFound, "denial analysis not found")
	}
	return a, nil
}

func (h *Handler) GetDenial(c echo.Context) error {
	a, err := h.loadAnalysis(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ResolveDenial(c echo.Context) error {
	a, err := h.loadAnalysis(c)
	if err != nil {
		return err
	}
	a, err = h.analyzer.Resolve(c.Request().Context(), a.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ReviewQueue(c echo.Context) error {
	org := auth.OrganizationFromContext(c.Request().Context())
	items, err := h.analyzer.ReviewQueue(c.Request().Context(), org)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

// claimScoped drops records belonging to other organizations.
func claimScoped[T any](c echo.Context, items []T, orgOf func(T) uuid.UUID) []T {
	org := auth.OrganizationFromContext(c.Request().Context())
	if org == uuid.Nil {
		return items
	}
	out := items[:0]
	for _, it := range items {
		if orgOf(it) == org {
			out = append(out, it)
		}
	}
	return out
}

func (h *Handler) ListClaimDenials(c echo.Context) error {
	claimID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.analyzer.ListByClaim(c.Request().Context(), claimID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, claimScoped(c, items, func(a *Analysis) uuid.UUID { return a.OrganizationID }))
}

func (h *Handler) ListClaimAppeals(c echo.Context) error {
	claimID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.analyzer.Appeals(c.Request().Context(), claimID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, claimScoped(c, items, func(a *Appeal) uuid.UUID { return a.OrganizationID }))
}
