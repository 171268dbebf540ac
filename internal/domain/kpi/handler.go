package kpi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/auth"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/failure"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/pkg/pagination"
)

type Handler struct {
	monitor *Monitor
}

func NewHandler(monitor *Monitor) *Handler {
	return &Handler{monitor: monitor}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("/kpi", auth.RequireRole(auth.RoleAdmin, auth.RoleBilling, auth.RoleAuditor))
	readGroup.GET("/trends", h.TrackTrends)
	readGroup.GET("/alerts", h.ListAlerts)
	readGroup.GET("/snapshots", h.ListSnapshots)
	readGroup.GET("/snapshots/export", h.ExportSnapshots)

	writeGroup := api.Group("/kpi", auth.RequireRole(auth.RoleAdmin, auth.RoleBilling))
	writeGroup.POST("/monitor", h.Monitor)
	writeGroup.POST("/alerts/:id/resolve", h.ResolveAlert)
}

func httpError(err error) error {
	return echo.NewHTTPError(failure.HTTPStatus(err), err.Error())
}

func (h *Handler) Monitor(c echo.Context) error {
	org := auth.OrganizationFromContext(c.Request().Context())
	alerts, err := h.monitor.MonitorRealTime(c.Request().Context(), org)
	if err != nil {
		return httpError(err)
	}
	if alerts == nil {
		alerts = []*Alert{}
	}
	return c.JSON(http.StatusOK, alerts)
}

func (h *Handler) TrackTrends(c echo.Context) error {
	window := 30
	if v := c.QueryParam("window_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid window_days")
		}
		window = n
	}
	org := auth.OrganizationFromContext(c.Request().Context())
	report, err := h.monitor.TrackTrends(c.Request().Context(), org, window)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) ListAlerts(c echo.Context) error {
	pg := pagination.FromContext(c)
	includeResolved := c.QueryParam("include_resolved") == "true"
	org := auth.OrganizationFromContext(c.Request().Context())
	items, total, err := h.monitor.ListAlerts(c.Request().Context(), org, includeResolved, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ResolveAlert(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.monitor.GetAlert(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if org := auth.OrganizationFromContext(c.Request().Context()); org != uuid.Nil && a.OrganizationID != org {
		return echo.NewHTTPError(http.StatusNotFound, "alert not found")
	}
	a, err = h.monitor.ResolveAlert(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

// snapshotRange reads from/to (YYYY-MM-DD) with a trailing 30 day default.
func snapshotRange(c echo.Context) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	var err error
	if v := c.QueryParam("from"); v != "" {
		if from, err = time.Parse("2006-01-02", v); err != nil {
			return from, to, echo.NewHTTPError(http.StatusBadRequest, "invalid from date")
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if to, err = time.Parse("2006-01-02", v); err != nil {
			return from, to, echo.NewHTTPError(http.StatusBadRequest, "invalid to date")
		}
	}
	return from, to, nil
}

func (h *Handler) snapshots(c echo.Context) ([]*Snapshot, error) {
	from, to, err := snapshotRange(c)
	if err != nil {
		return nil, err
	}
	org := auth.OrganizationFromContext(c.Request().Context())
	if org == uuid.Nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "organization is required")
	}
	snaps, err := h.monitor.Snapshots(c.Request().Context(), org, from, to)
	if err != nil {
		return nil, httpError(err)
	}
	return snaps, nil
}

func (h *Handler) ListSnapshots(c echo.Context) error {
	snaps, err := h.snapshots(c)
	if err != nil {
		return err
	}
	if snaps == nil {
		snaps = []*Snapshot{}
	}
	return c.JSON(http.StatusOK, snaps)
}

func (h *Handler) ExportSnapshots(c echo.Context) error {
	snaps, err := h.snapshots(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := WriteParquet(&buf, snaps); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "kpi_snapshots.parquet"))
	return c.Blob(http.StatusOK, "application/vnd.apache.parquet", buf.Bytes())
}
