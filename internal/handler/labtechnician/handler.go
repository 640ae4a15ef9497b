package labtechnician

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lab-api/internal/handler"
	"github.com/jwalitptl/lab-api/internal/middleware"
	"github.com/jwalitptl/lab-api/internal/model"
	dashboardService "github.com/jwalitptl/lab-api/internal/service/dashboard"
	labtechnicianService "github.com/jwalitptl/lab-api/internal/service/labtechnician"
	"github.com/jwalitptl/lab-api/pkg/httputil"
)

type Handler struct {
	service    *labtechnicianService.Service
	dashboards *dashboardService.Service
	auth       *middleware.AuthMiddleware
}

func NewHandler(service *labtechnicianService.Service, dashboards *dashboardService.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, dashboards: dashboards, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	adminOnly := h.auth.RequireRole(model.RoleAdmin)

	technicians := r.Group("/lab-technicians")
	{
		technicians.GET("", h.ListTechnicians)
		technicians.POST("", adminOnly, h.CreateTechnician)
		technicians.GET("/:id", h.GetTechnician)
		technicians.PATCH("/:id", adminOnly, h.UpdateTechnician)

		technicians.GET("/:id/workload", h.GetWorkload)
		technicians.POST("/:id/workload", h.UpdateWorkload)

		technicians.GET("/:id/dashboard", h.GetDashboard)
		technicians.POST("/:id/dashboard/refresh", h.RefreshDashboard)
	}
}

func (h *Handler) CreateTechnician(c *gin.Context) {
	var req model.CreateLabTechnicianRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	tech, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithStatus(c, http.StatusCreated, tech)
}

func (h *Handler) GetTechnician(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	tech, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, tech)
}

func (h *Handler) UpdateTechnician(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateLabTechnicianRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	tech, err := h.service.Update(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, tech)
}

func (h *Handler) ListTechnicians(c *gin.Context) {
	filters := &model.LabTechnicianFilters{}

	available, ok := handler.QueryBool(c, "available")
	if !ok {
		return
	}
	filters.AvailableOnly = available != nil && *available

	includeInactive, ok := handler.QueryBool(c, "include_inactive")
	if !ok {
		return
	}
	if includeInactive != nil && *includeInactive {
		if !middleware.SessionFrom(c).HasRole(model.RoleAdmin) {
			httputil.RespondWithMessage(c, http.StatusForbidden, "include_inactive requires ADMIN")
			return
		}
		filters.IncludeInactive = true
	}

	if filters.Pagination, ok = handler.Pagination(c); !ok {
		return
	}

	techs, count, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithPage(c, techs, count, filters.Limit, filters.Offset)
}

func (h *Handler) GetWorkload(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	snapshot, err := h.service.GetWorkload(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, snapshot)
}

func (h *Handler) UpdateWorkload(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var req model.WorkloadActionRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	snapshot, err := h.service.ApplyWorkloadAction(c.Request.Context(), id, req.Action)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, snapshot)
}

func (h *Handler) GetDashboard(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	refresh, ok := handler.QueryBool(c, "refresh")
	if !ok {
		return
	}

	dashboard, err := h.dashboards.Get(c.Request.Context(), id, refresh != nil && *refresh)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, dashboard)
}

func (h *Handler) RefreshDashboard(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	dashboard, err := h.dashboards.Refresh(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, dashboard)
}
