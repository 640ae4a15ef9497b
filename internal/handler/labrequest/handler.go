package labrequest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lab-api/internal/handler"
	"github.com/jwalitptl/lab-api/internal/middleware"
	"github.com/jwalitptl/lab-api/internal/model"
	labrequestService "github.com/jwalitptl/lab-api/internal/service/labrequest"
	"github.com/jwalitptl/lab-api/pkg/httputil"
)

type Handler struct {
	service *labrequestService.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *labrequestService.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	requests := r.Group("/lab-test-requests")
	{
		requests.GET("", h.ListRequests)
		requests.POST("", h.auth.RequireRole(model.RoleDoctor, model.RoleAdmin), h.CreateRequest)
		requests.GET("/:id", h.GetRequest)
		requests.PATCH("/:id", h.UpdateRequest)
	}
}

func (h *Handler) CreateRequest(c *gin.Context) {
	var req model.CreateLabTestRequestRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	view, err := h.service.Create(c.Request.Context(), middleware.SessionFrom(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithStatus(c, http.StatusCreated, view)
}

func (h *Handler) GetRequest(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	view, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, view)
}

func (h *Handler) UpdateRequest(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateLabTestRequestRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	view, err := h.service.Update(c.Request.Context(), middleware.SessionFrom(c), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, view)
}

func (h *Handler) ListRequests(c *gin.Context) {
	filters, ok := parseFilters(c)
	if !ok {
		return
	}

	views, count, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithPage(c, views, count, filters.Limit, filters.Offset)
}

func parseFilters(c *gin.Context) (*model.LabTestRequestFilters, bool) {
	filters := &model.LabTestRequestFilters{}

	if raw := c.Query("status"); raw != "" {
		status := model.LabRequestStatus(raw)
		if !status.Valid() {
			httputil.RespondWithMessage(c, http.StatusBadRequest, "invalid status: "+raw)
			return nil, false
		}
		filters.Status = status
	}
	if raw := c.Query("priority"); raw != "" {
		priority := model.Priority(raw)
		if !priority.Valid() {
			httputil.RespondWithMessage(c, http.StatusBadRequest, "invalid priority: "+raw)
			return nil, false
		}
		filters.Priority = priority
	}

	var ok bool
	if filters.PatientID, ok = handler.QueryUUID(c, "patient_id"); !ok {
		return nil, false
	}
	if filters.DoctorID, ok = handler.QueryUUID(c, "doctor_id"); !ok {
		return nil, false
	}
	if filters.LabTechnicianID, ok = handler.QueryUUID(c, "lab_technician_id"); !ok {
		return nil, false
	}
	if filters.IsCritical, ok = handler.QueryBool(c, "is_critical"); !ok {
		return nil, false
	}
	if filters.Pagination, ok = handler.Pagination(c); !ok {
		return nil, false
	}
	return filters, true
}
