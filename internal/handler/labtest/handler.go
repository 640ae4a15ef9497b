package labtest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lab-api/internal/handler"
	"github.com/jwalitptl/lab-api/internal/middleware"
	"github.com/jwalitptl/lab-api/internal/model"
	labtestService "github.com/jwalitptl/lab-api/internal/service/labtest"
	"github.com/jwalitptl/lab-api/pkg/httputil"
)

type Handler struct {
	service *labtestService.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *labtestService.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	adminOnly := h.auth.RequireRole(model.RoleAdmin)

	tests := r.Group("/lab-tests")
	{
		tests.GET("", h.ListLabTests)
		tests.POST("", adminOnly, h.CreateLabTest)
		tests.GET("/:id", h.GetLabTest)
		tests.PATCH("/:id", adminOnly, h.UpdateLabTest)
		tests.DELETE("/:id", adminOnly, h.DeactivateLabTest)
	}
}

func (h *Handler) CreateLabTest(c *gin.Context) {
	var req model.CreateLabTestRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	test, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithStatus(c, http.StatusCreated, test)
}

func (h *Handler) GetLabTest(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	test, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, test)
}

func (h *Handler) UpdateLabTest(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateLabTestRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	test, err := h.service.Update(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, test)
}

// DeactivateLabTest hides the test from ordering; existing requests keep
// their reference.
func (h *Handler) DeactivateLabTest(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Deactivate(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) ListLabTests(c *gin.Context) {
	filters := &model.LabTestFilters{
		Category:   model.LabTestCategory(c.Query("category")),
		SampleType: model.SampleType(c.Query("sample_type")),
		Search:     c.Query("search"),
	}

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

	tests, count, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithPage(c, tests, count, filters.Limit, filters.Offset)
}
