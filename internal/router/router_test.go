package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lab-api/internal/handler/health"
	labrequestHandler "github.com/jwalitptl/lab-api/internal/handler/labrequest"
	labtechnicianHandler "github.com/jwalitptl/lab-api/internal/handler/labtechnician"
	labtestHandler "github.com/jwalitptl/lab-api/internal/handler/labtest"
	"github.com/jwalitptl/lab-api/internal/handler/prometheus"
	"github.com/jwalitptl/lab-api/internal/middleware"
	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository/repotest"
	"github.com/jwalitptl/lab-api/internal/service/dashboard"
	"github.com/jwalitptl/lab-api/internal/service/event"
	"github.com/jwalitptl/lab-api/internal/service/labrequest"
	"github.com/jwalitptl/lab-api/internal/service/labtechnician"
	"github.com/jwalitptl/lab-api/internal/service/labtest"
	"github.com/jwalitptl/lab-api/internal/service/notification"
	"github.com/jwalitptl/lab-api/pkg/auth"
	"github.com/jwalitptl/lab-api/pkg/logger"
	"github.com/jwalitptl/lab-api/pkg/metrics"
)

func newTestRouter(t *testing.T) (*gin.Engine, *auth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repotest.NewStore()
	registry := promclient.NewRegistry()
	m := metrics.NewMetrics("lab", registry)
	log := logger.Nop()

	tests := labtest.NewService(store.LabTests(), time.Minute, log)
	techs := labtechnician.NewService(store.LabTechnicians(), 5, log, m)
	dashboards := dashboard.NewService(store, store.LabTechnicians(), store.LabTestRequests(), store.LabDashboards(),
		dashboard.Options{}, log, m)
	requests := labrequest.NewService(store, store.LabTestRequests(), store.LabTechnicians(), tests,
		event.NewEventService(store.Outbox()), notification.NewService(nil, nil, log, m),
		labrequest.Options{}, log, m)

	jwtSvc := auth.NewJWTService("router-secret", "lab-api", time.Hour)
	authMW := middleware.NewAuthMiddleware(jwtSvc)

	r := NewRouter(
		authMW,
		health.NewHandler(nil),
		labtestHandler.NewHandler(tests, authMW),
		labtechnicianHandler.NewHandler(techs, dashboards, authMW),
		labrequestHandler.NewHandler(requests, authMW),
		prometheus.New(registry, m),
		RouterConfig{
			RequestTimeout: 5 * time.Second,
			CORSConfig:     middleware.DefaultCORSConfig("*"),
			RateLimit:      true,
			RateLimitRPS:   100,
			RateBurst:      100,
		},
	)
	r.Setup()
	return r.Engine(), jwtSvc
}

func get(engine *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicRoutes(t *testing.T) {
	engine, _ := newTestRouter(t)

	w := get(engine, "/api/v1/health/live", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	assert.Equal(t, http.StatusOK, get(engine, "/api/v1/health/ready", "").Code)

	w = get(engine, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lab_http_requests_total")
}

func TestRouter_ProtectedRoutes(t *testing.T) {
	engine, jwtSvc := newTestRouter(t)

	for _, path := range []string{"/api/v1/lab-tests", "/api/v1/lab-technicians", "/api/v1/lab-test-requests"} {
		assert.Equal(t, http.StatusUnauthorized, get(engine, path, "").Code, path)
	}

	token, err := jwtSvc.IssueToken(&model.Session{UserID: uuid.New(), Role: model.RoleLabTechnician})
	require.NoError(t, err)

	for _, path := range []string{"/api/v1/lab-tests", "/api/v1/lab-technicians", "/api/v1/lab-test-requests"} {
		assert.Equal(t, http.StatusOK, get(engine, path, token).Code, path)
	}
	assert.Equal(t, http.StatusNotFound, get(engine, "/api/v1/lab-technicians/"+uuid.NewString()+"/workload", token).Code)
}
