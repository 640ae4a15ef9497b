package labtechnician

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lab-api/internal/middleware"
	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository/repotest"
	dashboardService "github.com/jwalitptl/lab-api/internal/service/dashboard"
	labtechnicianService "github.com/jwalitptl/lab-api/internal/service/labtechnician"
	"github.com/jwalitptl/lab-api/pkg/auth"
	"github.com/jwalitptl/lab-api/pkg/logger"
	"github.com/jwalitptl/lab-api/pkg/metrics"
	"github.com/jwalitptl/lab-api/pkg/validator"
)

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
}

type testServer struct {
	engine *gin.Engine
	jwt    *auth.JWTService
	store  *repotest.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validator.UseJSONFieldNames()

	store := repotest.NewStore()
	m := metrics.NewNop()
	techs := labtechnicianService.NewService(store.LabTechnicians(), 4, logger.Nop(), m)
	dashboards := dashboardService.NewService(store, store.LabTechnicians(), store.LabTestRequests(),
		store.LabDashboards(), dashboardService.Options{}, logger.Nop(), m)

	jwtSvc := auth.NewJWTService("handler-secret", "lab-api", time.Hour)
	authMW := middleware.NewAuthMiddleware(jwtSvc)

	engine := gin.New()
	NewHandler(techs, dashboards, authMW).RegisterRoutes(engine.Group("/api/v1", authMW.Authenticate()))
	return &testServer{engine: engine, jwt: jwtSvc, store: store}
}

func (s *testServer) do(t *testing.T, role model.Role, method, path string, body interface{}, data interface{}) (int, envelope) {
	t.Helper()
	raw := []byte{}
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	token, err := s.jwt.IssueToken(&model.Session{UserID: uuid.New(), Role: role})
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil && env.Status == "success" {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return w.Code, env
}

func (s *testServer) register(t *testing.T, employeeID string, max int) model.LabTechnician {
	t.Helper()
	body := gin.H{"user_id": uuid.New(), "employee_id": employeeID, "specialization": "Hematology"}
	if max > 0 {
		body["max_concurrent_tests"] = max
	}

	var tech model.LabTechnician
	code, env := s.do(t, model.RoleAdmin, http.MethodPost, "/api/v1/lab-technicians", body, &tech)
	require.Equal(t, http.StatusCreated, code, env.Error)
	return tech
}

func TestCreateTechnician(t *testing.T) {
	s := newTestServer(t)

	tech := s.register(t, "EMP-001", 0)
	assert.Equal(t, 4, tech.MaxConcurrentTests)
	assert.True(t, tech.IsAvailable)
	assert.Zero(t, tech.CurrentWorkload)

	code, env := s.do(t, model.RoleAdmin, http.MethodPost, "/api/v1/lab-technicians",
		gin.H{"user_id": uuid.New(), "employee_id": "EMP-001"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, "already exists")

	code, env = s.do(t, model.RoleAdmin, http.MethodPost, "/api/v1/lab-technicians", gin.H{"max_concurrent_tests": -1}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, "user_id is required")

	code, _ = s.do(t, model.RoleLabTechnician, http.MethodPost, "/api/v1/lab-technicians",
		gin.H{"user_id": uuid.New(), "employee_id": "EMP-002"}, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestUpdateTechnician(t *testing.T) {
	s := newTestServer(t)
	tech := s.register(t, "EMP-010", 2)

	var updated model.LabTechnician
	code, env := s.do(t, model.RoleAdmin, http.MethodPatch, "/api/v1/lab-technicians/"+tech.ID.String(),
		gin.H{"max_concurrent_tests": 6, "is_available": false}, &updated)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, 6, updated.MaxConcurrentTests)
	assert.False(t, updated.IsAvailable)

	code, _ = s.do(t, model.RoleAdmin, http.MethodPatch, "/api/v1/lab-technicians/"+uuid.NewString(),
		gin.H{"is_available": true}, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestListTechnicians_Available(t *testing.T) {
	s := newTestServer(t)
	busy := s.register(t, "EMP-A", 3)
	idle := s.register(t, "EMP-B", 3)
	full := s.register(t, "EMP-C", 1)
	s.store.SetWorkload(busy.ID, 2)
	s.store.SetWorkload(full.ID, 1)

	var page struct {
		Items []model.LabTechnician `json:"items"`
		Count int                   `json:"count"`
	}
	code, _ := s.do(t, model.RoleDoctor, http.MethodGet, "/api/v1/lab-technicians?available=true", nil, &page)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 2, page.Count)
	assert.Equal(t, idle.ID, page.Items[0].ID)
	assert.Equal(t, busy.ID, page.Items[1].ID)

	code, _ = s.do(t, model.RoleDoctor, http.MethodGet, "/api/v1/lab-technicians", nil, &page)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3, page.Count)

	code, _ = s.do(t, model.RoleDoctor, http.MethodGet, "/api/v1/lab-technicians?include_inactive=true", nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, model.RoleDoctor, http.MethodGet, "/api/v1/lab-technicians?available=yes-please", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestWorkloadEndpoints(t *testing.T) {
	s := newTestServer(t)
	tech := s.register(t, "EMP-W", 1)
	path := "/api/v1/lab-technicians/" + tech.ID.String() + "/workload"

	var snapshot model.WorkloadSnapshot
	code, _ := s.do(t, model.RoleLabTechnician, http.MethodGet, path, nil, &snapshot)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, snapshot.CanAcceptMoreTests)

	code, env := s.do(t, model.RoleLabTechnician, http.MethodPost, path, gin.H{"action": "assign"}, &snapshot)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, 1, snapshot.CurrentWorkload)
	assert.False(t, snapshot.CanAcceptMoreTests)

	code, env = s.do(t, model.RoleLabTechnician, http.MethodPost, path, gin.H{"action": "assign"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, "maximum workload")

	code, env = s.do(t, model.RoleLabTechnician, http.MethodPost, path, gin.H{"action": "update"}, &snapshot)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Zero(t, snapshot.CurrentWorkload)

	code, env = s.do(t, model.RoleLabTechnician, http.MethodPost, path, gin.H{"action": "complete"}, &snapshot)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Zero(t, snapshot.CurrentWorkload)

	code, env = s.do(t, model.RoleLabTechnician, http.MethodPost, path, gin.H{"action": "reset"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, "action must be one of")

	code, _ = s.do(t, model.RoleLabTechnician, http.MethodGet,
		"/api/v1/lab-technicians/"+uuid.NewString()+"/workload", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDashboardEndpoints(t *testing.T) {
	s := newTestServer(t)
	tech := s.register(t, "EMP-D", 3)
	now := time.Now()
	completed := now.Add(-time.Minute)
	s.store.PutRequest(&model.LabTestRequest{
		LabTechnicianID: &tech.ID, Status: model.StatusCompleted, Priority: model.PriorityNormal,
		RequestedDate: now.Add(-2 * time.Hour), CompletedDate: &completed,
	})
	s.store.PutRequest(&model.LabTestRequest{
		LabTechnicianID: &tech.ID, Status: model.StatusRequested, Priority: model.PriorityHigh,
		RequestedDate: now, IsCritical: true,
	})

	var dashboard model.LabDashboard
	code, env := s.do(t, model.RoleLabTechnician, http.MethodGet,
		"/api/v1/lab-technicians/"+tech.ID.String()+"/dashboard", nil, &dashboard)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, tech.ID, dashboard.LabTechnicianID)
	assert.Equal(t, 1, dashboard.TotalTestsCompleted)
	assert.Equal(t, 1, dashboard.PendingTests)
	assert.Equal(t, 1, dashboard.CriticalFindings)

	s.store.PutRequest(&model.LabTestRequest{
		LabTechnicianID: &tech.ID, Status: model.StatusInProgress, Priority: model.PriorityLow,
		RequestedDate: now,
	})

	code, _ = s.do(t, model.RoleLabTechnician, http.MethodGet,
		"/api/v1/lab-technicians/"+tech.ID.String()+"/dashboard", nil, &dashboard)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, dashboard.PendingTests)

	code, _ = s.do(t, model.RoleLabTechnician, http.MethodPost,
		"/api/v1/lab-technicians/"+tech.ID.String()+"/dashboard/refresh", nil, &dashboard)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, dashboard.PendingTests)

	code, _ = s.do(t, model.RoleLabTechnician, http.MethodGet,
		"/api/v1/lab-technicians/"+uuid.NewString()+"/dashboard?refresh=true", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}
