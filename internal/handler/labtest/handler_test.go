package labtest

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
	labtestService "github.com/jwalitptl/lab-api/internal/service/labtest"
	"github.com/jwalitptl/lab-api/pkg/auth"
	"github.com/jwalitptl/lab-api/pkg/logger"
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
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validator.UseJSONFieldNames()

	store := repotest.NewStore()
	svc := labtestService.NewService(store.LabTests(), time.Minute, logger.Nop())
	jwtSvc := auth.NewJWTService("handler-secret", "lab-api", time.Hour)
	authMW := middleware.NewAuthMiddleware(jwtSvc)

	engine := gin.New()
	NewHandler(svc, authMW).RegisterRoutes(engine.Group("/api/v1", authMW.Authenticate()))
	return &testServer{engine: engine, jwt: jwtSvc}
}

func (s *testServer) do(t *testing.T, role model.Role, method, path string, body interface{}) *httptest.ResponseRecorder {
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
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func (s *testServer) create(t *testing.T, name, category string) model.LabTest {
	t.Helper()
	w := s.do(t, model.RoleAdmin, http.MethodPost, "/api/v1/lab-tests", gin.H{
		"name": name, "category": category, "price": 25.5, "duration": 60, "sample_type": "BLOOD",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var test model.LabTest
	decode(t, w, &test)
	return test
}

func TestCreateLabTest(t *testing.T) {
	s := newTestServer(t)

	test := s.create(t, "Complete Blood Count", "HEMATOLOGY")
	assert.Equal(t, model.CategoryHematology, test.Category)
	assert.Equal(t, 60, test.DurationMinutes)
	assert.True(t, test.IsActive)

	w := s.do(t, model.RoleAdmin, http.MethodPost, "/api/v1/lab-tests", gin.H{
		"name": "Complete Blood Count", "category": "HEMATOLOGY", "duration": 30, "sample_type": "BLOOD",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w, nil).Error, "already exists")

	w = s.do(t, model.RoleAdmin, http.MethodPost, "/api/v1/lab-tests", gin.H{
		"name": "X-Ray", "category": "RADIOLOGY", "duration": 0, "sample_type": "BLOOD",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	msg := decode(t, w, nil).Error
	assert.Contains(t, msg, "category must be one of")
	assert.Contains(t, msg, "duration is required")

	w = s.do(t, model.RoleDoctor, http.MethodPost, "/api/v1/lab-tests", gin.H{
		"name": "Ferritin", "category": "HEMATOLOGY", "duration": 30, "sample_type": "BLOOD",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUpdateAndDeactivateLabTest(t *testing.T) {
	s := newTestServer(t)
	test := s.create(t, "TSH", "ENDOCRINOLOGY")
	path := "/api/v1/lab-tests/" + test.ID.String()

	w := s.do(t, model.RoleAdmin, http.MethodPatch, path, gin.H{"price": 40.0, "units": "mIU/L"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated model.LabTest
	decode(t, w, &updated)
	assert.Equal(t, 40.0, updated.Price)
	require.NotNil(t, updated.Units)
	assert.Equal(t, "mIU/L", *updated.Units)

	w = s.do(t, model.RoleDoctor, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fetched model.LabTest
	decode(t, w, &fetched)
	assert.Equal(t, 40.0, fetched.Price)

	w = s.do(t, model.RoleAdmin, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, model.RoleDoctor, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &fetched)
	assert.False(t, fetched.IsActive)

	w = s.do(t, model.RoleAdmin, http.MethodDelete, "/api/v1/lab-tests/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListLabTests(t *testing.T) {
	s := newTestServer(t)
	s.create(t, "Glucose", "BIOCHEMISTRY")
	s.create(t, "Creatinine", "BIOCHEMISTRY")
	hidden := s.create(t, "Platelet Count", "HEMATOLOGY")
	require.Equal(t, http.StatusNoContent,
		s.do(t, model.RoleAdmin, http.MethodDelete, "/api/v1/lab-tests/"+hidden.ID.String(), nil).Code)

	var page struct {
		Items []model.LabTest `json:"items"`
		Count int             `json:"count"`
	}

	w := s.do(t, model.RoleNurse, http.MethodGet, "/api/v1/lab-tests?category=BIOCHEMISTRY", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &page)
	assert.Equal(t, 2, page.Count)
	assert.Equal(t, "Creatinine", page.Items[0].Name)

	w = s.do(t, model.RoleNurse, http.MethodGet, "/api/v1/lab-tests?search=gluc", nil)
	decode(t, w, &page)
	assert.Equal(t, 1, page.Count)

	w = s.do(t, model.RoleNurse, http.MethodGet, "/api/v1/lab-tests", nil)
	decode(t, w, &page)
	assert.Equal(t, 2, page.Count)

	w = s.do(t, model.RoleNurse, http.MethodGet, "/api/v1/lab-tests?include_inactive=true", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, model.RoleAdmin, http.MethodGet, "/api/v1/lab-tests?include_inactive=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &page)
	assert.Equal(t, 3, page.Count)
}
