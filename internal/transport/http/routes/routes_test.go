package routes_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nepalwears/account-service/internal/infra/config"
	httproutes "github.com/nepalwears/account-service/internal/transport/http/routes"
)

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}

	return httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: logger,
	})
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestEngine()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestReadinessEndpointWithoutChecks(t *testing.T) {
	r := newTestEngine()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/readyz", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestMetricsEndpointDisabledByDefault(t *testing.T) {
	r := newTestEngine()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 when metrics are disabled, got %d", w.Code)
	}
}

func TestProtectedRoutesRequireAuthentication(t *testing.T) {
	r := newTestEngine()

	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/users/me"},
		{http.MethodPut, "/api/users/me"},
		{http.MethodPut, "/api/users/change-password"},
		{http.MethodPost, "/api/users/setup-mfa"},
		{http.MethodGet, "/api/users"},
	} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(route.method, route.path, nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected status 401, got %d", route.method, route.path, w.Code)
		}
	}
}
