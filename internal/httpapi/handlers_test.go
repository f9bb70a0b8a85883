package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"channel-gateway/internal/registry"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Store-backed paths need a database; these cover the validation layer that
// runs before the store is touched.

func testRouter(h Handlers) *gin.Engine {
	r := gin.New()
	r.POST("/workspaces/:workspace/providers", h.CreateProvider)
	r.POST("/workspaces/:workspace/providers/:code/validate", h.ValidateProviderCredentials)
	r.PATCH("/providers/:id/credentials", h.UpdateProviderCredentials)
	r.PATCH("/providers/:id/enabled", h.SetProviderEnabled)
	return r
}

func TestCreateProviderRejectsUnsupportedCode(t *testing.T) {
	h := Handlers{Registry: registry.New()}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/workspaces/w1/providers",
		strings.NewReader(`{"code":"plivo","name":"x","config":{}}`))
	testRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateProviderRejectsInvalidJSON(t *testing.T) {
	h := Handlers{Registry: registry.New()}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/workspaces/w1/providers", strings.NewReader(`{`))
	testRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestValidateProviderCredentialsUnknownCode(t *testing.T) {
	h := Handlers{Registry: registry.New()}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/workspaces/w1/providers/plivo/validate", nil)
	testRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestUpdateProviderCredentialsRequiresConfig(t *testing.T) {
	h := Handlers{Registry: registry.New()}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/providers/p1/credentials", strings.NewReader(`{"config":{}}`))
	testRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSetProviderEnabledRequiresFlag(t *testing.T) {
	h := Handlers{Registry: registry.New()}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/providers/p1/enabled", strings.NewReader(`{}`))
	testRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
