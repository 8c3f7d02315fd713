package frontend

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/imagestudio/internal/core"
)

func newTestFrontend(t *testing.T) (*echo.Echo, *core.CoreService) {
	t.Helper()

	config := &core.ServiceConfig{
		Database: core.Database{Type: "memory"},
		Gemini:   core.Gemini{APIKey: "test-key"},
	}
	coreService, err := core.NewCoreService(config)
	if err != nil {
		t.Fatalf("Failed to create core service: %v", err)
	}
	t.Cleanup(func() { _ = coreService.Close() })

	e := echo.New()
	NewFrontendService(config, coreService).SetRoutes(e)
	return e, coreService
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRootRedirectsToIndex(t *testing.T) {
	e, _ := newTestFrontend(t)

	rec := get(e, "/")
	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("Expected status 301, got %d", rec.Code)
	}
	if location := rec.Header().Get("Location"); location != "/index.html" {
		t.Errorf("Expected redirect to /index.html, got %q", location)
	}
}

func TestIndexCarriesPersistedTheme(t *testing.T) {
	e, coreService := newTestFrontend(t)

	rec := get(e, "/index.html")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "{{THEME}}") {
		t.Error("Expected the theme placeholder to be replaced")
	}
	if !strings.Contains(rec.Body.String(), `class="dark"`) {
		t.Error("Expected the default dark theme on the page body")
	}

	if err := coreService.SetTheme("light"); err != nil {
		t.Fatalf("SetTheme failed: %v", err)
	}
	rec = get(e, "/index.html")
	if !strings.Contains(rec.Body.String(), `class="light"`) {
		t.Error("Expected the persisted light theme on the page body")
	}
}

func TestIconIsCacheable(t *testing.T) {
	e, _ := newTestFrontend(t)

	rec := get(e, "/icon.svg")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if contentType := rec.Header().Get(echo.HeaderContentType); contentType != "image/svg+xml" {
		t.Errorf("Expected svg content type, got %q", contentType)
	}
	if cacheControl := rec.Header().Get("Cache-Control"); !strings.Contains(cacheControl, "max-age=604800") {
		t.Errorf("Expected a 7 day cache header, got %q", cacheControl)
	}
}
