package backend

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/imagestudio/internal/common"
	"github.com/jo-hoe/imagestudio/internal/core"
)

// newTestAPI wires a full service stack against an in-memory storage backend
// and a stub model endpoint.
func newTestAPI(t *testing.T, modelHandler http.HandlerFunc) *echo.Echo {
	t.Helper()

	modelServer := httptest.NewServer(modelHandler)
	t.Cleanup(modelServer.Close)

	config := &core.ServiceConfig{
		Port: 8080,
		Database: core.Database{
			Type: "memory",
		},
		Gemini: core.Gemini{
			BaseURL:       modelServer.URL,
			APIKey:        "test-key",
			GenerateModel: "imagen-test",
			VisionModel:   "vision-test",
			EditModel:     "edit-test",
		},
		Tokens:            core.Tokens{Total: 1000},
		History:           core.History{Limit: 20},
		AutoEnhanceEffect: "sunset",
	}

	coreService, err := core.NewCoreService(config)
	if err != nil {
		t.Fatalf("Failed to create core service: %v", err)
	}
	t.Cleanup(func() { _ = coreService.Close() })

	e := echo.New()
	e.Validator = &common.GenericEchoValidator{Validator: validator.New()}
	NewAPIService(config, coreService).SetRoutes(e)
	return e
}

func modelStub(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, ":predict"):
			payload := base64.StdEncoding.EncodeToString([]byte("generated-pixels"))
			_, _ = w.Write([]byte(`{"predictions":[{"bytesBase64Encoded":"` + payload + `"}]}`))
		case strings.Contains(r.URL.Path, "vision-test"):
			_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"a misty valley"}]}}]}`))
		case strings.Contains(r.URL.Path, "edit-test"):
			payload := base64.StdEncoding.EncodeToString([]byte("edited-pixels"))
			_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"` + payload + `"}}]}}]}`))
		default:
			t.Errorf("Unexpected model call: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, path string, fields map[string]string) *http.Request {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", "upload.png")
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := part.Write(pngBuf.Bytes()); err != nil {
		t.Fatalf("Failed to write form file: %v", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("Failed to write form field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
	return body
}

func TestProbe(t *testing.T) {
	e := newTestAPI(t, modelStub(t))
	rec := doJSON(e, http.MethodGet, "/probe", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
}

func TestGenerate(t *testing.T) {
	e := newTestAPI(t, modelStub(t))

	rec := doJSON(e, http.MethodPost, "/api/generate",
		`{"prompt":"a red fox","imageCount":1,"aspectRatio":"16:9"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	images, ok := body["images"].([]any)
	if !ok || len(images) != 1 {
		t.Fatalf("Expected 1 image, got %v", body["images"])
	}
	first := images[0].(map[string]any)
	if first["prompt"] != "a red fox" {
		t.Errorf("Expected prompt on response, got %v", first["prompt"])
	}
	if first["id"] == "" {
		t.Error("Expected a history id on the response")
	}

	tokens := body["tokens"].(map[string]any)
	if tokens["used"].(float64) != 50 {
		t.Errorf("Expected 50 tokens used, got %v", tokens["used"])
	}
}

func TestGenerate_InvalidBody(t *testing.T) {
	e := newTestAPI(t, modelStub(t))

	testCases := []struct {
		name string
		body string
	}{
		{"missing prompt", `{"imageCount":1,"aspectRatio":"1:1"}`},
		{"count too high", `{"prompt":"p","imageCount":9,"aspectRatio":"1:1"}`},
		{"not json", `prompt=hello`},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			rec := doJSON(e, http.MethodPost, "/api/generate", testCase.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestGenerate_UnsupportedAspectRatio(t *testing.T) {
	e := newTestAPI(t, modelStub(t))

	rec := doJSON(e, http.MethodPost, "/api/generate",
		`{"prompt":"p","imageCount":1,"aspectRatio":"2:1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] == "" {
		t.Error("Expected an error message in the body")
	}
}

func TestGenerate_UpstreamFailure(t *testing.T) {
	e := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusServiceUnavailable)
	})

	rec := doJSON(e, http.MethodPost, "/api/generate",
		`{"prompt":"p","imageCount":1,"aspectRatio":"1:1"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", rec.Code)
	}
}

func TestManualEdit(t *testing.T) {
	e := newTestAPI(t, modelStub(t))

	req := uploadRequest(t, "/api/edit/manual", map[string]string{
		"prompt":      "add a rainbow",
		"aspectRatio": "1:1",
	})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["mode"] != "manual" {
		t.Errorf("Expected mode 'manual', got %v", body["mode"])
	}
	if body["fallbackApplied"] != false {
		t.Error("Expected no fallback on success")
	}
	if _, hasErr := body["error"]; hasErr {
		t.Error("Expected no error field on success")
	}
	tokens := body["tokens"].(map[string]any)
	if tokens["used"].(float64) != 50 {
		t.Errorf("Expected 50 tokens used, got %v", tokens["used"])
	}
}

func TestManualEdit_MissingUpload(t *testing.T) {
	e := newTestAPI(t, modelStub(t))

	rec := doJSON(e, http.MethodPost, "/api/edit/manual", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestAutoEnhance(t *testing.T) {
	e := newTestAPI(t, modelStub(t))

	req := uploadRequest(t, "/api/edit/auto", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["mode"] != "auto" {
		t.Errorf("Expected mode 'auto', got %v", body["mode"])
	}
	if body["prompt"] != "a misty valley" {
		t.Errorf("Expected the derived description on the response, got %v", body["prompt"])
	}
	tokens := body["tokens"].(map[string]any)
	if tokens["used"].(float64) != 100 {
		t.Errorf("Expected 100 tokens used, got %v", tokens["used"])
	}
}

func TestAutoEnhance_FallbackStillAnswers200(t *testing.T) {
	e := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "vision-test") {
			_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"a misty valley"}]}}]}`))
			return
		}
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	})

	req := uploadRequest(t, "/api/edit/auto", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200 with fallback, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["fallbackApplied"] != true {
		t.Error("Expected fallbackApplied on the response")
	}
	if body["error"] == nil || body["error"] == "" {
		t.Error("Expected the remote error message alongside the fallback image")
	}
	if body["image"] == nil {
		t.Error("Expected the substitute image in the response")
	}
	tokens := body["tokens"].(map[string]any)
	if tokens["used"].(float64) != 0 {
		t.Errorf("Expected the debit refunded, got %v used", tokens["used"])
	}
}

func TestTokens(t *testing.T) {
	e := newTestAPI(t, modelStub(t))

	rec := doJSON(e, http.MethodGet, "/api/tokens", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["total"].(float64) != 1000 {
		t.Errorf("Expected total 1000, got %v", body["total"])
	}
	if body["available"].(float64) != 1000 {
		t.Errorf("Expected available 1000, got %v", body["available"])
	}
	if body["generatedCount"].(float64) != 0 {
		t.Errorf("Expected generated count 0, got %v", body["generatedCount"])
	}
}

func TestSuggestions(t *testing.T) {
	e := newTestAPI(t, modelStub(t))

	rec := doJSON(e, http.MethodGet, "/api/suggestions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var suggestions []string
	if err := json.Unmarshal(rec.Body.Bytes(), &suggestions); err != nil {
		t.Fatalf("Failed to decode suggestions: %v", err)
	}
	if len(suggestions) != len(promptSuggestions) {
		t.Errorf("Expected %d suggestions, got %d", len(promptSuggestions), len(suggestions))
	}
}

func TestHistoryLifecycle(t *testing.T) {
	e := newTestAPI(t, modelStub(t))

	// Populate history through a generation.
	rec := doJSON(e, http.MethodPost, "/api/generate",
		`{"prompt":"a fox","imageCount":1,"aspectRatio":"1:1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	rec = doJSON(e, http.MethodGet, "/api/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var entries []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("Failed to decode history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(entries))
	}
	imageURL, _ := entries[0]["imageUrl"].(string)
	if imageURL == "" {
		t.Fatal("Expected an image url on the entry")
	}

	rec = doJSON(e, http.MethodGet, imageURL, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for image, got %d", rec.Code)
	}
	if rec.Body.String() != "generated-pixels" {
		t.Error("Expected the stored image bytes to be served")
	}

	rec = doJSON(e, http.MethodDelete, "/api/history", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", rec.Code)
	}

	rec = doJSON(e, http.MethodGet, imageURL, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after clearing, got %d", rec.Code)
	}
}

func TestHistoryImage_NotFound(t *testing.T) {
	e := newTestAPI(t, modelStub(t))

	rec := doJSON(e, http.MethodGet, "/api/history/unknown-id/image", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestTheme(t *testing.T) {
	e := newTestAPI(t, modelStub(t))

	rec := doJSON(e, http.MethodGet, "/api/theme", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["theme"] != "dark" {
		t.Errorf("Expected default theme 'dark', got %v", body["theme"])
	}

	rec = doJSON(e, http.MethodPut, "/api/theme", `{"theme":"light"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	rec = doJSON(e, http.MethodGet, "/api/theme", "")
	body = decodeBody(t, rec)
	if body["theme"] != "light" {
		t.Errorf("Expected persisted theme 'light', got %v", body["theme"])
	}

	rec = doJSON(e, http.MethodPut, "/api/theme", `{"theme":"sepia"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unsupported theme, got %d", rec.Code)
	}
}
