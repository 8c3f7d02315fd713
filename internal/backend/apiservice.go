package backend

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/imagestudio/internal/core"
	"github.com/jo-hoe/imagestudio/internal/edit"
	"github.com/jo-hoe/imagestudio/internal/generate"
	"github.com/jo-hoe/imagestudio/internal/imaging"
	"github.com/jo-hoe/imagestudio/internal/request"
)

// promptSuggestions mirrors the trending prompts offered by the UI.
var promptSuggestions = []string{
	"A futuristic cityscape at sunset with flying cars",
	"A cute robot cat playing piano in a jazz club",
	"An underwater castle surrounded by glowing jellyfish",
	"A steampunk library with mechanical birds and gears",
	"A magical forest with floating lanterns and unicorns",
	"A cyberpunk marketplace with neon signs and holograms",
	"A cozy cabin in the mountains during winter",
	"A space station orbiting a colorful nebula",
}

type APIService struct {
	config      *core.ServiceConfig
	coreService *core.CoreService
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		config:      config,
		coreService: coreService,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.GET("/probe", s.probeHandler)

	e.POST("/api/generate", s.generateHandler)
	e.POST("/api/edit/manual", s.manualEditHandler)
	e.POST("/api/edit/auto", s.autoEnhanceHandler)

	e.GET("/api/tokens", s.tokensHandler)
	e.GET("/api/suggestions", s.suggestionsHandler)

	e.GET("/api/history", s.listHistoryHandler)
	e.DELETE("/api/history", s.clearHistoryHandler)
	e.GET("/api/history/:id/image", s.historyImageHandler)

	e.GET("/api/theme", s.getThemeHandler)
	e.PUT("/api/theme", s.setThemeHandler)
}

func (s *APIService) probeHandler(c echo.Context) error {
	return c.String(http.StatusOK, "API Service is running")
}

type generateRequest struct {
	Prompt      string `json:"prompt" validate:"required"`
	ImageCount  int    `json:"imageCount" validate:"required,min=1,max=4"`
	AspectRatio string `json:"aspectRatio" validate:"required"`
}

type generatedImageResponse struct {
	ID          string `json:"id"`
	Data        []byte `json:"data"`
	MimeType    string `json:"mimeType"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio"`
	CreatedAt   string `json:"createdAt"`
}

func (s *APIService) generateHandler(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		slog.Warn("generateHandler: failed to bind request body", "status", http.StatusBadRequest, "error", err)
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	images, err := s.coreService.Generator().Generate(c.Request().Context(), req.Prompt, req.ImageCount, req.AspectRatio)
	if err != nil {
		status, message := mapError(err)
		slog.Error("generateHandler: generation failed", "status", status, "error", err)
		return c.JSON(status, errorBody(message))
	}

	responses := make([]generatedImageResponse, 0, len(images))
	for _, image := range images {
		responses = append(responses, toImageResponse(image))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"images": responses,
		"tokens": s.coreService.TokenLedger().Snapshot(),
	})
}

func (s *APIService) manualEditHandler(c echo.Context) error {
	image, err := uploadedImage(c)
	if err != nil {
		slog.Warn("manualEditHandler: invalid upload", "status", http.StatusBadRequest, "error", err)
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	prompt := c.FormValue("prompt")
	aspectRatio := c.FormValue("aspectRatio")

	result, err := s.coreService.Editor().ManualEdit(c.Request().Context(), image, prompt, aspectRatio)
	return s.editResponse(c, "manualEditHandler", result, err)
}

func (s *APIService) autoEnhanceHandler(c echo.Context) error {
	image, err := uploadedImage(c)
	if err != nil {
		slog.Warn("autoEnhanceHandler: invalid upload", "status", http.StatusBadRequest, "error", err)
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	result, err := s.coreService.Editor().AutoEnhance(c.Request().Context(), image)
	return s.editResponse(c, "autoEnhanceHandler", result, err)
}

// editResponse renders an edit outcome. A result together with an error means
// the remote edit failed but a local fallback image was produced; the client
// shows both the substitute image and the error message.
func (s *APIService) editResponse(c echo.Context, handler string, result *edit.Result, err error) error {
	if result == nil && err != nil {
		status, message := mapError(err)
		slog.Error(handler+": edit failed", "status", status, "error", err)
		return c.JSON(status, errorBody(message))
	}

	body := map[string]any{
		"image":           result.Image,
		"mimeType":        result.MimeType,
		"prompt":          result.Prompt,
		"mode":            result.Mode,
		"fallbackApplied": result.FallbackApplied,
		"tokens":          s.coreService.TokenLedger().Snapshot(),
	}
	if err != nil {
		body["error"] = err.Error()
	}
	return c.JSON(http.StatusOK, body)
}

func (s *APIService) tokensHandler(c echo.Context) error {
	snapshot := s.coreService.TokenLedger().Snapshot()
	return c.JSON(http.StatusOK, map[string]any{
		"used":           snapshot.Used,
		"available":      snapshot.Available,
		"total":          snapshot.Total,
		"generatedCount": s.coreService.TokenLedger().GeneratedCount(),
	})
}

func (s *APIService) suggestionsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, promptSuggestions)
}

type historyEntryResponse struct {
	ID          string `json:"id"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio"`
	MimeType    string `json:"mimeType"`
	CreatedAt   string `json:"createdAt"`
	ImageURL    string `json:"imageUrl"`
}

func (s *APIService) listHistoryHandler(c echo.Context) error {
	entries, err := s.coreService.RecentImages().List()
	if err != nil {
		slog.Error("listHistoryHandler: failed to list history", "status", http.StatusInternalServerError, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("failed to list history"))
	}

	responses := make([]historyEntryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, historyEntryResponse{
			ID:          entry.ID,
			Prompt:      entry.Prompt,
			AspectRatio: entry.AspectRatio,
			MimeType:    entry.MimeType,
			CreatedAt:   entry.CreatedAt.Format(timeFormat),
			ImageURL:    "/api/history/" + entry.ID + "/image",
		})
	}
	return c.JSON(http.StatusOK, responses)
}

func (s *APIService) clearHistoryHandler(c echo.Context) error {
	if err := s.coreService.RecentImages().Clear(); err != nil {
		slog.Error("clearHistoryHandler: failed to clear history", "status", http.StatusInternalServerError, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("failed to clear history"))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIService) historyImageHandler(c echo.Context) error {
	id := c.Param("id")
	entry, err := s.coreService.RecentImages().Get(id)
	if err != nil {
		slog.Error("historyImageHandler: failed to load entry", "status", http.StatusInternalServerError, "image_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("failed to load image"))
	}
	if entry == nil {
		slog.Warn("historyImageHandler: image not available", "status", http.StatusNotFound, "image_id", id)
		return c.JSON(http.StatusNotFound, errorBody("image not available"))
	}
	return c.Blob(http.StatusOK, entry.MimeType, entry.Image)
}

type themeRequest struct {
	Theme string `json:"theme" validate:"required,oneof=dark light"`
}

func (s *APIService) getThemeHandler(c echo.Context) error {
	theme, err := s.coreService.Theme()
	if err != nil {
		slog.Error("getThemeHandler: failed to load theme", "status", http.StatusInternalServerError, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("failed to load theme"))
	}
	return c.JSON(http.StatusOK, map[string]string{"theme": theme})
}

func (s *APIService) setThemeHandler(c echo.Context) error {
	var req themeRequest
	if err := c.Bind(&req); err != nil {
		slog.Warn("setThemeHandler: failed to bind request body", "status", http.StatusBadRequest, "error", err)
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := s.coreService.SetTheme(req.Theme); err != nil {
		slog.Error("setThemeHandler: failed to persist theme", "status", http.StatusInternalServerError, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("failed to persist theme"))
	}
	return c.JSON(http.StatusOK, map[string]string{"theme": req.Theme})
}

const timeFormat = "2006-01-02 15:04:05"

func toImageResponse(image generate.GeneratedImage) generatedImageResponse {
	return generatedImageResponse{
		ID:          image.HistoryID,
		Data:        image.Data,
		MimeType:    image.MimeType,
		Prompt:      image.Prompt,
		AspectRatio: image.AspectRatio,
		CreatedAt:   image.CreatedAt.Format(timeFormat),
	}
}

// uploadedImage reads the multipart "image" field and normalizes it to PNG.
func uploadedImage(c echo.Context) ([]byte, error) {
	file, err := c.FormFile("image")
	if err != nil {
		return nil, errors.New("missing image upload")
	}

	src, err := file.Open()
	if err != nil {
		return nil, errors.New("failed to open uploaded file")
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, errors.New("failed to read uploaded file")
	}

	normalized, err := imaging.ToPNG(data)
	if err != nil {
		return nil, errors.New("unsupported image format, upload a JPG, PNG or WEBP image")
	}
	return normalized, nil
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}

func mapError(err error) (int, string) {
	var validationErr *request.ValidationError
	var transportErr *request.TransportError
	var decodeErr *request.DecodeError
	var fallbackErr *request.FallbackExhaustedError

	switch {
	case errors.Is(err, request.ErrInFlight):
		return http.StatusTooManyRequests, err.Error()
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Error()
	case errors.As(err, &transportErr):
		return http.StatusBadGateway, transportErr.Error()
	case errors.As(err, &decodeErr):
		return http.StatusBadGateway, decodeErr.Error()
	case errors.As(err, &fallbackErr):
		return http.StatusInternalServerError, fallbackErr.Error()
	default:
		return http.StatusInternalServerError, "unexpected error: " + err.Error()
	}
}
