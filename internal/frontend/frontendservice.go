package frontend

import (
	"bytes"
	"embed"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/imagestudio/internal/core"
)

const MainPageName = "index.html"

//go:embed views
var assetsFS embed.FS

// FrontendService serves the thin HTML shell around the JSON API: the studio
// page itself plus the site icon. All actual behavior lives behind /api.
type FrontendService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
}

func NewFrontendService(config *core.ServiceConfig, coreService *core.CoreService) *FrontendService {
	return &FrontendService{
		coreService: coreService,
		config:      config,
	}
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.GET("/", service.rootRedirectHandler) // Redirect root to index.html
	e.GET("/"+MainPageName, service.indexHandler)
	e.GET("/icon.svg", service.iconHandler)
}

// rootRedirectHandler redirects root path to index.html
func (service *FrontendService) rootRedirectHandler(ctx echo.Context) error {
	return ctx.Redirect(http.StatusMovedPermanently, "/"+MainPageName)
}

func (service *FrontendService) indexHandler(ctx echo.Context) error {
	data, err := assetsFS.ReadFile("views/" + MainPageName)
	if err != nil {
		slog.Error("indexHandler: failed to read index.html", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load page")
	}

	theme, err := service.coreService.Theme()
	if err != nil {
		slog.Error("indexHandler: failed to load theme, falling back to dark", "error", err)
		theme = "dark"
	}

	// The page boots with the persisted theme class on <body>
	page := bytes.ReplaceAll(data, []byte("{{THEME}}"), []byte(theme))

	return ctx.HTMLBlob(http.StatusOK, page)
}

func (service *FrontendService) iconHandler(ctx echo.Context) error {
	data, err := assetsFS.ReadFile("views/icon.svg")
	if err != nil {
		slog.Error("iconHandler: failed to read icon.svg", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load icon")
	}
	// Cache for 7 days
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, "image/svg+xml", data)
}
