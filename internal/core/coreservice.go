package core

import (
	"fmt"
	"log/slog"

	"github.com/jo-hoe/imagestudio/internal/edit"
	"github.com/jo-hoe/imagestudio/internal/effects"
	"github.com/jo-hoe/imagestudio/internal/gemini"
	"github.com/jo-hoe/imagestudio/internal/generate"
	"github.com/jo-hoe/imagestudio/internal/history"
	"github.com/jo-hoe/imagestudio/internal/ledger"
	"github.com/jo-hoe/imagestudio/internal/storage"
)

// CoreService owns the shared state of the studio: the storage backend, the
// token ledger, the recent-image history and the two request managers.
type CoreService struct {
	config         *ServiceConfig
	storageService storage.StorageService
	tokenLedger    *ledger.TokenLedger
	recentImages   *history.RecentImages
	generator      *generate.Manager
	editor         *edit.Manager
}

func NewCoreService(config *ServiceConfig) (*CoreService, error) {
	storageService, err := storage.NewStorage(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	slog.Info("storage initialized successfully", "type", config.Database.Type)

	tokenLedger, err := ledger.NewTokenLedger(storageService, config.Tokens.Total)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token ledger: %w", err)
	}

	recentImages := history.NewRecentImages(storageService, config.History.Limit)
	client, err := gemini.NewClient(config.Gemini.BaseURL, config.Gemini.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model client: %w", err)
	}

	return &CoreService{
		config:         config,
		storageService: storageService,
		tokenLedger:    tokenLedger,
		recentImages:   recentImages,
		generator:      generate.NewManager(client, config.Gemini.GenerateModel, tokenLedger, recentImages),
		editor: edit.NewManager(client, config.Gemini.VisionModel, config.Gemini.EditModel,
			tokenLedger, effects.Effect(config.AutoEnhanceEffect)),
	}, nil
}

// Generator returns the generation request manager.
func (service *CoreService) Generator() *generate.Manager {
	return service.generator
}

// Editor returns the edit request manager.
func (service *CoreService) Editor() *edit.Manager {
	return service.editor
}

// TokenLedger returns the shared quota counter.
func (service *CoreService) TokenLedger() *ledger.TokenLedger {
	return service.tokenLedger
}

// RecentImages returns the bounded history.
func (service *CoreService) RecentImages() *history.RecentImages {
	return service.recentImages
}

// Theme returns the persisted theme preference, "dark" by default.
func (service *CoreService) Theme() (string, error) {
	return service.storageService.LoadTheme()
}

// SetTheme persists the theme preference.
func (service *CoreService) SetTheme(theme string) error {
	if theme != "dark" && theme != "light" {
		return fmt.Errorf("unsupported theme %q", theme)
	}
	return service.storageService.SaveTheme(theme)
}

func (service *CoreService) Close() error {
	return service.storageService.Close()
}
