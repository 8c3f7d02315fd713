package generate

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jo-hoe/imagestudio/internal/gemini"
	"github.com/jo-hoe/imagestudio/internal/history"
	"github.com/jo-hoe/imagestudio/internal/ledger"
	"github.com/jo-hoe/imagestudio/internal/request"
)

const (
	// TokensPerImage is the ledger cost of one generated image.
	TokensPerImage = 50

	// MinImageCount and MaxImageCount bound one generation request.
	MinImageCount = 1
	MaxImageCount = 4
)

// Predictor issues the image-generation call.
type Predictor interface {
	Predict(ctx context.Context, model, prompt string, sampleCount int, aspectRatio string) (*gemini.PredictResponse, error)
}

// GeneratedImage is one produced image together with its source prompt.
type GeneratedImage struct {
	HistoryID   string    `json:"id"`
	Data        []byte    `json:"-"`
	MimeType    string    `json:"mimeType"`
	Prompt      string    `json:"prompt"`
	AspectRatio string    `json:"aspectRatio"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Manager turns a prompt plus image count and aspect ratio into one outbound
// generation request, normalizes the response and settles the token ledger.
// The ledger is debited only after the response decoded successfully, so no
// failure path ever mutates it.
type Manager struct {
	client   Predictor
	model    string
	tokens   *ledger.TokenLedger
	recent   *history.RecentImages
	inFlight atomic.Bool
}

func NewManager(client Predictor, model string, tokens *ledger.TokenLedger, recent *history.RecentImages) *Manager {
	return &Manager{
		client: client,
		model:  model,
		tokens: tokens,
		recent: recent,
	}
}

// Generate runs one generation request end to end. At most one request may be
// outstanding per manager; a concurrent call fails with request.ErrInFlight
// without touching the ledger.
func (m *Manager) Generate(ctx context.Context, prompt string, imageCount int, aspectRatio string) ([]GeneratedImage, error) {
	if !m.inFlight.CompareAndSwap(false, true) {
		return nil, request.ErrInFlight
	}
	defer m.inFlight.Store(false)

	// Preconditions, checked in order and before any network I/O.
	if strings.TrimSpace(prompt) == "" {
		return nil, request.NewValidationError("prompt must not be empty")
	}
	if imageCount < MinImageCount || imageCount > MaxImageCount {
		return nil, request.NewValidationError("image count must be between %d and %d, got %d", MinImageCount, MaxImageCount, imageCount)
	}
	if !request.IsSupportedAspectRatio(aspectRatio) {
		return nil, request.NewValidationError("unsupported aspect ratio %q", aspectRatio)
	}

	cost := imageCount * TokensPerImage
	if available := m.tokens.Available(); cost > available {
		return nil, request.NewValidationError("insufficient tokens: need %d but only %d available", cost, available)
	}

	slog.Info("generating images",
		"model", m.model,
		"image_count", imageCount,
		"aspect_ratio", aspectRatio,
		"cost", cost)

	response, err := m.client.Predict(ctx, m.model, prompt, imageCount, aspectRatio)
	if err != nil {
		return nil, err
	}

	payloads := gemini.FlattenPredictions(response.Predictions)
	if len(payloads) > imageCount {
		payloads = payloads[:imageCount]
	}
	if len(payloads) == 0 {
		return nil, &request.DecodeError{Endpoint: m.model, Reason: "no usable image payload in any prediction"}
	}

	// Commit only now that decoding succeeded. The precondition made sure the
	// amount fits, but the edit manager shares the ledger, so the debit can
	// still lose the race.
	if !m.tokens.TryDebit(cost) {
		return nil, request.NewValidationError("insufficient tokens: balance changed while the request was in flight")
	}

	images := make([]GeneratedImage, 0, len(payloads))
	for _, payload := range payloads {
		image := GeneratedImage{
			Data:        payload.Data,
			MimeType:    payload.MimeType,
			Prompt:      prompt,
			AspectRatio: aspectRatio,
			CreatedAt:   time.Now(),
		}

		id, err := m.recent.Add(payload.Data, payload.MimeType, prompt, aspectRatio)
		if err != nil {
			// The image itself is still usable; history is best effort.
			slog.Error("failed to record generated image in history", "error", err)
		} else {
			image.HistoryID = id
		}
		images = append(images, image)
	}

	m.tokens.AddGenerated(len(images))

	slog.Info("generation finished",
		"requested", imageCount,
		"produced", len(images))
	return images, nil
}

// Cost returns the ledger cost of generating imageCount images.
func Cost(imageCount int) int {
	return imageCount * TokensPerImage
}
