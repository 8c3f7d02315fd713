package edit

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"google.golang.org/genai"

	"github.com/jo-hoe/imagestudio/internal/effects"
	"github.com/jo-hoe/imagestudio/internal/gemini"
	"github.com/jo-hoe/imagestudio/internal/ledger"
	"github.com/jo-hoe/imagestudio/internal/request"
)

const (
	// TokensAutoEnhance is the fixed cost of the two-step auto enhancement.
	TokensAutoEnhance = 100
	// TokensManualEdit is the fixed cost of a free-form edit.
	TokensManualEdit = 50

	// ModeManual and ModeAuto label which entry point produced a result.
	ModeManual = "manual"
	ModeAuto   = "auto"

	visionInstruction = "Analyze this image's main subject and generate a descriptive prompt to replace " +
		"its background with something realistic and contextually appropriate. " +
		"Return only the prompt without any additional text."

	// fallbackDescription substitutes a failed vision extraction so the edit
	// step can still run.
	fallbackDescription = "Enhance the background with a beautiful landscape"
)

// ContentGenerator issues multimodal vision and edit calls.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, parts []*genai.Part) (*genai.GenerateContentResponse, error)
}

// Result is one edit outcome. FallbackApplied marks a locally tinted
// substitute produced after the remote edit failed; in that case the
// accompanying error describes the remote failure while the result keeps the
// UI from ending up empty.
type Result struct {
	Image           []byte `json:"-"`
	MimeType        string `json:"mimeType"`
	Prompt          string `json:"prompt"`
	Mode            string `json:"mode"`
	FallbackApplied bool   `json:"fallbackApplied"`
}

// Manager turns an uploaded image plus an instruction into chained outbound
// edit requests and settles the token ledger: debit immediately, refund the
// exact amount on failure.
type Manager struct {
	client      ContentGenerator
	visionModel string
	editModel   string
	tokens      *ledger.TokenLedger
	autoEffect  effects.Effect
	inFlight    atomic.Bool
}

func NewManager(client ContentGenerator, visionModel, editModel string, tokens *ledger.TokenLedger, autoEffect effects.Effect) *Manager {
	if autoEffect == "" {
		autoEffect = effects.Sunset
	}
	return &Manager{
		client:      client,
		visionModel: visionModel,
		editModel:   editModel,
		tokens:      tokens,
		autoEffect:  autoEffect,
	}
}

// AutoEnhance replaces the background of image in two chained calls: a vision
// analysis derives a background description, then the edit model applies it.
// The derived description is surfaced on the result even when the edit step
// fails.
func (m *Manager) AutoEnhance(ctx context.Context, image []byte) (*Result, error) {
	if !m.inFlight.CompareAndSwap(false, true) {
		return nil, request.ErrInFlight
	}
	defer m.inFlight.Store(false)

	if len(image) == 0 {
		return nil, request.NewValidationError("no image uploaded")
	}
	if !m.tokens.TryDebit(TokensAutoEnhance) {
		return nil, request.NewValidationError("insufficient tokens: need %d but only %d available", TokensAutoEnhance, m.tokens.Available())
	}

	mimeType := http.DetectContentType(image)

	description, err := m.deriveDescription(ctx, image, mimeType)
	if err != nil {
		// The vision call itself failed; the whole operation fails with the
		// description left empty.
		return m.failEdit(image, "", ModeAuto, TokensAutoEnhance, err)
	}

	slog.Info("auto-enhance derived background description",
		"model", m.visionModel,
		"description_length", len(description))

	instruction := description +
		" Alter only the background of the image as described and preserve the main subject exactly as it appears."

	payload, err := m.executeEdit(ctx, instruction, image, mimeType)
	if err != nil {
		return m.failEdit(image, description, ModeAuto, TokensAutoEnhance, err)
	}

	return &Result{
		Image:    payload.Data,
		MimeType: payload.MimeType,
		Prompt:   description,
		Mode:     ModeAuto,
	}, nil
}

// ManualEdit applies a user-supplied instruction in a single edit call. The
// instruction is augmented with a fixed system instruction to keep the
// subject unchanged and to target the selected aspect ratio.
func (m *Manager) ManualEdit(ctx context.Context, image []byte, prompt, aspectRatio string) (*Result, error) {
	if !m.inFlight.CompareAndSwap(false, true) {
		return nil, request.ErrInFlight
	}
	defer m.inFlight.Store(false)

	if len(image) == 0 {
		return nil, request.NewValidationError("no image uploaded")
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, request.NewValidationError("prompt must not be empty")
	}
	if aspectRatio == "" {
		aspectRatio = request.DefaultAspectRatio
	}
	if !request.IsSupportedAspectRatio(aspectRatio) {
		return nil, request.NewValidationError("unsupported aspect ratio %q", aspectRatio)
	}
	if !m.tokens.TryDebit(TokensManualEdit) {
		return nil, request.NewValidationError("insufficient tokens: need %d but only %d available", TokensManualEdit, m.tokens.Available())
	}

	mimeType := http.DetectContentType(image)
	instruction := prompt +
		" Keep the main subject of the image unchanged and target a " + aspectRatio + " aspect ratio."

	payload, err := m.executeEdit(ctx, instruction, image, mimeType)
	if err != nil {
		return m.failEdit(image, prompt, ModeManual, TokensManualEdit, err)
	}

	return &Result{
		Image:    payload.Data,
		MimeType: payload.MimeType,
		Prompt:   prompt,
		Mode:     ModeManual,
	}, nil
}

// deriveDescription asks the vision model for a background description. A
// response without text yields the generic fallback description instead of an
// error; only a failed call propagates.
func (m *Manager) deriveDescription(ctx context.Context, image []byte, mimeType string) (string, error) {
	response, err := m.client.GenerateContent(ctx, m.visionModel, []*genai.Part{
		gemini.TextPart(visionInstruction),
		gemini.ImagePart(mimeType, image),
	})
	if err != nil {
		return "", err
	}

	text, ok := gemini.FirstText(response)
	if !ok {
		slog.Warn("vision response held no text, using generic description", "model", m.visionModel)
		return fallbackDescription, nil
	}
	return strings.TrimSpace(text), nil
}

func (m *Manager) executeEdit(ctx context.Context, instruction string, image []byte, mimeType string) (gemini.ImagePayload, error) {
	response, err := m.client.GenerateContent(ctx, m.editModel, []*genai.Part{
		gemini.TextPart(instruction),
		gemini.ImagePart(mimeType, image),
	})
	if err != nil {
		return gemini.ImagePayload{}, err
	}

	payload, ok := gemini.FirstInlineImage(response)
	if !ok {
		return gemini.ImagePayload{}, &request.DecodeError{Endpoint: m.editModel, Reason: "no content part carries an embedded image"}
	}
	return payload, nil
}

// failEdit refunds the debit and substitutes a locally tinted copy of the
// original so the caller still has something to display. When even the local
// transform fails the operation is terminal.
func (m *Manager) failEdit(image []byte, prompt, mode string, cost int, remoteErr error) (*Result, error) {
	m.tokens.Refund(cost)
	slog.Error("remote edit failed, tokens refunded",
		"mode", mode,
		"cost", cost,
		"error", remoteErr)

	effect := effects.Manual
	if mode == ModeAuto {
		effect = m.autoEffect
	}

	tinted, fallbackErr := effects.Apply(image, effect)
	if fallbackErr != nil {
		return nil, &request.FallbackExhaustedError{RemoteErr: remoteErr, FallbackErr: fallbackErr}
	}

	return &Result{
		Image:           tinted,
		MimeType:        "image/png",
		Prompt:          prompt,
		Mode:            mode,
		FallbackApplied: true,
	}, remoteErr
}
