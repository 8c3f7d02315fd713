package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/jo-hoe/imagestudio/internal/request"
)

const (
	// DefaultBaseURL targets the public generative language API.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// PredictTimeout bounds a generation call client-side. Whichever of
	// "response received" or "timeout elapsed" occurs first decides the
	// outcome; a timeout is a definitive failure and is not retried.
	PredictTimeout = 60 * time.Second
)

// Client issues calls against the generative model endpoints. Generation goes
// through the raw imagen :predict REST contract; vision and edit calls go
// through the genai SDK and carry no client timeout, only context cancellation
// applies.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	genaiClient    *genai.Client
	predictTimeout time.Duration
}

func NewClient(baseURL, apiKey string) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	config := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != DefaultBaseURL {
		// The SDK appends its API version to the base URL itself.
		config.HTTPOptions = genai.HTTPOptions{
			BaseURL: strings.TrimSuffix(baseURL, "/v1beta"),
		}
	}
	genaiClient, err := genai.NewClient(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{
		baseURL:        baseURL,
		apiKey:         apiKey,
		httpClient:     &http.Client{},
		genaiClient:    genaiClient,
		predictTimeout: PredictTimeout,
	}, nil
}

// SetPredictTimeout overrides the generation deadline. Non-positive values
// restore the default.
func (c *Client) SetPredictTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = PredictTimeout
	}
	c.predictTimeout = timeout
}

// Predict issues an image-generation call against the given imagen model.
func (c *Client) Predict(ctx context.Context, model, prompt string, sampleCount int, aspectRatio string) (*PredictResponse, error) {
	body := PredictRequest{
		Instances: []PredictInstance{{Prompt: prompt}},
		Parameters: PredictParameters{
			SampleCount: sampleCount,
			AspectRatio: aspectRatio,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, c.predictTimeout)
	defer cancel()

	raw, err := c.post(ctx, model, "predict", body)
	if err != nil {
		return nil, err
	}

	var response PredictResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return nil, &request.DecodeError{Endpoint: model, Reason: fmt.Sprintf("malformed prediction body: %v", err)}
	}
	return &response, nil
}

// GenerateContent issues a multimodal call (vision analysis or image edit)
// against the given model.
func (c *Client) GenerateContent(ctx context.Context, model string, parts []*genai.Part) (*genai.GenerateContentResponse, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	start := time.Now()
	response, err := c.genaiClient.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		slog.Error("model call failed", "model", model, "method", "generateContent", "error", err)
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &request.TransportError{Endpoint: model, Status: apiErr.Code, Err: err}
		}
		return nil, &request.TransportError{Endpoint: model, Err: err}
	}

	slog.Debug("model call finished",
		"model", model,
		"method", "generateContent",
		"latency", time.Since(start),
		"candidates", len(response.Candidates))
	return response, nil
}

func (c *Client) post(ctx context.Context, model, method string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:%s?key=%s", c.baseURL, model, method, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("model call failed", "model", model, "method", method, "error", err)
		return nil, &request.TransportError{Endpoint: model, Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Error("failed to close response body", "model", model, "error", cerr)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &request.TransportError{Endpoint: model, Err: err}
	}

	slog.Debug("model call finished",
		"model", model,
		"method", method,
		"status", resp.StatusCode,
		"latency", time.Since(start),
		"response_size_bytes", len(raw))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &request.TransportError{Endpoint: model, Status: resp.StatusCode}
	}
	return raw, nil
}
