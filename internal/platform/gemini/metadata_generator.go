// Package gemini implements the generation boundary using Google's Gemini
// models.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/pinbox/pinbox-api/internal/config"
	"github.com/pinbox/pinbox-api/internal/domain"
	"github.com/pinbox/pinbox-api/internal/generation"
)

// responseSchema is the JSON shape the prompts instruct the model to emit.
type responseSchema struct {
	Tags       []string `json:"tags"`
	Summary    string   `json:"summary"`
	Transcript string   `json:"transcript,omitempty"`
}

// MetadataGenerator implements generation.MetadataGenerator against the
// Gemini API. All model selection and credentials come from the explicit
// config struct; there are no package-level singletons.
type MetadataGenerator struct {
	logger *slog.Logger
	config config.LLMConfig
	client *genai.Client
}

// NewMetadataGenerator creates a MetadataGenerator with the provided
// dependencies, validating the configuration up front.
func NewMetadataGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*MetadataGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.TextModel == "" || cfg.VisionModel == "" || cfg.AudioModel == "" {
		return nil, fmt.Errorf("%w: model names cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return &MetadataGenerator{
		logger: logger.With("component", "gemini_metadata_generator"),
		config: cfg,
		client: client,
	}, nil
}

var _ generation.MetadataGenerator = (*MetadataGenerator)(nil)

// GenerateMetadata dispatches to the content-type-specific model and prompt,
// calls the API with retry, and maps the response into a generation.Result.
func (g *MetadataGenerator) GenerateMetadata(ctx context.Context, req generation.Request) (*generation.Result, error) {
	model, prompt, fileURI, err := g.planCall(req)
	if err != nil {
		return nil, err
	}

	resp, err := g.callWithRetry(ctx, model, prompt, fileURI)
	if err != nil {
		return nil, err
	}

	result := &generation.Result{
		Tags:    normalizeTags(resp.Tags),
		Summary: strings.TrimSpace(resp.Summary),
	}
	if req.WantTranscript {
		result.Transcript = strings.TrimSpace(resp.Transcript)
	}

	if len(result.Tags) == 0 && result.Summary == "" {
		return nil, fmt.Errorf("%w: response carried no usable metadata", generation.ErrInvalidResponse)
	}
	return result, nil
}

// planCall picks the model and builds the prompt for the request's content
// type.
func (g *MetadataGenerator) planCall(req generation.Request) (model, prompt, fileURI string, err error) {
	switch req.CardType {
	case domain.CardTypeText, domain.CardTypeQuote:
		if req.Text == "" {
			return "", "", "", fmt.Errorf("%w: empty text", generation.ErrGenerationFailed)
		}
		return g.config.TextModel, textPrompt(req.Text), "", nil

	case domain.CardTypeLink:
		if req.Text == "" {
			return "", "", "", fmt.Errorf("%w: empty link context", generation.ErrGenerationFailed)
		}
		return g.config.TextModel, linkPrompt(req.Text), "", nil

	case domain.CardTypeImage, domain.CardTypeVideo:
		if req.FileURL == "" {
			return "", "", "", fmt.Errorf("%w: missing file URL", generation.ErrGenerationFailed)
		}
		return g.config.VisionModel, imagePrompt(), req.FileURL, nil

	case domain.CardTypeAudio:
		if req.FileURL == "" {
			return "", "", "", fmt.Errorf("%w: missing file URL", generation.ErrGenerationFailed)
		}
		return g.config.AudioModel, audioPrompt(req.WantTranscript), req.FileURL, nil

	case domain.CardTypeDocument:
		if req.FileURL == "" {
			return "", "", "", fmt.Errorf("%w: missing file URL", generation.ErrGenerationFailed)
		}
		return g.config.VisionModel, documentPrompt(), req.FileURL, nil

	default:
		return "", "", "", fmt.Errorf("%w: %s", generation.ErrUnsupportedContent, req.CardType)
	}
}

// callWithRetry makes the Gemini call with exponential backoff and jitter
// for transient errors. Permanent errors (safety blocks, malformed
// responses) are returned immediately.
func (g *MetadataGenerator) callWithRetry(ctx context.Context, modelName, prompt, fileURI string) (*responseSchema, error) {
	maxRetries := g.config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 3
	}
	baseDelaySeconds := g.config.RetryDelaySeconds
	if baseDelaySeconds < 1 {
		baseDelaySeconds = 2
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; ; attempt++ {
		g.logger.InfoContext(ctx, "making Gemini API call",
			"model", modelName,
			"attempt", attempt+1,
			"max_attempts", maxRetries+1)

		resp, err := g.generate(ctx, modelName, prompt, fileURI)
		if err == nil {
			return resp, nil
		}

		if errors.Is(err, generation.ErrContentBlocked) || errors.Is(err, generation.ErrInvalidResponse) {
			g.logger.WarnContext(ctx, "permanent generation error, not retrying", "error", err)
			return nil, err
		}

		if attempt >= maxRetries {
			g.logger.WarnContext(ctx, "maximum retry attempts reached", "max_retries", maxRetries)
			return nil, fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				generation.ErrTransientFailure, maxRetries, err)
		}

		// delay = baseDelay * 2^attempt * (0.5 + rand(0, 0.5))
		backoffSeconds := float64(baseDelaySeconds) * math.Pow(2, float64(attempt))
		jitterFactor := 0.5 + rng.Float64()*0.5
		delay := time.Duration(backoffSeconds * jitterFactor * float64(time.Second))

		g.logger.InfoContext(ctx, "retrying after delay",
			"attempt", attempt+1,
			"delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", generation.ErrTransientFailure, ctx.Err())
		}
	}
}

// generate performs a single API call and parses the JSON response body.
func (g *MetadataGenerator) generate(ctx context.Context, modelName, prompt, fileURI string) (*responseSchema, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if fileURI != "" {
		parts = append(parts, &genai.Part{FileData: &genai.FileData{FileURI: fileURI}})
	}

	resp, err := g.client.Models.GenerateContent(ctx, modelName, []*genai.Content{{Parts: parts}}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrGenerationFailed, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: content blocked by safety filters", generation.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return nil, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var text string
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text += part.Text
		}
	}
	text = stripCodeFence(text)

	var parsed responseSchema
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v", generation.ErrInvalidResponse, err)
	}
	return &parsed, nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// normalizeTags lowercases tags, keeps only single words, dedupes and caps
// the list at six entries.
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, 6)
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || strings.ContainsAny(t, " \t") {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == 6 {
			break
		}
	}
	return out
}
