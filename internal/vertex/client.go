// Package vertex implements the document analyzer on Vertex AI generative
// models. It sends extracted document text with an analysis prompt and
// parses the JSON object embedded in the free-text model response.
package vertex

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/tranhaiminh/docvault/internal/document"
	"github.com/tranhaiminh/docvault/pkg/config"
	"github.com/tranhaiminh/docvault/pkg/logger"
	"github.com/tranhaiminh/docvault/pkg/resilience"
)

const analyzerSystemPrompt = "You are a document administration assistant. You classify and summarize internal documents. You always answer with a single valid JSON object and nothing else."

const analyzerUserPrompt = `Analyze the following document text and return a JSON object with exactly these keys:

- "category": one of "contract", "report", "decision", "notice", "correspondence", "other"
- "priority": one of "low", "medium", "high"
- "suggestedTags": an array of 3 to 5 short tags
- "summary": a 2-3 sentence summary of the document
- "keywords": an array of 5 to 7 key terms

Document text:
"""
%s
"""`

// maxInputChars caps the text sent to the model. Longer documents are
// truncated; the head of a document carries the classification signal.
const maxInputChars = 30000

// Analyzer calls a Vertex AI generative model to analyze document text.
// A circuit breaker guards the model call so a degraded model endpoint
// fails fast instead of tying up ingestion requests.
type Analyzer struct {
	model      *genai.GenerativeModel
	baseClient *genai.Client
	breaker    *resilience.CircuitBreaker
	logger     *slog.Logger
}

// NewAnalyzer creates an Analyzer for the configured project, region, and
// model.
func NewAnalyzer(ctx context.Context, cfg config.VertexConfig) (*Analyzer, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("vertex projectId and region must be configured")
	}
	baseClient, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("creating vertex client: %w", err)
	}

	model := baseClient.GenerativeModel(cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(analyzerSystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}

	return &Analyzer{
		model:      model,
		baseClient: baseClient,
		breaker:    resilience.NewCircuitBreaker("vertex-analyze", resilience.CircuitBreakerConfig{}),
		logger:     logger.WithComponent("vertex"),
	}, nil
}

// Analyze sends the document text to the model and parses the structured
// analysis out of its response.
func (a *Analyzer) Analyze(ctx context.Context, text string) (*document.Analysis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no text to analyze")
	}
	if len(text) > maxInputChars {
		text = text[:maxInputChars]
	}
	prompt := fmt.Sprintf(analyzerUserPrompt, text)

	var resp *genai.GenerateContentResponse
	err := a.breaker.Execute(func() error {
		var genErr error
		resp, genErr = a.model.GenerateContent(ctx, genai.Text(prompt))
		return genErr
	})
	if err != nil {
		return nil, fmt.Errorf("generating analysis: %w", err)
	}

	raw, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	analysis, err := parseAnalysis(raw)
	if err != nil {
		a.logger.Warn("unparsable model response", "error", err, "response_len", len(raw))
		return nil, err
	}
	return analysis, nil
}

// Close releases the underlying Vertex client.
func (a *Analyzer) Close() error {
	if a.baseClient != nil {
		return a.baseClient.Close()
	}
	return nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty model response")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("model response contained no text parts")
	}
	return sb.String(), nil
}
