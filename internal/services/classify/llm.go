package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/interfaces"
	"github.com/ternarybob/wayfinder/internal/models"
	"github.com/ternarybob/wayfinder/internal/services/llm"
)

// Generator is the slice of the LLM provider factory the classifier needs
type Generator interface {
	GenerateContent(ctx context.Context, request *llm.ContentRequest) (*llm.ContentResponse, error)
}

const systemInstruction = `You classify the quality of a point of interest from its rating and customer reviews.
Respond with a single JSON object and nothing else.`

var analysisSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"classification": map[string]interface{}{
			"type": "string",
			"enum": []string{"excellent", "very_good", "good", "average", "poor"},
		},
		"confidence": map[string]interface{}{"type": "number", "minimum": 0.0, "maximum": 1.0},
		"summary":    map[string]interface{}{"type": "string"},
		"pros":       map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"cons":       map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"sentiment": map[string]interface{}{
			"type": "string",
			"enum": []string{"positive", "neutral", "negative"},
		},
		"keywords": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
	},
	"required": []string{"classification", "confidence", "summary", "sentiment"},
}

type llmAnalysis struct {
	Classification string   `json:"classification"`
	Confidence     float64  `json:"confidence"`
	Summary        string   `json:"summary"`
	Pros           []string `json:"pros"`
	Cons           []string `json:"cons"`
	Sentiment      string   `json:"sentiment"`
	Keywords       []string `json:"keywords"`
}

// LLMProvider classifies places by asking an LLM to read their reviews.
// Places without reviews are completed through the place-data provider first.
type LLMProvider struct {
	generator Generator
	details   interfaces.PlaceDataProvider
	config    *common.ClassificationConfig
	logger    arbor.ILogger
}

// NewLLMProvider creates an LLM classifier. details may be nil.
func NewLLMProvider(generator Generator, details interfaces.PlaceDataProvider, config *common.ClassificationConfig, logger arbor.ILogger) *LLMProvider {
	return &LLMProvider{
		generator: generator,
		details:   details,
		config:    config,
		logger:    logger,
	}
}

func (p *LLMProvider) Name() string { return "llm" }

func (p *LLMProvider) Classify(ctx context.Context, place models.Place) (*models.AIAnalysis, error) {
	if len(place.Reviews) == 0 && p.details != nil {
		detailed, err := p.details.GetDetails(ctx, place.ID)
		if err != nil {
			p.logger.Debug().Err(err).Str("place_id", place.ID).Msg("Details fetch failed, classifying without reviews")
		} else if detailed != nil {
			place.Reviews = detailed.Reviews
			if place.TotalReviews == 0 {
				place.TotalReviews = detailed.TotalReviews
			}
		}
	}

	resp, err := p.generator.GenerateContent(ctx, &llm.ContentRequest{
		Prompt:            buildPrompt(place, p.config.MaxReviews),
		SystemInstruction: systemInstruction,
		OutputSchema:      analysisSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("generate analysis: %w", err)
	}

	analysis, err := parseAnalysis(resp.Text)
	if err != nil {
		return nil, err
	}
	// a verdict read from few reviews is less certain than the model may claim
	if !math.IsNaN(analysis.Confidence) {
		stated := math.Max(0, math.Min(1, analysis.Confidence))
		analysis.Confidence = stated * ConfidenceFactor(place.TotalReviews, p.config.FullConfidenceReviews)
	}

	p.logger.Debug().
		Str("place_id", place.ID).
		Str("provider", string(resp.Provider)).
		Str("classification", string(analysis.Classification)).
		Float64("confidence", analysis.Confidence).
		Msg("Place classified")

	return analysis, nil
}

func buildPrompt(place models.Place, maxReviews int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", place.Name)
	if place.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", place.Category)
	}
	if place.Address != "" {
		fmt.Fprintf(&b, "Address: %s\n", place.Address)
	}
	fmt.Fprintf(&b, "Rating: %.1f / 5 from %d reviews\n", place.Rating, place.TotalReviews)
	if place.PriceLevel > 0 {
		fmt.Fprintf(&b, "Price level: %d / 4\n", place.PriceLevel)
	}
	if len(place.Features) > 0 {
		fmt.Fprintf(&b, "Features: %s\n", strings.Join(place.Features, ", "))
	}

	reviews := place.Reviews
	if maxReviews > 0 && len(reviews) > maxReviews {
		reviews = reviews[:maxReviews]
	}
	if len(reviews) > 0 {
		b.WriteString("\nReviews:\n")
		for _, r := range reviews {
			fmt.Fprintf(&b, "- (%.0f/5) %s\n", r.Rating, strings.TrimSpace(r.Text))
		}
	}

	b.WriteString(`
Return JSON with fields: classification (excellent|very_good|good|average|poor),
confidence (0-1, lower when there are few reviews), summary (one sentence),
pros (list), cons (list), sentiment (positive|neutral|negative), keywords (list).`)
	return b.String()
}

// parseAnalysis decodes model output, tolerating markdown code fences around the JSON
func parseAnalysis(text string) (*models.AIAnalysis, error) {
	text = strings.TrimSpace(text)
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}

	var raw llmAnalysis
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}

	return &models.AIAnalysis{
		Classification: models.Classification(strings.ToLower(strings.TrimSpace(raw.Classification))),
		Confidence:     raw.Confidence,
		Summary:        raw.Summary,
		Pros:           raw.Pros,
		Cons:           raw.Cons,
		Sentiment:      models.Sentiment(strings.ToLower(strings.TrimSpace(raw.Sentiment))),
		Keywords:       raw.Keywords,
		Source:         models.AnalysisSourceAI,
	}, nil
}
