package classify

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ternarybob/wayfinder/internal/models"
)

// Bucket maps a numeric rating onto a classification
func Bucket(rating float64) models.Classification {
	switch {
	case rating >= 4.5:
		return models.ClassificationExcellent
	case rating >= 4.0:
		return models.ClassificationVeryGood
	case rating >= 3.5:
		return models.ClassificationGood
	case rating >= 3.0:
		return models.ClassificationAverage
	default:
		return models.ClassificationPoor
	}
}

// ConfidenceFactor scales certainty by review volume: 0 with no reviews, approaching 1 as
// reviews grow. fullConfidence is the review count at which the factor reaches 1-1/e.
func ConfidenceFactor(reviews, fullConfidence int) float64 {
	if reviews <= 0 {
		return 0
	}
	if fullConfidence <= 0 {
		return 1
	}
	return 1 - math.Exp(-float64(reviews)/float64(fullConfidence))
}

// baseConfidence caps heuristic certainty below what a review-reading classifier can reach
const baseConfidence = 0.9

// Heuristic derives an analysis from rating, review volume and declared attributes only
func Heuristic(place models.Place, fullConfidence int) models.AIAnalysis {
	class := Bucket(place.Rating)

	sentiment := models.SentimentNeutral
	switch {
	case place.Rating >= 4.0:
		sentiment = models.SentimentPositive
	case place.Rating < 3.0 && place.TotalReviews > 0:
		sentiment = models.SentimentNegative
	}

	pros := []string{}
	cons := []string{}
	if place.Rating >= 4.5 {
		pros = append(pros, "Highly rated")
	}
	if fullConfidence > 0 && place.TotalReviews >= fullConfidence {
		pros = append(pros, "Widely reviewed")
	}
	for _, f := range place.Features {
		pros = append(pros, featureLabel(f))
	}
	if place.TotalReviews < 10 {
		cons = append(cons, "Few reviews")
	}
	if place.PriceLevel >= 4 {
		cons = append(cons, "Expensive")
	}
	if place.Rating > 0 && place.Rating < 3.0 {
		cons = append(cons, "Low rating")
	}

	keywords := []string{string(class)}
	if place.Category != "" {
		keywords = append(keywords, string(place.Category))
	}
	keywords = append(keywords, place.Features...)

	return models.AIAnalysis{
		Classification: class,
		Confidence:     baseConfidence * ConfidenceFactor(place.TotalReviews, fullConfidence),
		Summary:        fmt.Sprintf("Rated %.1f from %d reviews", place.Rating, place.TotalReviews),
		Pros:           pros,
		Cons:           cons,
		Sentiment:      sentiment,
		Keywords:       keywords,
		Source:         models.AnalysisSourceHeuristic,
	}
}

func featureLabel(f string) string {
	s := strings.ReplaceAll(f, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// HeuristicProvider classifies without any external call
type HeuristicProvider struct {
	fullConfidence int
}

// NewHeuristicProvider creates a heuristic classifier
func NewHeuristicProvider(fullConfidenceReviews int) *HeuristicProvider {
	return &HeuristicProvider{fullConfidence: fullConfidenceReviews}
}

func (h *HeuristicProvider) Name() string { return "heuristic" }

func (h *HeuristicProvider) Classify(ctx context.Context, place models.Place) (*models.AIAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a := Heuristic(place, h.fullConfidence)
	return &a, nil
}
