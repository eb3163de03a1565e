package models

// Classification is the AI-derived quality bucket of a place
type Classification string

const (
	ClassificationExcellent Classification = "excellent"
	ClassificationVeryGood  Classification = "very_good"
	ClassificationGood      Classification = "good"
	ClassificationAverage   Classification = "average"
	ClassificationPoor      Classification = "poor"
)

// Valid reports whether the classification is a known bucket
func (c Classification) Valid() bool {
	switch c {
	case ClassificationExcellent, ClassificationVeryGood, ClassificationGood, ClassificationAverage, ClassificationPoor:
		return true
	}
	return false
}

// Sentiment is the overall tone of a place's reviews
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Valid reports whether the sentiment is a known value
func (s Sentiment) Valid() bool {
	return s == SentimentPositive || s == SentimentNeutral || s == SentimentNegative
}

// AnalysisSource records which classifier produced an analysis
type AnalysisSource string

const (
	AnalysisSourceAI        AnalysisSource = "ai"
	AnalysisSourceHeuristic AnalysisSource = "heuristic"
)

// AIAnalysis is the quality classification attached to at most one place
type AIAnalysis struct {
	Classification Classification `json:"classification"`
	Confidence     float64        `json:"confidence"`
	Summary        string         `json:"summary"`
	Pros           []string       `json:"pros"`
	Cons           []string       `json:"cons"`
	Sentiment      Sentiment      `json:"sentiment"`
	Keywords       []string       `json:"keywords"`
	Source         AnalysisSource `json:"source,omitempty"`
}

// Clone returns a deep copy of the analysis
func (a AIAnalysis) Clone() AIAnalysis {
	out := a
	out.Pros = append([]string(nil), a.Pros...)
	out.Cons = append([]string(nil), a.Cons...)
	out.Keywords = append([]string(nil), a.Keywords...)
	return out
}
