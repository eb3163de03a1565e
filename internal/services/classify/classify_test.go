package classify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/models"
	"github.com/ternarybob/wayfinder/internal/services/llm"
)

type fakeClassifier struct {
	calls   atomic.Int32
	active  atomic.Int32
	peak    atomic.Int32
	delay   time.Duration
	failIDs map[string]bool
}

func (f *fakeClassifier) Name() string { return "fake" }

func (f *fakeClassifier) Classify(ctx context.Context, place models.Place) (*models.AIAnalysis, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failIDs[place.ID] {
		return nil, errors.New("provider unavailable")
	}
	a := Heuristic(place, 50)
	a.Source = models.AnalysisSourceAI
	return &a, nil
}

// gatedClassifier blocks a place's call until its gate closes or the call context ends
type gatedClassifier struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	calls map[string]int
	err   error
}

func (g *gatedClassifier) Name() string { return "gated" }

func (g *gatedClassifier) Classify(ctx context.Context, place models.Place) (*models.AIAnalysis, error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]int)
	}
	g.calls[place.ID]++
	gate := g.gates[place.ID]
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			g.mu.Lock()
			g.err = ctx.Err()
			g.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	a := Heuristic(place, 50)
	return &a, nil
}

func (g *gatedClassifier) count(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[id]
}

func (g *gatedClassifier) lastErr() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

func enabledConfig(concurrency int) *common.ClassificationConfig {
	cfg := common.NewDefaultConfig().Classification
	cfg.Concurrency = concurrency
	cfg.Enabled = true
	return &cfg
}

func newTestEnricher(provider *fakeClassifier, concurrency int) *Enricher {
	cfg := common.NewDefaultConfig().Classification
	cfg.Concurrency = concurrency
	cfg.Enabled = true
	return NewEnricher(provider, &cfg, arbor.NewLogger())
}

func places(n int) []models.Place {
	out := make([]models.Place, n)
	for i := range out {
		out[i] = models.Place{
			ID:           string(rune('a' + i)),
			Name:         "Place",
			Rating:       4.2,
			TotalReviews: 120,
		}
	}
	return out
}

func TestBucket(t *testing.T) {
	tests := []struct {
		rating float64
		want   models.Classification
	}{
		{5.0, models.ClassificationExcellent},
		{4.5, models.ClassificationExcellent},
		{4.49, models.ClassificationVeryGood},
		{4.0, models.ClassificationVeryGood},
		{3.5, models.ClassificationGood},
		{3.0, models.ClassificationAverage},
		{2.99, models.ClassificationPoor},
		{0, models.ClassificationPoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Bucket(tt.rating), "rating %.2f", tt.rating)
	}
}

func TestConfidenceMonotonicInReviews(t *testing.T) {
	prev := -1.0
	for _, reviews := range []int{0, 1, 5, 10, 50, 100, 1000, 100000} {
		c := Heuristic(models.Place{Rating: 4.6, TotalReviews: reviews}, 50).Confidence
		assert.GreaterOrEqual(t, c, prev, "reviews=%d", reviews)
		assert.GreaterOrEqual(t, c, 0.0)
		assert.LessOrEqual(t, c, 1.0)
		prev = c
	}

	assert.Zero(t, ConfidenceFactor(0, 50))
	assert.InDelta(t, 0.632, ConfidenceFactor(50, 50), 0.001)
	assert.Less(t, ConfidenceFactor(3, 50), ConfidenceFactor(300, 50))
}

func TestClassify_IdempotentOnClassifiedPlace(t *testing.T) {
	provider := &fakeClassifier{}
	e := newTestEnricher(provider, 2)

	existing := models.AIAnalysis{Classification: models.ClassificationGood, Confidence: 0.7, Summary: "kept"}
	place := models.Place{ID: "p1", AIAnalysis: &existing}

	got, err := e.Classify(context.Background(), place)
	require.NoError(t, err)
	assert.Equal(t, existing, *got)
	assert.Zero(t, provider.calls.Load())
}

func TestClassify_SharesInFlightCall(t *testing.T) {
	provider := &fakeClassifier{delay: 50 * time.Millisecond}
	e := newTestEnricher(provider, 2)
	place := models.Place{ID: "p1", Rating: 4.7, TotalReviews: 200}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := e.Classify(context.Background(), place)
			assert.NoError(t, err)
			assert.Equal(t, models.ClassificationExcellent, a.Classification)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestClassify_Disabled(t *testing.T) {
	provider := &fakeClassifier{}
	e := newTestEnricher(provider, 2)
	e.SetEnabled(false)

	_, err := e.Classify(context.Background(), models.Place{ID: "p1"})
	assert.ErrorIs(t, err, ErrDisabled)

	results := e.ClassifyBatch(context.Background(), places(3), nil, nil)
	assert.Empty(t, results)
	assert.Zero(t, provider.calls.Load())
}

func TestClassify_FailureIsTyped(t *testing.T) {
	provider := &fakeClassifier{failIDs: map[string]bool{"p1": true}}
	e := newTestEnricher(provider, 2)

	_, err := e.Classify(context.Background(), models.Place{ID: "p1"})
	assert.ErrorIs(t, err, common.ErrAIClassification)

	// a later selection retries the provider
	_, err = e.Classify(context.Background(), models.Place{ID: "p1"})
	assert.Error(t, err)
	assert.Equal(t, int32(2), provider.calls.Load())
}

func TestClassifyBatch(t *testing.T) {
	provider := &fakeClassifier{delay: 20 * time.Millisecond, failIDs: map[string]bool{"c": true}}
	e := newTestEnricher(provider, 2)

	input := places(6)
	done := models.AIAnalysis{Classification: models.ClassificationPoor}
	input[5].AIAnalysis = &done

	var mu sync.Mutex
	var reported []string
	results := e.ClassifyBatch(context.Background(), input, nil, func(id string, a models.AIAnalysis) {
		mu.Lock()
		reported = append(reported, id)
		mu.Unlock()
	})

	// c failed and f was already classified
	assert.Len(t, reported, 4)
	assert.NotContains(t, reported, "c")
	assert.NotContains(t, reported, "f")
	assert.Len(t, results, 5)
	assert.Equal(t, models.ClassificationPoor, results["f"].Classification)
	assert.Equal(t, int32(5), provider.calls.Load())
	assert.LessOrEqual(t, provider.peak.Load(), int32(2))
	assert.False(t, e.Classifying())
}

func TestClassifyBatch_Cancelled(t *testing.T) {
	provider := &fakeClassifier{delay: time.Second}
	e := newTestEnricher(provider, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	results := e.ClassifyBatch(ctx, places(5), nil, nil)
	assert.Empty(t, results)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestClassifyBatch_SkipsPlacesClassifiedMeanwhile(t *testing.T) {
	release := make(chan struct{})
	provider := &gatedClassifier{gates: map[string]chan struct{}{"a": release}}
	e := NewEnricher(provider, enabledConfig(1), arbor.NewLogger())

	var classified sync.Map
	done := make(chan map[string]models.AIAnalysis, 1)
	go func() {
		done <- e.ClassifyBatch(context.Background(), places(3), func(id string) bool {
			_, ok := classified.Load(id)
			return ok
		}, nil)
	}()

	// "b" is classified on its own while the batch waits on "a"
	require.Eventually(t, func() bool { return provider.count("a") == 1 }, time.Second, 5*time.Millisecond)
	a, err := e.Classify(context.Background(), places(3)[1])
	require.NoError(t, err)
	classified.Store("b", *a)
	close(release)

	results := <-done
	assert.Equal(t, 1, provider.count("b"))
	assert.Equal(t, 1, provider.count("c"))
	assert.NotContains(t, results, "b")
	assert.Contains(t, results, "a")
}

func TestClassify_SharedCallSurvivesFirstCallerCancel(t *testing.T) {
	release := make(chan struct{})
	provider := &gatedClassifier{gates: map[string]chan struct{}{"p1": release}}
	e := NewEnricher(provider, enabledConfig(2), arbor.NewLogger())
	place := models.Place{ID: "p1", Rating: 4.6, TotalReviews: 300}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := e.Classify(firstCtx, place)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return provider.count("p1") == 1 }, time.Second, 5*time.Millisecond)

	second := make(chan *models.AIAnalysis, 1)
	go func() {
		a, err := e.Classify(context.Background(), place)
		assert.NoError(t, err)
		second <- a
	}()
	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		f := e.flights["p1"]
		return f != nil && f.waiters == 2
	}, time.Second, 5*time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	a := <-second
	require.NotNil(t, a)
	assert.Equal(t, models.ClassificationExcellent, a.Classification)
	assert.Equal(t, 1, provider.count("p1"))
}

func TestClassify_LastCallerLeavingCancelsProviderCall(t *testing.T) {
	provider := &gatedClassifier{gates: map[string]chan struct{}{"p1": make(chan struct{})}}
	e := NewEnricher(provider, enabledConfig(1), arbor.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := e.Classify(ctx, models.Place{ID: "p1"})
		errs <- err
	}()
	require.Eventually(t, func() bool { return provider.count("p1") == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errs, context.Canceled)

	require.Eventually(t, func() bool { return !e.Classifying() }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, provider.lastErr(), context.Canceled)
}

func TestNormalize(t *testing.T) {
	a := &models.AIAnalysis{Classification: models.ClassificationGood, Confidence: 1.7, Sentiment: "ecstatic"}
	require.NoError(t, normalize(a))
	assert.Equal(t, 1.0, a.Confidence)
	assert.Equal(t, models.SentimentNeutral, a.Sentiment)
	assert.NotNil(t, a.Pros)

	assert.Error(t, normalize(&models.AIAnalysis{Classification: "stellar"}))
	assert.Error(t, normalize(nil))
}

type fakeGenerator struct {
	text    string
	err     error
	request *llm.ContentRequest
}

func (g *fakeGenerator) GenerateContent(ctx context.Context, request *llm.ContentRequest) (*llm.ContentResponse, error) {
	g.request = request
	if g.err != nil {
		return nil, g.err
	}
	return &llm.ContentResponse{Text: g.text, Provider: llm.ProviderGemini}, nil
}

func TestLLMProvider(t *testing.T) {
	gen := &fakeGenerator{text: "```json\n" + `{
		"classification": "Very_Good",
		"confidence": 0.82,
		"summary": "Friendly bistro with reliable food.",
		"pros": ["service"],
		"cons": ["noise"],
		"sentiment": "positive",
		"keywords": ["bistro"]
	}` + "\n```"}
	cfg := common.NewDefaultConfig().Classification
	p := NewLLMProvider(gen, nil, &cfg, arbor.NewLogger())

	place := models.Place{
		ID: "p1", Name: "Caru' cu Bere", Rating: 4.3, TotalReviews: 1200,
		Reviews: []models.Review{{Rating: 5, Text: "Great"}, {Rating: 4, Text: "Busy"}},
	}
	a, err := p.Classify(context.Background(), place)
	require.NoError(t, err)

	assert.Equal(t, models.ClassificationVeryGood, a.Classification)
	assert.Equal(t, models.SentimentPositive, a.Sentiment)
	assert.InDelta(t, 0.82, a.Confidence, 0.001)
	assert.Equal(t, models.AnalysisSourceAI, a.Source)
	assert.Contains(t, gen.request.Prompt, "Caru' cu Bere")
	assert.Contains(t, gen.request.Prompt, "(5/5) Great")
	assert.NotNil(t, gen.request.OutputSchema)
}

func TestLLMProvider_ConfidenceMonotonicInReviews(t *testing.T) {
	gen := &fakeGenerator{text: `{"classification": "excellent", "confidence": 0.95, "summary": "s", "sentiment": "positive"}`}
	cfg := common.NewDefaultConfig().Classification
	p := NewLLMProvider(gen, nil, &cfg, arbor.NewLogger())

	prev := -1.0
	for _, reviews := range []int{0, 1, 5, 20, 50, 200, 1000, 100000} {
		place := models.Place{ID: "p1", Name: "X", Rating: 4.8, TotalReviews: reviews}
		a, err := p.Classify(context.Background(), place)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, a.Confidence, prev, "reviews=%d", reviews)
		assert.LessOrEqual(t, a.Confidence, 0.95)
		prev = a.Confidence
	}

	few, err := p.Classify(context.Background(), models.Place{ID: "p2", TotalReviews: 3})
	require.NoError(t, err)
	assert.Less(t, few.Confidence, 0.2)

	gen.text = `{"classification": "good", "confidence": 7, "summary": "s", "sentiment": "neutral"}`
	many, err := p.Classify(context.Background(), models.Place{ID: "p3", TotalReviews: 5000})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, many.Confidence, 0.001)
}

func TestLLMProvider_Errors(t *testing.T) {
	cfg := common.NewDefaultConfig().Classification

	p := NewLLMProvider(&fakeGenerator{text: "I cannot help with that"}, nil, &cfg, arbor.NewLogger())
	_, err := p.Classify(context.Background(), models.Place{ID: "p1"})
	assert.Error(t, err)

	p = NewLLMProvider(&fakeGenerator{err: errors.New("quota")}, nil, &cfg, arbor.NewLogger())
	_, err = p.Classify(context.Background(), models.Place{ID: "p1"})
	assert.Error(t, err)
}

func TestBuildPrompt_LimitsReviews(t *testing.T) {
	place := models.Place{Name: "X"}
	for i := 0; i < 10; i++ {
		place.Reviews = append(place.Reviews, models.Review{Rating: 3, Text: "review"})
	}
	prompt := buildPrompt(place, 3)
	assert.Equal(t, 3, strings.Count(prompt, "(3/5) review"))
}
