package classify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/interfaces"
	"github.com/ternarybob/wayfinder/internal/models"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// ErrDisabled is returned by Classify while enrichment is switched off
var ErrDisabled = errors.New("classification disabled")

// ResultFunc receives each analysis of a batch as soon as it resolves
type ResultFunc func(placeID string, analysis models.AIAnalysis)

// SkipFunc reports whether a batch place no longer needs a provider call, for example
// because it was classified on selection after the batch started
type SkipFunc func(placeID string) bool

// Enricher attaches quality analyses to places, at most once per place.
// Concurrent requests for the same place share a single provider call.
type Enricher struct {
	provider interfaces.ClassificationProvider
	config   *common.ClassificationConfig
	logger   arbor.ILogger

	group    singleflight.Group
	enabled  atomic.Bool
	inflight atomic.Int32

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the context of one shared provider call. It outlives any single caller and
// is cancelled when its last waiter leaves.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewEnricher creates an enricher; enabled follows classification.enabled
func NewEnricher(provider interfaces.ClassificationProvider, config *common.ClassificationConfig, logger arbor.ILogger) *Enricher {
	e := &Enricher{
		provider: provider,
		config:   config,
		logger:   logger,
		flights:  make(map[string]*flight),
	}
	e.enabled.Store(config.Enabled)
	return e
}

// SetEnabled switches enrichment on or off. Calls already running are not interrupted.
func (e *Enricher) SetEnabled(enabled bool) {
	e.enabled.Store(enabled)
}

// Enabled reports whether enrichment is on
func (e *Enricher) Enabled() bool {
	return e.enabled.Load()
}

// Classifying reports whether any provider call is in flight
func (e *Enricher) Classifying() bool {
	return e.inflight.Load() > 0
}

// ProviderName names the classifier in use
func (e *Enricher) ProviderName() string {
	return e.provider.Name()
}

// Classify returns the analysis of place. An existing analysis is returned unchanged
// without calling the provider.
func (e *Enricher) Classify(ctx context.Context, place models.Place) (*models.AIAnalysis, error) {
	if place.AIAnalysis != nil {
		a := place.AIAnalysis.Clone()
		return &a, nil
	}
	if !e.Enabled() {
		return nil, ErrDisabled
	}

	analysis, shared, err := e.classifyShared(ctx, place)
	if err != nil {
		e.logger.Debug().
			Err(err).
			Str("place_id", place.ID).
			Str("provider", e.provider.Name()).
			Msg("Classification failed, place stays unclassified")
		return nil, common.NewError(common.ErrCodeAIClassification, fmt.Sprintf("could not classify %s", place.ID), err)
	}

	if shared {
		e.logger.Debug().Str("place_id", place.ID).Msg("Joined in-flight classification")
	}

	a := analysis.Clone()
	return &a, nil
}

// classifyShared joins or starts the provider call for place. The call runs under a
// context detached from ctx and bounded by the classification timeout; ctx only decides
// how long this caller waits for it.
func (e *Enricher) classifyShared(ctx context.Context, place models.Place) (*models.AIAnalysis, bool, error) {
	f := e.join(ctx, place.ID)
	defer e.leave(place.ID, f)

	for attempt := 0; ; attempt++ {
		ch := e.group.DoChan(place.ID, func() (interface{}, error) {
			e.inflight.Add(1)
			defer e.inflight.Add(-1)

			analysis, err := e.provider.Classify(f.ctx, place)
			if err != nil {
				return nil, err
			}
			if err := normalize(analysis); err != nil {
				return nil, err
			}
			return analysis, nil
		})

		var res singleflight.Result
		select {
		case res = <-ch:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
		// joined a call whose waiters all left before it returned
		if attempt == 0 && errors.Is(res.Err, context.Canceled) && f.ctx.Err() == nil {
			continue
		}
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		return res.Val.(*models.AIAnalysis), res.Shared, nil
	}
}

func (e *Enricher) join(ctx context.Context, placeID string) *flight {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.flights[placeID]
	if !ok {
		base := context.WithoutCancel(ctx)
		f = &flight{}
		if e.config.Timeout > 0 {
			f.ctx, f.cancel = context.WithTimeout(base, e.config.Timeout)
		} else {
			f.ctx, f.cancel = context.WithCancel(base)
		}
		e.flights[placeID] = f
	}
	f.waiters++
	return f
}

func (e *Enricher) leave(placeID string, f *flight) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	if e.flights[placeID] == f {
		delete(e.flights, placeID)
	}
	f.cancel()
}

// ClassifyBatch classifies every unclassified place with bounded concurrency.
// onResult is called as each analysis resolves; failures are skipped. Places that
// already carry an analysis appear in the returned map without a provider call.
// skip, when set, is checked right before each provider call.
func (e *Enricher) ClassifyBatch(ctx context.Context, places []models.Place, skip SkipFunc, onResult ResultFunc) map[string]models.AIAnalysis {
	results := make(map[string]models.AIAnalysis, len(places))
	for i := range places {
		if places[i].AIAnalysis != nil {
			results[places[i].ID] = places[i].AIAnalysis.Clone()
		}
	}
	if !e.Enabled() {
		return results
	}

	limit := int64(e.config.Concurrency)
	if limit <= 0 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		failed  int32
		skipped int32
	)

	for i := range places {
		if places[i].AIAnalysis != nil {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		place := places[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			if !e.Enabled() || ctx.Err() != nil {
				return
			}
			if skip != nil && skip(place.ID) {
				atomic.AddInt32(&skipped, 1)
				return
			}
			analysis, err := e.Classify(ctx, place)
			if err != nil {
				atomic.AddInt32(&failed, 1)
				return
			}

			mu.Lock()
			results[place.ID] = *analysis
			mu.Unlock()

			if onResult != nil {
				onResult(place.ID, *analysis)
			}
		}()
	}
	wg.Wait()

	e.logger.Debug().
		Int("places", len(places)).
		Int("classified", len(results)).
		Int("failed", int(failed)).
		Int("skipped", int(skipped)).
		Bool("cancelled", ctx.Err() != nil).
		Msg("Batch classification finished")

	return results
}

// normalize validates provider output in place
func normalize(a *models.AIAnalysis) error {
	if a == nil {
		return errors.New("provider returned no analysis")
	}
	if !a.Classification.Valid() {
		return fmt.Errorf("unknown classification %q", a.Classification)
	}
	if math.IsNaN(a.Confidence) {
		a.Confidence = 0
	}
	a.Confidence = math.Max(0, math.Min(1, a.Confidence))
	if !a.Sentiment.Valid() {
		a.Sentiment = models.SentimentNeutral
	}
	if a.Pros == nil {
		a.Pros = []string{}
	}
	if a.Cons == nil {
		a.Cons = []string{}
	}
	if a.Keywords == nil {
		a.Keywords = []string{}
	}
	return nil
}
