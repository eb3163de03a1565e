package places

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/interfaces"
	"github.com/ternarybob/wayfinder/internal/models"
)

// ErrSuperseded is returned by Run when a newer search started before this one committed
var ErrSuperseded = errors.New("search superseded by a newer request")

// resultSeq numbers committed result sets process-wide so ids never collide across engines
var resultSeq uint64

// Engine executes place searches and owns the current result set of one session.
// The fetched set is only replaced by Run; filters derive a view over it.
type Engine struct {
	provider interfaces.PlaceDataProvider
	cache    interfaces.SearchCacheStorage
	config   *common.SearchConfig
	validate *validator.Validate
	logger   arbor.ILogger

	mu         sync.RWMutex
	generation uint64
	cancel     context.CancelFunc
	searching  bool
	result     *models.SearchResult
	lastErr    error
	filters    models.PlaceFilters
	filtered   []models.Place
	stats      models.SearchStats
}

// NewEngine creates a search engine. cache may be nil to disable persistent caching.
func NewEngine(provider interfaces.PlaceDataProvider, cache interfaces.SearchCacheStorage, config *common.SearchConfig, logger arbor.ILogger) *Engine {
	return &Engine{
		provider: provider,
		cache:    cache,
		config:   config,
		validate: validator.New(),
		logger:   logger,
		filters:  models.DefaultFilters(),
	}
}

// Search fetches, distances, sorts and truncates places around location.
// It does not touch engine state; use Run for the stateful, superseding variant.
func (e *Engine) Search(ctx context.Context, category models.Category, location models.Coordinates, options models.SearchOptions) (*models.SearchResult, error) {
	started := time.Now()

	if !location.Valid() {
		return nil, common.NewError(common.ErrCodeInvalidLocation, "search requires a valid location", nil)
	}
	if !category.Valid() {
		return nil, common.NewError(common.ErrCodePlaceSearch, fmt.Sprintf("unsupported category %q", category), nil)
	}
	if options.Radius == 0 {
		options.Radius = e.config.DefaultRadiusM
	}
	if err := e.validate.Struct(options); err != nil {
		return nil, common.NewError(common.ErrCodePlaceSearch, "invalid search options", err)
	}

	params := models.SearchParams{Category: category, Location: location, Options: options}
	key := params.Key()

	raw, fromCache := e.cached(ctx, key)
	if !fromCache {
		fetchCtx := ctx
		if e.config.RequestTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, e.config.RequestTimeout)
			defer cancel()
		}

		var err error
		raw, err = e.provider.NearbySearch(fetchCtx, interfaces.NearbySearchRequest{
			Center:   location,
			Radius:   options.Radius,
			Category: category,
			Keyword:  options.Keyword,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if common.IsNetworkFailure(err) {
				return nil, common.NewError(common.ErrCodeNetwork, "place provider unreachable", err)
			}
			return nil, common.NewError(common.ErrCodePlaceSearch, "place provider failed", err)
		}
		e.store(ctx, key, raw)
	}

	places := make([]models.Place, 0, len(raw))
	for i := range raw {
		if raw[i].Rating < options.MinRating {
			continue
		}
		p := raw[i].Clone()
		if p.Category == "" {
			p.Category = category
		}
		places = append(places, p)
	}

	WithDistances(places, location)
	SortPlaces(places)

	totalFound := len(places)
	if limit := e.config.MaxResults; limit > 0 && len(places) > limit {
		places = places[:limit]
	}

	result := &models.SearchResult{
		ID:           atomic.AddUint64(&resultSeq, 1),
		Places:       places,
		TotalFound:   totalFound,
		SearchParams: params,
		SearchTime:   time.Since(started),
		CompletedAt:  time.Now(),
		FromCache:    fromCache,
	}

	e.logger.Debug().
		Str("category", string(category)).
		Str("location", location.String()).
		Int("radius", options.Radius).
		Int("total_found", totalFound).
		Int("returned", len(places)).
		Bool("from_cache", fromCache).
		Dur("search_time", result.SearchTime).
		Msg("Place search completed")

	return result, nil
}

func (e *Engine) cached(ctx context.Context, key models.SearchKey) ([]models.Place, bool) {
	if e.cache == nil || e.config.CacheTTL <= 0 {
		return nil, false
	}
	places, err := e.cache.Get(ctx, key, e.config.CacheTTL)
	if err != nil {
		e.logger.Warn().Err(err).Str("key", key.String()).Msg("Search cache read failed")
		return nil, false
	}
	if places == nil {
		return nil, false
	}
	return places, true
}

func (e *Engine) store(ctx context.Context, key models.SearchKey, places []models.Place) {
	if e.cache == nil || e.config.CacheTTL <= 0 {
		return
	}
	if err := e.cache.Put(ctx, key, places); err != nil {
		e.logger.Warn().Err(err).Str("key", key.String()).Msg("Search cache write failed")
	}
}

// Ticket reserves a place in the commit order of an engine. Only the most recent
// ticket may commit; older ones end with ErrSuperseded.
type Ticket struct {
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc
}

// Generation is the commit order position of the ticket
func (t *Ticket) Generation() uint64 {
	return t.generation
}

// Begin reserves the next generation and cancels the in-flight search, if any.
// Callers take the ticket synchronously where the search is decided so that the
// commit order follows the order of the triggers, not of the goroutines running them.
func (e *Engine) Begin(ctx context.Context) *Ticket {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.generation++
	if e.cancel != nil {
		e.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.searching = true

	return &Ticket{generation: e.generation, ctx: runCtx, cancel: cancel}
}

// Execute runs the search reserved by ticket and commits it as the current result set
// unless a newer ticket was taken meanwhile. Failures keep the previous result set.
func (e *Engine) Execute(ticket *Ticket, params models.SearchParams) (*models.SearchResult, error) {
	defer ticket.cancel()

	result, err := e.Search(ticket.ctx, params.Category, params.Location, params.Options)

	e.mu.Lock()
	defer e.mu.Unlock()

	if ticket.generation != e.generation {
		e.logger.Debug().
			Int64("generation", int64(ticket.generation)).
			Int64("latest", int64(e.generation)).
			Msg("Dropping superseded search response")
		return nil, ErrSuperseded
	}

	e.searching = false
	e.cancel = nil

	if err != nil {
		e.lastErr = err
		e.logger.Warn().
			Err(err).
			Str("category", string(params.Category)).
			Msg("Place search failed, keeping previous results")
		return nil, err
	}

	e.result = result
	e.lastErr = nil
	e.refilterLocked()

	out := cloneResult(result)
	return &out, nil
}

// Run is Begin followed by Execute
func (e *Engine) Run(ctx context.Context, params models.SearchParams) (*models.SearchResult, error) {
	return e.Execute(e.Begin(ctx), params)
}

// Cancel aborts the in-flight Run, if any, without committing anything
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.generation++
	e.searching = false
}

// ApplyFilters replaces the active filters and returns the derived view.
// The fetched set is never modified and no provider call is made.
func (e *Engine) ApplyFilters(filters models.PlaceFilters) []models.Place {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.filters = filters.Clone()
	e.refilterLocked()
	return models.ClonePlaces(e.filtered)
}

func (e *Engine) refilterLocked() {
	if e.result == nil {
		e.filtered = nil
		e.stats = models.SearchStats{}
		return
	}
	e.filtered = FilterPlaces(e.result.Places, e.filters)
	e.stats = ComputeStats(e.filtered)
}

// Results returns the filtered view of the current result set
func (e *Engine) Results() []models.Place {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return models.ClonePlaces(e.filtered)
}

// Result returns a copy of the committed result set, or nil before the first success
func (e *Engine) Result() *models.SearchResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.result == nil {
		return nil
	}
	out := cloneResult(e.result)
	return &out
}

// ResultID returns the id of the committed result set, 0 before the first success
func (e *Engine) ResultID() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.result == nil {
		return 0
	}
	return e.result.ID
}

// Place looks a place up by id in the committed result set
func (e *Engine) Place(id string) (models.Place, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.result == nil {
		return models.Place{}, false
	}
	for i := range e.result.Places {
		if e.result.Places[i].ID == id {
			return e.result.Places[i].Clone(), true
		}
	}
	return models.Place{}, false
}

// Stats returns aggregates of the filtered view
func (e *Engine) Stats() models.SearchStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// Filters returns the active filters
func (e *Engine) Filters() models.PlaceFilters {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.filters.Clone()
}

// Err returns the error of the latest committed Run, nil after a success
func (e *Engine) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// Searching reports whether a Run is in flight
func (e *Engine) Searching() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.searching
}

// NoResults reports whether the latest committed search succeeded with zero places
func (e *Engine) NoResults() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.result != nil && e.lastErr == nil && len(e.result.Places) == 0
}

// MergeAnalysis attaches analysis to placeID if resultID is still the current result set
// and the place is not yet classified. It reports whether the merge happened.
func (e *Engine) MergeAnalysis(resultID uint64, placeID string, analysis models.AIAnalysis) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.result == nil || e.result.ID != resultID {
		return false
	}
	for i := range e.result.Places {
		p := &e.result.Places[i]
		if p.ID != placeID {
			continue
		}
		if p.AIAnalysis != nil {
			return false
		}
		a := analysis.Clone()
		p.AIAnalysis = &a
		e.refilterLocked()
		return true
	}
	return false
}

// RecomputeDistances refreshes distances from origin and restores the sort order
func (e *Engine) RecomputeDistances(origin models.Coordinates) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.result == nil {
		return
	}
	WithDistances(e.result.Places, origin)
	SortPlaces(e.result.Places)
	e.refilterLocked()
}

func cloneResult(r *models.SearchResult) models.SearchResult {
	out := *r
	out.Places = models.ClonePlaces(r.Places)
	return out
}
