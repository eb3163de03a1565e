package geolocation

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/wayfinder/internal/interfaces"
	"github.com/ternarybob/wayfinder/internal/models"
)

// Static is a GeolocationProvider that always reports the same fix, or the same error.
// Used by the CLI and tests.
type Static struct {
	pos interfaces.Position
	err error

	mu      sync.Mutex
	watches map[interfaces.WatchID]struct{}
	nextID  interfaces.WatchID
}

// NewStatic returns a provider that reports coords with no accuracy
func NewStatic(coords models.Coordinates) *Static {
	return &Static{
		pos:     interfaces.Position{Coordinates: coords},
		watches: make(map[interfaces.WatchID]struct{}),
	}
}

// NewFailing returns a provider whose every request fails with err
func NewFailing(err error) *Static {
	return &Static{
		err:     err,
		watches: make(map[interfaces.WatchID]struct{}),
	}
}

func (s *Static) GetCurrentPosition(ctx context.Context) (interfaces.Position, error) {
	if err := ctx.Err(); err != nil {
		return interfaces.Position{}, err
	}
	if s.err != nil {
		return interfaces.Position{}, s.err
	}
	pos := s.pos
	pos.Timestamp = time.Now().UnixMilli()
	return pos, nil
}

// WatchPosition reports the fixed outcome once, asynchronously
func (s *Static) WatchPosition(onPosition func(interfaces.Position), onError func(error)) (interfaces.WatchID, error) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.watches[id] = struct{}{}
	s.mu.Unlock()

	go func() {
		s.mu.Lock()
		_, open := s.watches[id]
		s.mu.Unlock()
		if !open {
			return
		}
		if s.err != nil {
			if onError != nil {
				onError(s.err)
			}
			return
		}
		if onPosition != nil {
			pos := s.pos
			pos.Timestamp = time.Now().UnixMilli()
			onPosition(pos)
		}
	}()
	return id, nil
}

func (s *Static) ClearWatch(id interfaces.WatchID) {
	s.mu.Lock()
	delete(s.watches, id)
	s.mu.Unlock()
}

// OpenWatches returns how many watches have not been cleared
func (s *Static) OpenWatches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watches)
}
