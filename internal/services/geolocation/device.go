package geolocation

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/interfaces"
)

// RequestFunc asks the connected client for one position fix
type RequestFunc func() error

type fix struct {
	pos interfaces.Position
	err error
}

type watch struct {
	onPosition func(interfaces.Position)
	onError    func(error)
}

// Device is a GeolocationProvider fed by a remote client.
// The transport calls ReportPosition / ReportError as the client's device produces fixes.
type Device struct {
	logger arbor.ILogger

	mu      sync.Mutex
	request RequestFunc
	token   uint64
	pending []chan fix
	watches map[interfaces.WatchID]watch
	nextID  interfaces.WatchID
	closed  bool
}

// NewDevice creates a device provider with no client attached
func NewDevice(logger arbor.ILogger) *Device {
	return &Device{
		logger:  logger,
		watches: make(map[interfaces.WatchID]watch),
	}
}

// Attach sets the function used to ask the client for a fix, replacing any previous client.
// The returned func detaches it unless another client has attached since.
func (d *Device) Attach(request RequestFunc) (detach func()) {
	d.mu.Lock()
	d.token++
	token := d.token
	d.request = request
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.token == token {
			d.request = nil
		}
	}
}

// GetCurrentPosition asks the client for a fix and waits for the answer
func (d *Device) GetCurrentPosition(ctx context.Context) (interfaces.Position, error) {
	d.mu.Lock()
	if d.closed || d.request == nil {
		d.mu.Unlock()
		return interfaces.Position{}, &interfaces.PositionError{
			Code:    interfaces.PositionUnavailable,
			Message: "no device attached",
		}
	}
	ch := make(chan fix, 1)
	d.pending = append(d.pending, ch)
	request := d.request
	d.mu.Unlock()

	if err := request(); err != nil {
		d.dropPending(ch)
		return interfaces.Position{}, &interfaces.PositionError{
			Code:    interfaces.PositionUnavailable,
			Message: err.Error(),
		}
	}

	select {
	case f := <-ch:
		return f.pos, f.err
	case <-ctx.Done():
		d.dropPending(ch)
		return interfaces.Position{}, ctx.Err()
	}
}

func (d *Device) dropPending(ch chan fix) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, c := range d.pending {
		if c == ch {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			return
		}
	}
}

// WatchPosition registers callbacks for every fix the client reports
func (d *Device) WatchPosition(onPosition func(interfaces.Position), onError func(error)) (interfaces.WatchID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, &interfaces.PositionError{Code: interfaces.PositionUnavailable, Message: "device closed"}
	}
	d.nextID++
	d.watches[d.nextID] = watch{onPosition: onPosition, onError: onError}

	d.logger.Debug().Int64("watch_id", int64(d.nextID)).Msg("Location watch opened")
	return d.nextID, nil
}

// ClearWatch removes the watch; unknown ids are ignored
func (d *Device) ClearWatch(id interfaces.WatchID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.watches[id]; ok {
		delete(d.watches, id)
		d.logger.Debug().Int64("watch_id", int64(id)).Msg("Location watch cleared")
	}
}

// Watching reports how many watches are open
func (d *Device) Watching() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.watches)
}

// ReportPosition delivers a fix to pending requests and open watches
func (d *Device) ReportPosition(pos interfaces.Position) {
	d.deliver(fix{pos: pos})
}

// ReportError delivers a platform error to pending requests and open watches
func (d *Device) ReportError(err *interfaces.PositionError) {
	d.deliver(fix{err: err})
}

func (d *Device) deliver(f fix) {
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	ids := make([]interfaces.WatchID, 0, len(d.watches))
	for id := range d.watches {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	for _, ch := range pending {
		ch <- f
	}

	for _, id := range ids {
		// re-check so a watch cleared by an earlier callback is skipped
		d.mu.Lock()
		w, ok := d.watches[id]
		d.mu.Unlock()
		if !ok {
			continue
		}
		if f.err != nil {
			if w.onError != nil {
				w.onError(f.err)
			}
			continue
		}
		if w.onPosition != nil {
			w.onPosition(f.pos)
		}
	}
}

// Close fails pending requests and drops every watch
func (d *Device) Close() {
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	d.watches = make(map[interfaces.WatchID]watch)
	d.request = nil
	d.closed = true
	d.mu.Unlock()

	for _, ch := range pending {
		ch <- fix{err: &interfaces.PositionError{Code: interfaces.PositionUnavailable, Message: "device closed"}}
	}
}
