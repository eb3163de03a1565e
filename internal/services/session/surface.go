package session

import (
	"sync"

	"github.com/ternarybob/wayfinder/internal/interfaces"
	"github.com/ternarybob/wayfinder/internal/models"
)

// surfaceProxy forwards to the currently attached map surface and remembers the last
// markers, route and camera so a reattached surface starts in sync
type surfaceProxy struct {
	mu      sync.Mutex
	target  interfaces.MapSurface
	markers []models.Marker
	route   *models.Route
	camera  *models.Camera
	recent  []models.Notification
}

const recentNotifications = 10

func (p *surfaceProxy) attach(target interfaces.MapSurface) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.target = target
	if target == nil {
		return
	}
	target.RenderMarkers(p.markers)
	target.DrawRoute(p.route)
	if p.camera != nil {
		target.SetCamera(*p.camera)
	}
}

func (p *surfaceProxy) detach(target interfaces.MapSurface) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.target == target {
		p.target = nil
	}
}

func (p *surfaceProxy) RenderMarkers(markers []models.Marker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markers = markers
	if p.target != nil {
		p.target.RenderMarkers(markers)
	}
}

func (p *surfaceProxy) DrawRoute(route *models.Route) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.route = route
	if p.target != nil {
		p.target.DrawRoute(route)
	}
}

func (p *surfaceProxy) SetCamera(camera models.Camera) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.camera = &camera
	if p.target != nil {
		p.target.SetCamera(camera)
	}
}

func (p *surfaceProxy) Notify(n models.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recent = append(p.recent, n)
	if len(p.recent) > recentNotifications {
		p.recent = p.recent[len(p.recent)-recentNotifications:]
	}
	if p.target != nil {
		p.target.Notify(n)
	}
}

func (p *surfaceProxy) notifications() []models.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Notification(nil), p.recent...)
}
