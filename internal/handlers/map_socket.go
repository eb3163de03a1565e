package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/interfaces"
	"github.com/ternarybob/wayfinder/internal/models"
	"github.com/ternarybob/wayfinder/internal/services/session"
	"golang.org/x/time/rate"
)

// Outbound message types
const (
	MsgMarkers         = "markers"
	MsgRoute           = "route"
	MsgCamera          = "camera"
	MsgNotification    = "notification"
	MsgRequestPosition = "request_position"
)

// Inbound message types
const (
	MsgMarkerClick   = "marker_click"
	MsgMapClick      = "map_click"
	MsgCameraChanged = "camera_changed"
	MsgPosition      = "position"
	MsgPositionError = "position_error"
)

const outboundBuffer = 64

var errSurfaceClosed = errors.New("map client disconnected")

// WSMessage is the envelope of every websocket frame
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type markerClickPayload struct {
	PlaceID string `json:"place_id"`
}

type mapClickPayload struct {
	Coordinates models.Coordinates `json:"coordinates"`
}

type cameraChangedPayload struct {
	Camera models.Camera `json:"camera"`
	Bounds models.Bounds `json:"bounds"`
}

// socketSurface is a MapSurface that queues frames for one websocket client.
// Sends never block; frames are dropped when the client falls behind.
type socketSurface struct {
	out     chan outMessage
	done    chan struct{}
	once    sync.Once
	dropped int64
}

func newSocketSurface() *socketSurface {
	return &socketSurface{
		out:  make(chan outMessage, outboundBuffer),
		done: make(chan struct{}),
	}
}

func (c *socketSurface) send(msgType string, payload interface{}) error {
	select {
	case <-c.done:
		return errSurfaceClosed
	default:
	}
	select {
	case c.out <- outMessage{Type: msgType, Payload: payload}:
		return nil
	case <-c.done:
		return errSurfaceClosed
	default:
		atomic.AddInt64(&c.dropped, 1)
		return errors.New("map client outbound queue full")
	}
}

func (c *socketSurface) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *socketSurface) RenderMarkers(markers []models.Marker) {
	if markers == nil {
		markers = []models.Marker{}
	}
	c.send(MsgMarkers, markers)
}

func (c *socketSurface) DrawRoute(route *models.Route) {
	c.send(MsgRoute, route)
}

func (c *socketSurface) SetCamera(camera models.Camera) {
	c.send(MsgCamera, camera)
}

func (c *socketSurface) Notify(n models.Notification) {
	c.send(MsgNotification, n)
}

func (c *socketSurface) requestPosition() error {
	return c.send(MsgRequestPosition, nil)
}

// MapSocketHandler connects a websocket client to a session as its map surface and,
// when the session uses device geolocation, as its position source
type MapSocketHandler struct {
	manager  *session.Manager
	config   *common.WebSocketConfig
	logger   arbor.ILogger
	upgrader websocket.Upgrader
}

// NewMapSocketHandler creates a new MapSocketHandler
func NewMapSocketHandler(manager *session.Manager, config *common.WebSocketConfig, logger arbor.ILogger) *MapSocketHandler {
	cfg := *config
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	return &MapSocketHandler{
		manager: manager,
		config:  &cfg,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local development
			},
		},
	}
}

// HandleWebSocket handles GET /ws/sessions/{id}
func (h *MapSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s, ok := h.manager.Get(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "Session not found")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", id).Msg("Failed to upgrade map connection")
		return
	}

	surface := newSocketSurface()
	s.AttachSurface(surface)

	detachDevice := func() {}
	if device, ok := h.manager.Device(id); ok {
		detachDevice = device.Attach(surface.requestPosition)
	}
	s.Mount()

	h.logger.Info().Str("session_id", id).Str("remote", r.RemoteAddr).Msg("Map client connected")

	var wg sync.WaitGroup
	common.SafeGoTracked(&wg, h.logger, "mapsocket.write", func() {
		h.writePump(conn, surface)
	})

	h.readPump(conn, s, id)

	detachDevice()
	s.DetachSurface(surface)
	surface.close()
	wg.Wait()
	conn.Close()

	h.logger.Info().
		Str("session_id", id).
		Int64("dropped", atomic.LoadInt64(&surface.dropped)).
		Msg("Map client disconnected")
}

func (h *MapSocketHandler) writePump(conn *websocket.Conn, surface *socketSurface) {
	ping := time.NewTicker(h.config.PingInterval)
	defer ping.Stop()

	for {
		select {
		case msg := <-surface.out:
			conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug().Err(err).Msg("Map client write failed")
				conn.Close()
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		case <-surface.done:
			conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (h *MapSocketHandler) readPump(conn *websocket.Conn, s *session.Session, id string) {
	if h.config.MaxMessageSize > 0 {
		conn.SetReadLimit(h.config.MaxMessageSize)
	}
	pongWait := 2 * h.config.PingInterval
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limit := rate.Inf
	if h.config.InboundRate > 0 {
		limit = rate.Limit(h.config.InboundRate)
	}
	limiter := rate.NewLimiter(limit, max(h.config.InboundBurst, 1))

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn().Err(err).Str("session_id", id).Msg("Map client read failed")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		// positions always pass so live navigation keeps tracking under load
		if msg.Type != MsgPosition && !limiter.Allow() {
			h.logger.Debug().Str("session_id", id).Str("type", msg.Type).Msg("Map message rate limited")
			continue
		}
		s.Touch()

		if err := h.dispatch(s, id, msg); err != nil {
			h.logger.Warn().Err(err).Str("session_id", id).Str("type", msg.Type).Msg("Invalid map message")
		}
	}
}

func (h *MapSocketHandler) dispatch(s *session.Session, id string, msg WSMessage) error {
	events := s.MapEvents()

	switch msg.Type {
	case MsgMarkerClick:
		var p markerClickPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		events.OnMarkerClick(p.PlaceID)

	case MsgMapClick:
		var p mapClickPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		events.OnMapClick(p.Coordinates)

	case MsgCameraChanged:
		var p cameraChangedPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		events.OnCameraChanged(p.Camera, p.Bounds)

	case MsgPosition:
		device, ok := h.manager.Device(id)
		if !ok {
			return errors.New("session does not accept client positions")
		}
		var pos interfaces.Position
		if err := json.Unmarshal(msg.Payload, &pos); err != nil {
			return err
		}
		if pos.Timestamp == 0 {
			pos.Timestamp = time.Now().UnixMilli()
		}
		device.ReportPosition(pos)

	case MsgPositionError:
		device, ok := h.manager.Device(id)
		if !ok {
			return errors.New("session does not accept client positions")
		}
		var posErr interfaces.PositionError
		if err := json.Unmarshal(msg.Payload, &posErr); err != nil {
			return err
		}
		device.ReportError(&posErr)

	default:
		return errors.New("unknown message type")
	}
	return nil
}
