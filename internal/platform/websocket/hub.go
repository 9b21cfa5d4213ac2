// Package websocket serves live diary views. A client connects for one
// patient, receives a snapshot of the analysis, and then one message per
// diary change followed by the recomputed analysis.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/analysis"
	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/auth"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/changefeed"
)

const (
	TypeEventInserted    = "event.inserted"
	TypeEventUpdated     = "event.updated"
	TypeEventDeleted     = "event.deleted"
	TypeAnalysisUpdated  = "analysis.updated"
	TypeSnapshotReloaded = "snapshot.reloaded"
)

var opTypes = map[changefeed.Op]string{
	changefeed.OpInsert: TypeEventInserted,
	changefeed.OpUpdate: TypeEventUpdated,
	changefeed.OpDelete: TypeEventDeleted,
}

// Message is a server-to-client frame.
type Message struct {
	Type      string          `json:"type"`
	PatientID uuid.UUID       `json:"patient_id"`
	EventID   *uuid.UUID      `json:"event_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// AnalysisUpdate is the payload of analysis.updated.
type AnalysisUpdate struct {
	Status      analysis.Status            `json:"status"`
	EventCount  int                        `json:"event_count"`
	Stats       analysis.Stats             `json:"stats"`
	Sufficiency analysis.Sufficiency       `json:"sufficiency"`
	Patterns    []analysis.ClinicalPattern `json:"patterns"`
	Guidance    []analysis.Guidance        `json:"guidance"`
}

// snapshotLoader reads the events and profile a view starts from.
type snapshotLoader func() ([]*diary.Event, *analysis.Profile, error)

// Client is one live-view connection. Until start has loaded the snapshot,
// incoming changes are queued and replayed on top of it.
type Client struct {
	ID        string
	PatientID uuid.UUID
	Send      chan []byte
	view      *analysis.LiveView
	logger    zerolog.Logger

	mu      sync.Mutex
	ready   bool
	pending []changefeed.Change
	load    snapshotLoader
}

// NewClient returns a client whose view is already current.
func NewClient(patientID uuid.UUID, view *analysis.LiveView, logger zerolog.Logger) *Client {
	cl := newClient(patientID, view, nil, logger)
	cl.ready = true
	return cl
}

func newClient(patientID uuid.UUID, view *analysis.LiveView, load snapshotLoader, logger zerolog.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		ID:        id,
		PatientID: patientID,
		Send:      make(chan []byte, 256),
		view:      view,
		load:      load,
		logger:    logger.With().Str("client_id", id).Logger(),
	}
}

func (cl *Client) enqueue(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		cl.logger.Error().Err(err).Str("type", m.Type).Msg("failed to marshal live message")
		return
	}
	select {
	case cl.Send <- data:
	default:
		cl.logger.Warn().Str("type", m.Type).Msg("client buffer full, dropping message")
	}
}

// pushAnalysis queues the current snapshot as analysis.updated.
func (cl *Client) pushAnalysis() {
	res := cl.view.Snapshot()
	data, _ := json.Marshal(AnalysisUpdate{
		Status:      res.Status,
		EventCount:  cl.view.Len(),
		Stats:       res.Stats,
		Sufficiency: res.Sufficiency,
		Patterns:    res.Patterns,
		Guidance:    res.Guidance,
	})
	cl.enqueue(Message{Type: TypeAnalysisUpdated, PatientID: cl.PatientID, Timestamp: time.Now().UTC(), Data: data})
}

// start loads the snapshot, replays the changes queued since the
// subscription began and pushes the first analysis. Replaying a change the
// snapshot already holds leaves the view unchanged.
func (cl *Client) start() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	events, profile, err := cl.load()
	if err != nil {
		return err
	}
	cl.view.Load(events, profile)
	for _, c := range cl.pending {
		if err := cl.view.Apply(c); err != nil {
			cl.logger.Warn().Err(err).Msg("ignoring malformed change")
		}
	}
	cl.pending = nil
	cl.ready = true
	cl.pushAnalysis()
	return nil
}

// handle folds a change into the view and pushes the change followed by
// the recomputed analysis. Malformed changes are logged and skipped.
func (cl *Client) handle(c changefeed.Change) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if !cl.ready {
		cl.pending = append(cl.pending, c)
		return
	}
	if err := cl.view.Apply(c); err != nil {
		cl.logger.Warn().Err(err).Msg("ignoring malformed change")
		return
	}
	eventID := c.EventID
	cl.enqueue(Message{Type: opTypes[c.Op], PatientID: c.PatientID, EventID: &eventID, Timestamp: c.At, Data: c.Event})
	cl.pushAnalysis()
}

// resync reloads the view after the change feed dropped changes for this
// client and tells the client to refetch its own copy of the diary.
func (cl *Client) resync() {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if !cl.ready || cl.load == nil {
		return
	}
	events, profile, err := cl.load()
	if err != nil {
		cl.logger.Error().Err(err).Msg("live view resync failed")
		return
	}
	cl.view.Load(events, profile)
	cl.enqueue(Message{Type: TypeSnapshotReloaded, PatientID: cl.PatientID, Timestamp: time.Now().UTC()})
	cl.pushAnalysis()
	cl.logger.Info().Int("events", len(events)).Msg("live view resynced")
}

func (cl *Client) Handlers() changefeed.Handlers {
	return changefeed.Handlers{
		OnInsert: cl.handle,
		OnUpdate: cl.handle,
		OnDelete: cl.handle,
		OnResync: cl.resync,
	}
}

// Hub tracks connected clients per patient.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{}
	all     map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	if h.clients[client.PatientID] == nil {
		h.clients[client.PatientID] = make(map[*Client]struct{})
	}
	h.clients[client.PatientID][client] = struct{}{}
}

// Unregister removes the client and closes its Send channel. The client's
// change-feed subscription must already be closed.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	if subscribers, ok := h.clients[client.PatientID]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, client.PatientID)
		}
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// PatientCount returns the number of clients watching one patient.
func (h *Hub) PatientCount(patientID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[patientID])
}

// ---------------------------------------------------------------------------
// Handler: Echo endpoint for live-view connections
// ---------------------------------------------------------------------------

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS middleware guards the origin list.
	},
}

// EventLoader returns a patient's events after checking the session.
type EventLoader interface {
	All(ctx context.Context, sess auth.Session, patientID uuid.UUID, f diary.Filter) ([]*diary.Event, error)
}

// ProfileLoader returns the profile used for guidance in the live view.
type ProfileLoader interface {
	GetProfile(ctx context.Context, sess auth.Session, patientID uuid.UUID) (*analysis.Profile, error)
}

const loadTimeout = 10 * time.Second

type Handler struct {
	hub      *Hub
	bus      changefeed.Bus
	events   EventLoader
	profiles ProfileLoader
	window   analysis.DayWindow
	logger   zerolog.Logger
}

// NewHandler wires the live-view endpoint. profiles may be nil, in which
// case the view carries no guidance.
func NewHandler(hub *Hub, bus changefeed.Bus, events EventLoader, profiles ProfileLoader, window analysis.DayWindow, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		bus:      bus,
		events:   events,
		profiles: profiles,
		window:   window,
		logger:   logger.With().Str("component", "websocket").Logger(),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.HandleConnect, auth.RequireRole(auth.AllRoles...))
}

// loader reads the snapshot outside any request context, since resyncs
// happen long after the upgrade request has returned.
func (h *Handler) loader(sess auth.Session, patientID uuid.UUID) snapshotLoader {
	return func() ([]*diary.Event, *analysis.Profile, error) {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		events, err := h.events.All(ctx, sess, patientID, diary.Filter{})
		if err != nil {
			return nil, nil, err
		}
		if h.profiles == nil {
			return events, nil, nil
		}
		profile, err := h.profiles.GetProfile(ctx, sess, patientID)
		if errors.Is(err, analysis.ErrProfileNotFound) {
			return events, nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		return events, profile, nil
	}
}

// HandleConnect subscribes before loading the snapshot, so a write that
// lands while the snapshot loads is replayed rather than lost. Access and
// load failures are returned before the upgrade as plain HTTP errors.
func (h *Handler) HandleConnect(c echo.Context) error {
	sess, err := auth.SessionFromEcho(c)
	if err != nil {
		return err
	}
	pid, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	if err := sess.Authorize(pid); err != nil {
		return diary.HTTPError(err)
	}

	view := analysis.NewLiveView(nil, h.window, analysis.AudiencePatient)
	client := newClient(pid, view, h.loader(sess, pid), h.logger)

	// The request context ends when the handler returns; the subscription
	// lives as long as the connection.
	sub, err := h.bus.Subscribe(context.Background(), pid, client.Handlers())
	if err != nil {
		h.logger.Error().Err(err).Str("patient_id", pid.String()).Msg("subscribe failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "live view unavailable")
	}
	if err := client.start(); err != nil {
		sub.Close()
		return diary.HTTPError(err)
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		sub.Close()
		return err
	}
	h.hub.Register(client)

	h.logger.Info().Str("client_id", client.ID).Str("patient_id", pid.String()).Msg("live view connected")

	go h.writePump(client, ws)
	go h.readPump(client, sub, ws)
	return nil
}

// readPump discards client frames and tears the view down on disconnect.
func (h *Handler) readPump(client *Client, sub *changefeed.Subscription, ws *gorillawebsocket.Conn) {
	defer func() {
		sub.Close()
		h.hub.Unregister(client)
		ws.Close()
		h.logger.Info().Str("client_id", client.ID).Msg("live view disconnected")
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
}
