package network

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/tofuwabohu/server/internal/domain/coop"
	"github.com/MRamiBalles/tofuwabohu/server/internal/events"
	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/logger"
	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/metrics"
)

// Message is what spectators receive.
type Message struct {
	Kind  string            `json:"kind"` // "hello" or "event"
	State *coop.Snapshot    `json:"state,omitempty"`
	Event *events.GameEvent `json:"event,omitempty"`
}

// HubOptions tunes a Hub.
type HubOptions struct {
	BroadcastBuffer  int
	ClientSendBuffer int
	Metrics          *metrics.Collector
}

// Hub maintains the set of active spectators and broadcasts journal events
// to them. Spectators only watch; nothing they send reaches the coop.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
	logger     *logger.Logger
	metrics    *metrics.Collector
	view       coop.View
	sendBuffer int
	upgrader   websocket.Upgrader
}

// NewHub initializes a new WebSocket Hub. view supplies the snapshot sent to
// every spectator when it connects.
func NewHub(view coop.View, log *logger.Logger, opts HubOptions) *Hub {
	if opts.BroadcastBuffer <= 0 {
		opts.BroadcastBuffer = 256
	}
	if opts.ClientSendBuffer <= 0 {
		opts.ClientSendBuffer = 64
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}
	return &Hub{
		broadcast:  make(chan []byte, opts.BroadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     log.With("subsystem", "hub"),
		metrics:    opts.Metrics,
		view:       view,
		sendBuffer: opts.ClientSendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // spectators may watch from any origin
			},
		},
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("websocket hub shutting down")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.metrics.RecordWSConnection(1)
			h.logger.Info("spectator connected", "remote", client.remote)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.metrics.RecordWSConnection(-1)
				h.logger.Info("spectator disconnected", "remote", client.remote)
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					h.metrics.RecordWSMessage()
				default:
					// too slow to keep up
					close(client.send)
					delete(h.clients, client)
					h.metrics.RecordWSConnection(-1)
					h.metrics.RecordWSError()
				}
			}
			h.mu.Unlock()
		}
	}
}

// Clients returns the number of connected spectators.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// BroadcastEvent serializes a journal event and queues it for every
// spectator. It gives up when ctx ends.
func (h *Hub) BroadcastEvent(ctx context.Context, event events.GameEvent) {
	payload, err := json.Marshal(Message{Kind: "event", Event: &event})
	if err != nil {
		h.logger.Error("failed to serialize journal event for broadcast", "type", event.Type, "error", err)
		return
	}
	select {
	case h.broadcast <- payload:
	case <-ctx.Done():
	}
}

// StartEventPoller spawns a goroutine that polls the journal and pushes new
// events to the Hub.
func (h *Hub) StartEventPoller(ctx context.Context, eventLog *events.EventLog, interval time.Duration) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	go func() {
		pollInterval := time.NewTicker(interval)
		defer pollInterval.Stop()

		lastProcessedEvent := eventLog.Len()
		for {
			select {
			case <-ctx.Done():
				return
			case <-pollInterval.C:
				newEvents := eventLog.Since(lastProcessedEvent)
				for _, event := range newEvents {
					h.BroadcastEvent(ctx, event)
				}
				lastProcessedEvent += len(newEvents)
			}
		}
	}()
}

func (h *Hub) hello() ([]byte, bool) {
	snap, ok := h.view.Snapshot()
	if !ok {
		return nil, false
	}
	payload, err := json.Marshal(Message{Kind: "hello", State: &snap})
	if err != nil {
		return nil, false
	}
	return payload, true
}

// ServeWs upgrades a spectator connection and attaches it to the hub.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket connection", "error", err)
		h.metrics.RecordWSError()
		return
	}

	client := NewClient(h, conn)
	if msg, ok := h.hello(); ok {
		client.send <- msg
	}
	client.Register()

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.WritePump()
	go client.ReadPump()
}
