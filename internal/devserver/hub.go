package devserver

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
)

// Message is pushed to browsers over the event stream.
type Message struct {
	Type string `json:"type"`
}

var (
	reloadMessage = Message{Type: "reload"}
	cssMessage    = Message{Type: "css"}
)

const heartbeatInterval = 30 * time.Second

// Hub manages SSE clients. Broadcasts reach only the clients connected at
// that moment; nothing is buffered for later connections.
type Hub struct {
	mu       sync.RWMutex
	nextID   int
	clients  map[int]*client
	closed   bool
	recorder metrics.Recorder
}

type client struct {
	id   int
	ch   chan Message
	done chan struct{}
}

// NewHub creates a hub; rec may be nil.
func NewHub(rec metrics.Recorder) *Hub {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Hub{clients: map[int]*client{}, recorder: rec}
}

// ServeHTTP implements the SSE endpoint.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	c := &client{ch: make(chan Message, 8), done: make(chan struct{})}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "live reload shutting down", http.StatusServiceUnavailable)
		return
	}
	c.id = h.nextID
	h.nextID++
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.recorder.SetLiveReloadClients(n)
	defer h.removeClient(c.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	bw := bufio.NewWriter(w)
	write := func(s string) bool {
		if _, err := bw.WriteString(s); err != nil {
			slog.Debug("Live reload write failed", logfields.Error(err))
			return false
		}
		if err := bw.Flush(); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	if !write(": connected\n\n") {
		return
	}

	hb := time.NewTicker(heartbeatInterval)
	defer hb.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			return
		case <-hb.C:
			if !write(": ping\n\n") {
				return
			}
		case msg := <-c.ch:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if !write("data: " + string(data) + "\n\n") {
				return
			}
		}
	}
}

func (h *Hub) removeClient(id int) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.done)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.recorder.SetLiveReloadClients(n)
	}
}

// Broadcast sends msg to every connected client and returns how many
// received it. Clients whose buffers are full are disconnected.
func (h *Hub) Broadcast(msg Message) int {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return 0
	}
	snapshot := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range snapshot {
		select {
		case c.ch <- msg:
			sent++
		case <-c.done:
		default:
			h.removeClient(c.id)
		}
	}
	slog.Debug("Live reload broadcast", slog.String("type", msg.Type), logfields.Clients(sent))
	return sent
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every client and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*client{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
	h.recorder.SetLiveReloadClients(0)
}
