package gateway

import (
	"net/http"
	"sync"
	"time"

	"finsight/pkg/trace"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const writeTimeout = 5 * time.Second

// Broadcaster fans trace events out to connected websocket clients.
// It implements trace.Sink so it can sit directly behind the service;
// a slow or dead client is dropped rather than allowed to stall a run.
type Broadcaster struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*streamClient
	closed  bool
}

type streamClient struct {
	id   string
	conn *websocket.Conn
	// runID filters delivery to a single run; empty receives all runs
	runID string
	// writeMu serializes writes; gorilla allows one concurrent writer
	writeMu sync.Mutex
}

// NewBroadcaster creates a trace event broadcaster.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:  logger,
		clients: make(map[string]*streamClient),
	}
}

// HandleWebSocket upgrades the connection and registers a client that
// receives events from every run.
func (b *Broadcaster) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	b.serve(w, r, "")
}

// ServeRun upgrades the connection and registers a client that only
// receives events stamped with the given run id.
func (b *Broadcaster) ServeRun(w http.ResponseWriter, r *http.Request, runID string) {
	b.serve(w, r, runID)
}

func (b *Broadcaster) serve(w http.ResponseWriter, r *http.Request, runID string) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := &streamClient{id: clientID, conn: conn, runID: runID}

	b.mu.Lock()
	b.clients[clientID] = client
	b.mu.Unlock()

	b.logger.Info().
		Str("clientId", clientID).
		Str("runId", runID).
		Str("ip", r.RemoteAddr).
		Msg("Stream client connected")

	// Drain the read side to detect disconnects
	go func() {
		defer b.remove(clientID)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					b.logger.Debug().Err(err).Str("clientId", clientID).Msg("Stream client error")
				}
				return
			}
		}
	}()
}

// Record broadcasts one trace event to every connected client.
func (b *Broadcaster) Record(event trace.Event) {
	b.mu.RLock()
	clients := make([]*streamClient, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, client := range clients {
		if client.runID != "" && client.runID != event.RunID {
			continue
		}
		client.writeMu.Lock()
		_ = client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := client.conn.WriteJSON(event)
		client.writeMu.Unlock()

		if err != nil {
			b.logger.Warn().
				Err(err).
				Str("clientId", client.id).
				Msg("Failed to broadcast trace event; dropping client")
			b.remove(client.id)
		}
	}
}

// ClientCount returns the number of connected stream clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close disconnects all clients and refuses new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	clients := b.clients
	b.clients = make(map[string]*streamClient)
	b.mu.Unlock()

	for _, client := range clients {
		_ = client.conn.Close()
	}
}

func (b *Broadcaster) remove(clientID string) {
	b.mu.Lock()
	client, ok := b.clients[clientID]
	if ok {
		delete(b.clients, clientID)
	}
	b.mu.Unlock()

	if ok {
		_ = client.conn.Close()
		b.logger.Info().Str("clientId", clientID).Msg("Stream client disconnected")
	}
}
