// Package feed streams newly stored readings to websocket clients and
// consumes that stream on the monitor side.
package feed

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/types"
	"github.com/sirupsen/logrus"
)

const writeTimeout = 5 * time.Second

// Hub keeps the connected websocket clients and broadcasts every stored
// reading to them.
type Hub struct {
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
	// Readings sent to a client right after it connects
	latest func() []types.StoredReading

	clientsMutex sync.RWMutex
	clients      map[*websocket.Conn]*sync.Mutex
}

// NewHub creates a hub. latest may be nil.
func NewHub(log logrus.FieldLogger, latest func() []types.StoredReading) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Local network dashboards
			},
		},
		latest:  latest,
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// PublishReading broadcasts a reading to all clients. Clients that fail to
// receive it are dropped.
func (h *Hub) PublishReading(_ context.Context, reading types.StoredReading) error {
	payload := reading.ToJsonBytes()

	h.clientsMutex.RLock()
	clients := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for client, writeMu := range h.clients {
		clients[client] = writeMu
	}
	h.clientsMutex.RUnlock()

	for client, writeMu := range clients {
		if err := write(client, writeMu, payload); err != nil {
			h.log.WithError(err).Debug("Dropping websocket client")
			h.remove(client)
		}
	}
	return nil
}

// ServeWS upgrades the request and keeps the connection until the client
// goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	writeMu := &sync.Mutex{}
	h.clientsMutex.Lock()
	h.clients[conn] = writeMu
	h.clientsMutex.Unlock()

	if h.latest != nil {
		for _, reading := range h.latest() {
			if err := write(conn, writeMu, reading.ToJsonBytes()); err != nil {
				h.remove(conn)
				return
			}
		}
	}

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(conn)
			return
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.clientsMutex.Lock()
	clients := h.clients
	h.clients = make(map[*websocket.Conn]*sync.Mutex)
	h.clientsMutex.Unlock()

	for client, writeMu := range clients {
		writeMu.Lock()
		client.SetWriteDeadline(time.Now().Add(time.Second))
		client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		writeMu.Unlock()
		client.Close()
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.clientsMutex.Lock()
	delete(h.clients, conn)
	h.clientsMutex.Unlock()
	conn.Close()
}

func write(conn *websocket.Conn, writeMu *sync.Mutex, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}
