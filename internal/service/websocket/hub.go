package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"facecapture/internal/logger"
)

const (
	broadcastBuffer = 32
	writeTimeout    = 5 * time.Second
)

// ErrHubClosed is returned by Register once Run has exited.
var ErrHubClosed = errors.New("websocket hub closed")

// Greeting produces the first message a newly registered client receives.
type Greeting func() ([]byte, error)

type registration struct {
	conn     *websocket.Conn
	greeting Greeting
}

// HubService fans pipeline snapshots out to every connected viewer.
type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan registration
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan registration),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run delivers messages until ctx is cancelled, then closes every client.
func (h *HubService) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return nil

		case reg := <-h.register:
			if reg.greeting != nil {
				message, err := reg.greeting()
				if err == nil {
					err = h.write(reg.conn, message)
				}
				if err != nil {
					h.logger.Error("Error greeting client: %v", err)
					reg.conn.Close()
					continue
				}
			}
			h.mutex.Lock()
			h.clients[reg.conn] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Client connected. Total: %d", total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Client disconnected. Total: %d", total)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if err := h.write(client, message); err != nil {
					h.logger.Error("Error sending message: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

func (h *HubService) write(conn *websocket.Conn, message []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, message)
}

// Register adds a client. greeting, when set, is evaluated on the hub
// goroutine so the client sees it before any later broadcast.
func (h *HubService) Register(client *websocket.Conn, greeting Greeting) error {
	select {
	case h.register <- registration{conn: client, greeting: greeting}:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.Close()
	}
}

// Broadcast queues message for every client. It never blocks; when the
// queue is full the message is dropped.
func (h *HubService) Broadcast(message []byte) bool {
	select {
	case h.broadcast <- message:
		return true
	default:
		h.logger.Warning("Broadcast queue full, skipping message")
		return false
	}
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
