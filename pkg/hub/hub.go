// Package hub fans playback frames and state updates out to every connected
// stream client using the channel-based broadcast pattern.
package hub

import (
	"context"
	"sync"

	"github.com/teslashibe/go-twolink/internal/log"
	"github.com/teslashibe/go-twolink/pkg/protocol"
)

// Greeter builds the message sent to a client right after it connects,
// typically a state snapshot. It may return nil.
type Greeter func() *protocol.Message

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Name for logging
	name string

	// Registered clients
	clients map[*Client]struct{}

	// Inbound encoded messages to broadcast
	broadcast chan []byte

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	greet Greeter

	mu      sync.RWMutex
	running bool
}

// New creates a new Hub
func New(name string) *Hub {
	return &Hub{
		name:       name,
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// SetGreeter installs the connect-time greeting. Call before Run.
func (h *Hub) SetGreeter(g Greeter) {
	h.greet = g
}

// Run starts the hub's main loop and blocks until ctx is done, at which
// point every client's send channel is closed.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.running = false
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.sendGreeting(client)
			log.Info("stream client connected", "hub", h.name, "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Info("stream client disconnected", "hub", h.name, "clients", count)

		case data := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Too slow to keep up with the frame rate.
					close(client.send)
					delete(h.clients, client)
					log.Warn("dropped slow stream client", "hub", h.name)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) sendGreeting(client *Client) {
	if h.greet == nil {
		return
	}
	msg := h.greet()
	if msg == nil {
		return
	}
	data, err := msg.Bytes()
	if err != nil {
		log.Warn("encode greeting", "hub", h.name, "error", err)
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

// Broadcast encodes msg and sends it to all connected clients. Messages are
// dropped when the broadcast queue is full.
func (h *Hub) Broadcast(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
	default:
		log.Warn("broadcast queue full, dropping message", "hub", h.name, "type", msg.Type)
	}
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// attach registers c, returning false if the hub has stopped.
func (h *Hub) attach(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
