package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/donpico/tienda/pkg/order"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeTimeout = 5 * time.Second

// Message is pushed to admin clients when an order is placed.
type Message struct {
	Type  string      `json:"type"`
	Order order.Order `json:"pedido"`
}

const MessageNewOrder = "nuevo_pedido"

// sendBuffer is how many messages may queue for one client before it is
// considered stalled and dropped.
const sendBuffer = 16

// Hub fans new orders out to connected admin websocket clients. Broadcast
// never waits on a client; each client has its own writer.
type Hub struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func NewHub(checkOrigin func(r *http.Request) bool, log zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		log:      log,
		clients:  make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the client goes away. Client messages are read and discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	h.add(c)
	defer h.remove(c)
	go h.write(c)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) write(c *client) {
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Debug().Err(err).Msg("dropping websocket client")
				h.remove(c)
				return
			}
		case <-c.done:
			return
		}
	}
}

// Broadcast queues o for every client. A client whose queue is full is
// dropped.
func (h *Hub) Broadcast(o order.Order) {
	data, err := json.Marshal(Message{Type: MessageNewOrder, Order: o})
	if err != nil {
		h.log.Error().Err(err).Msg("failed to encode websocket message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn().Msg("dropping stalled websocket client")
			c.close()
			delete(h.clients, c)
		}
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.close()
	delete(h.clients, c)
}
