package events

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/picksy/syncd/internal/models"
	"github.com/picksy/syncd/internal/observability"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	maxReadBytes = 64 * 1024
	sendBuffer   = 64
)

// Client message types
const (
	MessageSubscribe   = "subscribe"
	MessageUnsubscribe = "unsubscribe"
	MessagePing        = "ping"
	MessagePong        = "pong"
)

// ClientMessage is a control frame sent by a connected client
type ClientMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
}

// Client is one websocket connection. A client without explicit
// subscriptions receives every topic.
type Client struct {
	ID     string
	Conn   *websocket.Conn
	Send   chan []byte
	topics map[string]bool
	hub    *Hub
	mu     sync.Mutex
	wmu    sync.Mutex
	once   sync.Once
}

type broadcastMsg struct {
	topic   string
	message []byte
}

// Hub fans events out to websocket clients
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMsg
	mu         sync.RWMutex
	log        *observability.Logger
}

var _ Emitter = (*Hub)(nil)

// NewHub creates an idle hub; call Serve to start delivery
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMsg, 256),
		log:        observability.WithField("component", "events"),
	}
}

// Serve runs the hub loop until ctx is done
func (h *Hub) Serve(ctx context.Context) error {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debugf("client connected: %s", client.ID)

		case client := <-h.unregister:
			h.remove(client)
			h.log.Debugf("client disconnected: %s", client.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*Client
			for client := range h.clients {
				if !client.wants(msg.topic) {
					continue
				}
				select {
				case client.Send <- msg.message:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.log.Warnf("dropping slow client %s", c.ID)
				h.remove(c)
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.Send)
	}
}

// NewClient wraps conn; the caller registers it and runs its pumps
func (h *Hub) NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		ID:     id,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		topics: make(map[string]bool),
		hub:    h,
	}
}

// Register adds a client to the hub
func (h *Hub) Register(ctx context.Context, client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// EmitLibrary implements Emitter
func (h *Hub) EmitLibrary(photos []models.PhotoPayload) {
	h.publish(TopicLibrary, NewLibraryEvent(photos))
}

// EmitPresence implements Emitter
func (h *Hub) EmitPresence(graph models.PresenceGraph) {
	h.publish(TopicPresence, NewPresenceEvent(graph))
}

func (h *Hub) publish(topic string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).Errorf("marshal %s event", topic)
		return
	}
	select {
	case h.broadcast <- &broadcastMsg{topic: topic, message: data}:
	default:
		h.log.Warnf("event buffer full, dropping %s event", topic)
	}
}

func (c *Client) wants(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.topics) == 0 || c.topics[topic]
}

// Subscribe limits the client to the given topic plus any others it subscribed to
func (c *Client) Subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[topic] = true
}

// Unsubscribe removes topic from the client's subscriptions
func (c *Client) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics, topic)
}

// Close unregisters the client and closes the connection
func (c *Client) Close() {
	c.once.Do(func() {
		select {
		case c.hub.unregister <- c:
		case <-time.After(writeWait):
		}
		c.Conn.Close()
	})
}

// WritePump pumps messages from the hub to the websocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(messageType, data)
}

// ReadPump reads control frames until the connection closes
func (c *Client) ReadPump() {
	defer c.Close()

	c.Conn.SetReadLimit(maxReadBytes)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Warn("websocket read failed")
			}
			return
		}
		if messageType == websocket.TextMessage {
			c.handle(data)
		}
	}
}

func (c *Client) handle(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.hub.log.Debugf("invalid client message: %v", err)
		return
	}

	switch msg.Type {
	case MessageSubscribe:
		if msg.Topic != "" {
			c.Subscribe(msg.Topic)
		}
	case MessageUnsubscribe:
		if msg.Topic != "" {
			c.Unsubscribe(msg.Topic)
		}
	case MessagePing:
		if pong, err := json.Marshal(ClientMessage{Type: MessagePong}); err == nil {
			c.write(websocket.TextMessage, pong)
		}
	default:
		c.hub.log.Debugf("unknown client message type: %s", msg.Type)
	}
}
