package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zegonz1/housing-tbs/dataset"
	"github.com/zegonz1/housing-tbs/log"
)

// MessageType tags every message sent to clients.
type MessageType string

const (
	EstimateResult   MessageType = "estimate"
	ErrorMessage     MessageType = "error"
	ModelFittedEvent MessageType = "model_fitted"
	Pong             MessageType = "pong"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = 2 * pingPeriod
	maxMessage = 64 << 10
)

// Message is sent from the server to clients.
type Message struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ClientMessage is sent from clients. Type is "estimate" or "ping".
type ClientMessage struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Record dataset.Record `json:"record"`
}

// EstimateHandler answers one estimate request. The result is marshaled as the message data.
type EstimateHandler func(ctx context.Context, record dataset.Record) (any, error)

// Client is one WebSocket connection.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	ready    chan struct{}
	clientID string
}

// WebSocketHub owns the connected clients. Register, unregister and broadcast all go through
// the Start loop.
type WebSocketHub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	handler    EstimateHandler
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewWebSocketHub creates a hub that answers estimate requests with handler.
func NewWebSocketHub(handler EstimateHandler) *WebSocketHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start runs the hub loop until Stop is called.
func (h *WebSocketHub) Start() {
	defer log.Logger().Info("websocket hub stopped")
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			close(client.ready)
			WebSocketClients.Set(float64(n))
			log.Logger().Debug("websocket client connected", zap.String("client_id", client.clientID), zap.Int("clients", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			WebSocketClients.Set(float64(n))
			log.Logger().Debug("websocket client disconnected", zap.String("client_id", client.clientID), zap.Int("clients", n))

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			WebSocketClients.Set(0)
			return
		}
	}
}

// Stop ends the hub loop and closes every client.
func (h *WebSocketHub) Stop() {
	h.cancel()
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and serves the connection.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Logger().Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{
		conn:     conn,
		send:     make(chan []byte, 256),
		ready:    make(chan struct{}),
		clientID: uuid.NewString(),
	}
	select {
	case h.register <- client:
		<-client.ready
	case <-h.ctx.Done():
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump(h)
}

// Publish broadcasts an event to every client. Full queues drop the message.
func (h *WebSocketHub) Publish(msgType MessageType, data any) error {
	message, err := newMessage(msgType, "", data)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- message:
	default:
		log.Logger().Warn("websocket broadcast queue is full, dropping message", zap.String("type", string(msgType)))
	}
	return nil
}

func newMessage(msgType MessageType, id string, data any) ([]byte, error) {
	msg := Message{Type: msgType, ID: id, Timestamp: time.Now()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal %s message", msgType)
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}

func errorMessage(id string, err error) []byte {
	message, _ := json.Marshal(Message{Type: ErrorMessage, ID: id, Timestamp: time.Now(), Error: err.Error()})
	return message
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Logger().Debug("websocket write failed", zap.String("client_id", c.clientID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump(h *WebSocketHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Logger().Warn("websocket read failed", zap.String("client_id", c.clientID), zap.Error(err))
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(h, errorMessage("", errors.Wrap(err, "invalid message")))
			continue
		}
		c.reply(h, c.handleClientMessage(h, msg))
	}
}

func (c *Client) handleClientMessage(h *WebSocketHub, msg ClientMessage) []byte {
	switch msg.Type {
	case "estimate":
		if h.handler == nil {
			return errorMessage(msg.ID, errors.New("estimates are not available"))
		}
		result, err := h.handler(h.ctx, msg.Record)
		if err != nil {
			return errorMessage(msg.ID, err)
		}
		message, err := newMessage(EstimateResult, msg.ID, result)
		if err != nil {
			return errorMessage(msg.ID, err)
		}
		return message
	case "ping":
		message, _ := newMessage(Pong, msg.ID, nil)
		return message
	default:
		return errorMessage(msg.ID, errors.Errorf("unknown message type %q", msg.Type))
	}
}

// reply queues a message for this client only. The hub loop may close send concurrently,
// so the send happens under the hub lock.
func (c *Client) reply(h *WebSocketHub, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- message:
	default:
		log.Logger().Warn("websocket client queue is full, dropping reply", zap.String("client_id", c.clientID))
	}
}
