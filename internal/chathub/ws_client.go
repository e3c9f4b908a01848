package chathub

import (
	"campusfix/backend/internal/apperr"
	"campusfix/backend/internal/models"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 64
)

// Poster stores a message typed into a live connection.
type Poster interface {
	PostMessage(ctx context.Context, complaintID, senderID, body string) (*models.Message, error)
}

// inbound is the frame a client sends to post a message.
type inbound struct {
	Body string `json:"body"`
}

// WebSocketClient implements Client over a gorilla connection.
type WebSocketClient struct {
	UserID      string
	ComplaintID string
	Conn        *websocket.Conn
	Hub         *ManagerService
	Poster      Poster
	Log         *zap.Logger

	send      chan models.MessageEvent
	// replies carries errors for this client only; it is never closed.
	replies   chan models.MessageEvent
	closeOnce sync.Once
}

func NewWebSocketClient(conn *websocket.Conn, hub *ManagerService, poster Poster, userID, complaintID string, log *zap.Logger) *WebSocketClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebSocketClient{
		UserID:      userID,
		ComplaintID: complaintID,
		Conn:        conn,
		Hub:         hub,
		Poster:      poster,
		Log:         log,
		send:        make(chan models.MessageEvent, sendBuffer),
		replies:     make(chan models.MessageEvent, 8),
	}
}

func (c *WebSocketClient) GetUserID() string                          { return c.UserID }
func (c *WebSocketClient) GetComplaintID() string                     { return c.ComplaintID }
func (c *WebSocketClient) GetSendChannel() chan<- models.MessageEvent { return c.send }

func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close stops the write pump, which closes the connection.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Log.Warn("websocket read failed", zap.String("user_id", c.UserID), zap.Error(err))
			}
			return
		}

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.reply("malformed frame")
			continue
		}
		// The stored message comes back through the hub like any other.
		if _, err := c.Poster.PostMessage(context.Background(), c.ComplaintID, c.UserID, in.Body); err != nil {
			c.reply(apperr.PublicMessage(err))
		}
	}
}

func (c *WebSocketClient) reply(msg string) {
	select {
	case c.replies <- models.MessageEvent{Type: models.EventError, ComplaintID: c.ComplaintID, Error: msg}:
	default:
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(ev); err != nil {
				return
			}

		case ev := <-c.replies:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
