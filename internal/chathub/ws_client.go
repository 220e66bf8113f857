package chathub

import (
	"anonchat/backend/internal/engine"
	"anonchat/backend/internal/models"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

var (
	// ErrClientClosed is returned by Deliver after Close.
	ErrClientClosed = errors.New("client is closed")
	// ErrSendBufferFull is returned when the peer does not keep up.
	ErrSendBufferFull = errors.New("client send buffer is full")

	errNoDisplayName = errors.New("no display name set")
)

// Intent is a request read from a WebSocket peer.
type Intent struct {
	Type          string   `json:"type"`
	Interests     []string `json:"interests,omitempty"`
	Agree         bool     `json:"agree,omitempty"`
	Text          string   `json:"text,omitempty"`
	ComplaintType string   `json:"complaint_type,omitempty"`
	Reason        string   `json:"reason,omitempty"`
}

// Frame is written to a WebSocket peer.
type Frame struct {
	Type    string         `json:"type"`
	Notice  *models.Notice `json:"notice,omitempty"`
	Text    string         `json:"text,omitempty"`
	Code    string         `json:"code,omitempty"`
	Profile *models.User   `json:"profile,omitempty"`
}

// WebSocketClient implements Client over a gorilla connection.
type WebSocketClient struct {
	UserID string
	Lang   string
	Name   string
	Conn   *websocket.Conn
	Hub    *ManagerService

	mu     sync.Mutex
	send   chan Frame
	closed bool
}

func NewWebSocketClient(hub *ManagerService, conn *websocket.Conn, userID, lang, name string) *WebSocketClient {
	return &WebSocketClient{
		UserID: userID,
		Lang:   lang,
		Name:   name,
		Conn:   conn,
		Hub:    hub,
		send:   make(chan Frame, sendBuffer),
	}
}

func (c *WebSocketClient) GetUserID() string { return c.UserID }

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close stops the write pump, which closes the connection.
func (c *WebSocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *WebSocketClient) Deliver(_ context.Context, notice models.Notice) error {
	n := notice
	return c.write(Frame{Type: "notice", Notice: &n, Text: c.Hub.Localizer.RenderNotice(c.Lang, notice)})
}

func (c *WebSocketClient) DisplayName(context.Context) (string, error) {
	if c.Name == "" {
		return "", errNoDisplayName
	}
	return c.Name, nil
}

func (c *WebSocketClient) write(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *WebSocketClient) writeError(err error) {
	f := Frame{Type: "error", Code: engine.CodeOf(err), Text: c.Hub.Localizer.RenderError(c.Lang, err)}
	if errors.Is(err, ErrMessageBlocked) {
		f.Code = "message_blocked"
		f.Text = c.Hub.Localizer.GetString(c.Lang, "message_blocked")
	}
	if werr := c.write(f); werr != nil {
		log.Debug().Str("module", "ws").Str("user_id", c.UserID).Err(werr).Msg("dropped error frame")
	}
}

func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.Hub.UnregisterCh <- c:
		case <-c.Hub.Done():
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Str("module", "ws").Str("user_id", c.UserID).Err(err).Msg("read error")
			}
			return
		}

		var in Intent
		if err := json.Unmarshal(message, &in); err != nil {
			log.Debug().Str("module", "ws").Str("user_id", c.UserID).Err(err).Msg("bad intent")
			c.write(Frame{Type: "error", Code: "bad_request", Text: c.Hub.Localizer.GetString(c.Lang, "unknown_command")})
			continue
		}
		if err := c.handle(context.Background(), in); err != nil {
			c.writeError(err)
		}
	}
}

// handle maps one intent onto the engine.
func (c *WebSocketClient) handle(ctx context.Context, in Intent) error {
	eng := c.Hub.Engine
	switch in.Type {
	case "search":
		_, err := eng.RequestSearch(ctx, c.UserID, in.Interests)
		return err
	case "cancel":
		return eng.CancelSearch(ctx, c.UserID)
	case "stop":
		return eng.EndChat(ctx, c.UserID)
	case "next":
		_, err := eng.Next(ctx, c.UserID)
		return err
	case "reveal":
		return eng.RequestReveal(ctx, c.UserID)
	case "reveal_decision":
		return eng.DecideReveal(ctx, c.UserID, in.Agree)
	case "message":
		return c.Hub.Relay(ctx, c.UserID, models.Content{Type: models.ContentText, Text: in.Text})
	case "report":
		if err := c.Hub.Report(ctx, c.UserID, in.ComplaintType, in.Reason); err != nil {
			return err
		}
		return c.write(Frame{Type: "ack", Text: c.Hub.Localizer.GetString(c.Lang, "report_done")})
	case "unban":
		_, err := eng.RequestUnban(ctx, c.UserID)
		return err
	case "profile":
		u, err := eng.Profile(ctx, c.UserID)
		if err != nil {
			return err
		}
		return c.write(Frame{Type: "profile", Profile: &u, Text: c.Hub.Localizer.Format(c.Lang, "balance", u.Balance)})
	}
	return c.write(Frame{Type: "error", Code: "bad_request", Text: c.Hub.Localizer.GetString(c.Lang, "unknown_command")})
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(f); err != nil {
				log.Debug().Str("module", "ws").Str("user_id", c.UserID).Err(err).Msg("write failed")
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
