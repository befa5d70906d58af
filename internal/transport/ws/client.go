package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"yacht/internal/app"
	"yacht/internal/domain"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Size of the send channel buffer
	sendBufferSize = 256

	// Time allowed for one intent to reach the store
	intentTimeout = 10 * time.Second
)

// Client represents a WebSocket client connection
type Client struct {
	conn    *websocket.Conn
	hub     *app.GameHub
	session *app.Session
	userID  string
	send    chan []byte
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	rolls   sync.WaitGroup
	logger  zerolog.Logger
	mu      sync.Mutex
	closed  bool
}

// NewClient creates a new WebSocket client and opens its game session. It
// fails when the identity already has a live session.
func NewClient(conn *websocket.Conn, hub *app.GameHub, userID string, logger zerolog.Logger) (*Client, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:   conn,
		hub:    hub,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With().Str("user", userID).Logger(),
	}
	session, err := hub.Open(userID, app.NewEventView(c.sendEvent))
	if err != nil {
		cancel()
		return nil, err
	}
	c.session = session
	return c, nil
}

// UserID returns the identity behind this client
func (c *Client) UserID() string {
	return c.userID
}

// Send queues a message for the peer. It never blocks; when the buffer is
// full the message is dropped.
func (c *Client) Send(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	select {
	case c.send <- data:
		return nil
	default:
		// Buffer full, message dropped
		c.logger.Warn().Msg("send buffer full, message dropped")
		return nil
	}
}

// sendEvent forwards a session notification. It runs under the session
// lock.
func (c *Client) sendEvent(ev *domain.GameEvent) {
	if err := c.Send(eventMessage(ev)); err != nil {
		c.logger.Error().Err(err).Str("event", string(ev.Type)).Msg("failed to encode event")
	}
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.cancel()
	close(c.done)
	return c.conn.Close()
}

// Run starts the client's read and write pumps
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump pumps messages from the WebSocket connection. When the peer goes
// away the session is released without leaving, so the store's presence
// cleanup removes the player the same way a dropped network would.
func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.rolls.Wait()
		c.hub.Release(c.session)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug().Err(err).Msg("websocket read error")
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// handleMessage processes an incoming message from the client
func (c *Client) handleMessage(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(ErrCodeInvalidMessage, "Invalid message format")
		return
	}

	switch msg.Type {
	case MsgCreateRoom:
		c.handleCreateRoom(msg.Payload)
	case MsgJoinRoom:
		c.handleJoinRoom(msg.Payload)
	case MsgRandomMatch:
		c.handleRandomMatch(msg.Payload)
	case MsgStartGame:
		c.handleStartGame()
	case MsgLeaveRoom:
		c.handleLeaveRoom()
	case MsgRollDice:
		// Rolls settle off the read loop so a second click is rejected
		// while the first is in flight
		c.rolls.Add(1)
		go func() {
			defer c.rolls.Done()
			c.handleRollDice()
		}()
	case MsgToggleKeep:
		c.handleToggleKeep(msg.Payload)
	case MsgSelectCategory:
		c.handleSelectCategory(msg.Payload)
	case MsgPing:
		c.sendPong()
	default:
		c.sendError(ErrCodeInvalidMessage, "Unknown message type")
	}
}

func (c *Client) intentContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.ctx, intentTimeout)
}

// decode reads a payload, reporting a malformed one to the client
func (c *Client) decode(payload json.RawMessage, dst interface{}) bool {
	if len(payload) == 0 {
		c.sendError(ErrCodeInvalidMessage, "Payload is required")
		return false
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		c.sendError(ErrCodeInvalidMessage, "Invalid payload")
		return false
	}
	return true
}

// handleCreateRoom handles a create_room message
func (c *Client) handleCreateRoom(payload json.RawMessage) {
	var p NicknamePayload
	if !c.decode(payload, &p) {
		return
	}

	ctx, cancel := c.intentContext()
	defer cancel()

	code, err := c.session.CreateRoom(ctx, p.Nickname)
	if err != nil {
		c.sendIntentError("create_room", err)
		return
	}
	c.sendRoomJoined(code, true)
}

// handleJoinRoom handles a join_room message
func (c *Client) handleJoinRoom(payload json.RawMessage) {
	var p JoinRoomPayload
	if !c.decode(payload, &p) {
		return
	}
	if p.RoomCode == "" {
		c.sendError(ErrCodeInvalidMessage, "Room code is required")
		return
	}

	ctx, cancel := c.intentContext()
	defer cancel()

	code, err := c.session.JoinRoomByCode(ctx, p.RoomCode, p.Nickname)
	if err != nil {
		c.sendIntentError("join_room", err)
		return
	}
	c.sendRoomJoined(code, false)
}

// handleRandomMatch handles a random_match message
func (c *Client) handleRandomMatch(payload json.RawMessage) {
	var p NicknamePayload
	if !c.decode(payload, &p) {
		return
	}

	ctx, cancel := c.intentContext()
	defer cancel()

	code, err := c.session.JoinRandomMatch(ctx, p.Nickname)
	if err != nil {
		c.sendIntentError("random_match", err)
		return
	}
	c.sendRoomJoined(code, false)
}

// handleStartGame handles a start_game message
func (c *Client) handleStartGame() {
	ctx, cancel := c.intentContext()
	defer cancel()

	if _, err := c.session.StartGame(ctx); err != nil {
		c.sendIntentError("start_game", err)
	}
}

// handleLeaveRoom handles a leave_room message
func (c *Client) handleLeaveRoom() {
	ctx, cancel := c.intentContext()
	defer cancel()

	if err := c.session.LeaveRoom(ctx); err != nil {
		c.sendIntentError("leave_room", err)
	}
}

// handleRollDice handles a roll_dice message
func (c *Client) handleRollDice() {
	ctx, cancel := c.intentContext()
	defer cancel()

	if err := c.session.Roll(ctx); err != nil {
		c.sendIntentError("roll_dice", err)
	}
}

// handleToggleKeep handles a toggle_keep message
func (c *Client) handleToggleKeep(payload json.RawMessage) {
	var p ToggleKeepPayload
	if !c.decode(payload, &p) {
		return
	}
	if p.Index == nil {
		c.sendError(ErrCodeInvalidMessage, "Die index is required")
		return
	}

	ctx, cancel := c.intentContext()
	defer cancel()

	if err := c.session.ToggleKeep(ctx, *p.Index); err != nil {
		c.sendIntentError("toggle_keep", err)
	}
}

// handleSelectCategory handles a select_category message
func (c *Client) handleSelectCategory(payload json.RawMessage) {
	var p SelectCategoryPayload
	if !c.decode(payload, &p) {
		return
	}

	ctx, cancel := c.intentContext()
	defer cancel()

	if _, err := c.session.SelectCategory(ctx, p.Category); err != nil {
		c.sendIntentError("select_category", err)
	}
}

// sendIntentError reports a failed intent, logging the ones that are not
// plain rule violations
func (c *Client) sendIntentError(intent string, err error) {
	code, message := ErrorCode(err)
	if code == ErrCodeInternalError {
		c.logger.Error().Err(err).Str("intent", intent).Msg("intent failed")
	} else {
		c.logger.Debug().Err(err).Str("intent", intent).Msg("intent rejected")
	}
	c.sendError(code, message)
}

// sendConnected sends the identity the client is playing as
func (c *Client) sendConnected(userID, token string, expiresAt time.Time) {
	c.Send(NewServerMessage(MsgConnected, &ConnectedPayload{
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	}))
}

// sendRoomJoined confirms the room the client entered
func (c *Client) sendRoomJoined(roomCode string, created bool) {
	msg := NewServerMessage(MsgRoomJoined, &RoomJoinedPayload{
		RoomCode: roomCode,
		Created:  created,
	})
	msg.RoomCode = roomCode
	c.Send(msg)
}

// sendError sends an error message to the client
func (c *Client) sendError(code, message string) {
	payload := &ErrorPayload{
		Code:    code,
		Message: message,
	}

	msg := NewServerMessage(MsgError, payload)
	c.Send(msg)
}

// sendPong sends a pong message in response to ping
func (c *Client) sendPong() {
	msg := NewServerMessage(MsgPong, nil)
	c.Send(msg)
}
