package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"yacht/internal/app"
	"yacht/internal/identity"
)

// Handler handles WebSocket connections
type Handler struct {
	hub        *app.GameHub
	identities *identity.Provider
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

// NewHandler creates a new WebSocket handler. Browsers from origins not in
// allowedOrigins are refused; "*" or an empty list allows any origin.
func NewHandler(hub *app.GameHub, identities *identity.Provider, allowedOrigins []string, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:        hub,
		identities: identities,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger.With().Str("component", "ws").Logger(),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// ServeHTTP handles WebSocket upgrade requests. A valid token keeps the
// identity it carries; otherwise a new one is issued and sent in the
// connected message.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := h.identities.Resume(identity.TokenFromRequest(r))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to resolve identity")
		http.Error(w, "identity unavailable", http.StatusInternalServerError)
		return
	}

	// Upgrade connection to WebSocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client, err := NewClient(conn, h.hub, id.UserID, h.logger)
	if err != nil {
		h.logger.Warn().Err(err).Str("user", id.UserID).Msg("session refused")
		refuse(conn, err)
		return
	}

	h.logger.Info().Str("user", id.UserID).Msg("websocket connected")

	client.sendConnected(id.UserID, id.Token, id.ExpiresAt)

	// Start the client
	client.Run()

	h.logger.Info().Str("user", id.UserID).Msg("websocket disconnected")
}

// refuse tells the peer why no session was opened and closes the socket
func refuse(conn *websocket.Conn, err error) {
	defer conn.Close()

	code, message := ErrorCode(err)
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(NewServerMessage(MsgError, &ErrorPayload{Code: code, Message: message})); err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
}
