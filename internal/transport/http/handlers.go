package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"yacht/internal/app"
	"yacht/internal/archive"
	"yacht/internal/domain"
	"yacht/internal/identity"
)

const (
	qrSize             = 320
	defaultResultLimit = 20
	maxResultLimit     = 100
)

// Response is a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GetRoomResponse is the response for getting room info
type GetRoomResponse struct {
	RoomCode    string `json:"roomCode"`
	Status      string `json:"status"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
	CanJoin     bool   `json:"canJoin"`
	InviteLink  string `json:"inviteLink"`
}

// RoomExistsResponse is the response for checking if room exists
type RoomExistsResponse struct {
	Exists bool `json:"exists"`
}

// HealthResponse is the response for health check
type HealthResponse struct {
	Status  string `json:"status"`
	Archive string `json:"archive"`
}

// StatsResponse is the response for stats endpoint
type StatsResponse struct {
	Sessions int            `json:"sessions"`
	Rooms    int            `json:"rooms"`
	Players  int            `json:"players"`
	ByStatus map[string]int `json:"byStatus"`
}

// handleIdentity handles POST /api/identity
func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	id, err := s.identities.Resume(identity.TokenFromRequest(r))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to issue identity")
		s.sendError(w, http.StatusInternalServerError, "IDENTITY_FAILED", "Failed to issue identity")
		return
	}
	s.sendSuccess(w, id)
}

// roomCodeParam extracts and validates the {roomCode} path parameter
func (s *Server) roomCodeParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	roomCode := chi.URLParam(r, "roomCode")
	if roomCode == "" {
		s.sendError(w, http.StatusBadRequest, "MISSING_ROOM_CODE", "Room code is required")
		return "", false
	}
	if !app.ValidRoomCode(roomCode, s.hub.Settings().CodeLength) {
		s.sendError(w, http.StatusBadRequest, "INVALID_ROOM_CODE", "Room code is malformed")
		return "", false
	}
	return roomCode, true
}

// handleGetRoom handles GET /api/rooms/{roomCode}
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomCode, ok := s.roomCodeParam(w, r)
	if !ok {
		return
	}

	room, err := s.hub.LookupRoom(r.Context(), roomCode)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			s.sendError(w, http.StatusNotFound, "ROOM_NOT_FOUND", "Room not found")
		} else {
			s.logger.Error().Err(err).Str("room", roomCode).Msg("room lookup failed")
			s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		}
		return
	}

	s.sendSuccess(w, &GetRoomResponse{
		RoomCode:    roomCode,
		Status:      room.Status.String(),
		PlayerCount: room.PlayerCount(),
		MaxPlayers:  room.MaxPlayers,
		CanJoin:     room.CanJoin(),
		InviteLink:  s.inviteLink(r, roomCode),
	})
}

// handleRoomExists handles GET /api/rooms/{roomCode}/exists
func (s *Server) handleRoomExists(w http.ResponseWriter, r *http.Request) {
	roomCode, ok := s.roomCodeParam(w, r)
	if !ok {
		return
	}

	_, err := s.hub.LookupRoom(r.Context(), roomCode)
	if err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		s.logger.Error().Err(err).Str("room", roomCode).Msg("room lookup failed")
		s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	s.sendSuccess(w, &RoomExistsResponse{
		Exists: err == nil,
	})
}

// handleRoomQR handles GET /api/rooms/{roomCode}/qr with a PNG of the
// invite link
func (s *Server) handleRoomQR(w http.ResponseWriter, r *http.Request) {
	roomCode, ok := s.roomCodeParam(w, r)
	if !ok {
		return
	}
	if _, err := s.hub.LookupRoom(r.Context(), roomCode); err != nil {
		if !errors.Is(err, domain.ErrRoomNotFound) {
			s.logger.Error().Err(err).Str("room", roomCode).Msg("room lookup failed")
			s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
			return
		}
		s.sendError(w, http.StatusNotFound, "ROOM_NOT_FOUND", "Room not found")
		return
	}

	png, err := qrcode.Encode(s.inviteLink(r, roomCode), qrcode.Medium, qrSize)
	if err != nil {
		s.logger.Error().Err(err).Str("room", roomCode).Msg("qr generation failed")
		s.sendError(w, http.StatusInternalServerError, "QR_FAILED", "QR generation failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// inviteLink builds the URL a friend opens to join the room
func (s *Server) inviteLink(r *http.Request, roomCode string) string {
	base := s.config.Server.PublicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/?" + url.Values{"room": {roomCode}}.Encode()
}

// handleRecentResults handles GET /api/results?limit=n
func (s *Server) handleRecentResults(w http.ResponseWriter, r *http.Request) {
	limit := defaultResultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.sendError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = min(n, maxResultLimit)
	}

	results, err := s.results.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read recent results")
		s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	s.sendSuccess(w, results)
}

// handleRoomResult handles GET /api/results/{roomCode}
func (s *Server) handleRoomResult(w http.ResponseWriter, r *http.Request) {
	roomCode, ok := s.roomCodeParam(w, r)
	if !ok {
		return
	}

	result, err := s.results.Room(r.Context(), roomCode)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "RESULT_NOT_FOUND", "No finished game for this room")
		} else {
			s.logger.Error().Err(err).Str("room", roomCode).Msg("failed to read room result")
			s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		}
		return
	}
	s.sendSuccess(w, result)
}

// handleHealth handles GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.results.Ping(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("archive ping failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(&Response{
			Success: false,
			Data:    &HealthResponse{Status: "degraded", Archive: "unavailable"},
			Error:   &ErrorInfo{Code: "ARCHIVE_UNAVAILABLE", Message: "Results archive unavailable"},
		})
		return
	}
	s.sendSuccess(w, &HealthResponse{
		Status:  "ok",
		Archive: "ok",
	})
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.hub.Stats(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to collect stats")
		s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	s.sendSuccess(w, &StatsResponse{
		Sessions: stats.Sessions,
		Rooms:    stats.Rooms,
		Players:  stats.Players,
		ByStatus: stats.ByStatus,
	})
}

// sendSuccess sends a successful JSON response
func (s *Server) sendSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(&Response{
		Success: true,
		Data:    data,
	})
}

// sendError sends an error JSON response
func (s *Server) sendError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	})
}
