package app

import (
	"context"
	"errors"
	"testing"

	"yacht/internal/domain"
)

func codes(seq ...string) func(int) string {
	i := 0
	return func(int) string {
		c := seq[min(i, len(seq)-1)]
		i++
		return c
	}
}

func TestCreateAndJoinRoom(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testSettings())
	host, guest := h.open("host"), h.open("guest")

	code, err := host.CreateRoom(ctx, "  Host  ")
	if err != nil {
		t.Fatal(err)
	}
	if !ValidRoomCode(code, DefaultRoomCodeLength) {
		t.Errorf("code %q is not %d digits", code, DefaultRoomCodeLength)
	}

	if _, err := guest.JoinRoomByCode(ctx, code, "Guest"); err != nil {
		t.Fatal(err)
	}

	e := host.waitEvent(t, domain.EventPlayersUpdate, func(e *domain.GameEvent) bool {
		return len(e.Payload.(*domain.PlayersUpdatePayload).Players) == 2
	})
	players := e.Payload.(*domain.PlayersUpdatePayload).Players
	if players[0].Nickname != "Host" || !players[0].IsHost || players[0].Order != 0 {
		t.Errorf("host line = %+v", players[0])
	}
	if players[1].ID != "guest" || players[1].Order != 1 {
		t.Errorf("guest line = %+v", players[1])
	}
	if e.RoomCode != code {
		t.Errorf("event room code = %q, want %q", e.RoomCode, code)
	}
}

func TestJoinRoomErrors(t *testing.T) {
	ctx := context.Background()
	settings := testSettings()
	settings.MaxPlayers = 2
	h := newHarness(t, settings)

	a, b, c := h.open("a"), h.open("b"), h.open("c")
	code, err := a.CreateRoom(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.JoinRoomByCode(ctx, "000000", "c"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Errorf("unknown code: %v", err)
	}
	if _, err := c.JoinRoomByCode(ctx, "12ab", "c"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Errorf("malformed code: %v", err)
	}
	if _, err := c.JoinRoomByCode(ctx, code, "   "); !errors.Is(err, domain.ErrInvalidNickname) {
		t.Errorf("blank nickname: %v", err)
	}
	if _, err := b.JoinRoomByCode(ctx, code, "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.JoinRoomByCode(ctx, code, "c"); !errors.Is(err, domain.ErrRoomFull) {
		t.Errorf("full room: %v", err)
	}
	if _, err := b.CreateRoom(ctx, "b"); !errors.Is(err, domain.ErrAlreadyInRoom) {
		t.Errorf("create while seated: %v", err)
	}

	eventually(t, func() bool { r := a.Room(); return r != nil && r.PlayerCount() == 2 }, "host to see guest")
	if _, err := a.StartGame(ctx); err != nil {
		t.Fatal(err)
	}
	if err := b.LeaveRoom(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.JoinRoomByCode(ctx, code, "c"); !errors.Is(err, domain.ErrRoomNotJoinable) {
		t.Errorf("playing room: %v", err)
	}
}

func TestCreateRoomRetriesTakenCodes(t *testing.T) {
	ctx := context.Background()
	settings := testSettings()
	settings.CodeAttempts = 3
	h := newHarness(t, settings)

	first := h.open("a", WithCodeGenerator(codes("111111")))
	second := h.open("b", WithCodeGenerator(codes("111111", "111111", "222222")))
	third := h.open("c", WithCodeGenerator(codes("111111", "222222")))

	if code, err := first.CreateRoom(ctx, "a"); err != nil || code != "111111" {
		t.Fatalf("first CreateRoom = %q, %v", code, err)
	}
	if code, err := second.CreateRoom(ctx, "b"); err != nil || code != "222222" {
		t.Fatalf("second CreateRoom = %q, %v", code, err)
	}
	if _, err := third.CreateRoom(ctx, "c"); !errors.Is(err, domain.ErrRoomCodeExhausted) {
		t.Errorf("third CreateRoom = %v, want ErrRoomCodeExhausted", err)
	}
	if third.RoomCode() != "" {
		t.Error("failed create left the session in a room")
	}

	if r := h.room("111111"); r == nil || r.HostID != "a" {
		t.Errorf("collision overwrote room: %+v", r)
	}
}

func TestJoinRandomMatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testSettings())

	// A waiting room whose players all dropped
	zombie := map[string]any{"roomCode": "000001", "hostId": "gone", "status": "waiting", "maxPlayers": 4}
	if err := h.hub.conn.Write(ctx, roomPath("000001"), zombie); err != nil {
		t.Fatal(err)
	}

	host := h.open("host", WithCodeGenerator(codes("000002")))
	if _, err := host.CreateRoom(ctx, "host"); err != nil {
		t.Fatal(err)
	}

	guest := h.open("guest")
	code, err := guest.JoinRandomMatch(ctx, "guest")
	if err != nil {
		t.Fatal(err)
	}
	if code != "000002" {
		t.Errorf("joined %q, want 000002", code)
	}
	if h.room("000001") != nil {
		t.Error("empty room was not reclaimed")
	}

	// Fill the only room so the next match has to create one
	for _, id := range []string{"x", "y"} {
		if _, err := h.open(id).JoinRoomByCode(ctx, "000002", id); err != nil {
			t.Fatal(err)
		}
	}

	other := h.open("other", WithCodeGenerator(codes("000003")))
	code, err = other.JoinRandomMatch(ctx, "other")
	if err != nil {
		t.Fatal(err)
	}
	if code != "000003" {
		t.Errorf("random match = %q, want a fresh room 000003", code)
	}
	if r := h.room("000003"); r == nil || r.HostID != "other" {
		t.Errorf("fresh room = %+v", r)
	}
}

func TestLeaveRoom(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testSettings())
	a, b, c := h.open("a"), h.open("b"), h.open("c")

	code, _ := a.CreateRoom(ctx, "a")
	_, _ = b.JoinRoomByCode(ctx, code, "b")
	_, _ = c.JoinRoomByCode(ctx, code, "c")

	if err := a.LeaveRoom(ctx); err != nil {
		t.Fatal(err)
	}
	if a.RoomCode() != "" {
		t.Error("leaver still in room")
	}
	if err := a.LeaveRoom(ctx); !errors.Is(err, domain.ErrNotInRoom) {
		t.Errorf("second leave = %v", err)
	}

	c.waitEvent(t, domain.EventPlayersUpdate, func(e *domain.GameEvent) bool {
		return e.Payload.(*domain.PlayersUpdatePayload).HostID == "b"
	})

	_ = b.LeaveRoom(ctx)
	_ = c.LeaveRoom(ctx)
	if h.room(code) != nil {
		t.Error("empty room not deleted")
	}
}
