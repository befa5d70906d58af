package app

import "yacht/internal/domain"

// View receives a session's notifications. Calls are made while the
// session is locked, so implementations must not block or call back into
// the session.
type View interface {
	OnRoomUpdate(p *domain.RoomUpdatePayload)
	OnPlayersUpdate(p *domain.PlayersUpdatePayload)
	OnGameStateUpdate(p *domain.GameStatePayload)
	OnScoresUpdate(p *domain.ScoresUpdatePayload)
	OnRoomDeleted(roomCode string)
	OnTimerTick(p *domain.TimerTickPayload)
	OnGameStarted(p *domain.GameStartedPayload)
	OnGameFinished(p *domain.GameFinishedPayload)
	OnNotice(p *domain.NoticePayload)
}

// EventView adapts a View to a single event sink
type EventView struct {
	roomCode func() string
	send     func(*domain.GameEvent)
}

// NewEventView creates a View that wraps every notification in a GameEvent
func NewEventView(send func(*domain.GameEvent)) *EventView {
	return &EventView{send: send, roomCode: func() string { return "" }}
}

// bind lets events carry the room code of the session they belong to
func (v *EventView) bind(s *Session) {
	v.roomCode = s.roomCodeLocked
}

func (v *EventView) emit(t domain.EventType, payload interface{}) {
	v.send(domain.NewEvent(t, v.roomCode(), payload))
}

func (v *EventView) OnRoomUpdate(p *domain.RoomUpdatePayload) {
	v.emit(domain.EventRoomUpdate, p)
}

func (v *EventView) OnPlayersUpdate(p *domain.PlayersUpdatePayload) {
	v.emit(domain.EventPlayersUpdate, p)
}

func (v *EventView) OnGameStateUpdate(p *domain.GameStatePayload) {
	v.emit(domain.EventGameStateUpdate, p)
}

func (v *EventView) OnScoresUpdate(p *domain.ScoresUpdatePayload) {
	v.emit(domain.EventScoresUpdate, p)
}

func (v *EventView) OnRoomDeleted(roomCode string) {
	v.send(domain.NewEvent(domain.EventRoomDeleted, roomCode, nil))
}

func (v *EventView) OnTimerTick(p *domain.TimerTickPayload) {
	v.emit(domain.EventTimerTick, p)
}

func (v *EventView) OnGameStarted(p *domain.GameStartedPayload) {
	v.emit(domain.EventGameStarted, p)
}

func (v *EventView) OnGameFinished(p *domain.GameFinishedPayload) {
	v.emit(domain.EventGameFinished, p)
}

func (v *EventView) OnNotice(p *domain.NoticePayload) {
	v.emit(domain.EventNotice, p)
}
