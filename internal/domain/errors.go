package domain

import "errors"

// Domain errors
var (
	ErrRoomNotFound          = errors.New("room not found")
	ErrRoomNotJoinable       = errors.New("room is not accepting players")
	ErrRoomFull              = errors.New("room is full")
	ErrRoomCodeExhausted     = errors.New("could not allocate a free room code")
	ErrNotHost               = errors.New("only host can perform this action")
	ErrInsufficientPlayers   = errors.New("not enough players to start")
	ErrNotYourTurn           = errors.New("not your turn")
	ErrNoRollsLeft           = errors.New("no rolls left this turn")
	ErrRollInFlight          = errors.New("dice are already rolling")
	ErrCategoryAlreadyFilled = errors.New("category already filled")
	ErrNotYetRolled          = errors.New("dice have not been rolled this turn")
	ErrOutOfRolls            = errors.New("out of rolls, pick a category")
	ErrUnknownCategory       = errors.New("unknown score category")
	ErrInvalidDieIndex       = errors.New("invalid die index")
	ErrInvalidNickname       = errors.New("nickname must be 1-10 characters")
	ErrNotInRoom             = errors.New("not in a room")
	ErrAlreadyInRoom         = errors.New("already in a room")
	ErrGameNotPlaying        = errors.New("game is not in progress")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrPlayerNotFound        = errors.New("player not found")
	ErrSessionActive         = errors.New("identity already has an open session")
)
