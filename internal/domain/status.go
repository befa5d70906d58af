package domain

// Status represents where a room is in its lifecycle
type Status string

const (
	StatusWaiting  Status = "waiting"  // Lobby, players may join
	StatusPlaying  Status = "playing"  // Turns in progress
	StatusFinished Status = "finished" // Terminal
)

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// CanTransitionTo checks if moving from s to target is a valid forward step
func (s Status) CanTransitionTo(target Status) bool {
	validTransitions := map[Status][]Status{
		StatusWaiting: {StatusPlaying},
		StatusPlaying: {StatusFinished},
	}

	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}

	for _, status := range allowed {
		if status == target {
			return true
		}
	}
	return false
}
