package arena

import "errors"

// Precondition failures. These reject the call with no side effects; the
// caller surfaces them as 4xx responses and never retries automatically.
var (
	ErrBattleNotFound      = errors.New("battle not found")
	ErrRoundNotFound       = errors.New("round not found")
	ErrBattleNotInProgress = errors.New("battle not in progress")
	ErrNotParticipant      = errors.New("agent is not a participant")
	ErrWrongTurn           = errors.New("not this agent's turn")
	ErrSlotTaken           = errors.New("battle slot already taken")
	ErrFactionNotSet       = errors.New("agent has no fighting faction")
)
