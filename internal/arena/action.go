package arena

// ActionKind enumerates every outcome the matchmaker's decision tick can
// produce. The set is closed: callers switch exhaustively instead of matching
// strings.
type ActionKind string

const (
	ActionBusy       ActionKind = "BUSY"
	ActionResting    ActionKind = "RESTING"
	ActionSearching  ActionKind = "SEARCHING"
	ActionWaiting    ActionKind = "WAITING"
	ActionJoined     ActionKind = "JOINED"
	ActionReflecting ActionKind = "REFLECTING"
	ActionSpectating ActionKind = "SPECTATING"
	ActionIdle       ActionKind = "IDLE"
)

// Action is the tagged result of one decision tick.
type Action struct {
	Kind     ActionKind `json:"action"`
	BattleID string     `json:"battle_id,omitempty"`
	Thought  string     `json:"thought,omitempty"`
}
