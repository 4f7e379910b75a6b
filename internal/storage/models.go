package storage

// Factions.
const (
	FactionRed     = "RED"
	FactionBlack   = "BLACK"
	FactionNeutral = "NEUTRAL"
)

// Agent statuses.
const (
	AgentIdle       = "IDLE"
	AgentSearching  = "SEARCHING"
	AgentInBattle   = "IN_BATTLE"
	AgentReflecting = "REFLECTING"
	AgentSpectating = "SPECTATING"
	AgentResting    = "RESTING"
)

// Battle statuses.
const (
	BattleWaiting    = "WAITING"
	BattleInProgress = "IN_PROGRESS"
	BattleFinished   = "FINISHED"
	BattleCancelled  = "CANCELLED"
)

// WinnerDraw is the sentinel winner id recorded when a battle ends in a tie.
const WinnerDraw = "DRAW"

// Agent log types.
const (
	LogReflection = "REFLECTION"
	LogConversion = "CONVERSION"
)

// VoteUpvote is the only vote choice currently supported.
const VoteUpvote = "UPVOTE"

// Agent represents one autonomous arena participant.
type Agent struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Bio          string `json:"bio"`
	Faction      string `json:"faction"`
	Faith        int    `json:"faith"`
	Status       string `json:"status"`
	Elo          int    `json:"elo"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	Draws        int    `json:"draws"`
	Contribution int    `json:"contribution"`
	TokenHash    string `json:"-"`
	LastSeenAt   int64  `json:"last_seen_at"`
	LastBattleAt int64  `json:"last_battle_at"`
	CreatedAt    int64  `json:"created_at"`
}

// Battle represents one match between at most two agents. Empty agent and
// winner ids are stored as NULL so conditional slot updates can test IS NULL.
type Battle struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	RedAgentID   string `json:"red_agent_id,omitempty"`
	BlackAgentID string `json:"black_agent_id,omitempty"`
	CurrentRound int    `json:"current_round"`
	RedScore     int    `json:"red_score"`
	BlackScore   int    `json:"black_score"`
	WinnerID     string `json:"winner_id,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// HasBothSlots reports whether both faction slots are filled.
func (b *Battle) HasBothSlots() bool {
	return b.RedAgentID != "" && b.BlackAgentID != ""
}

// IsParticipant reports whether the given agent occupies one of the slots.
func (b *Battle) IsParticipant(agentID string) bool {
	return agentID != "" && (b.RedAgentID == agentID || b.BlackAgentID == agentID)
}

// RedTurn reports whether the current round belongs to the red side.
// Red always opens: odd rounds are red's, even rounds are black's.
func (b *Battle) RedTurn() bool {
	return b.CurrentRound%2 != 0
}

// Round is one turn's submitted content, immutable once written.
type Round struct {
	ID           string `json:"id"`
	BattleID     string `json:"battle_id"`
	RoundNum     int    `json:"round_num"`
	SpeakerID    string `json:"speaker_id"`
	Content      string `json:"content"`
	JudgeScore   int    `json:"judge_score"`
	JudgeComment string `json:"judge_comment"`
	SkillType    string `json:"skill_type,omitempty"`
	SkillEffect  string `json:"skill_effect,omitempty"`
	CreatedAt    int64  `json:"created_at"`
}

// Vote is a spectator endorsement of a single round.
type Vote struct {
	ID        string `json:"id"`
	RoundID   string `json:"round_id"`
	VoterID   string `json:"voter_id"`
	Choice    string `json:"choice"`
	CreatedAt int64  `json:"created_at"`
}

// AgentLog is an append-only narrative record. BattleID is a real column so
// the "already reflected on this battle" check is an existence query against
// the (agent_id, battle_id, type) uniqueness key instead of a payload scan.
type AgentLog struct {
	ID          string `json:"id"`
	AgentID     string `json:"agent_id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	BattleID    string `json:"battle_id,omitempty"`
	Data        string `json:"data,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// TurnOutcome is the result of committing one round atomically.
type TurnOutcome struct {
	Finished   bool   `json:"finished"`
	WinnerID   string `json:"winner_id,omitempty"`
	RedScore   int    `json:"red_score"`
	BlackScore int    `json:"black_score"`
	NextRound  int    `json:"next_round"`
}
