// Package arena implements the matchmaking and battle-progression state
// machine. There is no scheduler: every transition is an idempotent,
// race-tolerant function over the shared store, invoked redundantly by many
// polling clients. Mutual exclusion comes entirely from the store's
// conditional updates and uniqueness constraints; losing a race is an
// expected outcome, never an error to retry in-call.
package arena

import (
	"math/rand"
	"sync"
	"time"

	"github.com/kunflip-labs/kunarena/internal/generate"
	"github.com/kunflip-labs/kunarena/internal/storage"
)

// Battle progression constants.
const (
	TurnCap  = 12 // total turns per battle, 6 per side
	EloDelta = 24 // fixed rating swing, no dynamic K-factor

	// MaxContentBytes bounds one turn's statement.
	MaxContentBytes = 280
)

// Timing windows. All are anchored on store timestamps, not in-memory state.
const (
	WaitingStaleAfter  = 60 * time.Second // host gives up on an unjoined room
	ReflectionWindow   = 60 * time.Second // finished battles eligible for reflection
	Cooldown           = 30 * time.Second // rest after a battle
	JoinFreshness      = 60 * time.Second // WAITING rooms older than this are not joined
	ActiveAgentWindow  = 2 * time.Minute  // lobby "active" heartbeat cutoff
	LobbyWaitingStale  = 2 * time.Minute  // reconciliation: WAITING rooms
	LobbyProgressStale = 10 * time.Minute // reconciliation: IN_PROGRESS rooms

	// DefaultTurnTimeout is the per-turn deadline before the sweeper forfeits
	// the stalled side. Overridable via configuration.
	DefaultTurnTimeout = 90 * time.Second
)

// FightWillingness is the per-tick probability that an off-cooldown agent
// actually looks for an opponent instead of idling.
const FightWillingness = 0.7

// Engine holds the shared dependencies of all arena operations.
type Engine struct {
	db          *storage.DB
	gen         *generate.Client
	turnTimeout time.Duration
	skillChance float64
	willingness float64
	rng         *rand.Rand
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithTurnTimeout overrides the sweeper's per-turn deadline. Non-positive
// values keep the default.
func WithTurnTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.turnTimeout = d
		}
	}
}

// WithRand injects a deterministic random source for tests.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// WithSkillChance overrides the per-turn skill trigger probability.
func WithSkillChance(p float64) Option {
	return func(e *Engine) { e.skillChance = p }
}

// WithWillingness overrides the per-tick fight probability.
func WithWillingness(p float64) Option {
	return func(e *Engine) { e.willingness = p }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// lockedSource serializes a rand source. The engine's rng is drawn from by
// concurrent request handlers, and math/rand sources are not safe for that
// on their own.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source64
}

func (s *lockedSource) Int63() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Int63()
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

func (s *lockedSource) Seed(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.src.Seed(seed)
}

// NewEngine builds an arena engine over the given store and generator.
func NewEngine(db *storage.DB, gen *generate.Client, opts ...Option) *Engine {
	src := rand.NewSource(time.Now().UnixNano()).(rand.Source64)
	e := &Engine{
		db:          db,
		gen:         gen,
		turnTimeout: DefaultTurnTimeout,
		skillChance: SkillChance,
		willingness: FightWillingness,
		rng:         rand.New(&lockedSource{src: src}),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TurnTimeout reports the configured per-turn deadline.
func (e *Engine) TurnTimeout() time.Duration {
	return e.turnTimeout
}

func clampFaith(v int) int {
	if v > 100 {
		return 100
	}
	if v < -100 {
		return -100
	}
	return v
}

func truncateContent(s string) string {
	if len(s) <= MaxContentBytes {
		return s
	}
	// Cut on a rune boundary so multi-byte text stays valid.
	b := []byte(s)[:MaxContentBytes]
	for len(b) > 0 && b[len(b)-1]&0xC0 == 0x80 {
		b = b[:len(b)-1]
	}
	if len(b) > 0 && b[len(b)-1]&0xC0 == 0xC0 {
		b = b[:len(b)-1]
	}
	return string(b)
}
