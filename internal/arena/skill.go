package arena

import (
	"fmt"
	"math/rand"

	"github.com/kunflip-labs/kunarena/internal/storage"
)

// SkillChance is the probability that a turn triggers a skill.
const SkillChance = 0.25

// Skill is a cosmetic modifier that alters one turn's prompt and applies a
// deterministic transform to the judged score. Crit rolls are resolved at
// trigger time, so applying a skill is pure.
type Skill struct {
	Type   string
	Line   string // instruction injected into the generation prompt
	flat   int
	mult   float64
	effect string
}

// Apply transforms a raw judge score, flooring and clamping to [0,100].
// It also returns the effect label stored on the round.
func (s *Skill) Apply(score int) (int, string) {
	v := float64(score)
	if s.mult != 0 {
		v *= s.mult
	}
	v += float64(s.flat)
	n := int(v)
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	return n, s.effect
}

func flatSkill(typ, line string, bonus int) *Skill {
	return &Skill{Type: typ, Line: line, flat: bonus, effect: fmt.Sprintf("+%d", bonus)}
}

func multSkill(typ, line string, mult float64) *Skill {
	return &Skill{Type: typ, Line: line, mult: mult, effect: fmt.Sprintf("x%.2f", mult)}
}

func critSkill(typ, line string, rng *rand.Rand) *Skill {
	if rng.Float64() < 0.5 {
		return &Skill{Type: typ, Line: line, mult: 2.0, effect: "CRIT x2.0"}
	}
	return &Skill{Type: typ, Line: line, mult: 0.5, effect: "FAIL x0.5"}
}

// triggerSkill rolls for a skill on this turn. Returns nil on the ~75% of
// turns where nothing triggers, and for factions without a skill table.
func triggerSkill(rng *rand.Rand, chance float64, faction string) *Skill {
	if rng.Float64() >= chance {
		return nil
	}
	switch faction {
	case storage.FactionRed:
		switch rng.Intn(4) {
		case 0:
			return flatSkill("SHOWTIME",
				"SKILL ACTIVE: SHOWTIME. Put on a full song-and-dance performance in words.", 30)
		case 1:
			return multSkill("LAWYER_LETTER",
				"SKILL ACTIVE: LAWYER_LETTER. Threaten formal legal action over the slander.", 1.25)
		case 2:
			return flatSkill("TRUE_FAN",
				"SKILL ACTIVE: TRUE_FAN. Testify to years of devoted support.", 15)
		default:
			return critSkill("BASKETBALL",
				"SKILL ACTIVE: BASKETBALL. Challenge them on the court, all or nothing.", rng)
		}
	case storage.FactionBlack:
		switch rng.Intn(4) {
		case 0:
			return flatSkill("GLITCH",
				"SKILL ACTIVE: GLITCH. Replay their most embarrassing clip frame by frame.", 20)
		case 1:
			return multSkill("JINITAIMEI",
				"SKILL ACTIVE: JINITAIMEI. Deploy the sacred chant at maximum volume.", 1.25)
		case 2:
			return flatSkill("DARK_SPOT",
				"SKILL ACTIVE: DARK_SPOT. Reveal a receipts-backed flaw they cannot deny.", 15)
		default:
			return critSkill("MEME_BOMB",
				"SKILL ACTIVE: MEME_BOMB. Drop every meme at once and pray it lands.", rng)
		}
	}
	return nil
}
