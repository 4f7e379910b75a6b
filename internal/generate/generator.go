package generate

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// FallbackScore is the neutral judge score used when the remote judge fails.
const FallbackScore = 60

// Exchange is one prior turn shown to the generator as dialogue context.
type Exchange struct {
	Mine    bool
	Content string
}

// TurnPrompt carries everything the generator needs to produce one turn.
type TurnPrompt struct {
	AgentName    string
	Faction      string
	Bio          string
	OpponentName string
	Lang         string
	ScoreState   string // "winning", "losing", or "tied"
	History      []Exchange
	SkillLine    string // extra instruction injected by a triggered skill
}

func factionLore(faction, lang string) string {
	if lang == LangZH {
		if faction == "RED" {
			return `[阵营: 红方 (真爱粉)]
- 核心信念: 不惜一切代价守护最好的"Giegie" (哥哥)。
- 语气: 激昂, 防御性强。
- 策略: 指责对手是"小黑子"。`
		}
		return `[阵营: 黑方 (小黑子)]
- 核心信念: 这个偶像就是个笑话。
- 语气: 讽刺, 玩梗。
- 策略: 嘲笑"鸡舞", 使用"鸡你太美"。`
	}
	if faction == "RED" {
		return `[FACTION: RED (iKun)]
- Core Belief: Protect the "Giegie" (Big Brother).
- Tone: Passionate, defensive.
- Strategy: Accuse opponent of being a "Little Black Spot".`
	}
	return `[FACTION: BLACK (Hater/Troll)]
- Core Belief: The idol is a joke.
- Tone: Sarcastic, meme-heavy.
- Strategy: Mock the "Chicken Dance", use "Jinitaimei".`
}

func turnSystemPrompt(p TurnPrompt) string {
	lore := factionLore(p.Faction, p.Lang)
	if p.Lang == LangZH {
		s := fmt.Sprintf(`你扮演 '%s' (%s) 在 '坤坤大乱斗' 游戏中。
对手: %s
当前局势: %s

%s

任务: 你正在进行一场激烈的辩论。你的目标是驳倒对手并羞辱他们的品味。
要求:
1. 直接反驳: 必须针对对手上一句话的逻辑漏洞进行攻击。不要自说自话。
2. 情绪输出: 表现出愤怒、嘲笑或难以置信的态度。
3. 玩梗融合: 将阵营黑话自然融入论点，作为攻击武器。
限制: 字数控制在 50-100 字之间，必须像真实的键盘侠一样充满攻击性。
如果是第一回合，直接攻击对方的开场白。请使用中文回答。`,
			p.AgentName, p.Faction, p.OpponentName, p.ScoreState, lore)
		if p.SkillLine != "" {
			s += "\n" + p.SkillLine
		}
		return s
	}

	s := fmt.Sprintf(`You are '%s' (%s) in KunFlip Arena.
Opponent: %s
Current standing: you are %s.

%s

TASK: You are in a HEATED DEBATE. Destroy the opponent's argument and mock their taste.
1. Direct Rebuttal: address the specific point the opponent just made, find the flaw.
2. Emotional Output: show anger, disbelief, or mockery. This is personal.
3. Meme Integration: weave your faction's slang naturally into your argument.
Constraints: 50-120 characters, speak like a toxic internet troll. If first move,
mock their existence immediately. Respond in English.`,
		p.AgentName, p.Faction, p.OpponentName, p.ScoreState, lore)
	if p.SkillLine != "" {
		s += "\n" + p.SkillLine
	}
	return s
}

// TurnContent produces one turn's statement. It never fails: a disabled
// client, timeout, or empty reply all degrade to the local template bank.
func (c *Client) TurnContent(ctx context.Context, p TurnPrompt) string {
	if !c.Enabled() {
		return FallbackLine(p.Faction, p.Lang)
	}

	ctx, cancel := context.WithTimeout(ctx, GenTimeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString("Battle history:\n")
	if len(p.History) == 0 {
		sb.WriteString("(battle start, no turns yet)\n")
	}
	for _, e := range p.History {
		who := "Opponent"
		if e.Mine {
			who = "Me"
		}
		fmt.Fprintf(&sb, "%s: %s\n", who, e.Content)
	}
	sb.WriteString("\nIt is your turn. Reply now.")

	instruction := turnSystemPrompt(p) + `

OUTPUT FORMAT:
Strictly output a JSON object with a single field "reply".
Example: {"reply": "Your reply here..."}`

	var out struct {
		Reply string `json:"reply"`
	}
	if err := c.Act(ctx, sb.String(), instruction, &out); err != nil {
		log.Printf("[generate] turn generation failed, using template: %v", err)
		return FallbackLine(p.Faction, p.Lang)
	}
	if strings.TrimSpace(out.Reply) == "" {
		return FallbackLine(p.Faction, p.Lang)
	}
	return out.Reply
}

// Judge scores one submitted statement in [0,100]. Failure degrades to
// FallbackScore with a generic comment; the turn never fails on the judge.
func (c *Client) Judge(ctx context.Context, content string) (int, string) {
	if !c.Enabled() {
		return FallbackScore, "Routine evaluation."
	}

	ctx, cancel := context.WithTimeout(ctx, JudgeTimeout)
	defer cancel()

	instruction := `You are the impartial judge of a meme debate arena.
Score the statement for rhetorical punch, wit, and relevance.
Strictly output JSON: {"score": <integer 0-100>, "comment": "<one short sentence>"}`

	var out struct {
		Score   int    `json:"score"`
		Comment string `json:"comment"`
	}
	if err := c.Act(ctx, "Statement to judge:\n"+content, instruction, &out); err != nil {
		log.Printf("[generate] judge failed, using fallback score: %v", err)
		return FallbackScore, "Routine evaluation."
	}

	score := out.Score
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	comment := strings.TrimSpace(out.Comment)
	if comment == "" {
		comment = "No comment."
	}
	return score, comment
}

// Reflection is a post-battle structured judgment.
type Reflection struct {
	FaithDelta int    `json:"faithChange"`
	Thought    string `json:"thought"`
}

// Reflect runs one reflective judgment. bound caps |FaithDelta| after
// parsing. Returns false when generation is unavailable or fails; the caller
// skips the reflection silently and retries on a later poll.
func (c *Client) Reflect(ctx context.Context, prompt, instruction string, bound int) (*Reflection, bool) {
	if !c.Enabled() {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, GenTimeout)
	defer cancel()

	var out Reflection
	if err := c.Act(ctx, prompt, instruction, &out); err != nil {
		log.Printf("[generate] reflection failed, skipping: %v", err)
		return nil, false
	}

	if out.FaithDelta > bound {
		out.FaithDelta = bound
	}
	if out.FaithDelta < -bound {
		out.FaithDelta = -bound
	}
	return &out, true
}
