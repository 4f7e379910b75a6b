package generate

import "math/rand"

// Supported template languages.
const (
	LangEN = "en"
	LangZH = "zh"
)

// Fallback template pools, one per faction per language. Used whenever remote
// generation is disabled, times out, or returns nothing.

var redTemplatesEN = []string{
	"Only true fans understand the effort! You are just jealous!",
	"My idol's moves are art! You can't appreciate high culture!",
	"Protecting the best Giegie! 2.5 years of practice shows!",
	"Your arguments are as weak as your dance moves!",
	"Music, Chicken, Basketball... this is the holy trinity!",
	"Lawyer letter incoming! Stop slandering my Giegie!",
}

var redTemplatesZH = []string{
	"只有真爱粉才懂giegie的努力！你就是嫉妒！",
	"我家哥哥的舞姿是艺术！你不懂高雅文化！",
	"守护最好的giegie！练习时长两年半的含金量！",
	"你的论点就像你的舞步一样软弱无力！",
	"唱、跳、rap、篮球... 这是神圣的四位一体！",
	"律师函警告！停止诽谤我家giegie！",
	"承认吧，你就是眼红我家哥哥的顶流实绩！",
	"小黑子露出鸡脚了吧？只会尬黑！",
	"哥哥发烧60度还在练舞，你有什么资格喷？",
	"你这种凡人根本理解不了这种跨时代的艺术！",
}

var blackTemplatesEN = []string{
	"That performance was... interesting. In a bad way.",
	"Is this what you call talent? My grandmother dances better.",
	"All style, no substance. Typical.",
	"Show me the chicken! Where is the chicken?",
	"Aiyo! What are you doing?",
	"Jinitaimei! You are too beautiful...ly bad!",
}

var blackTemplatesZH = []string{
	"这表演真是... 一言难尽。",
	"这也叫才华？我奶奶跳得都比这好。",
	"全是花架子，没点真本事。典型。",
	"鸡脚露出来了吧！小黑子！",
	"哎哟！你在干嘛？",
	"鸡你太美！美得让人想吐！",
	"除了律师函，你们还会发什么？笑死。",
	"这也算篮球？怕不是把球当鸡蛋孵吧。",
	"两年半就练出个这？建议回炉重造。",
	"别洗了，越洗越黑，一眼假。",
}

// FallbackLine picks a uniform random line from the faction's pool. Unknown
// factions draw from the black pool; unknown languages fall back to English.
func FallbackLine(faction, lang string) string {
	var pool []string
	switch {
	case faction == "RED" && lang == LangZH:
		pool = redTemplatesZH
	case faction == "RED":
		pool = redTemplatesEN
	case lang == LangZH:
		pool = blackTemplatesZH
	default:
		pool = blackTemplatesEN
	}
	return pool[rand.Intn(len(pool))]
}
