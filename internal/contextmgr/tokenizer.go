package contextmgr

import (
	"strings"

	"github.com/mattn/go-runewidth"
	tiktoken "github.com/pkoukk/tiktoken-go"

	"ask/internal/chat"
)

// messageOverhead approximates the role and framing tokens of one message.
const messageOverhead = 4

// Tokenizer 统计会话历史的 token 数，用于分隔行展示
// Tokenizer counts history tokens for the turn separator
//
// A nil Tokenizer, or one without BPE data, estimates instead.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTokenizerForModel loads the BPE encoding the model family uses. When the
// encoding cannot be loaded (offline, no cache) the tokenizer estimates.
func NewTokenizerForModel(model string) *Tokenizer {
	enc, err := tiktoken.GetEncoding(encodingFor(model))
	if err != nil {
		return &Tokenizer{}
	}
	return &Tokenizer{enc: enc}
}

// Count returns the tokens of every message, role and content included.
func (t *Tokenizer) Count(messages []chat.Message) int {
	total := 0
	for _, m := range messages {
		total += messageOverhead + t.text(string(m.Role)) + t.text(m.Content)
	}
	return total
}

func (t *Tokenizer) text(s string) int {
	if s == "" {
		return 0
	}
	if t == nil || t.enc == nil {
		return estimate(s)
	}
	return len(t.enc.Encode(s, nil, nil))
}

// EstimateTokens counts without BPE data.
func EstimateTokens(messages []chat.Message) int {
	var t *Tokenizer
	return t.Count(messages)
}

// estimate charges 1.5 tokens per wide (CJK) rune and 0.25 per narrow rune.
func estimate(s string) int {
	wide, narrow := 0, 0
	for _, r := range s {
		if runewidth.RuneWidth(r) == 2 {
			wide++
		} else {
			narrow++
		}
	}
	n := wide*3/2 + narrow/4
	if n < 1 {
		return 1
	}
	return n
}

func encodingFor(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, p := range []string{"gpt-4o", "chatgpt-4o", "o1", "o3", "o4"} {
		if strings.HasPrefix(m, p) {
			return "o200k_base"
		}
	}
	return "cl100k_base"
}
