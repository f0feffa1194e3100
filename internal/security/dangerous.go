package security

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

type riskRule struct {
	pattern *regexp.Regexp
	reason  string
}

var riskRules = []riskRule{
	{regexp.MustCompile(`(^|[\s;&|()])(rm|mv|chmod|chown|dd|mkfs(\.\w+)?|shutdown|reboot|halt|poweroff|kill|killall|pkill)([\s;&|()]|$)`), "modifies or destroys files or processes"},
	{regexp.MustCompile(`(^|[\s;&|()])sudo([\s;&|()]|$)`), "runs with elevated privileges"},
	{regexp.MustCompile(`(curl|wget)[^|]*\|\s*(sudo\s+)?(sh|bash|zsh)\b`), "pipes a download into a shell"},
	{regexp.MustCompile(`>\s*/dev/(sd|nvme|disk)`), "writes to a block device"},
	{regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\};:`), "fork bomb"},
}

// CommandRisk 命令风险评估结果，用于执行前确认时提示用户
// CommandRisk is the risk assessment shown to the user before confirming execution
type CommandRisk struct {
	Risky   bool
	Reasons []string
}

// Summary joins the reasons into one line.
func (r CommandRisk) Summary() string {
	return strings.Join(r.Reasons, "; ")
}

func AnalyzeCommand(command string) CommandRisk {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return CommandRisk{}
	}

	var reasons []string
	if strings.Contains(trimmed, "$(") || strings.Contains(trimmed, "`") {
		reasons = append(reasons, "contains command substitution/backticks")
	}
	if _, err := parseShellWords(trimmed); err != nil {
		reasons = append(reasons, "command parse failed: "+err.Error())
	}
	for _, rule := range riskRules {
		if rule.pattern.MatchString(trimmed) {
			reasons = append(reasons, rule.reason)
		}
	}
	return CommandRisk{Risky: len(reasons) > 0, Reasons: reasons}
}

func parseShellWords(input string) ([]string, error) {
	var (
		out         []string
		cur         strings.Builder
		inSingle    bool
		inDouble    bool
		escaped     bool
		justFlushed bool
	)

	flush := func() {
		if cur.Len() > 0 || justFlushed {
			out = append(out, cur.String())
			cur.Reset()
			justFlushed = false
		}
	}

	for _, r := range input {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && !inSingle:
			escaped = true
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			justFlushed = true
		case r == '"' && !inSingle:
			inDouble = !inDouble
			justFlushed = true
		case isSpace(r) && !inSingle && !inDouble:
			flush()
		default:
			cur.WriteRune(r)
			justFlushed = false
		}
	}

	if escaped {
		return nil, errors.New("dangling escape")
	}
	if inSingle || inDouble {
		return nil, fmt.Errorf("unmatched quote")
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out, nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n'
}
