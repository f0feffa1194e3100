package chat

import "unicode/utf8"

// Role 消息角色
// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message 对话中的一条消息，按值传递
// Message is one conversation entry; it is passed by value
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }
func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }

// Len returns the content length in characters.
func (m Message) Len() int {
	return utf8.RuneCountInString(m.Content)
}

// CountChars 统计所有消息内容的字符总数
// CountChars sums the content length of all messages in characters
func CountChars(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += m.Len()
	}
	return total
}

// Clone returns a copy of messages that shares no backing array with the input.
func Clone(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}
