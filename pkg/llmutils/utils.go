package llmutils

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/effective-security/azurellm/pkg/llms"
	"github.com/effective-security/x/values"
)

// Generation info keys reported by providers
const (
	InputTokens  = "InputTokens"
	OutputTokens = "OutputTokens"
	TotalTokens  = "TotalTokens"
)

func ToJSON(val any) string {
	js, _ := json.Marshal(val)
	return string(js)
}

func ToJSONIndent(val any) string {
	js, _ := json.MarshalIndent(val, "", "\t")
	return string(js)
}

var roleNames = map[llms.Role]string{
	llms.RoleSystem:  "System",
	llms.RoleHuman:   "Human",
	llms.RoleAI:      "AI",
	llms.RoleGeneric: "Generic",
}

// PrintMessages is a debugging helper for Message.
func PrintMessages(w io.Writer, msgs []llms.Message) {
	for _, mc := range msgs {
		name, ok := roleNames[mc.Role]
		if !ok {
			name = strings.ToUpper(string(mc.Role))
		}
		fmt.Fprintf(w, "%s: %s", name, mc.GetContent())
	}
}

// CountMessagesContentSize counts the size of the content in the messages
func CountMessagesContentSize(msgs []llms.Message) uint64 {
	var size uint64
	for _, mc := range msgs {
		size += uint64(len(mc.Role))
		for _, p := range mc.Parts {
			switch pp := p.(type) {
			case llms.TextContent:
				size += uint64(len(pp.Text))
			case llms.ImageURLContent:
				size += uint64(len(pp.URL))
				size += uint64(len(pp.Detail))
			}
		}
	}
	return size
}

// CountResponseContentSize counts the size of the content in the content response
func CountResponseContentSize(resp *llms.ContentResponse) uint64 {
	if resp == nil {
		return 0
	}
	var size uint64
	for _, choice := range resp.Choices {
		size += uint64(len(choice.Content))
	}
	return size
}

// CountTokens returns token usage reported in GenerationInfo.
// Providers report usage of the whole request on every choice,
// so the values of the first choice are returned.
func CountTokens(resp *llms.ContentResponse) (in, out, total int64) {
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return
	}
	ma := values.MapAny(resp.Choices[0].GenerationInfo)
	in = ma.Int64(InputTokens)
	out = ma.Int64(OutputTokens)
	total = ma.Int64(TotalTokens)
	return
}

// FindLastUserQuestion returns the text of the last human message.
func FindLastUserQuestion(messages []llms.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role == llms.RoleHuman {
			for _, part := range msg.Parts {
				if textPart, ok := part.(llms.TextContent); ok {
					return textPart.Text
				}
			}
		}
	}
	return ""
}

// EnsureEndsWithNewline ensures the message ends with a newline,
// it also removes any extra leading and trailing spaces.
func EnsureEndsWithNewline(s string) string {
	s = strings.TrimSpace(s)
	c := len(s)
	if c == 0 {
		return s
	}
	if s[c-1] != '\n' {
		return s + "\n"
	}
	return s
}
