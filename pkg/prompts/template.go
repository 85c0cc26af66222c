package prompts

import (
	"slices"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/azurellm/pkg/llms"
)

// ErrMissingVariable is returned when a declared input variable is not provided.
var ErrMissingVariable = errors.New("missing input variable")

// MessageFormatter formats values into chat messages.
type MessageFormatter interface {
	FormatMessages(values map[string]any) ([]llms.Message, error)
	GetInputVariables() []string
}

// MessagePromptTemplate renders a single message with the given role.
type MessagePromptTemplate struct {
	Role           llms.Role
	Template       string
	InputVariables []string
}

var _ MessageFormatter = MessagePromptTemplate{}

// NewSystemMessagePromptTemplate returns a system message template.
func NewSystemMessagePromptTemplate(tmpl string, inputVariables []string) MessagePromptTemplate {
	return MessagePromptTemplate{Role: llms.RoleSystem, Template: tmpl, InputVariables: inputVariables}
}

// NewHumanMessagePromptTemplate returns a human message template.
func NewHumanMessagePromptTemplate(tmpl string, inputVariables []string) MessagePromptTemplate {
	return MessagePromptTemplate{Role: llms.RoleHuman, Template: tmpl, InputVariables: inputVariables}
}

// NewAIMessagePromptTemplate returns an AI message template.
func NewAIMessagePromptTemplate(tmpl string, inputVariables []string) MessagePromptTemplate {
	return MessagePromptTemplate{Role: llms.RoleAI, Template: tmpl, InputVariables: inputVariables}
}

// FormatMessages implements MessageFormatter.
func (p MessagePromptTemplate) FormatMessages(values map[string]any) ([]llms.Message, error) {
	text, err := Render(p.Template, p.InputVariables, values)
	if err != nil {
		return nil, err
	}
	return []llms.Message{llms.MessageFromTextParts(p.Role, text)}, nil
}

// GetInputVariables implements MessageFormatter.
func (p MessagePromptTemplate) GetInputVariables() []string {
	return p.InputVariables
}

// ChatPromptTemplate combines message templates into a prompt.
type ChatPromptTemplate struct {
	Messages []MessageFormatter
}

// NewChatPromptTemplate returns a chat prompt for the message templates.
func NewChatPromptTemplate(messages []MessageFormatter) ChatPromptTemplate {
	return ChatPromptTemplate{Messages: messages}
}

// FormatPrompt renders all messages in order.
func (p ChatPromptTemplate) FormatPrompt(values map[string]any) (ChatPromptValue, error) {
	var res ChatPromptValue
	for _, m := range p.Messages {
		msgs, err := m.FormatMessages(values)
		if err != nil {
			return nil, err
		}
		res = append(res, msgs...)
	}
	return res, nil
}

// GetInputVariables returns the input variables of all messages, deduplicated.
func (p ChatPromptTemplate) GetInputVariables() []string {
	var res []string
	for _, m := range p.Messages {
		for _, v := range m.GetInputVariables() {
			if !slices.Contains(res, v) {
				res = append(res, v)
			}
		}
	}
	return res
}

// Render executes tmpl with values, after checking that all inputVariables
// are present.
func Render(tmpl string, inputVariables []string, values map[string]any) (string, error) {
	for _, name := range inputVariables {
		if _, ok := values[name]; !ok {
			return "", errors.Wrapf(ErrMissingVariable, "%q", name)
		}
	}

	t, err := template.New("prompt").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse template")
	}

	var sb strings.Builder
	if err := t.Execute(&sb, values); err != nil {
		return "", errors.Wrap(err, "failed to render template")
	}
	return sb.String(), nil
}
