package prompts_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/azurellm/pkg/llms"
	"github.com/effective-security/azurellm/pkg/prompts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatPromptTemplate(t *testing.T) {
	t.Parallel()

	template := prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
		prompts.NewSystemMessagePromptTemplate(
			"You are a translation engine that can only translate text and cannot interpret it.",
			nil,
		),
		prompts.NewHumanMessagePromptTemplate(
			"translate this text from {{.inputLang}} to {{.outputLang | upper}}:\n{{.input | trim}}",
			[]string{"inputLang", "outputLang", "input"},
		),
	})
	assert.Equal(t, []string{"inputLang", "outputLang", "input"}, template.GetInputVariables())

	value, err := template.FormatPrompt(map[string]any{
		"inputLang":  "English",
		"outputLang": "Chinese",
		"input":      "  I love programming\n",
	})
	require.NoError(t, err)
	expectedMessages := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "You are a translation engine that can only translate text and cannot interpret it."),
		llms.MessageFromTextParts(llms.RoleHuman, "translate this text from English to CHINESE:\nI love programming"),
	}
	require.Equal(t, expectedMessages, value.Messages())
	assert.Equal(t, "System: You are a translation engine that can only translate text and cannot interpret it.\n"+
		"Human: translate this text from English to CHINESE:\nI love programming\n", value.String())

	_, err = template.FormatPrompt(map[string]any{
		"inputLang":  "English",
		"outputLang": "Chinese",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, prompts.ErrMissingVariable))
}

func TestRender(t *testing.T) {
	t.Parallel()

	s, err := prompts.Render("{{.a}} and {{.b | default \"none\"}}", []string{"a"}, map[string]any{"a": 1, "b": ""})
	require.NoError(t, err)
	assert.Equal(t, "1 and none", s)

	_, err = prompts.Render("{{.a", nil, nil)
	assert.ErrorContains(t, err, "failed to parse template")

	// undeclared variables still fail at render time
	_, err = prompts.Render("{{.missing}}", nil, map[string]any{})
	assert.ErrorContains(t, err, "failed to render template")

	msgs, err := prompts.NewAIMessagePromptTemplate("ok", nil).FormatMessages(nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, llms.RoleAI, msgs[0].Role)
}
