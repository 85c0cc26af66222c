// Package conversation runs multi-turn chats over a MessageStore.
package conversation

import (
	"context"

	"github.com/effective-security/azurellm/pkg/llms"
	"github.com/effective-security/azurellm/pkg/prompts"
	"github.com/effective-security/azurellm/pkg/store"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/azurellm", "conversation")

// Chat generates a reply for messages.
type Chat interface {
	Generate(ctx context.Context, messages []llms.Message, opts ...llms.CallOption) (*llms.ContentResponse, error)
}

// Option configures Session.
type Option func(*Session)

// WithSystemPrompt sets the system message sent before the history.
func WithSystemPrompt(prompt string) Option {
	return func(s *Session) {
		s.system = prompt
	}
}

// WithChatID sets the chat ID, a new ID is generated by default.
func WithChatID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// WithStore sets the history store, in-memory store is used by default.
func WithStore(st store.MessageStore) Option {
	return func(s *Session) {
		s.store = st
	}
}

// Session is a multi-turn chat.
type Session struct {
	id     string
	system string
	store  store.MessageStore
	chat   Chat
}

// NewSession returns Session.
func NewSession(chat Chat, opts ...Option) *Session {
	s := &Session{chat: chat}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		s.id = id.String()
	}
	if s.store == nil {
		s.store = store.NewMemoryStore()
	}
	return s
}

// ID returns the chat ID.
func (s *Session) ID() string {
	return s.id
}

// Send sends text with the chat history and returns the reply.
// The turn is added to the history only when the call succeeds.
func (s *Session) Send(ctx context.Context, text string, opts ...llms.CallOption) (string, error) {
	history, err := s.store.Messages(ctx, s.id)
	if err != nil {
		return "", err
	}

	human := llms.HumanMessage(text)
	msgs := make([]llms.Message, 0, len(history)+2)
	if s.system != "" {
		msgs = append(msgs, llms.SystemMessage(s.system))
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, human)

	resp, err := s.chat.Generate(ctx, msgs, opts...)
	if err != nil {
		return "", err
	}

	reply := resp.Content()
	if err := s.store.Add(ctx, s.id, human, llms.AIMessage(reply)); err != nil {
		return "", err
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "turn",
		"chat", s.id,
		"history", len(history)+2)
	return reply, nil
}

// History returns the chat history, oldest first.
func (s *Session) History(ctx context.Context) ([]llms.Message, error) {
	return s.store.Messages(ctx, s.id)
}

// Reset clears the chat history.
func (s *Session) Reset(ctx context.Context) error {
	return s.store.Reset(ctx, s.id)
}

// GroundedSystemPrompt instructs the model to answer from the given context.
const GroundedSystemPrompt = "You are a helpful assistant that provides accurate information based on the provided context. " +
	"Limit yourself to only the requested user queries response."

// GroundedPrompt is the prompt used by AnswerWithContext,
// with "query" and "context" input variables.
var GroundedPrompt = prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
	prompts.NewSystemMessagePromptTemplate(GroundedSystemPrompt, nil),
	prompts.NewHumanMessagePromptTemplate("User Query: {{.query}}\n\nContext: {{.context}}", []string{"query", "context"}),
})

// AnswerWithContext asks query grounded on retrieved context.
func AnswerWithContext(ctx context.Context, chat Chat, query, retrieved string, opts ...llms.CallOption) (string, error) {
	msgs, err := GroundedPrompt.FormatPrompt(map[string]any{
		"query":   query,
		"context": retrieved,
	})
	if err != nil {
		return "", err
	}
	resp, err := chat.Generate(ctx, msgs.Messages(), opts...)
	if err != nil {
		return "", err
	}
	return resp.Content(), nil
}
