package conversation_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/azurellm/pkg/conversation"
	"github.com/effective-security/azurellm/pkg/llms"
	"github.com/effective-security/azurellm/pkg/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChat struct {
	replies []string
	err     error
	got     [][]llms.Message
}

func (f *fakeChat) Generate(ctx context.Context, messages []llms.Message, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = append(f.got, messages)
	if f.err != nil {
		return nil, f.err
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: reply}},
	}, nil
}

func TestSession(t *testing.T) {
	chat := &fakeChat{replies: []string{"Paris", "About 2.1 million"}}
	s := conversation.NewSession(chat, conversation.WithSystemPrompt("You are a helpful assistant."))
	_, err := uuid.Parse(s.ID())
	require.NoError(t, err)

	ctx := context.Background()
	reply, err := s.Send(ctx, "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris", reply)

	reply, err = s.Send(ctx, "What is its population?")
	require.NoError(t, err)
	assert.Equal(t, "About 2.1 million", reply)

	require.Len(t, chat.got, 2)
	assert.Len(t, chat.got[0], 2)
	second := chat.got[1]
	require.Len(t, second, 4)
	assert.Equal(t, llms.RoleSystem, second[0].Role)
	assert.Equal(t, "What is the capital of France?", second[1].TextParts())
	assert.Equal(t, llms.RoleAI, second[2].Role)
	assert.Equal(t, "Paris", second[2].TextParts())
	assert.Equal(t, "What is its population?", second[3].TextParts())

	history, err := s.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 4)

	require.NoError(t, s.Reset(ctx))
	history, err = s.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSession_Failure(t *testing.T) {
	st := store.NewMemoryStore()
	chat := &fakeChat{err: errors.New("rate limited")}
	s := conversation.NewSession(chat, conversation.WithChatID("chat1"), conversation.WithStore(st))
	assert.Equal(t, "chat1", s.ID())

	_, err := s.Send(context.Background(), "hi")
	assert.EqualError(t, err, "rate limited")

	history, err := st.Messages(context.Background(), "chat1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAnswerWithContext(t *testing.T) {
	chat := &fakeChat{replies: []string{"Up to 2 weeks standby."}}
	answer, err := conversation.AnswerWithContext(context.Background(), chat,
		"What is the battery life?", "Battery: 3000mAh Li-ion (up to 2 weeks standby)")
	require.NoError(t, err)
	assert.Equal(t, "Up to 2 weeks standby.", answer)

	msgs := chat.got[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, conversation.GroundedSystemPrompt, msgs[0].TextParts())
	assert.Equal(t, "User Query: What is the battery life?\n\nContext: Battery: 3000mAh Li-ion (up to 2 weeks standby)", msgs[1].TextParts())

	chat.err = errors.New("failed")
	_, err = conversation.AnswerWithContext(context.Background(), chat, "q", "c")
	assert.Error(t, err)
}
