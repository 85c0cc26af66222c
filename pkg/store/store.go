// Package store keeps conversation history per chat.
package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/azurellm/pkg/llms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/azurellm", "store")

// MaxMessages is the number of most recent messages kept per chat.
const MaxMessages = 50

// ErrInvalidChatID is returned when chat ID is empty.
var ErrInvalidChatID = errors.New("invalid chat ID")

// MessageStore keeps the message history of chats.
type MessageStore interface {
	// Messages returns the messages of the chat, oldest first.
	Messages(ctx context.Context, chatID string) ([]llms.Message, error)
	// Add appends messages to the chat.
	Add(ctx context.Context, chatID string, msgs ...llms.Message) error
	// Reset removes the chat history.
	Reset(ctx context.Context, chatID string) error
	// ListChats returns IDs of chats with history.
	ListChats(ctx context.Context) ([]string, error)
}
