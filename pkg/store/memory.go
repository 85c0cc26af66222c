package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/effective-security/azurellm/pkg/llms"
)

type inMemory struct {
	mu      sync.RWMutex
	storage map[string][]llms.Message
}

// NewMemoryStore returns MessageStore that keeps history in memory.
func NewMemoryStore() MessageStore {
	return &inMemory{}
}

func (m *inMemory) Messages(_ context.Context, chatID string) ([]llms.Message, error) {
	if chatID == "" {
		return nil, ErrInvalidChatID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.storage[chatID]), nil
}

func (m *inMemory) Add(_ context.Context, chatID string, msgs ...llms.Message) error {
	if chatID == "" {
		return ErrInvalidChatID
	}
	if len(msgs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage == nil {
		// create on first use
		m.storage = make(map[string][]llms.Message)
	}
	list := append(m.storage[chatID], msgs...)
	if len(list) > MaxMessages {
		list = slices.Clone(list[len(list)-MaxMessages:])
	}
	m.storage[chatID] = list
	return nil
}

func (m *inMemory) Reset(_ context.Context, chatID string) error {
	if chatID == "" {
		return ErrInvalidChatID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.storage, chatID)
	return nil
}

func (m *inMemory) ListChats(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.storage))
	for id := range m.storage {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
