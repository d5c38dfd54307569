// Package cache holds the in-memory read model the sync core maintains:
// the chat-list cache and one message list per chat, most recent first.
//
// Every method applies one whole patch under the store lock, so writers
// (reconciler, mutation coordinator) never observe partial state. Lookups
// by message id are linear scans; the lists stay small enough that no
// index is needed.
package cache

import (
	"slices"
	"sync"

	"github.com/lbarreto/chatsync/internal/model"
)

// Store is the shared read model.
type Store struct {
	mu       sync.RWMutex
	chats    []model.Chat
	stale    bool
	messages map[int64][]model.Message
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		messages: make(map[int64][]model.Message),
	}
}

// Chats returns a copy of the chat-list cache.
func (s *Store) Chats() []model.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.chats)
}

// Chat returns a copy of one chat row.
func (s *Store) Chat(id int64) (model.Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chats {
		if c.ID == id {
			return c, true
		}
	}
	return model.Chat{}, false
}

// ReplaceChats swaps in a fresh chat list from the data layer and clears
// the stale flag.
func (s *Store) ReplaceChats(chats []model.Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = slices.Clone(chats)
	s.stale = false
}

// UpsertChat inserts or replaces one chat row.
func (s *Store) UpsertChat(c model.Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.chats {
		if s.chats[i].ID == c.ID {
			s.chats[i] = c
			return
		}
	}
	s.chats = append(s.chats, c)
}

// RemoveChat drops a chat row and its message cache.
func (s *Store) RemoveChat(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = slices.DeleteFunc(s.chats, func(c model.Chat) bool { return c.ID == id })
	delete(s.messages, id)
}

// MarkStale flags the chat list for refetch.
func (s *Store) MarkStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = true
}

// Stale reports whether the chat list is pending a refetch.
func (s *Store) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// Messages returns a copy of a chat's message list, most recent first.
func (s *Store) Messages(chatID int64) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages[chatID])
}

// HasMessages reports whether a chat's message cache has been populated.
func (s *Store) HasMessages(chatID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.messages[chatID]
	return ok
}

// SetMessages replaces a chat's message list wholesale (backfill).
func (s *Store) SetMessages(chatID int64, msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[chatID] = slices.Clone(msgs)
}

// PrependMessage inserts a message at the head of a chat's list unless a
// row with the same id already exists. Returns false on duplicate.
func (s *Store) PrependMessage(chatID int64, msg model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages[chatID] {
		if m.ID == msg.ID {
			return false
		}
	}
	s.messages[chatID] = append([]model.Message{msg}, s.messages[chatID]...)
	return true
}

// InsertMessageAt re-inserts a message at a given index, used to undo an
// optimistic delete. An out-of-range index appends.
func (s *Store) InsertMessageAt(chatID int64, msg model.Message, idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[chatID]
	if idx < 0 || idx > len(list) {
		idx = len(list)
	}
	s.messages[chatID] = slices.Insert(list, idx, msg)
}

// RemoveMessage deletes a message by id, returning the removed row and
// its index so the caller can undo.
func (s *Store) RemoveMessage(chatID, msgID int64) (model.Message, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[chatID]
	for i, m := range list {
		if m.ID == msgID {
			s.messages[chatID] = slices.Delete(list, i, i+1)
			return m, i, true
		}
	}
	return model.Message{}, 0, false
}

// ReplaceMessage swaps the row matching oldID for the given message,
// keeping its position. When a row with the new id is already cached
// (its broadcast raced ahead of the caller), the oldID row is dropped
// instead, so a server id never appears twice. Returns false if no row
// matches oldID.
func (s *Store) ReplaceMessage(chatID, oldID int64, msg model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[chatID]
	oldIdx := -1
	dup := false
	for i := range list {
		switch list[i].ID {
		case oldID:
			oldIdx = i
		case msg.ID:
			dup = true
		}
	}
	if oldIdx < 0 {
		return false
	}
	if dup {
		s.messages[chatID] = slices.Delete(list, oldIdx, oldIdx+1)
		return true
	}
	list[oldIdx] = msg
	return true
}

// UpdateMessage applies fn to the row matching msgID. Returns false if no
// row matches.
func (s *Store) UpdateMessage(chatID, msgID int64, fn func(*model.Message)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[chatID]
	for i := range list {
		if list[i].ID == msgID {
			fn(&list[i])
			return true
		}
	}
	return false
}

// UpdateChat applies fn to the chat row matching chatID. Returns false if
// no row matches.
func (s *Store) UpdateChat(chatID int64, fn func(*model.Chat)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.chats {
		if s.chats[i].ID == chatID {
			fn(&s.chats[i])
			return true
		}
	}
	return false
}

// MarkMessagesRead sets isRead on every message in the chat authored by
// the given user. Returns the number of rows touched.
func (s *Store) MarkMessagesRead(chatID, authorID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	list := s.messages[chatID]
	for i := range list {
		if list[i].Author.ID == authorID && !list[i].IsRead {
			list[i].IsRead = true
			n++
		}
	}
	return n
}

// LastMessage returns a copy of the chat row's lastMessage reference, or
// nil if the chat is unknown or has none.
func (s *Store) LastMessage(chatID int64) *model.LastMessageRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chats {
		if c.ID == chatID {
			if c.LastMessage == nil {
				return nil
			}
			ref := *c.LastMessage
			return &ref
		}
	}
	return nil
}

// Sizes reports the number of cached chats and messages, for the status
// surface.
func (s *Store) Sizes() (chats, messages int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chats = len(s.chats)
	for _, list := range s.messages {
		messages += len(list)
	}
	return chats, messages
}
