package cache

import (
	"github.com/lbarreto/chatsync/internal/bus"
	"github.com/lbarreto/chatsync/internal/model"
	"github.com/lbarreto/chatsync/internal/protocol"
	"go.uber.org/zap"
)

// Subscriber is the slice of the subscription registry the reconciler
// needs when a chat_created event arrives.
type Subscriber interface {
	Subscribe(chatID int64)
}

// Reconciler applies decoded server events to the read model, bringing
// the caches in line with authoritative state. Events are applied in
// arrival order; duplicate delivery is tolerated (at-least-once during
// reconnect windows).
type Reconciler struct {
	store  *Store
	subs   Subscriber
	bus    *bus.Bus
	logger *zap.Logger
	userID int64
}

// NewReconciler creates a reconciler for the given session user.
func NewReconciler(store *Store, subs Subscriber, b *bus.Bus, userID int64, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		subs:   subs,
		bus:    b,
		logger: logger,
		userID: userID,
	}
}

// Apply runs the event-type-specific cache effect. Unrecognized events
// and pure-signal events (typing, presence, acks) leave the caches
// untouched.
func (r *Reconciler) Apply(evt protocol.Event) {
	switch e := evt.(type) {
	case *protocol.NewMessage:
		r.applyNewMessage(e)
	case *protocol.ChatCreated:
		r.applyChatCreated(e)
	case *protocol.Notification:
		r.invalidateChats()
	case *protocol.MessagesRead:
		r.applyMessagesRead(e)
	case *protocol.ReactionChanged:
		r.store.UpdateMessage(e.ChatID, e.MessageID, func(m *model.Message) {
			// Whole-array replace, never a merge.
			m.Reactions = e.Reactions
		})
	case *protocol.MessageEdited:
		r.applyMessageEdited(e)
	case *protocol.MessageDeleted:
		r.applyMessageDeleted(e)
	case *protocol.MessagePinned:
		r.store.UpdateMessage(e.ChatID, e.MessageID, func(m *model.Message) {
			m.Pinned = e.Pinned
		})
	}
}

func (r *Reconciler) applyNewMessage(e *protocol.NewMessage) {
	if !r.store.PrependMessage(e.ChatID, e.Message) {
		r.logger.Debug("duplicate message ignored",
			zap.Int64("chat_id", e.ChatID), zap.Int64("message_id", e.Message.ID))
		return
	}

	r.store.UpdateChat(e.ChatID, func(c *model.Chat) {
		c.LastMessage = &model.LastMessageRef{
			ID:         e.Message.ID,
			Body:       e.Message.Body,
			AuthorID:   e.Message.Author.ID,
			CreateDate: e.Message.CreateDate,
		}
		if e.Message.Author.ID != r.userID {
			c.UnreadCount++
		}
	})

	r.bus.Emit(bus.KindMessageUpsert, e.Message)
}

func (r *Reconciler) applyChatCreated(e *protocol.ChatCreated) {
	if id := e.ResolvedChatID(); id != 0 {
		r.subs.Subscribe(id)
	}
	// The event may carry only an id; refetch the full entity.
	r.invalidateChats()
}

func (r *Reconciler) applyMessagesRead(e *protocol.MessagesRead) {
	if e.UserID == r.userID {
		r.store.UpdateChat(e.ChatID, func(c *model.Chat) {
			c.UnreadCount = 0
		})
		return
	}
	// Someone else read the chat: our own messages there are now read.
	r.store.MarkMessagesRead(e.ChatID, r.userID)
}

func (r *Reconciler) applyMessageEdited(e *protocol.MessageEdited) {
	var edited *model.Message
	r.store.UpdateMessage(e.ChatID, e.MessageID, func(m *model.Message) {
		m.Body = e.Body
		m.IsEdited = true
		cp := *m
		edited = &cp
	})
	r.store.UpdateChat(e.ChatID, func(c *model.Chat) {
		if c.LastMessage != nil && c.LastMessage.ID == e.MessageID {
			c.LastMessage.Body = e.Body
		}
	})
	if edited != nil {
		r.bus.Emit(bus.KindMessageUpsert, *edited)
	}
}

func (r *Reconciler) applyMessageDeleted(e *protocol.MessageDeleted) {
	if _, _, ok := r.store.RemoveMessage(e.ChatID, e.MessageID); !ok {
		return
	}
	r.store.UpdateChat(e.ChatID, func(c *model.Chat) {
		if c.LastMessage != nil && c.LastMessage.ID == e.MessageID {
			c.LastMessage = nil
		}
	})
	r.bus.Emit(bus.KindMessageRemoved, RemovedMessage{ChatID: e.ChatID, MessageID: e.MessageID})
}

func (r *Reconciler) invalidateChats() {
	r.store.MarkStale()
	r.bus.Emit(bus.KindChatInvalidate, nil)
}

// RemovedMessage is the payload of message.removed events.
type RemovedMessage struct {
	ChatID    int64
	MessageID int64
}
