// Package optimistic makes local chat actions feel instantaneous: a
// tentative cache change is applied before the network round-trip
// completes, then confirmed against the server response or rolled back
// via the inverse patch recorded up front.
package optimistic

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lbarreto/chatsync/internal/bus"
	"github.com/lbarreto/chatsync/internal/cache"
	"github.com/lbarreto/chatsync/internal/model"
	"go.uber.org/zap"
)

// DataLayer is the request/response side of the chat backend. Mutations
// travel here, not over the socket; the socket only broadcasts outcomes.
type DataLayer interface {
	SendMessage(ctx context.Context, chatID int64, body string, attachmentIDs []int64) (model.Message, error)
	EditMessage(ctx context.Context, chatID, messageID int64, body string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	ReactMessage(ctx context.Context, chatID, messageID int64, emoji string) error
	PinMessage(ctx context.Context, chatID, messageID int64, pinned bool) error
	CreateChat(ctx context.Context, name string, memberIDs []int64) (model.Chat, error)
	DeleteChat(ctx context.Context, chatID int64) error
}

// Subscriptions is the slice of the registry chat-level mutations need.
type Subscriptions interface {
	Subscribe(chatID int64)
	Unsubscribe(chatID int64)
}

// PendingMutation correlates a provisional row with its in-flight request
// so the eventual outcome can find and replace or remove it.
type PendingMutation struct {
	TempID    int64
	RequestID string
	ChatID    int64
	prevLast  *model.LastMessageRef
}

// Hooks are optional observation points for metrics. OnRollback fires
// once per rolled-back mutation; OnOutcome fires once per resolved
// mutation with its kind and "ok" or "error".
type Hooks struct {
	OnRollback func()
	OnOutcome  func(kind, outcome string)
}

// Coordinator owns the optimistic mutation protocol. Send and delete are
// optimistic; edit, react and pin are not — their cache effects arrive
// with the broadcast event.
type Coordinator struct {
	store  *cache.Store
	api    DataLayer
	subs   Subscriptions
	bus    *bus.Bus
	logger *zap.Logger
	userID int64

	// Monotonic negative counter. Seeded from the session start time so
	// ids from a restarted process cannot collide with rows a UI still
	// holds; strictly decreasing afterwards, unlike raw -now() stamps
	// which can collide within one millisecond.
	temp atomic.Int64

	mu      sync.Mutex
	pending map[int64]*PendingMutation

	hooks Hooks
}

// NewCoordinator creates a coordinator for the given session user.
func NewCoordinator(store *cache.Store, api DataLayer, subs Subscriptions, b *bus.Bus, userID int64, logger *zap.Logger, hooks Hooks) *Coordinator {
	c := &Coordinator{
		store:   store,
		api:     api,
		subs:    subs,
		bus:     b,
		logger:  logger,
		userID:  userID,
		pending: make(map[int64]*PendingMutation),
		hooks:   hooks,
	}
	c.temp.Store(-time.Now().UnixMilli())
	return c
}

func (c *Coordinator) observe(kind string, err error) {
	if c.hooks.OnOutcome == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.hooks.OnOutcome(kind, outcome)
}

// SendAck is the payload of message.send_ack events.
type SendAck struct {
	TempID  int64
	Message model.Message
}

// SendFailure is the payload of message.send_failed events.
type SendFailure struct {
	TempID int64
	ChatID int64
	Err    error
}

// Send inserts a provisional message with a negative temporary id and
// issues the network send in the background. The provisional row is
// returned immediately; the outcome is published as message.send_ack or
// message.send_failed once the request resolves. Teardown does not
// cancel in-flight sends.
func (c *Coordinator) Send(ctx context.Context, chatID int64, body string, attachments []model.Attachment) model.Message {
	tempID := c.temp.Add(-1)
	now := time.Now().UnixMilli()

	provisional := model.Message{
		ID:          tempID,
		ChatID:      chatID,
		Body:        body,
		Author:      model.User{ID: c.userID},
		CreateDate:  now,
		Attachments: attachments,
	}

	// Inverse patch, captured before the optimistic write.
	pm := &PendingMutation{
		TempID:    tempID,
		RequestID: uuid.NewString(),
		ChatID:    chatID,
		prevLast:  c.store.LastMessage(chatID),
	}
	c.mu.Lock()
	c.pending[tempID] = pm
	c.mu.Unlock()

	c.store.PrependMessage(chatID, provisional)
	c.store.UpdateChat(chatID, func(ch *model.Chat) {
		ch.LastMessage = &model.LastMessageRef{
			ID:         tempID,
			Body:       body,
			AuthorID:   c.userID,
			CreateDate: now,
		}
	})

	go c.resolveSend(context.WithoutCancel(ctx), pm, provisional)

	return provisional
}

func (c *Coordinator) resolveSend(ctx context.Context, pm *PendingMutation, provisional model.Message) {
	confirmed, err := c.api.SendMessage(ctx, pm.ChatID, provisional.Body, attachmentIDs(provisional.Attachments))

	c.mu.Lock()
	delete(c.pending, pm.TempID)
	c.mu.Unlock()

	c.observe("send", err)
	if err != nil {
		c.logger.Warn("send failed, rolling back",
			zap.Int64("chat_id", pm.ChatID), zap.Int64("temp_id", pm.TempID), zap.Error(err))
		c.rollbackSend(pm)
		c.bus.Emit(bus.KindSendFailed, SendFailure{TempID: pm.TempID, ChatID: pm.ChatID, Err: err})
		return
	}

	// Preserve optimistic fields the response does not echo.
	if len(confirmed.Attachments) == 0 {
		confirmed.Attachments = provisional.Attachments
	}
	confirmed.ChatID = pm.ChatID
	if confirmed.Author.ID == 0 {
		confirmed.Author = provisional.Author
	}

	// When the server's own-message broadcast beat this ack, the
	// confirmed id is already cached; ReplaceMessage then drops the
	// provisional row so the id stays unique.
	c.store.ReplaceMessage(pm.ChatID, pm.TempID, confirmed)
	c.store.UpdateChat(pm.ChatID, func(ch *model.Chat) {
		if ch.LastMessage != nil && ch.LastMessage.ID == pm.TempID {
			ch.LastMessage.ID = confirmed.ID
			ch.LastMessage.CreateDate = confirmed.CreateDate
		}
	})

	c.bus.Emit(bus.KindSendAck, SendAck{TempID: pm.TempID, Message: confirmed})
	c.bus.Emit(bus.KindMessageUpsert, confirmed)
}

func (c *Coordinator) rollbackSend(pm *PendingMutation) {
	c.store.RemoveMessage(pm.ChatID, pm.TempID)
	c.store.UpdateChat(pm.ChatID, func(ch *model.Chat) {
		if ch.LastMessage != nil && ch.LastMessage.ID == pm.TempID {
			ch.LastMessage = pm.prevLast
		}
	})
	if c.hooks.OnRollback != nil {
		c.hooks.OnRollback()
	}
}

// Delete removes the message from the cache immediately and re-inserts
// it at its old position if the network delete fails. The chat row's
// lastMessage is corrected by the message_deleted broadcast.
func (c *Coordinator) Delete(ctx context.Context, chatID, messageID int64) error {
	removed, idx, ok := c.store.RemoveMessage(chatID, messageID)
	if !ok {
		err := c.api.DeleteMessage(ctx, chatID, messageID)
		c.observe("delete", err)
		return err
	}

	if err := c.api.DeleteMessage(ctx, chatID, messageID); err != nil {
		c.logger.Warn("delete failed, restoring message",
			zap.Int64("chat_id", chatID), zap.Int64("message_id", messageID), zap.Error(err))
		c.store.InsertMessageAt(chatID, removed, idx)
		if c.hooks.OnRollback != nil {
			c.hooks.OnRollback()
		}
		c.observe("delete", err)
		return err
	}

	c.bus.Emit(bus.KindMessageRemoved, cache.RemovedMessage{ChatID: chatID, MessageID: messageID})
	c.observe("delete", nil)
	return nil
}

// Edit is not optimistic: the cache is updated by the message_edited
// broadcast once the server accepts the change.
func (c *Coordinator) Edit(ctx context.Context, chatID, messageID int64, body string) error {
	err := c.api.EditMessage(ctx, chatID, messageID, body)
	c.observe("edit", err)
	return err
}

// React is not optimistic; reaction_changed carries the authoritative
// replacement set.
func (c *Coordinator) React(ctx context.Context, chatID, messageID int64, emoji string) error {
	err := c.api.ReactMessage(ctx, chatID, messageID, emoji)
	c.observe("react", err)
	return err
}

// Pin is not optimistic.
func (c *Coordinator) Pin(ctx context.Context, chatID, messageID int64, pinned bool) error {
	err := c.api.PinMessage(ctx, chatID, messageID, pinned)
	c.observe("pin", err)
	return err
}

// CreateChat creates a chat through the data layer, seeds the chat-list
// cache and subscribes to the new chat. The chat_created broadcast that
// follows is idempotent against this.
func (c *Coordinator) CreateChat(ctx context.Context, name string, memberIDs []int64) (model.Chat, error) {
	chat, err := c.api.CreateChat(ctx, name, memberIDs)
	c.observe("create_chat", err)
	if err != nil {
		return model.Chat{}, err
	}
	c.store.UpsertChat(chat)
	if c.subs != nil {
		c.subs.Subscribe(chat.ID)
	}
	return chat, nil
}

// DeleteChat removes a chat once the server confirms, dropping its cache
// row, message list and subscription.
func (c *Coordinator) DeleteChat(ctx context.Context, chatID int64) error {
	if err := c.api.DeleteChat(ctx, chatID); err != nil {
		c.observe("delete_chat", err)
		return err
	}
	c.observe("delete_chat", nil)
	c.store.RemoveChat(chatID)
	if c.subs != nil {
		c.subs.Unsubscribe(chatID)
	}
	return nil
}

// PendingCount reports the number of unresolved sends.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func attachmentIDs(atts []model.Attachment) []int64 {
	if len(atts) == 0 {
		return nil
	}
	ids := make([]int64, len(atts))
	for i, a := range atts {
		ids[i] = a.ID
	}
	return ids
}
