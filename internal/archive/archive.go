// Package archive persists committed messages and chat snapshots to the
// local SQLite database, giving history and search across restarts. It
// feeds off the bus so the in-memory read model stays the single writer
// of record for live state.
package archive

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/lbarreto/chatsync/internal/bus"
	"github.com/lbarreto/chatsync/internal/cache"
	"github.com/lbarreto/chatsync/internal/model"
	"github.com/lbarreto/chatsync/internal/store"
	"go.uber.org/zap"
)

const previewLen = 100

// Engine subscribes to message commits and chat-list refreshes on the
// bus and mirrors them into the store.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewEngine creates a new archive engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to message and cache events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	msgCh, unsubMsg := e.bus.Subscribe("message.", 256)
	cacheCh, unsubCache := e.bus.Subscribe("cache.", 64)

	go func() {
		defer unsubMsg()
		defer unsubCache()
		for {
			select {
			case evt := <-msgCh:
				e.handleEvent(evt)
			case evt := <-cacheCh:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindMessageUpsert:
		msg, ok := evt.Payload.(model.Message)
		if !ok {
			return
		}
		if err := e.ArchiveMessage(msg); err != nil {
			e.logger.Error("failed to archive message", zap.Error(err), zap.Int64("msg_id", msg.ID))
		}
	case bus.KindMessageRemoved:
		rm, ok := evt.Payload.(cache.RemovedMessage)
		if !ok {
			return
		}
		if err := e.db.DeleteMessage(rm.ChatID, rm.MessageID); err != nil {
			e.logger.Error("failed to drop archived message", zap.Error(err), zap.Int64("msg_id", rm.MessageID))
		}
	case bus.KindChatRefreshed:
		chats, ok := evt.Payload.([]model.Chat)
		if !ok {
			return
		}
		if err := e.ArchiveChats(chats); err != nil {
			e.logger.Error("failed to archive chat snapshot", zap.Error(err), zap.Int("count", len(chats)))
		}
	}
}

// ArchiveMessage persists a single committed message (idempotent).
// Provisional rows never reach the archive; they are replaced by the
// server-confirmed row before the upsert event fires.
func (e *Engine) ArchiveMessage(msg model.Message) error {
	if msg.Provisional() {
		return nil
	}

	if err := e.db.UpsertMessage(&store.Message{
		ChatID:     msg.ChatID,
		MsgID:      msg.ID,
		AuthorID:   msg.Author.ID,
		AuthorName: msg.Author.Name,
		Body:       msg.Body,
		IsEdited:   msg.IsEdited,
		IsPinned:   msg.Pinned,
		CreateDate: msg.CreateDate,
	}); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	if err := e.db.TouchChatPreview(msg.ChatID, msg.CreateDate, truncate(msg.Body, previewLen)); err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	return nil
}

// ArchiveChats persists a chat-list snapshot in a transaction.
func (e *Engine) ArchiveChats(chats []model.Chat) error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range chats {
		var lastAt int64
		var preview string
		if c.LastMessage != nil {
			lastAt = c.LastMessage.CreateDate
			preview = truncate(c.LastMessage.Body, previewLen)
		}
		if _, err := tx.Exec(`
			INSERT INTO chats (chat_id, name, chat_type, is_internal, unread_count, last_message_at, last_message_preview, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, strftime('%s','now') * 1000)
			ON CONFLICT(chat_id) DO UPDATE SET
				name = excluded.name,
				chat_type = excluded.chat_type,
				is_internal = excluded.is_internal,
				unread_count = excluded.unread_count,
				last_message_at = excluded.last_message_at,
				last_message_preview = excluded.last_message_preview,
				updated_at = excluded.updated_at`,
			c.ID, c.Name, c.Type, c.IsInternal, c.UnreadCount, lastAt, preview); err != nil {
			return fmt.Errorf("upsert chat in snapshot: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// truncate cuts s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
