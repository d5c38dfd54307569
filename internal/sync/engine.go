// Package sync keeps the chat-list cache fed from the data layer: it
// seeds the cache on startup, refreshes it whenever the reconciler
// invalidates it, and backfills message lists on first access.
package sync

import (
	"context"
	"fmt"

	"github.com/lbarreto/chatsync/internal/bus"
	"github.com/lbarreto/chatsync/internal/cache"
	"github.com/lbarreto/chatsync/internal/model"
	"go.uber.org/zap"
)

const defaultBackfill = 50

// Fetcher is the read side of the data layer.
type Fetcher interface {
	FetchChats(ctx context.Context) ([]model.Chat, error)
	FetchMessages(ctx context.Context, chatID int64, limit int, before int64) ([]model.Message, error)
}

// Batcher is the slice of the subscription registry the engine needs to
// keep every cached chat subscribed.
type Batcher interface {
	SubscribeAll(chatIDs []int64)
}

// Engine refreshes the read model from the data layer.
type Engine struct {
	store  *cache.Store
	data   Fetcher
	subs   Batcher
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewEngine creates a sync engine.
func NewEngine(store *cache.Store, data Fetcher, subs Batcher, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		data:   data,
		subs:   subs,
		bus:    b,
		logger: logger,
	}
}

// Start watches for chat-list invalidations on the bus and refetches.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("cache.", 64)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				if evt.Kind != bus.KindChatInvalidate {
					continue
				}
				if err := e.Refresh(ctx); err != nil {
					e.logger.Warn("chat list refresh failed", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the invalidation watcher.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// Refresh refetches the chat list, swaps it into the cache and keeps the
// subscription set covering every chat. Also used as the initial seed
// right after connecting.
func (e *Engine) Refresh(ctx context.Context) error {
	chats, err := e.data.FetchChats(ctx)
	if err != nil {
		return fmt.Errorf("refresh chats: %w", err)
	}
	e.store.ReplaceChats(chats)

	ids := make([]int64, len(chats))
	for i, c := range chats {
		ids[i] = c.ID
	}
	e.subs.SubscribeAll(ids)
	e.bus.Emit(bus.KindChatRefreshed, chats)

	e.logger.Info("chat list refreshed", zap.Int("chats", len(chats)))
	return nil
}

// EnsureMessages backfills a chat's message cache from the data layer if
// it has not been populated yet.
func (e *Engine) EnsureMessages(ctx context.Context, chatID int64) error {
	if e.store.HasMessages(chatID) {
		return nil
	}
	msgs, err := e.data.FetchMessages(ctx, chatID, defaultBackfill, 0)
	if err != nil {
		return fmt.Errorf("backfill chat %d: %w", chatID, err)
	}
	e.store.SetMessages(chatID, msgs)
	return nil
}
