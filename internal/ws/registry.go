package ws

import (
	"context"
	"sync"

	"github.com/lbarreto/chatsync/internal/bus"
	"github.com/lbarreto/chatsync/internal/protocol"
	"github.com/lbarreto/chatsync/internal/status"
	"go.uber.org/zap"
)

// Sender is the slice of the connection manager the registry needs.
type Sender interface {
	Send(v any) error
}

// Registry tracks which chats the client is subscribed to and replays
// the whole set on every transition into the connected state. The active
// id set lives only in this process; the server is never asked to
// persist it.
type Registry struct {
	sender Sender
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[int64]struct{}
}

// NewRegistry creates a subscription registry.
func NewRegistry(sender Sender, b *bus.Bus, logger *zap.Logger) *Registry {
	return &Registry{
		sender: sender,
		bus:    b,
		logger: logger,
		active: make(map[int64]struct{}),
	}
}

// Start watches connection state changes on the bus and replays the
// active set after each reconnect.
func (r *Registry) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	ch, unsub := r.bus.Subscribe("session.", 64)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				change, ok := evt.Payload.(status.Change)
				if ok && change.To == status.Connected {
					r.Replay()
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the replay watcher.
func (r *Registry) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// Subscribe records interest in a chat and tells the server. Safe to call
// while disconnected; the id is replayed once the socket comes back.
func (r *Registry) Subscribe(chatID int64) {
	r.mu.Lock()
	r.active[chatID] = struct{}{}
	r.mu.Unlock()

	if err := r.sender.Send(protocol.NewSubscribe(chatID)); err != nil {
		r.logger.Warn("subscribe send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// Unsubscribe withdraws interest in a chat.
func (r *Registry) Unsubscribe(chatID int64) {
	r.mu.Lock()
	delete(r.active, chatID)
	r.mu.Unlock()

	if err := r.sender.Send(protocol.NewUnsubscribe(chatID)); err != nil {
		r.logger.Warn("unsubscribe send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// SubscribeAll records and subscribes a batch of chats with a single
// frame, used when seeding from the initial chat-list fetch.
func (r *Registry) SubscribeAll(chatIDs []int64) {
	if len(chatIDs) == 0 {
		return
	}
	r.mu.Lock()
	for _, id := range chatIDs {
		r.active[id] = struct{}{}
	}
	r.mu.Unlock()

	if err := r.sender.Send(protocol.NewSubscribeAll(chatIDs)); err != nil {
		r.logger.Warn("subscribe_all send failed", zap.Int("count", len(chatIDs)), zap.Error(err))
	}
}

// Replay re-issues the full active set in one subscribe_all frame.
func (r *Registry) Replay() {
	ids := r.Active()
	if len(ids) == 0 {
		return
	}
	r.logger.Info("replaying subscriptions", zap.Int("count", len(ids)))
	if err := r.sender.Send(protocol.NewSubscribeAll(ids)); err != nil {
		r.logger.Warn("subscription replay failed", zap.Error(err))
	}
}

// Active returns the subscribed chat ids.
func (r *Registry) Active() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	return ids
}

// ActiveCount returns the number of subscribed chats.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
