package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lbarreto/chatsync/internal/bus"
	"github.com/lbarreto/chatsync/internal/cache"
	"github.com/lbarreto/chatsync/internal/model"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	chats    []model.Chat
	chatsErr error
	messages map[int64][]model.Message
	fetches  atomic.Int32
}

func (f *fakeFetcher) FetchChats(context.Context) ([]model.Chat, error) {
	f.fetches.Add(1)
	return f.chats, f.chatsErr
}

func (f *fakeFetcher) FetchMessages(_ context.Context, chatID int64, _ int, _ int64) ([]model.Message, error) {
	return f.messages[chatID], nil
}

type fakeBatcher struct {
	batches [][]int64
}

func (f *fakeBatcher) SubscribeAll(ids []int64) {
	f.batches = append(f.batches, ids)
}

func TestRefreshSeedsCacheAndSubscribes(t *testing.T) {
	store := cache.NewStore()
	fetcher := &fakeFetcher{chats: []model.Chat{{ID: 1}, {ID: 2}}}
	batcher := &fakeBatcher{}
	e := NewEngine(store, fetcher, batcher, bus.New(), zap.NewNop())

	if err := e.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if len(store.Chats()) != 2 {
		t.Errorf("cache has %d chats, want 2", len(store.Chats()))
	}
	if len(batcher.batches) != 1 || len(batcher.batches[0]) != 2 {
		t.Errorf("batches = %v, want one batch of 2 ids", batcher.batches)
	}
	if store.Stale() {
		t.Error("stale flag not cleared by refresh")
	}
}

func TestRefreshError(t *testing.T) {
	e := NewEngine(cache.NewStore(), &fakeFetcher{chatsErr: errors.New("down")}, &fakeBatcher{}, bus.New(), zap.NewNop())
	if err := e.Refresh(context.Background()); err == nil {
		t.Error("Refresh() expected error")
	}
}

func TestInvalidationTriggersRefetch(t *testing.T) {
	store := cache.NewStore()
	fetcher := &fakeFetcher{chats: []model.Chat{{ID: 1}}}
	b := bus.New()
	e := NewEngine(store, fetcher, &fakeBatcher{}, b, zap.NewNop())

	e.Start(context.Background())
	defer e.Stop()

	b.Emit(bus.KindChatInvalidate, nil)

	deadline := time.Now().Add(time.Second)
	for len(store.Chats()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(store.Chats()) != 1 {
		t.Fatal("cache not refreshed after invalidation")
	}
	if got := fetcher.fetches.Load(); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}
}

func TestEnsureMessagesBackfillsOnce(t *testing.T) {
	store := cache.NewStore()
	fetcher := &fakeFetcher{messages: map[int64][]model.Message{
		7: {{ID: 2, Body: "b"}, {ID: 1, Body: "a"}},
	}}
	e := NewEngine(store, fetcher, &fakeBatcher{}, bus.New(), zap.NewNop())

	if err := e.EnsureMessages(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	if got := store.Messages(7); len(got) != 2 || got[0].ID != 2 {
		t.Errorf("messages = %+v", got)
	}

	// A populated cache must not be refetched.
	fetcher.messages[7] = nil
	if err := e.EnsureMessages(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	if len(store.Messages(7)) != 2 {
		t.Error("populated cache was overwritten")
	}
}
