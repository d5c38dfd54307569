package optimistic

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/lbarreto/chatsync/internal/bus"
	"github.com/lbarreto/chatsync/internal/cache"
	"github.com/lbarreto/chatsync/internal/model"
	"go.uber.org/zap"
)

const currentUserID = int64(1)

// fakeDataLayer scripts the outcome of each mutation call.
type fakeDataLayer struct {
	sendResult model.Message
	sendErr    error
	sendGate   chan struct{} // when set, SendMessage blocks until closed
	deleteErr  error
	editErr    error
	chatResult model.Chat
	chatErr    error

	deleted [][2]int64
	edited  []string
}

func (f *fakeDataLayer) SendMessage(_ context.Context, chatID int64, body string, _ []int64) (model.Message, error) {
	if f.sendGate != nil {
		<-f.sendGate
	}
	if f.sendErr != nil {
		return model.Message{}, f.sendErr
	}
	res := f.sendResult
	if res.Body == "" {
		res.Body = body
	}
	return res, nil
}

func (f *fakeDataLayer) EditMessage(_ context.Context, _, _ int64, body string) error {
	f.edited = append(f.edited, body)
	return f.editErr
}

func (f *fakeDataLayer) DeleteMessage(_ context.Context, chatID, messageID int64) error {
	f.deleted = append(f.deleted, [2]int64{chatID, messageID})
	return f.deleteErr
}

func (f *fakeDataLayer) ReactMessage(context.Context, int64, int64, string) error { return nil }

func (f *fakeDataLayer) PinMessage(context.Context, int64, int64, bool) error { return nil }

func (f *fakeDataLayer) CreateChat(context.Context, string, []int64) (model.Chat, error) {
	return f.chatResult, f.chatErr
}

func (f *fakeDataLayer) DeleteChat(context.Context, int64) error { return nil }

type fakeSubs struct {
	subscribed   []int64
	unsubscribed []int64
}

func (f *fakeSubs) Subscribe(id int64)   { f.subscribed = append(f.subscribed, id) }
func (f *fakeSubs) Unsubscribe(id int64) { f.unsubscribed = append(f.unsubscribed, id) }

func newTestCoordinator(api *fakeDataLayer) (*Coordinator, *cache.Store, *bus.Bus, *fakeSubs) {
	store := cache.NewStore()
	store.UpsertChat(model.Chat{ID: 7, Name: "general"})
	b := bus.New()
	subs := &fakeSubs{}
	c := NewCoordinator(store, api, subs, b, currentUserID, zap.NewNop(), Hooks{})
	return c, store, b, subs
}

func waitEvent(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s", kind)
		}
	}
}

func TestSendInsertsProvisionalRow(t *testing.T) {
	api := &fakeDataLayer{sendErr: errors.New("hold")} // outcome irrelevant here
	c, store, _, _ := newTestCoordinator(api)

	msg := c.Send(context.Background(), 7, "hello", nil)

	if msg.ID >= 0 {
		t.Errorf("provisional id = %d, want negative", msg.ID)
	}
	if !msg.Provisional() {
		t.Error("Provisional() = false")
	}

	msgs := store.Messages(7)
	if len(msgs) == 0 || msgs[0].ID != msg.ID {
		t.Fatal("provisional row not at head of cache")
	}
	chat, _ := store.Chat(7)
	if chat.LastMessage == nil || chat.LastMessage.ID != msg.ID {
		t.Error("chat row lastMessage not pointing at provisional row")
	}
}

func TestSendRoundTrip(t *testing.T) {
	api := &fakeDataLayer{sendResult: model.Message{
		ID:         42,
		Body:       "hello",
		Author:     model.User{ID: currentUserID},
		CreateDate: 1700000099000,
	}}
	c, store, b, _ := newTestCoordinator(api)
	ch, unsub := b.Subscribe("message.", 16)
	defer unsub()

	c.Send(context.Background(), 7, "hello", nil)
	waitEvent(t, ch, bus.KindSendAck)

	msgs := store.Messages(7)
	if len(msgs) != 1 {
		t.Fatalf("cache has %d rows, want exactly 1 after ack", len(msgs))
	}
	if msgs[0].ID != 42 || msgs[0].Body != "hello" {
		t.Errorf("row = %+v, want id 42 body hello", msgs[0])
	}
	if msgs[0].CreateDate != 1700000099000 {
		t.Errorf("createDate = %d, want server timestamp", msgs[0].CreateDate)
	}

	chat, _ := store.Chat(7)
	if chat.LastMessage == nil || chat.LastMessage.ID != 42 {
		t.Errorf("lastMessage = %+v, want id corrected to 42", chat.LastMessage)
	}
	if chat.LastMessage.CreateDate != 1700000099000 {
		t.Error("lastMessage date not corrected to server timestamp")
	}

	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", c.PendingCount())
	}
}

func TestSendAckAfterOwnBroadcast(t *testing.T) {
	confirmed := model.Message{
		ID:         42,
		ChatID:     7,
		Body:       "hello",
		Author:     model.User{ID: currentUserID},
		CreateDate: 1700000099000,
	}
	gate := make(chan struct{})
	api := &fakeDataLayer{sendResult: confirmed, sendGate: gate}
	c, store, b, _ := newTestCoordinator(api)
	ch, unsub := b.Subscribe("message.", 16)
	defer unsub()

	c.Send(context.Background(), 7, "hello", nil)

	// The server broadcasts the user's own message before the REST ack
	// resolves; the reconciler prepends the confirmed row.
	store.PrependMessage(7, confirmed)

	close(gate)
	waitEvent(t, ch, bus.KindSendAck)

	rows := 0
	for _, m := range store.Messages(7) {
		if m.ID == 42 {
			rows++
		}
	}
	if rows != 1 {
		t.Errorf("rows with id 42 = %d, want exactly 1", rows)
	}
	if got := store.Messages(7); len(got) != 1 {
		t.Errorf("cache has %d rows, want 1 (provisional row dropped)", len(got))
	}
}

func TestMutationOutcomeHook(t *testing.T) {
	api := &fakeDataLayer{
		sendResult: model.Message{ID: 42, Author: model.User{ID: currentUserID}},
		editErr:    errors.New("forbidden"),
	}
	store := cache.NewStore()
	store.UpsertChat(model.Chat{ID: 7})
	store.SetMessages(7, []model.Message{{ID: 1}})
	b := bus.New()

	type outcome struct{ kind, result string }
	var seen []outcome
	c := NewCoordinator(store, api, nil, b, currentUserID, zap.NewNop(), Hooks{
		OnOutcome: func(kind, result string) { seen = append(seen, outcome{kind, result}) },
	})
	ch, unsub := b.Subscribe("message.", 16)
	defer unsub()

	c.Send(context.Background(), 7, "hi", nil)
	waitEvent(t, ch, bus.KindSendAck)
	_ = c.Edit(context.Background(), 7, 1, "x")
	_ = c.Delete(context.Background(), 7, 1)

	want := []outcome{{"send", "ok"}, {"edit", "error"}, {"delete", "ok"}}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("outcomes = %v, want %v", seen, want)
	}
}

func TestSendPreservesOptimisticAttachments(t *testing.T) {
	api := &fakeDataLayer{sendResult: model.Message{ID: 42, Body: "doc"}}
	c, store, b, _ := newTestCoordinator(api)
	ch, unsub := b.Subscribe("message.", 16)
	defer unsub()

	atts := []model.Attachment{{ID: 5, FileName: "q.pdf"}}
	c.Send(context.Background(), 7, "doc", atts)
	waitEvent(t, ch, bus.KindSendAck)

	msgs := store.Messages(7)
	if len(msgs[0].Attachments) != 1 || msgs[0].Attachments[0].ID != 5 {
		t.Errorf("attachments = %+v, want optimistic attachment preserved", msgs[0].Attachments)
	}
}

func TestSendRollback(t *testing.T) {
	api := &fakeDataLayer{sendErr: errors.New("network down")}
	store := cache.NewStore()
	store.UpsertChat(model.Chat{
		ID: 7, Name: "general",
		LastMessage: &model.LastMessageRef{ID: 3, Body: "before", CreateDate: 100},
	})
	store.SetMessages(7, []model.Message{{ID: 3, ChatID: 7, Body: "before"}})
	b := bus.New()

	rollbacks := 0
	c := NewCoordinator(store, api, nil, b, currentUserID, zap.NewNop(), Hooks{OnRollback: func() { rollbacks++ }})
	ch, unsub := b.Subscribe("message.", 16)
	defer unsub()

	before := store.Messages(7)
	beforeChat, _ := store.Chat(7)

	c.Send(context.Background(), 7, "fails", nil)
	waitEvent(t, ch, bus.KindSendFailed)

	after := store.Messages(7)
	if !reflect.DeepEqual(before, after) {
		t.Errorf("message cache after rollback = %+v, want %+v", after, before)
	}
	afterChat, _ := store.Chat(7)
	if !reflect.DeepEqual(beforeChat.LastMessage, afterChat.LastMessage) {
		t.Errorf("lastMessage after rollback = %+v, want %+v", afterChat.LastMessage, beforeChat.LastMessage)
	}
	if rollbacks != 1 {
		t.Errorf("rollback hook fired %d times, want 1", rollbacks)
	}
}

func TestTempIDsMonotonic(t *testing.T) {
	api := &fakeDataLayer{sendErr: errors.New("x")}
	c, _, _, _ := newTestCoordinator(api)

	a := c.Send(context.Background(), 7, "a", nil)
	b := c.Send(context.Background(), 7, "b", nil)

	if a.ID >= 0 || b.ID >= 0 {
		t.Fatal("temp ids must be negative")
	}
	if b.ID >= a.ID {
		t.Errorf("temp ids not strictly decreasing: %d then %d", a.ID, b.ID)
	}
}

func TestDeleteOptimistic(t *testing.T) {
	api := &fakeDataLayer{}
	c, store, _, _ := newTestCoordinator(api)
	store.SetMessages(7, []model.Message{{ID: 2, ChatID: 7}, {ID: 1, ChatID: 7}})

	if err := c.Delete(context.Background(), 7, 1); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(store.Messages(7)) != 1 {
		t.Error("message not removed")
	}
	if len(api.deleted) != 1 || api.deleted[0] != [2]int64{7, 1} {
		t.Errorf("api calls = %v", api.deleted)
	}
}

func TestDeleteRollbackRestoresPosition(t *testing.T) {
	api := &fakeDataLayer{deleteErr: errors.New("forbidden")}
	c, store, _, _ := newTestCoordinator(api)
	store.SetMessages(7, []model.Message{{ID: 3}, {ID: 2}, {ID: 1}})

	if err := c.Delete(context.Background(), 7, 2); err == nil {
		t.Fatal("Delete() expected error")
	}

	msgs := store.Messages(7)
	if len(msgs) != 3 || msgs[1].ID != 2 {
		t.Errorf("cache = %+v, want id 2 restored at index 1", msgs)
	}
}

func TestEditIsNotOptimistic(t *testing.T) {
	api := &fakeDataLayer{}
	c, store, _, _ := newTestCoordinator(api)
	store.SetMessages(7, []model.Message{{ID: 1, Body: "typo"}})

	if err := c.Edit(context.Background(), 7, 1, "fixed"); err != nil {
		t.Fatal(err)
	}

	// Cache unchanged until the message_edited broadcast arrives.
	if store.Messages(7)[0].Body != "typo" {
		t.Error("edit mutated the cache before the broadcast")
	}
	if len(api.edited) != 1 || api.edited[0] != "fixed" {
		t.Errorf("api calls = %v", api.edited)
	}
}

func TestCreateChatSeedsAndSubscribes(t *testing.T) {
	api := &fakeDataLayer{chatResult: model.Chat{ID: 11, Name: "sales"}}
	c, store, _, subs := newTestCoordinator(api)

	chat, err := c.CreateChat(context.Background(), "sales", []int64{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if chat.ID != 11 {
		t.Errorf("chat id = %d, want 11", chat.ID)
	}
	if _, ok := store.Chat(11); !ok {
		t.Error("chat not in cache")
	}
	if len(subs.subscribed) != 1 || subs.subscribed[0] != 11 {
		t.Errorf("subscribed = %v, want [11]", subs.subscribed)
	}
}

func TestDeleteChatRemovesRowAndSubscription(t *testing.T) {
	api := &fakeDataLayer{}
	c, store, _, subs := newTestCoordinator(api)

	if err := c.DeleteChat(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Chat(7); ok {
		t.Error("chat still in cache")
	}
	if len(subs.unsubscribed) != 1 || subs.unsubscribed[0] != 7 {
		t.Errorf("unsubscribed = %v, want [7]", subs.unsubscribed)
	}
}
