package router

import (
	"testing"

	"github.com/lbarreto/chatsync/internal/protocol"
	"go.uber.org/zap"
)

type recordingApplier struct {
	applied []protocol.Event
}

func (a *recordingApplier) Apply(evt protocol.Event) {
	a.applied = append(a.applied, evt)
}

func TestRouteDecodesAndApplies(t *testing.T) {
	applier := &recordingApplier{}
	r := New(applier, zap.NewNop(), Hooks{})

	r.Route([]byte(`{"type":"message_deleted","chat_id":1,"message_id":2}`))

	if len(applier.applied) != 1 {
		t.Fatalf("applied %d events, want 1", len(applier.applied))
	}
	if applier.applied[0].EventType() != protocol.TypeMessageDeleted {
		t.Errorf("event type = %q, want message_deleted", applier.applied[0].EventType())
	}
}

func TestRouteDropsMalformedFrame(t *testing.T) {
	applier := &recordingApplier{}
	r := New(applier, zap.NewNop(), Hooks{})

	r.Route([]byte(`{{{`))

	if len(applier.applied) != 0 {
		t.Errorf("applied %d events, want 0 for malformed frame", len(applier.applied))
	}
}

func TestListenersRunInRegistrationOrder(t *testing.T) {
	r := New(nil, zap.NewNop(), Hooks{})

	var order []int
	r.AddListener(func(protocol.Event) { order = append(order, 1) })
	r.AddListener(func(protocol.Event) { order = append(order, 2) })
	r.AddListener(func(protocol.Event) { order = append(order, 3) })

	r.Dispatch(protocol.Connected{})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("listener order = %v, want [1 2 3]", order)
	}
}

func TestPanickingListenerDoesNotBlockOthers(t *testing.T) {
	applier := &recordingApplier{}
	r := New(applier, zap.NewNop(), Hooks{})

	var after bool
	r.AddListener(func(protocol.Event) { panic("boom") })
	r.AddListener(func(protocol.Event) { after = true })

	r.Dispatch(protocol.Connected{})

	if !after {
		t.Error("listener after the panicking one did not run")
	}
	if len(applier.applied) != 1 {
		t.Error("cache update skipped after listener panic")
	}
}

func TestRemoveListener(t *testing.T) {
	r := New(nil, zap.NewNop(), Hooks{})

	var calls int
	remove := r.AddListener(func(protocol.Event) { calls++ })

	r.Dispatch(protocol.Connected{})
	remove()
	r.Dispatch(protocol.Connected{})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestObservedHook(t *testing.T) {
	var seen []string
	r := New(nil, zap.NewNop(), Hooks{Observed: func(et string) { seen = append(seen, et) }})

	r.Dispatch(protocol.Connected{})
	r.Dispatch(&protocol.Typing{ChatID: 1, UserID: 2})

	if len(seen) != 2 || seen[0] != protocol.TypeConnected || seen[1] != protocol.TypeTyping {
		t.Errorf("observed = %v", seen)
	}
}

func TestDroppedHook(t *testing.T) {
	dropped := 0
	var seen []string
	r := New(nil, zap.NewNop(), Hooks{
		Observed: func(et string) { seen = append(seen, et) },
		Dropped:  func() { dropped++ },
	})

	r.Route([]byte(`{{{`))
	r.Route([]byte(`{"type":"typing","chat_id":1,"user_id":2}`))

	if dropped != 1 {
		t.Errorf("dropped hook fired %d times, want 1", dropped)
	}
	if len(seen) != 1 || seen[0] != protocol.TypeTyping {
		t.Errorf("observed = %v, want only the well-formed frame", seen)
	}
}
