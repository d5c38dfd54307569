package cache

import (
	"testing"

	"github.com/lbarreto/chatsync/internal/model"
)

func TestReplaceMessageKeepsPosition(t *testing.T) {
	s := NewStore()
	s.SetMessages(7, []model.Message{{ID: 3}, {ID: -5}, {ID: 1}})

	if !s.ReplaceMessage(7, -5, model.Message{ID: 42, Body: "confirmed"}) {
		t.Fatal("ReplaceMessage() = false, want true")
	}

	msgs := s.Messages(7)
	if len(msgs) != 3 || msgs[1].ID != 42 || msgs[1].Body != "confirmed" {
		t.Errorf("messages = %+v, want id 42 at index 1", msgs)
	}
}

func TestReplaceMessageDropsRowWhenNewIDAlreadyCached(t *testing.T) {
	s := NewStore()
	// The confirmed row's broadcast landed first; the provisional row is
	// still below it.
	s.SetMessages(7, []model.Message{{ID: 42, Body: "confirmed"}, {ID: -5, Body: "provisional"}})

	if !s.ReplaceMessage(7, -5, model.Message{ID: 42, Body: "confirmed"}) {
		t.Fatal("ReplaceMessage() = false, want true")
	}

	msgs := s.Messages(7)
	if len(msgs) != 1 {
		t.Fatalf("messages = %+v, want the provisional row dropped", msgs)
	}
	if msgs[0].ID != 42 {
		t.Errorf("remaining id = %d, want 42", msgs[0].ID)
	}
}

func TestReplaceMessageMissingRow(t *testing.T) {
	s := NewStore()
	s.SetMessages(7, []model.Message{{ID: 1}})

	if s.ReplaceMessage(7, -5, model.Message{ID: 42}) {
		t.Error("ReplaceMessage() = true for unknown oldID")
	}
	if len(s.Messages(7)) != 1 {
		t.Error("cache mutated on a miss")
	}
}
