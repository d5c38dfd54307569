package store

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + fts)", result.Version)
	}
}

func TestChatUpsertAndList(t *testing.T) {
	db := testDB(t)

	chat := &Chat{ChatID: 7, Name: "general", ChatType: "channel", LastMessageAt: 1000, LastMessagePreview: "hello"}
	if err := db.UpsertChat(chat); err != nil {
		t.Fatal(err)
	}

	// Update name.
	chat.Name = "general-renamed"
	if err := db.UpsertChat(chat); err != nil {
		t.Fatal(err)
	}

	chats, err := db.ListChats(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 {
		t.Fatalf("got %d chats, want 1", len(chats))
	}
	if chats[0].Name != "general-renamed" {
		t.Errorf("name = %q, want general-renamed", chats[0].Name)
	}
}

func TestListChatsOrdersByLastMessage(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertChat(&Chat{ChatID: 1, LastMessageAt: 100}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertChat(&Chat{ChatID: 2, LastMessageAt: 300}); err != nil {
		t.Fatal(err)
	}

	chats, err := db.ListChats(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 || chats[0].ChatID != 2 {
		t.Errorf("chats = %+v, want chat 2 first", chats)
	}
}

func TestGetChat(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertChat(&Chat{ChatID: 7, Name: "general"}); err != nil {
		t.Fatal(err)
	}
	c, err := db.GetChat(7)
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Name != "general" {
		t.Errorf("got %v, want general", c)
	}

	// Non-existent.
	c, err = db.GetChat(99)
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Errorf("expected nil for missing chat")
	}
}

func TestTouchChatPreviewCreatesRow(t *testing.T) {
	db := testDB(t)

	if err := db.TouchChatPreview(5, 2000, "early bird"); err != nil {
		t.Fatal(err)
	}
	c, err := db.GetChat(5)
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.LastMessagePreview != "early bird" {
		t.Errorf("got %+v, want preview row created", c)
	}
}

func TestMessageUpsertIdempotent(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertChat(&Chat{ChatID: 7}); err != nil {
		t.Fatal(err)
	}

	msg := &Message{ChatID: 7, MsgID: 42, Body: "hello", CreateDate: 1000}
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}
	// Upsert again should not create duplicate.
	msg.Body = "hello updated"
	msg.IsEdited = true
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(7, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent upsert failed)", len(msgs))
	}
	if msgs[0].Body != "hello updated" || !msgs[0].IsEdited {
		t.Errorf("row = %+v, want edited body", msgs[0])
	}
}

func TestListMessagesKeysetPagination(t *testing.T) {
	db := testDB(t)

	for i := int64(1); i <= 5; i++ {
		if err := db.UpsertMessage(&Message{ChatID: 7, MsgID: i, CreateDate: i * 100}); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := db.ListMessages(7, 300, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].MsgID != 2 || msgs[1].MsgID != 1 {
		t.Errorf("msgs = %+v, want ids [2 1]", msgs)
	}
}

func TestDeleteMessage(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(&Message{ChatID: 7, MsgID: 1, Body: "x", CreateDate: 100}); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteMessage(7, 1); err != nil {
		t.Fatal(err)
	}
	msgs, err := db.ListMessages(7, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages after delete, want 0", len(msgs))
	}
}

func TestDeleteChatCascades(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertChat(&Chat{ChatID: 7}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(&Message{ChatID: 7, MsgID: 1, CreateDate: 100}); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteChat(7); err != nil {
		t.Fatal(err)
	}
	if c, _ := db.GetChat(7); c != nil {
		t.Error("chat still present")
	}
	if msgs, _ := db.ListMessages(7, 0, 10); len(msgs) != 0 {
		t.Error("messages still present")
	}
}

func TestSearchMessages(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertChat(&Chat{ChatID: 7}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(&Message{ChatID: 7, MsgID: 1, Body: "hello world", CreateDate: 1000}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(&Message{ChatID: 7, MsgID: 2, Body: "goodbye world", CreateDate: 2000}); err != nil {
		t.Fatal(err)
	}

	results, err := db.SearchMessages("hello", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Message.MsgID != 1 {
		t.Errorf("msg_id = %d, want 1", results[0].Message.MsgID)
	}
}

func TestSearchMessagesScopedToChat(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(&Message{ChatID: 1, MsgID: 1, Body: "report ready", CreateDate: 100}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(&Message{ChatID: 2, MsgID: 1, Body: "report delayed", CreateDate: 200}); err != nil {
		t.Fatal(err)
	}

	results, err := db.SearchMessages("report", 2, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Message.ChatID != 2 {
		t.Errorf("results = %+v, want only chat 2", results)
	}
}
