package store

import "time"

// UpsertMessage inserts or updates a message (idempotent on chat_id + msg_id).
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (chat_id, msg_id, author_id, author_name, body, is_edited, is_pinned, create_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, msg_id) DO UPDATE SET
			author_name = excluded.author_name,
			body = excluded.body,
			is_edited = excluded.is_edited,
			is_pinned = excluded.is_pinned`,
		m.ChatID, m.MsgID, m.AuthorID, m.AuthorName, m.Body, m.IsEdited, m.IsPinned, m.CreateDate, now)
	return err
}

// DeleteMessage removes a message from the archive.
func (db *DB) DeleteMessage(chatID, msgID int64) error {
	_, err := db.Exec(`DELETE FROM messages WHERE chat_id = ? AND msg_id = ?`, chatID, msgID)
	return err
}

// ListMessages returns messages for a chat using keyset pagination by
// create date, most recent first.
func (db *DB) ListMessages(chatID int64, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT id, chat_id, msg_id, author_id, author_name, body, is_edited, is_pinned, create_date
		FROM messages
		WHERE chat_id = ? AND create_date < ?
		ORDER BY create_date DESC
		LIMIT ?`, chatID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.MsgID, &m.AuthorID, &m.AuthorName, &m.Body, &m.IsEdited, &m.IsPinned, &m.CreateDate); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
