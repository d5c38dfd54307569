package model

// User is a chat participant as delivered by the server.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Reaction is one emoji reaction on a message.
type Reaction struct {
	UserID int64  `json:"user_id"`
	Emoji  string `json:"emoji"`
}

// Attachment references an uploaded file on a message.
type Attachment struct {
	ID       int64  `json:"id"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	URL      string `json:"url"`
}

// Message is one row of a per-chat message cache. ID is a server-assigned
// positive integer, or a negative temporary id while a send is in flight.
type Message struct {
	ID          int64        `json:"id"`
	ChatID      int64        `json:"chat_id"`
	Body        string       `json:"body"`
	Author      User         `json:"author"`
	CreateDate  int64        `json:"create_date"`
	Pinned      bool         `json:"pinned"`
	IsEdited    bool         `json:"is_edited"`
	IsRead      bool         `json:"is_read"`
	Reactions   []Reaction   `json:"reactions"`
	Attachments []Attachment `json:"attachments"`
}

// Provisional reports whether the message is a local optimistic row that
// has not been acknowledged by the server yet.
func (m *Message) Provisional() bool {
	return m.ID < 0
}

// LastMessageRef is the chat-list row's denormalized pointer to the most
// recent message of the chat.
type LastMessageRef struct {
	ID         int64  `json:"id"`
	Body       string `json:"body"`
	AuthorID   int64  `json:"author_id"`
	CreateDate int64  `json:"create_date"`
}

// Chat is one row of the chat-list cache.
type Chat struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	IsInternal  bool            `json:"is_internal"`
	Members     []User          `json:"members"`
	LastMessage *LastMessageRef `json:"last_message"`
	UnreadCount int             `json:"unread_count"`
	Connectors  []string        `json:"connectors"`
}
