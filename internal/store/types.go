package store

// Chat represents an archived chat row.
type Chat struct {
	ChatID             int64
	Name               string
	ChatType           string
	IsInternal         bool
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
}

// Message represents an archived message row.
type Message struct {
	ID         int64
	ChatID     int64
	MsgID      int64
	AuthorID   int64
	AuthorName string
	Body       string
	IsEdited   bool
	IsPinned   bool
	CreateDate int64
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
