package protocol

// Client -> server commands. Each is a flat JSON object whose Type field
// is fixed by its constructor.

// Subscribe expresses interest in events for one chat.
type Subscribe struct {
	Type   string `json:"type"`
	ChatID int64  `json:"chat_id"`
}

// NewSubscribe builds a subscribe command.
func NewSubscribe(chatID int64) Subscribe {
	return Subscribe{Type: "subscribe", ChatID: chatID}
}

// SubscribeAll subscribes to a batch of chats in one frame, used right
// after connecting to re-establish every active subscription.
type SubscribeAll struct {
	Type    string  `json:"type"`
	ChatIDs []int64 `json:"chat_ids"`
}

// NewSubscribeAll builds a subscribe_all command.
func NewSubscribeAll(chatIDs []int64) SubscribeAll {
	return SubscribeAll{Type: "subscribe_all", ChatIDs: chatIDs}
}

// Unsubscribe withdraws interest in a chat.
type Unsubscribe struct {
	Type   string `json:"type"`
	ChatID int64  `json:"chat_id"`
}

// NewUnsubscribe builds an unsubscribe command.
func NewUnsubscribe(chatID int64) Unsubscribe {
	return Unsubscribe{Type: "unsubscribe", ChatID: chatID}
}

// TypingCmd signals that the current user is typing in a chat.
type TypingCmd struct {
	Type   string `json:"type"`
	ChatID int64  `json:"chat_id"`
}

// NewTyping builds a typing command.
func NewTyping(chatID int64) TypingCmd {
	return TypingCmd{Type: "typing", ChatID: chatID}
}

// Read marks a chat (optionally up to one message) as read.
type Read struct {
	Type      string `json:"type"`
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id,omitempty"`
}

// NewRead builds a read command. messageID may be zero to mark the whole
// chat.
func NewRead(chatID, messageID int64) Read {
	return Read{Type: "read", ChatID: chatID, MessageID: messageID}
}

// Ping is the heartbeat frame.
type Ping struct {
	Type string `json:"type"`
}

// NewPing builds a ping command.
func NewPing() Ping {
	return Ping{Type: "ping"}
}
