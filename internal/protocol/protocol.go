// Package protocol defines the JSON frame types exchanged with the chat
// server over the WebSocket, and the decoding of inbound frames into
// typed events.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/lbarreto/chatsync/internal/model"
)

// Server -> client frame types.
const (
	TypeConnected       = "connected"
	TypeSubscribed      = "subscribed"
	TypeSubscribedAll   = "subscribed_all"
	TypeUnsubscribed    = "unsubscribed"
	TypePong            = "pong"
	TypeNewMessage      = "new_message"
	TypeChatCreated     = "chat_created"
	TypeNotification    = "notification"
	TypeMessagesRead    = "messages_read"
	TypeReactionChanged = "reaction_changed"
	TypeMessageEdited   = "message_edited"
	TypeMessageDeleted  = "message_deleted"
	TypeMessagePinned   = "message_pinned"
	TypeTyping          = "typing"
	TypePresence        = "presence"
)

// Event is a decoded server frame.
type Event interface {
	EventType() string
}

// Connected is the server's greeting after a successful handshake.
type Connected struct{}

func (Connected) EventType() string { return TypeConnected }

// Subscribed acknowledges a single-chat subscription.
type Subscribed struct {
	ChatID int64 `json:"chat_id"`
}

func (Subscribed) EventType() string { return TypeSubscribed }

// SubscribedAll acknowledges a batch subscription.
type SubscribedAll struct {
	Count int `json:"count"`
}

func (SubscribedAll) EventType() string { return TypeSubscribedAll }

// Unsubscribed acknowledges an unsubscribe.
type Unsubscribed struct {
	ChatID int64 `json:"chat_id"`
}

func (Unsubscribed) EventType() string { return TypeUnsubscribed }

// NewMessage carries a freshly posted message for a subscribed chat.
type NewMessage struct {
	ChatID  int64         `json:"chat_id"`
	Message model.Message `json:"message"`
}

func (NewMessage) EventType() string { return TypeNewMessage }

// ChatCreated announces a new chat. The server may send the full chat
// entity or only its id.
type ChatCreated struct {
	Chat   *model.Chat `json:"chat"`
	ChatID int64       `json:"chat_id"`
}

func (ChatCreated) EventType() string { return TypeChatCreated }

// ResolvedChatID returns the chat id from whichever field is populated,
// or zero if neither is.
func (e ChatCreated) ResolvedChatID() int64 {
	if e.Chat != nil && e.Chat.ID != 0 {
		return e.Chat.ID
	}
	return e.ChatID
}

// Notification is a system/cron-origin event with no message payload.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (Notification) EventType() string { return TypeNotification }

// MessagesRead reports that a user has read a chat.
type MessagesRead struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}

func (MessagesRead) EventType() string { return TypeMessagesRead }

// ReactionChanged carries the full replacement reaction set of a message.
type ReactionChanged struct {
	ChatID    int64            `json:"chat_id"`
	MessageID int64            `json:"message_id"`
	Reactions []model.Reaction `json:"reactions"`
}

func (ReactionChanged) EventType() string { return TypeReactionChanged }

// MessageEdited carries the new body of an edited message.
type MessageEdited struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Body      string `json:"body"`
}

func (MessageEdited) EventType() string { return TypeMessageEdited }

// MessageDeleted reports a deleted message.
type MessageDeleted struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

func (MessageDeleted) EventType() string { return TypeMessageDeleted }

// MessagePinned reports a pin/unpin of a message.
type MessagePinned struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
	Pinned    bool  `json:"pinned"`
}

func (MessagePinned) EventType() string { return TypeMessagePinned }

// Typing reports that a user is typing in a chat. Forwarded to listeners
// only, never cached.
type Typing struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}

func (Typing) EventType() string { return TypeTyping }

// Presence reports a user's presence status. Forwarded to listeners only.
type Presence struct {
	UserID    int64  `json:"user_id"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

func (Presence) EventType() string { return TypePresence }

// Unknown preserves frames with an unrecognized type so listeners still
// see them; the reconciler ignores them.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (e Unknown) EventType() string { return e.Type }

type envelope struct {
	Type string `json:"type"`
}

// Decode parses one inbound frame into its typed event. A frame that is
// not valid JSON or has no type is an error; a frame with an unrecognized
// type decodes into Unknown.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("decode frame: missing type")
	}

	unmarshal := func(v Event) (Event, error) {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", env.Type, err)
		}
		return v, nil
	}

	switch env.Type {
	case TypeConnected:
		return Connected{}, nil
	case TypePong:
		return Pong{}, nil
	case TypeSubscribed:
		return unmarshal(&Subscribed{})
	case TypeSubscribedAll:
		return unmarshal(&SubscribedAll{})
	case TypeUnsubscribed:
		return unmarshal(&Unsubscribed{})
	case TypeNewMessage:
		return unmarshal(&NewMessage{})
	case TypeChatCreated:
		return unmarshal(&ChatCreated{})
	case TypeNotification:
		return unmarshal(&Notification{})
	case TypeMessagesRead:
		return unmarshal(&MessagesRead{})
	case TypeReactionChanged:
		return unmarshal(&ReactionChanged{})
	case TypeMessageEdited:
		return unmarshal(&MessageEdited{})
	case TypeMessageDeleted:
		return unmarshal(&MessageDeleted{})
	case TypeMessagePinned:
		return unmarshal(&MessagePinned{})
	case TypeTyping:
		return unmarshal(&Typing{})
	case TypePresence:
		return unmarshal(&Presence{})
	default:
		return Unknown{Type: env.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

// Pong answers a client ping. The connection manager swallows it before
// routing.
type Pong struct{}

func (Pong) EventType() string { return TypePong }
