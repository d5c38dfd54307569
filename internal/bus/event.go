package bus

import "time"

// Event is a domain event published on the bus.
//
// Kinds are dot-namespaced: "session." for connection state changes,
// "chat." for chat-list level events, "message." for mutation outcomes
// and message-cache commits, "cache." for read-model invalidations.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Well-known event kinds.
const (
	KindStateChanged   = "session.state_changed"
	KindChatInvalidate = "cache.chat_list_invalidated"
	KindChatRefreshed  = "cache.chat_list_refreshed"
	KindMessageUpsert  = "message.upserted"
	KindMessageRemoved = "message.removed"
	KindSendAck        = "message.send_ack"
	KindSendFailed     = "message.send_failed"
)
