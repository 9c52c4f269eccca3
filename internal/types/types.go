package types

import (
	"encoding/json"
	"strings"
)

// EventKind identifies the kind of a bus event.
type EventKind string

const (
	KindMessage       EventKind = "message"
	KindTyping        EventKind = "typing"
	KindReadReceipt   EventKind = "read_receipt"
	KindPresence      EventKind = "presence"
	KindProfileUpdate EventKind = "profile_update"
)

// Valid reports whether the kind is one of the known event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case KindMessage, KindTyping, KindReadReceipt, KindPresence, KindProfileUpdate:
		return true
	}
	return false
}

// EventRecord is one immutable unit published to the outbox.
// Seq is assigned at append time; WrittenAt is advisory (unix ms).
type EventRecord struct {
	Seq       int64           `json:"seq"`
	Kind      EventKind       `json:"kind"`
	Origin    string          `json:"origin"`
	Target    string          `json:"target"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	WrittenAt int64           `json:"written_at"`
}

// MediaType describes the attachment carried by a message, if any.
type MediaType string

const (
	MediaNone  MediaType = ""
	MediaImage MediaType = "image"
	MediaVoice MediaType = "voice"
	MediaFile  MediaType = "file"
)

// Message is a chat message as carried on the bus.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Body      string    `json:"body"`
	MediaRef  string    `json:"media_ref,omitempty"`
	MediaType MediaType `json:"media_type,omitempty"`
	SentAt    int64     `json:"sent_at"`
}

// MessagePayload is the payload of a message event.
type MessagePayload struct {
	Message Message `json:"message"`
}

// TypingPayload is the payload of a typing event.
type TypingPayload struct {
	Typing bool `json:"typing"`
}

// ReadReceiptPayload is the payload of a read-receipt event.
type ReadReceiptPayload struct {
	MessageID string `json:"message_id"`
}

// PresencePayload is the payload of a presence event.
type PresencePayload struct {
	Online bool `json:"online"`
}

// PresenceEntry is the last known online state of a user.
type PresenceEntry struct {
	UserID     string `json:"user_id"`
	Online     bool   `json:"online"`
	LastSeenAt int64  `json:"last_seen_at"`
	Local      bool   `json:"local,omitempty"`
}

// ChatKind distinguishes direct chats, groups and channels.
type ChatKind string

const (
	ChatDirect  ChatKind = "direct"
	ChatGroup   ChatKind = "group"
	ChatChannel ChatKind = "channel"
)

// Chat is a conversation with a fixed set of participants.
type Chat struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Kind      ChatKind `json:"kind"`
	CreatedAt int64    `json:"created_at"`
}

// User is a chat participant's profile.
type User struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Status      *string `json:"status,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
	CreatedAt   int64   `json:"created_at"`
	UpdatedAt   int64   `json:"updated_at"`
}

// OptionalString represents a nullable string update.
type OptionalString struct {
	Set   bool
	Value *string
}

const targetSeparator = "/"

// CompositeTarget joins a chat id and a user id into a typing or read-receipt target.
func CompositeTarget(chatID, userID string) string {
	return chatID + targetSeparator + userID
}

// SplitTarget splits a composite target. A target without a separator is
// treated as a bare user id with no chat.
func SplitTarget(target string) (chatID, userID string) {
	idx := strings.LastIndex(target, targetSeparator)
	if idx == -1 {
		return "", target
	}
	return target[:idx], target[idx+1:]
}
