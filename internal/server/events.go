// Package server defines the closed set of events exchanged with chat
// clients and the envelope codec applied at the websocket boundary.
package server

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Inbound event names accepted from clients.
const (
	EventAuthenticate  = "authenticate"
	EventSendMessage   = "send_message"
	EventEditMessage   = "edit_message"
	EventDeleteMessage = "delete_message"
	EventSendReaction  = "send_reaction"
	EventPinMessage    = "pin_message"
	EventTyping        = "typing"
	EventJoinRoom      = "join_room"
)

// Outbound event names pushed to clients. Edit, delete, and pin broadcasts
// reuse their inbound names.
const (
	EventAuthError      = "auth_error"
	EventError          = "error"
	EventChatHistory    = "chat_history"
	EventRoomHistory    = "room_history"
	EventUserList       = "user_list"
	EventReceiveMessage = "receive_message"
	EventReactionUpdate = "reaction_update"
	EventUserTyping     = "user_typing"
)

// RecipientAll is the sentinel recipient meaning "broadcast to the room".
const RecipientAll = "all"

// ErrEmptyPayload is returned when an event that requires a payload arrives
// without one.
var ErrEmptyPayload = errors.New("event payload is empty")

// Envelope is the wire form of every event: a name plus an event-specific
// payload. Unknown names are rejected by the router, not the codec.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeEnvelope parses a raw websocket frame into an Envelope.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed event frame: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, errors.New("event frame missing event name")
	}
	return env, nil
}

// DecodePayload unmarshals the envelope's payload into v, rejecting empty
// payloads so handlers never act on zero values by accident.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Data) == 0 {
		return ErrEmptyPayload
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("malformed %s payload: %w", e.Event, err)
	}
	return nil
}

// EncodeEvent builds the wire form of an outbound event.
func EncodeEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Identity is the display name and optional avatar a connection
// authenticates as. Multiple connections may share an identity.
type Identity struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// AuthenticatePayload carries the shared passkey and the identity a
// connection wants to register under.
type AuthenticatePayload struct {
	Passkey  string `json:"passkey"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	Room     string `json:"room,omitempty"`
}

// SendMessagePayload carries a new chat message. Text and attachment are
// individually optional but at least one must be present. An empty recipient
// defaults to the broadcast sentinel.
type SendMessagePayload struct {
	Text       string      `json:"text,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Recipient  string      `json:"recipient,omitempty"`
}

// EditMessagePayload replaces the text of an existing message.
type EditMessagePayload struct {
	MessageID string `json:"messageId"`
	NewText   string `json:"newText"`
}

// DeleteMessagePayload removes an existing message.
type DeleteMessagePayload struct {
	MessageID string `json:"messageId"`
}

// SendReactionPayload appends a reaction to an existing message.
type SendReactionPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// PinMessagePayload relays a pin notification. Pins are presentation-only;
// the relay keeps no pinned set.
type PinMessagePayload struct {
	MessageID string `json:"messageId"`
}

// TypingPayload signals that the sender started or stopped typing.
type TypingPayload struct {
	IsTyping bool `json:"isTyping"`
}

// JoinRoomPayload moves the connection into another room.
type JoinRoomPayload struct {
	Room string `json:"room"`
}

// ErrorPayload is the soft error surfaced to a sender whose event was
// rejected without terminating the connection.
type ErrorPayload struct {
	Message string `json:"message"`
}

// HistoryPayload carries the room's message history to a single connection.
type HistoryPayload struct {
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
}

// UserListPayload carries the registration-ordered online identities of a room.
type UserListPayload struct {
	Room  string     `json:"room"`
	Users []Identity `json:"users"`
}

// EditBroadcastPayload announces an applied edit to the message's room.
type EditBroadcastPayload struct {
	MessageID string `json:"messageId"`
	NewText   string `json:"newText"`
}

// DeleteBroadcastPayload announces an applied delete to the message's room.
type DeleteBroadcastPayload struct {
	MessageID string `json:"messageId"`
}

// ReactionUpdatePayload announces the full reaction list of a message after
// a reaction was appended.
type ReactionUpdatePayload struct {
	MessageID string     `json:"messageId"`
	Reactions []Reaction `json:"reactions"`
}

// PinBroadcastPayload announces a pin to the pinner's room.
type PinBroadcastPayload struct {
	MessageID string   `json:"messageId"`
	PinnedBy  Identity `json:"pinnedBy"`
}

// UserTypingPayload announces typing state to everyone in the room except
// the typist.
type UserTypingPayload struct {
	User     Identity `json:"user"`
	IsTyping bool     `json:"isTyping"`
}
