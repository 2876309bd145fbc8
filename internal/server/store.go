// Package server keeps the append-only in-memory message sequence and the
// point operations (edit, delete, react) the event router applies to it.
package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Attachment references a file produced by the upload collaborator. The
// relay only ever handles the reference, never the binary.
type Attachment struct {
	FileURL  string `json:"fileUrl"`
	FileType string `json:"fileType"`
}

// Reaction is a single emoji reaction by one identity. Repeated reactions by
// the same identity accumulate; no de-duplication is applied.
type Reaction struct {
	Emoji string   `json:"emoji"`
	User  Identity `json:"user"`
}

// Message is one chat message. The ID is a generated identifier assigned at
// append time; it is never derived from the timestamp, which is not unique.
type Message struct {
	ID         string      `json:"id"`
	Author     Identity    `json:"author"`
	Text       string      `json:"text,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Room       string      `json:"room"`
	Recipient  string      `json:"recipient"`
	Timestamp  time.Time   `json:"timestamp"`
	Reactions  []Reaction  `json:"reactions,omitempty"`
	Edited     bool        `json:"edited,omitempty"`
}

// clone returns a copy whose reaction slice is independent of the stored one.
func (m Message) clone() Message {
	if m.Reactions != nil {
		m.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	return m
}

// MessageStore is the append-only in-memory message sequence. State is fully
// lost on process restart; there is no eviction and no size cap. All methods
// are safe for concurrent use.
type MessageStore struct {
	mu       sync.RWMutex
	messages []Message
}

// NewMessageStore creates an empty message store.
func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

// Append stores the message, assigning a unique identifier when the message
// carries none and stamping the current time when the timestamp is zero. It
// returns the stored record.
func (s *MessageStore) Append(msg Message) Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if msg.Recipient == "" {
		msg.Recipient = RecipientAll
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg.clone())
	s.mu.Unlock()

	return msg
}

// History returns the room's messages in insertion order. The result is a
// copy and stays valid while the store keeps mutating.
func (s *MessageStore) History(room string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]Message, 0, len(s.messages))
	for _, msg := range s.messages {
		if msg.Room == room {
			history = append(history, msg.clone())
		}
	}
	return history
}

// Len reports the total number of stored messages across all rooms.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Edit replaces the text of the identified message in place, preserving all
// other fields, and reports whether the message was found.
func (s *MessageStore) Edit(id, newText string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Text = newText
			s.messages[i].Edited = true
			return s.messages[i].clone(), true
		}
	}
	return Message{}, false
}

// Delete removes the identified message and reports whether it was found.
func (s *MessageStore) Delete(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == id {
			removed := s.messages[i]
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return removed, true
		}
	}
	return Message{}, false
}

// AddReaction appends the reaction to the identified message's reaction list
// and returns the updated message. Not-found is reported, not an error: the
// router silently absorbs reactions to unknown messages.
func (s *MessageStore) AddReaction(id string, reaction Reaction) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Reactions = append(s.messages[i].Reactions, reaction)
			return s.messages[i].clone(), true
		}
	}
	return Message{}, false
}
