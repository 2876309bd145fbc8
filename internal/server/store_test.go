package server

import (
	"testing"
	"time"
)

// TestStoreAppendAssignsIdentifier verifies that Append assigns a unique
// generated identifier and defaults, and returns the stored record.
func TestStoreAppendAssignsIdentifier(t *testing.T) {
	store := NewMessageStore()

	first := store.Append(Message{Author: Identity{Username: "Jack"}, Text: "hello", Room: "General"})
	second := store.Append(Message{Author: Identity{Username: "Jack"}, Text: "again", Room: "General"})

	if first.ID == "" || second.ID == "" {
		t.Fatal("Append did not assign message identifiers")
	}
	if first.ID == second.ID {
		t.Errorf("Append assigned duplicate identifier %q", first.ID)
	}
	if first.Timestamp.IsZero() {
		t.Error("Append did not stamp a timestamp")
	}
	if first.Recipient != RecipientAll {
		t.Errorf("Recipient = %q, want %q", first.Recipient, RecipientAll)
	}
}

// TestStoreHistoryRoundTrip verifies that appending then reading history
// returns a record equal to the input except for the assigned fields.
func TestStoreHistoryRoundTrip(t *testing.T) {
	store := NewMessageStore()

	input := Message{
		Author:     Identity{Username: "Maya", Avatar: "https://example.com/m.png"},
		Text:       "check this out",
		Attachment: &Attachment{FileURL: "/uploads/x.png", FileType: "image/png"},
		Room:       "General",
		Recipient:  RecipientAll,
		Timestamp:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	stored := store.Append(input)

	history := store.History("General")
	if len(history) != 1 {
		t.Fatalf("History(General) returned %d messages, want 1", len(history))
	}

	got := history[0]
	if got.ID != stored.ID {
		t.Errorf("ID = %q, want %q", got.ID, stored.ID)
	}
	if got.Author != input.Author || got.Text != input.Text || got.Room != input.Room ||
		got.Recipient != input.Recipient || !got.Timestamp.Equal(input.Timestamp) {
		t.Errorf("History record = %+v, want fields of %+v", got, input)
	}
	if got.Attachment == nil || *got.Attachment != *input.Attachment {
		t.Errorf("Attachment = %+v, want %+v", got.Attachment, input.Attachment)
	}
}

// TestStoreHistoryOrderAndRoomFilter verifies insertion ordering and that
// history is partitioned by room.
func TestStoreHistoryOrderAndRoomFilter(t *testing.T) {
	store := NewMessageStore()

	store.Append(Message{Text: "one", Room: "General"})
	store.Append(Message{Text: "other room", Room: "Random"})
	store.Append(Message{Text: "two", Room: "General"})

	history := store.History("General")
	if len(history) != 2 {
		t.Fatalf("History(General) returned %d messages, want 2", len(history))
	}
	if history[0].Text != "one" || history[1].Text != "two" {
		t.Errorf("History order = [%q, %q], want [one, two]", history[0].Text, history[1].Text)
	}

	// History must be re-queryable with identical results.
	again := store.History("General")
	if len(again) != 2 {
		t.Errorf("Second History(General) returned %d messages, want 2", len(again))
	}
}

// TestStoreEdit verifies in-place text replacement that preserves all other
// fields, and the silent no-op on unknown identifiers.
func TestStoreEdit(t *testing.T) {
	store := NewMessageStore()
	stored := store.Append(Message{Author: Identity{Username: "Jack"}, Text: "typo", Room: "General"})

	updated, ok := store.Edit(stored.ID, "fixed")
	if !ok {
		t.Fatal("Edit reported message not found")
	}
	if updated.Text != "fixed" || !updated.Edited {
		t.Errorf("Edit result = %+v, want text %q with edited flag", updated, "fixed")
	}
	if updated.Author != stored.Author || updated.Room != stored.Room || !updated.Timestamp.Equal(stored.Timestamp) {
		t.Error("Edit did not preserve the other fields")
	}

	history := store.History("General")
	if history[0].Text != "fixed" {
		t.Errorf("History text after edit = %q, want %q", history[0].Text, "fixed")
	}

	if _, ok := store.Edit("does-not-exist", "x"); ok {
		t.Error("Edit on unknown id reported found")
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d after no-op edit, want 1", store.Len())
	}
}

// TestStoreDelete verifies point removal and the no-op on unknown ids.
func TestStoreDelete(t *testing.T) {
	store := NewMessageStore()
	first := store.Append(Message{Text: "one", Room: "General"})
	store.Append(Message{Text: "two", Room: "General"})

	removed, ok := store.Delete(first.ID)
	if !ok {
		t.Fatal("Delete reported message not found")
	}
	if removed.ID != first.ID {
		t.Errorf("Delete removed %q, want %q", removed.ID, first.ID)
	}

	history := store.History("General")
	if len(history) != 1 || history[0].Text != "two" {
		t.Errorf("History after delete = %+v, want only %q", history, "two")
	}

	if _, ok := store.Delete(first.ID); ok {
		t.Error("Second delete of the same id reported found")
	}
}

// TestStoreAddReaction verifies reaction accumulation without
// de-duplication and the silent no-op on unknown ids.
func TestStoreAddReaction(t *testing.T) {
	store := NewMessageStore()
	stored := store.Append(Message{Text: "react to me", Room: "General"})

	reaction := Reaction{Emoji: "🔥", User: Identity{Username: "Maya"}}
	if _, ok := store.AddReaction(stored.ID, reaction); !ok {
		t.Fatal("AddReaction reported message not found")
	}
	updated, ok := store.AddReaction(stored.ID, reaction)
	if !ok {
		t.Fatal("Second AddReaction reported message not found")
	}
	if len(updated.Reactions) != 2 {
		t.Errorf("Reactions length = %d, want 2 (duplicates accumulate)", len(updated.Reactions))
	}

	if _, ok := store.AddReaction("does-not-exist", reaction); ok {
		t.Error("AddReaction on unknown id reported found")
	}
}

// TestStoreHistoryIsACopy verifies that mutating a returned history slice
// does not leak into the store.
func TestStoreHistoryIsACopy(t *testing.T) {
	store := NewMessageStore()
	stored := store.Append(Message{Text: "original", Room: "General"})
	store.AddReaction(stored.ID, Reaction{Emoji: "👍", User: Identity{Username: "Jack"}})

	history := store.History("General")
	history[0].Text = "mutated"
	history[0].Reactions[0].Emoji = "💥"

	fresh := store.History("General")
	if fresh[0].Text != "original" {
		t.Errorf("Store text = %q after caller mutation, want %q", fresh[0].Text, "original")
	}
	if fresh[0].Reactions[0].Emoji != "👍" {
		t.Errorf("Store reaction = %q after caller mutation, want 👍", fresh[0].Reactions[0].Emoji)
	}
}
