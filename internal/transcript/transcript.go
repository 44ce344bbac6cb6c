package transcript

import (
	"strings"
	"time"
)

// Sender identifies who a message belongs to
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

const (
	CategoryFallback = "fallback"
	CategoryGreet    = "greet"
)

// Message represents a single rendered chat message
type Message struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// CategoryOrFallback returns c, or CategoryFallback when c is blank.
func CategoryOrFallback(c string) string {
	if strings.TrimSpace(c) == "" {
		return CategoryFallback
	}
	return c
}

// Kind distinguishes rendered messages from typing placeholders
type Kind string

const (
	KindMessage     Kind = "message"
	KindPlaceholder Kind = "placeholder"
)

// Entry is one row of the transcript. Placeholders carry only their ID.
type Entry struct {
	ID      string  `json:"id"`
	Kind    Kind    `json:"kind"`
	Message Message `json:"message,omitempty"`
}

// Transcript is an insertion-ordered sequence of entries. It is a value type:
// every mutation returns a new Transcript and never touches the receiver's
// backing array.
type Transcript struct {
	entries []Entry
}

// Entries returns a copy of the entries in insertion order.
func (t Transcript) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t Transcript) Len() int {
	return len(t.entries)
}

// Messages returns only the message entries, in order.
func (t Transcript) Messages() []Message {
	msgs := make([]Message, 0, len(t.entries))
	for _, e := range t.entries {
		if e.Kind == KindMessage {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

// Placeholders returns the number of typing placeholders currently present.
func (t Transcript) Placeholders() int {
	n := 0
	for _, e := range t.entries {
		if e.Kind == KindPlaceholder {
			n++
		}
	}
	return n
}

// HasPlaceholder reports whether the placeholder with the given id is present.
func (t Transcript) HasPlaceholder(id string) bool {
	for _, e := range t.entries {
		if e.Kind == KindPlaceholder && e.ID == id {
			return true
		}
	}
	return false
}

func (t Transcript) AppendMessage(id string, m Message) Transcript {
	return t.append(Entry{ID: id, Kind: KindMessage, Message: m})
}

func (t Transcript) AppendPlaceholder(id string) Transcript {
	return t.append(Entry{ID: id, Kind: KindPlaceholder})
}

// RemovePlaceholder drops the placeholder with the given id. Removing a
// placeholder that is not present is a no-op and reports false; message
// entries are never removed, even when their ID matches.
func (t Transcript) RemovePlaceholder(id string) (Transcript, bool) {
	for i, e := range t.entries {
		if e.Kind != KindPlaceholder || e.ID != id {
			continue
		}
		out := make([]Entry, 0, len(t.entries)-1)
		out = append(out, t.entries[:i]...)
		out = append(out, t.entries[i+1:]...)
		return Transcript{entries: out}, true
	}
	return t, false
}

func (t Transcript) append(e Entry) Transcript {
	out := make([]Entry, len(t.entries), len(t.entries)+1)
	copy(out, t.entries)
	return Transcript{entries: append(out, e)}
}
