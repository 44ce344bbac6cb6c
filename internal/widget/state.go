package widget

import (
	"fmt"
	"strings"
	"time"

	"WebhookChat/internal/dialogue"
	"WebhookChat/internal/transcript"
)

const (
	// DefaultGreeting is shown once, shortly after the widget loads
	DefaultGreeting = "👋 Welcome to the Warehouse Assistant! I can help you check order status, manage inventory, and reschedule deliveries. How can I assist you today?"

	EmptyReplyText = "I didn't receive a response. Please try again."
	FailureText    = "Sorry, I'm having trouble connecting. Please check if the server is running and try again."
)

// Options holds the timing and behavior knobs of a widget
type Options struct {
	// SessionID prefixes every correlation id issued by this widget
	SessionID     string
	Greeting      string
	GreetingDelay time.Duration
	StaggerDelay  time.Duration
	ScrollSettle  time.Duration
	// Serialize disables the input while a request is in flight and ignores
	// submissions made in the meantime
	Serialize bool
}

// DefaultOptions returns the stock widget timings
func DefaultOptions() Options {
	return Options{
		Greeting:      DefaultGreeting,
		GreetingDelay: 500 * time.Millisecond,
		StaggerDelay:  500 * time.Millisecond,
		ScrollSettle:  100 * time.Millisecond,
		Serialize:     true,
	}
}

// Phase is the position of the most recent submission in its lifecycle
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseUserMessageShown
	PhaseAwaitingResponse
	PhaseRepliesRendering
	PhaseFailureShown
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseUserMessageShown:
		return "user_message_shown"
	case PhaseAwaitingResponse:
		return "awaiting_response"
	case PhaseRepliesRendering:
		return "replies_rendering"
	case PhaseFailureShown:
		return "failure_shown"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is the complete widget state. It is treated as a value: Reduce never
// mutates the State it is given.
type State struct {
	Transcript   transcript.Transcript
	Phase        Phase
	InputEnabled bool
	Initialized  bool
	Closed       bool

	opts      Options
	seq       int
	submitted int
	greeted   bool
	inFlight  map[string]struct{}
	// replies not yet revealed per correlation id; the head is scheduled
	pending map[string][]dialogue.Reply
}

// NewState returns the state of a freshly constructed, not yet initialized widget
func NewState(opts Options) State {
	return State{
		InputEnabled: true,
		opts:         opts,
	}
}

func (s State) Options() Options {
	return s.opts
}

// InFlight returns the number of requests awaiting a response
func (s State) InFlight() int {
	return len(s.inFlight)
}

// Submitted returns the number of submissions accepted so far
func (s State) Submitted() int {
	return s.submitted
}

// Busy reports whether the greeting, a response or a reply reveal is still
// outstanding
func (s State) Busy() bool {
	return len(s.inFlight) > 0 || len(s.pending) > 0 || (s.Initialized && !s.greeted)
}

// Awaiting reports whether a response for id is still expected
func (s State) Awaiting(id string) bool {
	_, ok := s.inFlight[id]
	return ok
}

// Reduce applies ev to s and returns the new state with the commands that
// render the change. now is the render time stamped on appended messages.
func Reduce(s State, ev Event, now time.Time) (State, []Command) {
	if s.Closed {
		return s, nil
	}

	switch ev := ev.(type) {
	case Init:
		return s.init()
	case Submit:
		return s.submit(ev.Text, now)
	case KeyDown:
		if ev.Key != "Enter" || ev.Shift {
			return s, nil
		}
		return s.submit(ev.Input, now)
	case Replied:
		return s.replied(ev, now)
	case Failed:
		return s.failed(ev, now)
	case Reveal:
		return s.reveal(ev, now)
	case Teardown:
		s.Closed = true
		s.inFlight = nil
		s.pending = nil
		return s, nil
	default:
		return s, nil
	}
}

func (s State) init() (State, []Command) {
	if s.Initialized {
		return s, nil
	}
	s.Initialized = true
	return s, []Command{
		FocusInput{},
		Schedule{
			After: s.opts.GreetingDelay,
			Event: Reveal{Text: s.opts.Greeting, Category: transcript.CategoryGreet},
		},
	}
}

func (s State) submit(text string, now time.Time) (State, []Command) {
	text = strings.TrimSpace(text)
	if text == "" {
		return s, nil
	}
	if s.opts.Serialize && len(s.inFlight) > 0 {
		return s, nil
	}

	var cmds []Command
	s, cmds = s.appendMessage(transcript.Message{
		Sender:    transcript.SenderUser,
		Text:      text,
		Category:  transcript.CategoryFallback,
		Timestamp: now,
	}, cmds)
	s.Phase = PhaseUserMessageShown
	cmds = append(cmds, ClearInput{})

	s.submitted++
	s.seq++
	id := s.correlationID(s.seq)
	s.Transcript = s.Transcript.AppendPlaceholder(id)
	s.inFlight = withKey(s.inFlight, id)
	cmds = append(cmds, AppendPlaceholder{ID: id}, ScrollToBottom{Settle: s.opts.ScrollSettle})

	if s.opts.Serialize {
		s.InputEnabled = false
		cmds = append(cmds, SetInputEnabled{Enabled: false})
	}

	s.Phase = PhaseAwaitingResponse
	cmds = append(cmds, SendRequest{ID: id, Text: text})
	return s, cmds
}

func (s State) replied(ev Replied, now time.Time) (State, []Command) {
	if !s.Awaiting(ev.ID) {
		return s, nil
	}
	s, cmds := s.settle(ev.ID)

	if len(ev.Replies) == 0 {
		s, cmds = s.appendMessage(botMessage(EmptyReplyText, transcript.CategoryFallback, now), cmds)
		s.Phase = s.idleOr(PhaseIdle)
		return s, cmds
	}

	// replies are revealed one at a time, in order
	s.pending = withValue(s.pending, ev.ID, ev.Replies)
	cmds = append(cmds, Schedule{Event: revealOf(ev.ID, ev.Replies[0])})
	s.Phase = PhaseRepliesRendering
	return s, cmds
}

func (s State) failed(ev Failed, now time.Time) (State, []Command) {
	if !s.Awaiting(ev.ID) {
		return s, nil
	}
	s, cmds := s.settle(ev.ID)
	s, cmds = s.appendMessage(botMessage(FailureText, transcript.CategoryFallback, now), cmds)
	s.Phase = s.idleOr(PhaseFailureShown)
	return s, cmds
}

func (s State) reveal(ev Reveal, now time.Time) (State, []Command) {
	if ev.ID == "" {
		s.greeted = true
		return s.appendMessage(botMessage(ev.Text, transcript.CategoryOrFallback(ev.Category), now), nil)
	}

	queue, ok := s.pending[ev.ID]
	if !ok {
		return s, nil
	}
	s, cmds := s.appendMessage(botMessage(ev.Text, transcript.CategoryOrFallback(ev.Category), now), nil)

	if rest := queue[1:]; len(rest) > 0 {
		s.pending = withValue(s.pending, ev.ID, rest)
		cmds = append(cmds, Schedule{After: s.opts.StaggerDelay, Event: revealOf(ev.ID, rest[0])})
		return s, cmds
	}

	s.pending = withoutKey(s.pending, ev.ID)
	if len(s.pending) == 0 && s.Phase == PhaseRepliesRendering {
		s.Phase = s.idleOr(PhaseIdle)
	}
	return s, cmds
}

func revealOf(id string, r dialogue.Reply) Reveal {
	return Reveal{ID: id, Text: r.Text, Category: transcript.CategoryOrFallback(r.Intent)}
}

// settle removes the request from the in-flight set, drops its placeholder
// and re-enables the input when nothing else is outstanding.
func (s State) settle(id string) (State, []Command) {
	var cmds []Command
	s.inFlight = withoutKey(s.inFlight, id)

	var removed bool
	s.Transcript, removed = s.Transcript.RemovePlaceholder(id)
	if removed {
		cmds = append(cmds, RemovePlaceholder{ID: id})
	}

	if !s.InputEnabled && len(s.inFlight) == 0 {
		s.InputEnabled = true
		cmds = append(cmds, SetInputEnabled{Enabled: true})
	}
	return s, cmds
}

// idleOr returns p unless another request is still awaiting its response
func (s State) idleOr(p Phase) Phase {
	if len(s.inFlight) > 0 {
		return PhaseAwaitingResponse
	}
	return p
}

func (s State) appendMessage(m transcript.Message, cmds []Command) (State, []Command) {
	s.seq++
	entryID := fmt.Sprintf("m%d", s.seq)
	s.Transcript = s.Transcript.AppendMessage(entryID, m)
	return s, append(cmds,
		AppendMessage{EntryID: entryID, Message: m},
		ScrollToBottom{Settle: s.opts.ScrollSettle},
	)
}

func (s State) correlationID(n int) string {
	if s.opts.SessionID == "" {
		return fmt.Sprintf("req-%d", n)
	}
	return fmt.Sprintf("%s:%d", s.opts.SessionID, n)
}

func botMessage(text, category string, now time.Time) transcript.Message {
	return transcript.Message{
		Sender:    transcript.SenderBot,
		Text:      text,
		Category:  category,
		Timestamp: now,
	}
}

func withKey(m map[string]struct{}, k string) map[string]struct{} {
	out := make(map[string]struct{}, len(m)+1)
	for key := range m {
		out[key] = struct{}{}
	}
	out[k] = struct{}{}
	return out
}

func withoutKey[V any](m map[string]V, k string) map[string]V {
	if _, ok := m[k]; !ok {
		return m
	}
	out := make(map[string]V, len(m))
	for key, v := range m {
		if key != k {
			out[key] = v
		}
	}
	return out
}

func withValue[V any](m map[string]V, k string, v V) map[string]V {
	out := make(map[string]V, len(m)+1)
	for key, val := range m {
		out[key] = val
	}
	out[k] = v
	return out
}
