package widget

import (
	"time"

	"WebhookChat/internal/dialogue"
	"WebhookChat/internal/transcript"
)

// Event is an input to the reducer
type Event interface {
	isEvent()
}

// Init is dispatched once when the widget loads
type Init struct{}

// Submit carries the text of the input control at submission time
type Submit struct {
	Text string
}

// KeyDown is a key press while the input has focus. Input is the current
// content of the input control.
type KeyDown struct {
	Key   string
	Shift bool
	Input string
}

// Replied is the successful outcome of the request with the given correlation id
type Replied struct {
	ID      string
	Replies []dialogue.Reply
}

// Failed is the failed outcome of the request with the given correlation id
type Failed struct {
	ID  string
	Err error
}

// Reveal appends one bot message. Replies and the greeting are revealed
// through delayed Reveal events; the replies of one request are revealed one
// at a time, each scheduling the next. ID is the correlation id of the
// request the reply belongs to, empty for the greeting.
type Reveal struct {
	ID       string
	Text     string
	Category string
}

// Teardown detaches the widget. Nothing is rendered afterwards.
type Teardown struct{}

func (Init) isEvent()     {}
func (Submit) isEvent()   {}
func (KeyDown) isEvent()  {}
func (Replied) isEvent()  {}
func (Failed) isEvent()   {}
func (Reveal) isEvent()   {}
func (Teardown) isEvent() {}

// Command is an output of the reducer. Render commands are applied by a
// Renderer; SendRequest and Schedule are effects executed by the Controller.
type Command interface {
	isCommand()
}

type AppendMessage struct {
	EntryID string
	Message transcript.Message
}

type AppendPlaceholder struct {
	ID string
}

// RemovePlaceholder must be applied idempotently by renderers
type RemovePlaceholder struct {
	ID string
}

type ClearInput struct{}

type FocusInput struct{}

type SetInputEnabled struct {
	Enabled bool
}

// ScrollToBottom asks the renderer to scroll the transcript to its end once
// the preceding mutations are laid out. Settle is the fallback delay for
// renderers without a layout-flush signal.
type ScrollToBottom struct {
	Settle time.Duration
}

// SendRequest issues one call to the dialogue service
type SendRequest struct {
	ID   string
	Text string
}

// Schedule dispatches Event after the given delay
type Schedule struct {
	After time.Duration
	Event Event
}

func (AppendMessage) isCommand()     {}
func (AppendPlaceholder) isCommand() {}
func (RemovePlaceholder) isCommand() {}
func (ClearInput) isCommand()        {}
func (FocusInput) isCommand()        {}
func (SetInputEnabled) isCommand()   {}
func (ScrollToBottom) isCommand()    {}
func (SendRequest) isCommand()       {}
func (Schedule) isCommand()          {}

// IsRender reports whether cmd is meant for a Renderer rather than the Controller
func IsRender(cmd Command) bool {
	switch cmd.(type) {
	case SendRequest, Schedule:
		return false
	default:
		return true
	}
}
