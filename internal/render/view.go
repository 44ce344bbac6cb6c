package render

import (
	"WebhookChat/internal/transcript"
	"WebhookChat/internal/widget"
)

// Row is one rendered transcript line
type Row struct {
	ID      string
	Kind    transcript.Kind
	Message transcript.Message
}

// View is a toolkit independent model of the widget surface: the transcript
// container plus the input control. Renderers keep one to know what is on
// screen.
type View struct {
	Rows         []Row
	Input        string
	InputEnabled bool
	Focused      bool
	Scrolls      int
}

func NewView() *View {
	return &View{InputEnabled: true}
}

// Apply applies cmds in order. RemovePlaceholder for an unknown id is ignored.
// Non-render commands are ignored.
func (v *View) Apply(cmds []widget.Command) {
	for _, cmd := range cmds {
		switch cmd := cmd.(type) {
		case widget.AppendMessage:
			v.Rows = append(v.Rows, Row{ID: cmd.EntryID, Kind: transcript.KindMessage, Message: cmd.Message})
		case widget.AppendPlaceholder:
			v.Rows = append(v.Rows, Row{ID: cmd.ID, Kind: transcript.KindPlaceholder})
		case widget.RemovePlaceholder:
			v.removePlaceholder(cmd.ID)
		case widget.ClearInput:
			v.Input = ""
		case widget.FocusInput:
			v.Focused = true
		case widget.SetInputEnabled:
			v.InputEnabled = cmd.Enabled
		case widget.ScrollToBottom:
			v.Scrolls++
		}
	}
}

// Placeholders returns the number of typing placeholders on screen
func (v *View) Placeholders() int {
	n := 0
	for _, r := range v.Rows {
		if r.Kind == transcript.KindPlaceholder {
			n++
		}
	}
	return n
}

// Messages returns the rendered messages in order
func (v *View) Messages() []transcript.Message {
	var msgs []transcript.Message
	for _, r := range v.Rows {
		if r.Kind == transcript.KindMessage {
			msgs = append(msgs, r.Message)
		}
	}
	return msgs
}

func (v *View) removePlaceholder(id string) {
	for i, r := range v.Rows {
		if r.Kind == transcript.KindPlaceholder && r.ID == id {
			v.Rows = append(v.Rows[:i], v.Rows[i+1:]...)
			return
		}
	}
}
