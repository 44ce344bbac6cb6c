package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"WebhookChat/internal/transcript"
	"WebhookChat/internal/widget"

	"github.com/mattn/go-isatty"
)

// DefaultTimeLayout renders message timestamps as hour:minute
const DefaultTimeLayout = "15:04"

const (
	userAvatar  = "(you)"
	botAvatar   = "(bot)"
	typingText  = "Typing..."
	prompt      = "> "
	clearLine   = "\r\x1b[2K"
	cursorUp    = "\x1b[1A"
	indentWidth = 7
)

// Terminal renders the widget as lines on a terminal. On a TTY the typing
// indicator and the input prompt live on a transient last line that is
// redrawn; otherwise output is strictly append-only.
type Terminal struct {
	mu     sync.Mutex
	out    io.Writer
	view   *View
	layout string
	ansi   bool

	statusShown bool
	promptShown bool
}

type TerminalOption func(*Terminal)

func WithTimeLayout(layout string) TerminalOption {
	return func(t *Terminal) {
		if layout != "" {
			t.layout = layout
		}
	}
}

// WithANSI forces escape sequences on or off
func WithANSI(enabled bool) TerminalOption {
	return func(t *Terminal) { t.ansi = enabled }
}

// NewTerminal creates a terminal renderer writing to out. Escape sequences
// are enabled when out is a terminal.
func NewTerminal(out io.Writer, opts ...TerminalOption) *Terminal {
	t := &Terminal{
		out:    out,
		view:   NewView(),
		layout: DefaultTimeLayout,
	}
	if f, ok := out.(*os.File); ok {
		t.ansi = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// View returns the renderer's view model
func (t *Terminal) View() *View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view
}

// Render implements widget.Renderer
func (t *Terminal) Render(ctx context.Context, cmds []widget.Command) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	if t.ansi {
		t.clearTransient(&b, cmds)
	}

	for _, cmd := range cmds {
		switch cmd := cmd.(type) {
		case widget.AppendMessage:
			b.WriteString(FormatMessage(cmd.Message, t.layout))
			b.WriteByte('\n')
		case widget.AppendPlaceholder:
			if !t.ansi {
				b.WriteString(typingLine())
				b.WriteByte('\n')
			}
		}
	}
	t.view.Apply(cmds)

	if t.ansi {
		switch {
		case t.view.Placeholders() > 0:
			b.WriteString(typingLine())
			t.statusShown = true
		case t.view.InputEnabled:
			b.WriteString(prompt)
			t.promptShown = true
		}
	}

	if b.Len() == 0 {
		return nil
	}
	if _, err := io.WriteString(t.out, b.String()); err != nil {
		return fmt.Errorf("failed to write to terminal: %w", err)
	}
	return nil
}

// clearTransient erases the status or prompt line. When the batch starts with
// the user's own message the prompt line already holds the echoed input, so
// that line is erased instead.
func (t *Terminal) clearTransient(b *strings.Builder, cmds []widget.Command) {
	switch {
	case t.promptShown && startsWithUserMessage(cmds):
		b.WriteString(cursorUp)
		b.WriteString(clearLine)
	case t.promptShown, t.statusShown:
		b.WriteString(clearLine)
	}
	t.promptShown = false
	t.statusShown = false
}

func startsWithUserMessage(cmds []widget.Command) bool {
	if len(cmds) == 0 {
		return false
	}
	m, ok := cmds[0].(widget.AppendMessage)
	return ok && m.Message.Sender == transcript.SenderUser
}

// FormatMessage renders one bubble. User messages put the avatar after the
// content, bot messages before it.
func FormatMessage(m transcript.Message, layout string) string {
	stamp := m.Timestamp.Format(layout)
	lines := strings.Split(m.Text, "\n")
	pad := strings.Repeat(" ", indentWidth)

	var b strings.Builder
	if m.Sender == transcript.SenderUser {
		for i, line := range lines {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(pad)
			b.WriteString(line)
		}
		fmt.Fprintf(&b, "  %s %s", stamp, userAvatar)
		return b.String()
	}

	fmt.Fprintf(&b, "%-*s", indentWidth, botAvatar)
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
			b.WriteString(pad)
		}
		b.WriteString(line)
	}
	fmt.Fprintf(&b, "  %s", stamp)
	return b.String()
}

func typingLine() string {
	return fmt.Sprintf("%-*s%s", indentWidth, botAvatar, typingText)
}
