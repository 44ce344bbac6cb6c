package render

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"WebhookChat/internal/transcript"
	"WebhookChat/internal/widget"

	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 5, 6, 14, 7, 0, 0, time.Local)

func TestFormatMessage_AvatarPlacement(t *testing.T) {
	user := FormatMessage(transcript.Message{Sender: transcript.SenderUser, Text: "where is order 42?", Timestamp: at}, DefaultTimeLayout)
	require.True(t, strings.HasSuffix(user, "where is order 42?  14:07 (you)"), user)

	bot := FormatMessage(transcript.Message{Sender: transcript.SenderBot, Text: "It shipped.", Timestamp: at}, DefaultTimeLayout)
	require.Equal(t, "(bot)  It shipped.  14:07", bot)
}

func TestFormatMessage_MultilineIndentsContinuation(t *testing.T) {
	bot := FormatMessage(transcript.Message{Sender: transcript.SenderBot, Text: "Order 42\nStatus: shipped", Timestamp: at}, DefaultTimeLayout)
	require.Equal(t, "(bot)  Order 42\n       Status: shipped  14:07", bot)
}

func TestView_ApplyRemovePlaceholderIsIdempotent(t *testing.T) {
	v := NewView()
	v.Apply([]widget.Command{
		widget.AppendMessage{EntryID: "m1", Message: transcript.Message{Sender: transcript.SenderUser, Text: "hi"}},
		widget.AppendPlaceholder{ID: "req-1"},
		widget.SetInputEnabled{Enabled: false},
		widget.ScrollToBottom{},
	})
	require.Equal(t, 1, v.Placeholders())
	require.False(t, v.InputEnabled)

	v.Apply([]widget.Command{widget.RemovePlaceholder{ID: "req-1"}, widget.RemovePlaceholder{ID: "req-1"}})
	require.Equal(t, 0, v.Placeholders())
	require.Len(t, v.Messages(), 1)
	require.Equal(t, 1, v.Scrolls)
}

func TestTerminal_PlainOutputIsAppendOnly(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(&out)

	err := term.Render(context.Background(), []widget.Command{
		widget.AppendMessage{EntryID: "m1", Message: transcript.Message{Sender: transcript.SenderUser, Text: "hi", Timestamp: at}},
		widget.ClearInput{},
		widget.AppendPlaceholder{ID: "req-1"},
	})
	require.NoError(t, err)

	err = term.Render(context.Background(), []widget.Command{
		widget.RemovePlaceholder{ID: "req-1"},
		widget.AppendMessage{EntryID: "m2", Message: transcript.Message{Sender: transcript.SenderBot, Text: "hello", Timestamp: at}},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "hi  14:07 (you)")
	require.Equal(t, "(bot)  Typing...", lines[1])
	require.Equal(t, "(bot)  hello  14:07", lines[2])
	require.NotContains(t, out.String(), "\x1b[")
}

func TestTerminal_ANSIRedrawsTransientLine(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(&out, WithANSI(true))
	ctx := context.Background()

	require.NoError(t, term.Render(ctx, []widget.Command{widget.FocusInput{}}))
	require.Equal(t, prompt, out.String())
	out.Reset()

	require.NoError(t, term.Render(ctx, []widget.Command{
		widget.AppendMessage{EntryID: "m1", Message: transcript.Message{Sender: transcript.SenderUser, Text: "hi", Timestamp: at}},
		widget.AppendPlaceholder{ID: "req-1"},
		widget.SetInputEnabled{Enabled: false},
	}))
	require.True(t, strings.HasPrefix(out.String(), cursorUp+clearLine), "echoed input is erased")
	require.True(t, strings.HasSuffix(out.String(), typingLine()))
	out.Reset()

	require.NoError(t, term.Render(ctx, []widget.Command{
		widget.RemovePlaceholder{ID: "req-1"},
		widget.SetInputEnabled{Enabled: true},
		widget.AppendMessage{EntryID: "m2", Message: transcript.Message{Sender: transcript.SenderBot, Text: "hello", Timestamp: at}},
	}))
	require.Equal(t, clearLine+"(bot)  hello  14:07\n"+prompt, out.String())
}
