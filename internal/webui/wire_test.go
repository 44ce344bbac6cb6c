package webui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"WebhookChat/internal/transcript"
	"WebhookChat/internal/widget"
)

func TestEncodeCommands(t *testing.T) {
	at := time.Date(2026, 7, 1, 16, 45, 0, 0, time.UTC)
	cmds := encodeCommands([]widget.Command{
		widget.AppendMessage{EntryID: "m1", Message: transcript.Message{Sender: transcript.SenderBot, Text: "hi", Category: "greet", Timestamp: at}},
		widget.AppendPlaceholder{ID: "w:2"},
		widget.RemovePlaceholder{ID: "w:2"},
		widget.SetInputEnabled{Enabled: false},
		widget.ScrollToBottom{Settle: 100 * time.Millisecond},
		widget.SendRequest{ID: "w:2", Text: "dropped"},
	}, "15:04")

	require.Len(t, cmds, 5)
	require.Equal(t, wireCommand{Op: "append_message", ID: "m1", Sender: "bot", Text: "hi", Category: "greet", Time: "16:45"}, cmds[0])
	require.Equal(t, "append_placeholder", cmds[1].Op)
	require.Equal(t, "w:2", cmds[2].ID)
	require.NotNil(t, cmds[3].Enabled)
	require.False(t, *cmds[3].Enabled)
	require.Equal(t, int64(100), *cmds[4].SettleMs)
}

func TestDecodeInbound(t *testing.T) {
	ev, ok, err := decodeInbound([]byte(`{"type":"submit","text":"hello"}`))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, widget.Submit{Text: "hello"}, ev)

	ev, ok, err = decodeInbound([]byte(`{"type":"key","key":"Enter","shift":true,"text":"x"}`))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, widget.KeyDown{Key: "Enter", Shift: true, Input: "x"}, ev)

	_, ok, err = decodeInbound([]byte(`{"type":"typing"}`))
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = decodeInbound([]byte(`not json`))
	require.Error(t, err)
}
