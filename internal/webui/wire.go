package webui

import (
	"encoding/json"
	"strings"

	"WebhookChat/internal/widget"
)

// inboundMessage is what the page sends over the websocket
type inboundMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Key   string `json:"key,omitempty"`
	Shift bool   `json:"shift,omitempty"`
}

type outgoingMessage struct {
	Type     string        `json:"type"`
	Commands []wireCommand `json:"commands,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// wireCommand is the flat JSON form of a render command. Op names the
// command, the remaining fields are set per op.
type wireCommand struct {
	Op       string `json:"op"`
	ID       string `json:"id,omitempty"`
	Sender   string `json:"sender,omitempty"`
	Text     string `json:"text,omitempty"`
	Category string `json:"category,omitempty"`
	Time     string `json:"time,omitempty"`
	Enabled  *bool  `json:"enabled,omitempty"`
	SettleMs *int64 `json:"settle_ms,omitempty"`
}

// encodeCommands converts render commands to their wire form. Timestamps are
// formatted with layout; non-render commands are dropped.
func encodeCommands(cmds []widget.Command, layout string) []wireCommand {
	out := make([]wireCommand, 0, len(cmds))
	for _, cmd := range cmds {
		switch cmd := cmd.(type) {
		case widget.AppendMessage:
			out = append(out, wireCommand{
				Op:       "append_message",
				ID:       cmd.EntryID,
				Sender:   string(cmd.Message.Sender),
				Text:     cmd.Message.Text,
				Category: cmd.Message.Category,
				Time:     cmd.Message.Timestamp.Format(layout),
			})
		case widget.AppendPlaceholder:
			out = append(out, wireCommand{Op: "append_placeholder", ID: cmd.ID})
		case widget.RemovePlaceholder:
			out = append(out, wireCommand{Op: "remove_placeholder", ID: cmd.ID})
		case widget.ClearInput:
			out = append(out, wireCommand{Op: "clear_input"})
		case widget.FocusInput:
			out = append(out, wireCommand{Op: "focus_input"})
		case widget.SetInputEnabled:
			enabled := cmd.Enabled
			out = append(out, wireCommand{Op: "set_input_enabled", Enabled: &enabled})
		case widget.ScrollToBottom:
			ms := cmd.Settle.Milliseconds()
			out = append(out, wireCommand{Op: "scroll_to_bottom", SettleMs: &ms})
		}
	}
	return out
}

// decodeInbound parses one page message into a widget event. ok is false for
// messages that do not map to an event.
func decodeInbound(data []byte) (ev widget.Event, ok bool, err error) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false, err
	}
	switch strings.ToLower(msg.Type) {
	case "submit":
		return widget.Submit{Text: msg.Text}, true, nil
	case "key":
		return widget.KeyDown{Key: msg.Key, Shift: msg.Shift, Input: msg.Text}, true, nil
	default:
		return nil, false, nil
	}
}
