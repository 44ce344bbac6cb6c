package chatbot

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"WebhookChat/internal/config"
	"WebhookChat/internal/deliverylog"
	"WebhookChat/internal/dialogue"
	"WebhookChat/internal/widget"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type echoSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *echoSender) Send(ctx context.Context, text string) (*dialogue.Response, error) {
	s.mu.Lock()
	s.sent = append(s.sent, text)
	s.mu.Unlock()
	return &dialogue.Response{StatusCode: http.StatusOK, Replies: []dialogue.Reply{{Text: "echo: " + text}}}, nil
}

func (s *echoSender) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func newTestChatBot(t *testing.T, sender widget.Sender, store *deliverylog.Store) *ChatBot {
	t.Helper()
	cfg := config.Default()
	cfg.GreetingDelay = 5 * time.Millisecond
	cfg.StaggerDelay = 5 * time.Millisecond
	cfg.ScrollSettle = 0
	return &ChatBot{
		config: cfg,
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		sender: sender,
	}
}

func TestRunTerminal_ConversationAndQuit(t *testing.T) {
	store, err := deliverylog.Open(filepath.Join(t.TempDir(), "deliveries.db"))
	require.NoError(t, err)
	defer store.Close()

	sender := &echoSender{}
	cb := newTestChatBot(t, sender, store)

	inR, inW := io.Pipe()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- cb.RunTerminal(context.Background(), inR, out) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), widget.DefaultGreeting)
	}, 2*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(inW, "/help\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Commands:")
	}, 2*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(inW, "where is order 42?\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "echo: where is order 42?")
	}, 2*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(inW, "/quit\n")
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("terminal did not exit after /quit")
	}
	inW.Close()

	require.Equal(t, []string{"where is order 42?"}, sender.Sent())
	require.Contains(t, out.String(), "Goodbye!")

	recent, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, deliverylog.OutcomeReplied, recent[0].Outcome)
	require.Equal(t, deliverylog.Fingerprint("where is order 42?"), recent[0].Fingerprint)
}

func TestRunTerminal_PipedInputIsSentInOrderAndAnswered(t *testing.T) {
	sender := &echoSender{}
	cb := newTestChatBot(t, sender, nil)

	out := &syncBuffer{}
	in := strings.NewReader("first question\n\nsecond question\n")
	require.NoError(t, cb.RunTerminal(context.Background(), in, out))

	require.Equal(t, []string{"first question", "second question"}, sender.Sent())

	s := out.String()
	greeting := strings.Index(s, widget.DefaultGreeting)
	first := strings.Index(s, "echo: first question")
	second := strings.Index(s, "echo: second question")
	bye := strings.Index(s, "Goodbye!")
	require.NotEqual(t, -1, greeting)
	require.Less(t, greeting, first)
	require.Less(t, first, second)
	require.Less(t, second, bye)
}

func TestRunTerminal_SlashInputIsNotSent(t *testing.T) {
	sender := &echoSender{}
	cb := newTestChatBot(t, sender, nil)

	out := &syncBuffer{}
	in := strings.NewReader("/unknown thing\n")
	require.NoError(t, cb.RunTerminal(context.Background(), in, out))

	require.Empty(t, sender.Sent())
	require.Contains(t, out.String(), "Unknown command /unknown")
}

func TestRunTerminal_ContextCancel(t *testing.T) {
	cb := newTestChatBot(t, &echoSender{}, nil)
	inR, inW := io.Pipe()
	defer inW.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cb.RunTerminal(ctx, inR, &syncBuffer{}) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("terminal did not exit after cancel")
	}
}

func TestStats(t *testing.T) {
	store, err := deliverylog.Open(filepath.Join(t.TempDir(), "deliveries.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	start := time.Now().Add(-time.Minute)
	require.NoError(t, store.Record(ctx, deliverylog.Delivery{SessionID: "s", CorrelationID: "s:1", StartedAt: start, Duration: 100 * time.Millisecond, Outcome: deliverylog.OutcomeReplied, ReplyCount: 2, HTTPStatus: 200}))
	require.NoError(t, store.Record(ctx, deliverylog.Delivery{SessionID: "s", CorrelationID: "s:2", StartedAt: start, Duration: 300 * time.Millisecond, Outcome: deliverylog.OutcomeFailed, HTTPStatus: 500}))

	cb := newTestChatBot(t, &echoSender{}, store)
	var out bytes.Buffer
	require.NoError(t, cb.Stats(ctx, &out, time.Time{}, 5))

	s := out.String()
	require.Contains(t, s, "Deliveries: 2")
	require.Contains(t, s, "Mean latency: 200ms")
	require.Contains(t, s, "failed")
	require.Contains(t, s, "s:2")
}

func TestStats_DisabledLog(t *testing.T) {
	cb := newTestChatBot(t, &echoSender{}, nil)
	require.ErrorIs(t, cb.Stats(context.Background(), io.Discard, time.Time{}, 0), ErrNoDeliveryLog)
}
