package chatbot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"WebhookChat/internal/config"
	"WebhookChat/internal/deliverylog"
	"WebhookChat/internal/dialogue"
	"WebhookChat/internal/render"
	"WebhookChat/internal/telemetry"
	"WebhookChat/internal/webui"
	"WebhookChat/internal/widget"
)

// ChatBot wires the widget to its dialogue service, renderers and logs
type ChatBot struct {
	config *config.Config
	store  *deliverylog.Store
	logger *slog.Logger
	meter  metric.Meter
	sender widget.Sender

	closers []func()
}

// NewChatBot creates a new ChatBot instance
func NewChatBot(ctx context.Context, cfg *config.Config) (*ChatBot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, logFile, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, cfg.LogDir, cfg.Telemetry)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	cb := &ChatBot{
		config:  cfg,
		logger:  logger,
		meter:   meter,
		closers: []func(){shutdown, func() { logFile.Close() }},
	}

	if cfg.DeliveryDB != "" {
		store, err := deliverylog.Open(cfg.DeliveryDB)
		if err != nil {
			cb.Close()
			return nil, fmt.Errorf("failed to open delivery log: %w", err)
		}
		cb.store = store
		cb.closers = append([]func(){func() { store.Close() }}, cb.closers...)
	}

	client, err := dialogue.NewClient(cfg.WebhookURL,
		dialogue.WithSender(cfg.SenderID),
		dialogue.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		dialogue.WithLogger(logger),
		dialogue.WithTracer(tracer),
		dialogue.WithMeter(meter),
	)
	if err != nil {
		cb.Close()
		return nil, fmt.Errorf("failed to create dialogue client: %w", err)
	}
	cb.sender = client

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}
	logger.Info("chatbot initialized", "webhook_url", client.URL(), "serialize", cfg.SerializeSubmissions)

	return cb, nil
}

// Close releases the delivery log, telemetry exporters and log file
func (cb *ChatBot) Close() {
	for _, fn := range cb.closers {
		fn()
	}
	cb.closers = nil
}

func (cb *ChatBot) controllerOptions() []widget.ControllerOption {
	opts := []widget.ControllerOption{widget.WithLogger(cb.logger)}
	if cb.store != nil {
		opts = append(opts, widget.WithRecorder(cb.store))
	}
	if cb.meter != nil {
		opts = append(opts, widget.WithMeter(cb.meter))
	}
	return opts
}

const helpText = `Commands:
  /help   - Show this help message
  /quit   - Exit (also /exit)

Anything else is sent to the assistant. Enter on an empty line does nothing.
`

// RunTerminal runs one widget in line mode, reading input from in and
// drawing the transcript on out. Lines are sent one at a time: a line read
// while the widget is busy waits until the previous reply has been shown.
// It returns after in is exhausted and everything pending has been shown,
// when /quit is entered or when ctx is cancelled.
func (cb *ChatBot) RunTerminal(ctx context.Context, in io.Reader, out io.Writer) error {
	sessionID := uuid.NewString()
	logger := cb.logger.With("widget", sessionID)

	// latest state wins; the controller is the only writer
	states := make(chan widget.State, 1)
	observe := func(s widget.State) {
		select {
		case <-states:
		default:
		}
		states <- s
	}

	term := render.NewTerminal(out, render.WithTimeLayout(cb.config.TimeLayout))
	opts := append(cb.controllerOptions(), widget.WithObserver(observe))
	ctrl := widget.NewController(cb.config.WidgetOptions(sessionID), cb.sender, term, opts...)

	fmt.Fprintln(out, "=== Webhook Chat ===")
	fmt.Fprintf(out, "Webhook: %s\n", cb.config.WebhookURL)
	fmt.Fprintln(out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(out)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(runCtx) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-runCtx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Error("failed to read input", "error", err)
		}
	}()

	ctrl.Init()

	var queue []string
	sent := 0
	// the greeting is pending until the first observed state says otherwise
	idle := false
	input := lines

loop:
	for {
		if idle && len(queue) > 0 {
			ctrl.Submit(queue[0])
			queue = queue[1:]
			sent++
			idle = false
		}
		if input == nil && idle && len(queue) == 0 {
			break
		}

		select {
		case <-ctx.Done():
			break loop
		case <-ctrl.Done():
			break loop
		case s := <-states:
			// states from before the last submission was handled are stale
			idle = s.Submitted() == sent && !s.Busy()
		case line, ok := <-input:
			if !ok {
				input = nil
				continue
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case strings.HasPrefix(line, "/"):
				if quit := cb.handleCommand(out, line); quit {
					break loop
				}
			default:
				queue = append(queue, line)
			}
		}
	}

	ctrl.Close()
	<-ctrl.Done()
	ctrl.Wait()

	if len(queue) > 0 {
		logger.Info("unsent input discarded", "lines", len(queue))
	}
	fmt.Fprintln(out, "Goodbye!")
	return <-runErr
}

// handleCommand runs a slash command and reports whether the session should end
func (cb *ChatBot) handleCommand(out io.Writer, cmd string) bool {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprint(out, helpText)
	default:
		fmt.Fprintf(out, "Unknown command %s, type /help for commands\n", parts[0])
	}
	return false
}

// Serve runs the browser widget server until ctx is cancelled
func (cb *ChatBot) Serve(ctx context.Context) error {
	srv := webui.NewServer(webui.Options{
		Widget:     cb.config.WidgetOptions,
		TimeLayout: cb.config.TimeLayout,
		Sender:     cb.sender,
		Recorder:   cb.recorder(),
		Logger:     cb.logger,
		Meter:      cb.meter,
	})

	httpServer := &http.Server{
		Addr:              cb.config.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cb.logger.Info("serving widget", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		srv.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		cb.logger.Info("widget server stopped")
		return nil
	})
	return g.Wait()
}

// recorder avoids handing webui a typed nil store
func (cb *ChatBot) recorder() widget.Recorder {
	if cb.store == nil {
		return nil
	}
	return cb.store
}

// ErrNoDeliveryLog is returned by Stats when the delivery log is disabled
var ErrNoDeliveryLog = errors.New("delivery log is disabled")

// Stats prints per-outcome counts since the given time and the most recent deliveries
func (cb *ChatBot) Stats(ctx context.Context, out io.Writer, since time.Time, recent int) error {
	if cb.store == nil {
		return ErrNoDeliveryLog
	}
	return WriteStats(ctx, cb.store, out, since, recent)
}

// WriteStats renders a delivery log summary to out
func WriteStats(ctx context.Context, store *deliverylog.Store, out io.Writer, since time.Time, recent int) error {
	sum, err := store.Summarize(ctx, since)
	if err != nil {
		return err
	}

	if since.IsZero() {
		fmt.Fprintf(out, "Deliveries: %d\n", sum.Total)
	} else {
		fmt.Fprintf(out, "Deliveries since %s: %d\n", since.Format(time.RFC3339), sum.Total)
	}
	if sum.Total > 0 {
		fmt.Fprintf(out, "Mean latency: %s\n", sum.AvgDuration)
	}

	outcomes := make([]string, 0, len(sum.ByOutcome))
	for o := range sum.ByOutcome {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(out, "  %-8s %d\n", o, sum.ByOutcome[deliverylog.Outcome(o)])
	}

	if recent <= 0 {
		return nil
	}
	deliveries, err := store.Recent(ctx, recent)
	if err != nil {
		return err
	}
	if len(deliveries) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tCORRELATION\tOUTCOME\tSTATUS\tREPLIES\tDURATION")
	for _, d := range deliveries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			d.StartedAt.Local().Format(time.DateTime), d.CorrelationID, d.Outcome, d.HTTPStatus, d.ReplyCount, d.Duration)
	}
	return w.Flush()
}
