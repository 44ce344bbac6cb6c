package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"WebhookChat/internal/deliverylog"
	"WebhookChat/internal/dialogue"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Sender is the dialogue service as seen by the widget
type Sender interface {
	Send(ctx context.Context, text string) (*dialogue.Response, error)
}

// Renderer applies render commands to a concrete view
type Renderer interface {
	Render(ctx context.Context, cmds []Command) error
}

// Recorder receives one Delivery per completed request
type Recorder interface {
	Record(ctx context.Context, d deliverylog.Delivery) error
}

// Timer is a pending scheduled callback
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d on some other goroutine
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// internal loop events
type (
	timerFired struct {
		key int
		ev  Event
	}
	requestDone struct {
		id       string
		resp     *dialogue.Response
		err      error
		delivery deliverylog.Delivery
	}
)

func (timerFired) isEvent()  {}
func (requestDone) isEvent() {}

// Controller owns one widget instance. All state changes happen on the
// goroutine running Run; the exported methods only enqueue events.
type Controller struct {
	state     State
	sender    Sender
	renderer  Renderer
	recorder  Recorder
	scheduler Scheduler
	logger    *slog.Logger
	now       func() time.Time
	observe   func(State)

	events chan Event
	done   chan struct{}
	once   sync.Once

	timers   map[int]Timer
	timerSeq int
	cancel   context.CancelFunc
	requests sync.WaitGroup

	submissions  metric.Int64Counter
	failures     metric.Int64Counter
	emptyReplies metric.Int64Counter
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

// WithRecorder logs every request outcome to r
func WithRecorder(r Recorder) ControllerOption {
	return func(c *Controller) { c.recorder = r }
}

func WithScheduler(s Scheduler) ControllerOption {
	return func(c *Controller) { c.scheduler = s }
}

func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// WithObserver calls fn with the new state after every handled event. fn runs
// on the event loop and must not block.
func WithObserver(fn func(State)) ControllerOption {
	return func(c *Controller) { c.observe = fn }
}

func WithMeter(meter metric.Meter) ControllerOption {
	return func(c *Controller) { c.initMetrics(meter) }
}

// NewController creates a widget controller. Call Run to start its event loop.
func NewController(opts Options, sender Sender, renderer Renderer, options ...ControllerOption) *Controller {
	c := &Controller{
		state:     NewState(opts),
		sender:    sender,
		renderer:  renderer,
		scheduler: realScheduler{},
		logger:    slog.Default(),
		now:       time.Now,
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
		timers:    make(map[int]Timer),
	}
	c.initMetrics(otel.Meter("webhookchat"))
	for _, opt := range options {
		opt(c)
	}
	c.logger = c.logger.With("widget", opts.SessionID)
	return c
}

func (c *Controller) initMetrics(meter metric.Meter) {
	var err error
	if c.submissions, err = meter.Int64Counter("widget.submissions", metric.WithDescription("Messages sent to the dialogue service")); err != nil {
		c.submissions = nil
	}
	if c.failures, err = meter.Int64Counter("widget.failures", metric.WithDescription("Requests that ended in the connectivity fallback")); err != nil {
		c.failures = nil
	}
	if c.emptyReplies, err = meter.Int64Counter("widget.empty_replies", metric.WithDescription("Requests answered with an empty reply list")); err != nil {
		c.emptyReplies = nil
	}
}

// Dispatch enqueues an arbitrary widget event
func (c *Controller) Dispatch(ev Event) { c.post(ev) }

// Init schedules the greeting and focuses the input
func (c *Controller) Init() { c.post(Init{}) }

// Submit sends text as if it had been typed and submitted
func (c *Controller) Submit(text string) { c.post(Submit{Text: text}) }

// KeyDown forwards a key press in the input control
func (c *Controller) KeyDown(key string, shift bool, input string) {
	c.post(KeyDown{Key: key, Shift: shift, Input: input})
}

// Close tears the widget down. Pending reveals and in-flight requests are
// cancelled and nothing is rendered afterwards.
func (c *Controller) Close() { c.post(Teardown{}) }

// Done is closed once Run has returned
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// State returns a snapshot of the widget state. It is only safe to call once
// Run has returned or from within tests that have quiesced the loop.
func (c *Controller) State() State {
	return c.state
}

func (c *Controller) post(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Run processes events until the widget is torn down or ctx is cancelled
func (c *Controller) Run(ctx context.Context) error {
	defer c.once.Do(func() { close(c.done) })

	reqCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			c.state, _ = Reduce(c.state, Teardown{}, c.now())
			return nil
		case ev := <-c.events:
			if err := c.handle(reqCtx, ev); err != nil {
				c.logger.Error("render failed", "error", err)
			}
			if c.state.Closed {
				return nil
			}
		}
	}
}

func (c *Controller) shutdown() {
	for key, t := range c.timers {
		t.Stop()
		delete(c.timers, key)
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.logger.Info("widget closed", "in_flight", c.state.InFlight())
}

func (c *Controller) handle(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case timerFired:
		if _, ok := c.timers[e.key]; !ok {
			return nil
		}
		delete(c.timers, e.key)
		ev = e.ev
	case requestDone:
		ev = c.complete(ctx, e)
	}

	next, cmds := Reduce(c.state, ev, c.now())
	c.state = next
	if c.observe != nil {
		c.observe(next)
	}

	if len(cmds) == 0 {
		c.logger.Debug("event produced no commands", "event", fmt.Sprintf("%T", ev))
		return nil
	}

	// render before running effects so the user's message is on screen
	// before the request leaves
	render := make([]Command, 0, len(cmds))
	effects := make([]Command, 0, 2)
	for _, cmd := range cmds {
		if IsRender(cmd) {
			render = append(render, cmd)
		} else {
			effects = append(effects, cmd)
		}
	}

	var err error
	if len(render) > 0 {
		err = c.renderer.Render(ctx, render)
	}

	for _, cmd := range effects {
		switch cmd := cmd.(type) {
		case SendRequest:
			c.send(ctx, cmd)
		case Schedule:
			c.schedule(cmd)
		}
	}
	return err
}

func (c *Controller) send(ctx context.Context, cmd SendRequest) {
	if c.submissions != nil {
		c.submissions.Add(ctx, 1)
	}
	c.logger.Info("sending message", "correlation_id", cmd.ID, "length", len(cmd.Text))

	sessionID := c.state.opts.SessionID
	c.requests.Add(1)
	go func() {
		defer c.requests.Done()
		started := c.now()
		resp, err := c.sender.Send(ctx, cmd.Text)
		d := newDelivery(sessionID, cmd, started, c.now().Sub(started), resp, err)
		// recorded off the event loop
		if c.recorder != nil {
			if rerr := c.recorder.Record(context.WithoutCancel(ctx), d); rerr != nil {
				c.logger.Warn("failed to record delivery", "correlation_id", cmd.ID, "error", rerr)
			}
		}
		c.post(requestDone{id: cmd.ID, resp: resp, err: err, delivery: d})
	}()
}

func (c *Controller) schedule(cmd Schedule) {
	c.timerSeq++
	key := c.timerSeq
	ev := cmd.Event
	c.timers[key] = c.scheduler.AfterFunc(cmd.After, func() {
		c.post(timerFired{key: key, ev: ev})
	})
}

func newDelivery(sessionID string, cmd SendRequest, started time.Time, took time.Duration, resp *dialogue.Response, err error) deliverylog.Delivery {
	d := deliverylog.Delivery{
		SessionID:     sessionID,
		CorrelationID: cmd.ID,
		StartedAt:     started,
		Duration:      took,
		Fingerprint:   deliverylog.Fingerprint(cmd.Text),
	}
	switch {
	case err != nil:
		d.Outcome = deliverylog.OutcomeFailed
		d.Error = err.Error()
		var statusErr *dialogue.StatusError
		if errors.As(err, &statusErr) {
			d.HTTPStatus = statusErr.StatusCode
		}
	case resp == nil || len(resp.Replies) == 0:
		d.Outcome = deliverylog.OutcomeEmpty
		if resp != nil {
			d.HTTPStatus = resp.StatusCode
		}
	default:
		d.Outcome = deliverylog.OutcomeReplied
		d.HTTPStatus = resp.StatusCode
		d.ReplyCount = len(resp.Replies)
	}
	return d
}

// complete turns a finished request into the reducer event
func (c *Controller) complete(ctx context.Context, done requestDone) Event {
	switch done.delivery.Outcome {
	case deliverylog.OutcomeFailed:
		if c.failures != nil {
			c.failures.Add(ctx, 1)
		}
		c.logger.Warn("request failed", "correlation_id", done.id, "error", done.err)
		return Failed{ID: done.id, Err: done.err}
	case deliverylog.OutcomeEmpty:
		if c.emptyReplies != nil {
			c.emptyReplies.Add(ctx, 1)
		}
		c.logger.Info("empty reply", "correlation_id", done.id)
		return Replied{ID: done.id}
	default:
		c.logger.Info("received replies", "correlation_id", done.id, "count", done.delivery.ReplyCount)
		return Replied{ID: done.id, Replies: done.resp.Replies}
	}
}

// Wait blocks until every request goroutine started by the controller has returned
func (c *Controller) Wait() {
	c.requests.Wait()
}
