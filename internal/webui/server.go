package webui

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/metric"

	"WebhookChat/internal/widget"
)

//go:embed static
var staticFiles embed.FS

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// Options configures the browser widget server
type Options struct {
	// Widget returns the options for a new widget with the given session id
	Widget     func(sessionID string) widget.Options
	TimeLayout string
	Sender     widget.Sender
	Recorder   widget.Recorder
	Logger     *slog.Logger
	Meter      metric.Meter
}

// Server serves the widget page and one websocket per open page
type Server struct {
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	widgets map[string]*widget.Controller
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TimeLayout == "" {
		opts.TimeLayout = "15:04"
	}
	if opts.Widget == nil {
		opts.Widget = func(id string) widget.Options {
			o := widget.DefaultOptions()
			o.SessionID = id
			return o
		}
	}
	return &Server{
		opts:   opts,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		widgets: make(map[string]*widget.Controller),
	}
}

// Routes wires HTTP routes
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", s.handleWebSocket)
	r.Handle("/*", http.FileServer(http.FS(static)))

	return r
}

// Active returns the number of connected widgets
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.widgets)
}

// CloseAll tears down every connected widget and waits for its requests
func (s *Server) CloseAll() {
	s.mu.Lock()
	ctrls := make([]*widget.Controller, 0, len(s.widgets))
	for _, c := range s.widgets {
		ctrls = append(ctrls, c)
	}
	s.mu.Unlock()

	for _, c := range ctrls {
		c.Close()
		<-c.Done()
		c.Wait()
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()
	logger := s.logger.With("widget", sessionID)
	logger.Info("widget connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	renderer := &wsRenderer{conn: conn, layout: s.opts.TimeLayout}
	ctrlOpts := []widget.ControllerOption{widget.WithLogger(s.logger)}
	if s.opts.Recorder != nil {
		ctrlOpts = append(ctrlOpts, widget.WithRecorder(s.opts.Recorder))
	}
	if s.opts.Meter != nil {
		ctrlOpts = append(ctrlOpts, widget.WithMeter(s.opts.Meter))
	}
	ctrl := widget.NewController(s.opts.Widget(sessionID), s.opts.Sender, renderer, ctrlOpts...)

	s.mu.Lock()
	s.widgets[sessionID] = ctrl
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.widgets, sessionID)
		s.mu.Unlock()
	}()

	go func() {
		if err := ctrl.Run(ctx); err != nil {
			logger.Error("widget stopped", "error", err)
		}
	}()
	go s.pingLoop(ctx, conn, renderer)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ctrl.Init()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", "error", err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		ev, ok, err := decodeInbound(data)
		if err != nil {
			logger.Warn("invalid websocket message", "error", err)
			renderer.sendError("invalid message")
			continue
		}
		if !ok {
			continue
		}
		ctrl.Dispatch(ev)
	}

	ctrl.Close()
	<-ctrl.Done()
	ctrl.Wait()
	logger.Info("widget disconnected")
}

func (s *Server) pingLoop(ctx context.Context, conn *websocket.Conn, renderer *wsRenderer) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := renderer.ping(); err != nil {
				return
			}
		}
	}
}

// wsRenderer forwards render batches to the page. gorilla connections allow
// one concurrent writer, so every write goes through mu.
type wsRenderer struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	layout string
}

func (r *wsRenderer) Render(ctx context.Context, cmds []widget.Command) error {
	return r.write(outgoingMessage{Type: "render", Commands: encodeCommands(cmds, r.layout)})
}

func (r *wsRenderer) sendError(msg string) {
	_ = r.write(outgoingMessage{Type: "error", Error: msg})
}

func (r *wsRenderer) write(msg outgoingMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return r.conn.WriteJSON(msg)
}

func (r *wsRenderer) ping() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
