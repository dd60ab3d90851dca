package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/touchx/internal/event"
	"github.com/verte-zerg/touchx/internal/explore"
	"github.com/verte-zerg/touchx/internal/loop"
	"github.com/verte-zerg/touchx/internal/store"
)

// Path is the WebSocket endpoint.
const Path = "/touch"

const (
	defaultReadLimit = 64 << 10
	writeTimeout     = 5 * time.Second
	shutdownTimeout  = 5 * time.Second
)

// Options configures a Server.
type Options struct {
	Config explore.Config
	Logger logrus.FieldLogger
	// Record, when set, receives every finished session that saw input.
	Record func(rec *store.Recorder)
	// ReadLimit caps the size of a client frame in bytes.
	ReadLimit int64
}

// Server runs one controller per WebSocket connection.
type Server struct {
	opts     Options
	log      logrus.FieldLogger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[string]context.CancelFunc
	closing bool
	wg      sync.WaitGroup
}

// NewServer validates the controller config and returns a server.
func NewServer(opts Options) (*Server, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid explore config: %w", err)
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Server{
		opts: opts,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Surfaces are local devices, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: map[string]context.CancelFunc{},
	}, nil
}

// Handler returns the HTTP handler serving Path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.serveTouch)
	return mux
}

// Active returns the number of open sessions.
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Serve accepts connections on ln until ctx is done, then closes every
// session and waits for them to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.WithField("addr", ln.Addr().String()).Info("serving touch surfaces")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Warn("http shutdown incomplete")
	}
	// Hijacked connections are not tracked by http.Server.
	s.mu.Lock()
	for _, stop := range s.conns {
		stop()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

// peer serialises writes to one connection.
type peer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *peer) send(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return p.conn.WriteJSON(v)
}

func (s *Server) serveTouch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(s.opts.ReadLimit)
	p := &peer{conn: conn}

	var rec *store.Recorder
	id := uuid.NewString()
	if s.opts.Record != nil {
		rec = store.NewRecorder("remote", r.RemoteAddr, s.opts.Config)
		id = rec.ID()
	}
	log := s.log.WithFields(logrus.Fields{"session": id, "remote": r.RemoteAddr})

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	// Serve may have swept the sessions already; this one ends at once.
	if s.closing {
		cancel()
	}
	s.conns[id] = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
		if cerr := conn.Close(); cerr != nil {
			// Best-effort close; the peer may already be gone.
			_ = cerr
		}
	}()

	var runner *loop.Runner
	sink := loop.SinkFunc(func(out loop.Output) {
		reply := replyFromOutput(out, runner.Controller().State().String())
		if err := p.send(reply); err != nil {
			log.WithError(err).Debug("failed to send reply")
			cancel()
		}
	})
	var observer func(explore.Transition)
	var out loop.Sink = sink
	if rec != nil {
		observer = rec.Observe
		out = loop.Tee(sink, rec)
	}
	runner, err = loop.New(s.opts.Config, out, loop.Options{Logger: log, Observer: observer})
	if err != nil {
		log.WithError(err).Error("failed to start controller")
		return
	}

	cfg := s.opts.Config
	if err := p.send(Hello{
		Session:          id,
		State:            runner.Controller().State().String(),
		DoubleTapTimeout: float64(cfg.DoubleTapTimeout) / float64(time.Millisecond),
		TouchSlop:        cfg.TouchSlop,
	}); err != nil {
		log.WithError(err).Debug("failed to greet")
		return
	}
	log.Info("surface connected")

	in := make(chan event.Event)
	go s.readLoop(ctx, p, in, log)
	if err := runner.Run(ctx, in); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Warn("session ended with error")
	}
	log.Info("surface disconnected")

	if rec != nil && rec.Len() > 0 {
		s.opts.Record(rec)
	}
}

// readLoop decodes client frames into events. Frames that fail to decode
// or go back in time are answered with a Fault and skipped.
func (s *Server) readLoop(ctx context.Context, p *peer, in chan<- event.Event, log logrus.FieldLogger) {
	defer close(in)
	var last time.Duration
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("connection closed")
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.fault(p, log, fmt.Errorf("invalid frame: %w", err))
			continue
		}
		ev, err := msg.Event()
		if err != nil {
			s.fault(p, log, err)
			continue
		}
		if ev.Time < last {
			s.fault(p, log, fmt.Errorf("time went backwards: %v after %v", ev.Time, last))
			continue
		}
		last = ev.Time
		select {
		case in <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) fault(p *peer, log logrus.FieldLogger, err error) {
	log.WithError(err).Debug("rejected client frame")
	if serr := p.send(Fault{Error: err.Error()}); serr != nil {
		log.WithError(serr).Debug("failed to send fault")
	}
}
