// Package health serves the HTTP keepalive endpoint hosting platforms poll.
package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"remindbot/internal/eventbus"
	"remindbot/internal/housekeeping"
	rtsup "remindbot/internal/runtime/supervisor"
	logx "remindbot/pkg/logx"
)

const banner = "remindbot is running"

// State is the reminder scheduler as seen by the health check.
type State interface {
	Restored() bool
	Pending() int
}

type JobLister interface {
	Snapshot() []housekeeping.JobStatus
}

type Config struct {
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Option func(*Service)

func WithJobs(j JobLister) Option { return func(s *Service) { s.jobs = j } }

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

type Service struct {
	cfg     Config
	log     logx.Logger
	state   State
	jobs    JobLister
	now     func() time.Time
	started time.Time

	countsMu sync.Mutex
	counts   map[string]uint64

	mu  sync.Mutex
	sup *rtsup.Supervisor
	srv *http.Server
}

func New(cfg Config, state State, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = ":3000"
	}
	s := &Service{cfg: cfg, log: log, state: state, now: time.Now, counts: map[string]uint64{}}
	for _, o := range opts {
		o(s)
	}
	s.started = s.now()
	return s
}

type healthResponse struct {
	Status   string                   `json:"status"`
	Restored bool                     `json:"restored"`
	Pending  int                      `json:"pending"`
	Uptime   string                   `json:"uptime"`
	Events   map[string]uint64        `json:"events"`
	Jobs     []housekeeping.JobStatus `json:"jobs,omitempty"`
}

// Handler returns the gin engine with the keepalive routes.
func (s *Service) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, banner)
	})
	r.GET("/healthz", func(c *gin.Context) {
		resp := healthResponse{
			Status:   "ok",
			Restored: s.state.Restored(),
			Pending:  s.state.Pending(),
			Uptime:   s.now().Sub(s.started).Truncate(time.Second).String(),
			Events:   s.eventCounts(),
		}
		if s.jobs != nil {
			resp.Jobs = s.jobs.Snapshot()
		}
		code := http.StatusOK
		if !resp.Restored {
			resp.Status = "starting"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, resp)
	})
	return r
}

func (s *Service) eventCounts() map[string]uint64 {
	s.countsMu.Lock()
	defer s.countsMu.Unlock()
	out := make(map[string]uint64, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Observe counts reminder events from bus until ctx is done.
func (s *Service) Observe(ctx context.Context, bus eventbus.Bus) {
	if bus == nil {
		return
	}
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if !strings.HasPrefix(ev.Type, "reminder") {
				continue
			}
			s.countsMu.Lock()
			s.counts[ev.Type]++
			s.countsMu.Unlock()
		}
	}
}

// Start runs the server under its own supervisor with restart backoff.
// It is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// the keepalive endpoint must never take the bot down
		rtsup.WithCancelOnError(false),
	)
	s.sup.GoRestart("http.serve", s.serveOnce,
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup, srv := s.sup, s.srv
	s.sup, s.srv = nil, nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
	sup.Cancel()
	return sup.Wait(ctx)
}

func (s *Service) serveOnce(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("health server started", logx.String("addr", ln.Addr().String()))
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("health server exited unexpectedly")
	}
	return err
}
