// Package housekeeping runs the periodic maintenance jobs on cron
// schedules: the stale reminder sweep and storage compaction.
package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/config"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

const (
	JobSweep   = "reminders.sweep"
	JobCompact = "storage.compact"
)

var ErrUnknownJob = errors.New("housekeeping: unknown job")

type Config struct {
	Location    *time.Location
	SweepSpec   string
	SweepGrace  time.Duration
	CompactSpec string
	// JobTimeout bounds one run. 0 means no timeout.
	JobTimeout time.Duration
}

// Sweeper handles persisted reminders that are past due with no timer.
type Sweeper interface {
	SweepStale(ctx context.Context, grace time.Duration) (int, error)
}

// JobStatus is a read-only view of one job.
type JobStatus struct {
	Name    string    `json:"name"`
	Spec    string    `json:"spec"`
	Next    time.Time `json:"next,omitzero"`
	LastRun time.Time `json:"last_run,omitzero"`
	LastErr string    `json:"last_err,omitempty"`
	Runs    uint64    `json:"runs"`
}

type job struct {
	name  string
	spec  string
	entry cron.EntryID
	run   func(ctx context.Context) error

	lastRun time.Time
	lastErr string
	runs    uint64
}

type Service struct {
	cfg       Config
	log       logx.Logger
	sweeper   Sweeper
	compactor storage.Compactor

	mu      sync.Mutex
	c       *cron.Cron
	jobs    map[string]*job
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New builds the service. compactor may be nil when the store has nothing
// to compact; the compaction job is then not registered.
func New(cfg Config, sweeper Sweeper, compactor storage.Compactor, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Service{cfg: cfg, log: log, sweeper: sweeper, compactor: compactor, jobs: map[string]*job{}}
	if sweeper != nil && cfg.SweepSpec != "" {
		s.jobs[JobSweep] = &job{name: JobSweep, spec: cfg.SweepSpec, run: s.sweep}
	}
	if compactor != nil && cfg.CompactSpec != "" {
		s.jobs[JobCompact] = &job{name: JobCompact, spec: cfg.CompactSpec, run: compactor.Compact}
	}
	return s
}

func (s *Service) sweep(ctx context.Context) error {
	n, err := s.sweeper.SweepStale(ctx, s.cfg.SweepGrace)
	if n > 0 {
		s.log.Info("stale reminders swept", logx.Int("count", n))
	}
	return err
}

// Start registers every job and starts triggering. Jobs run with a context
// derived from ctx.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(config.CronParser),
		cron.WithLocation(s.cfg.Location),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		cron.WithLogger(cl),
	)
	for _, j := range s.jobs {
		id, err := c.AddFunc(j.spec, func() { _ = s.runJob(j) })
		if err != nil {
			return fmt.Errorf("housekeeping %s: %w", j.name, err)
		}
		j.entry = id
	}
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.c = c
	c.Start()
	s.log.Info("housekeeping started", logx.Int("jobs", len(s.jobs)), logx.String("tz", s.cfg.Location.String()))
	return nil
}

// Stop stops triggering and waits, bounded by ctx, for running jobs.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	done := c.Stop()
	select {
	case <-done.Done():
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// RunNow runs a job immediately, outside its schedule.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.runJobCtx(ctx, j)
}

func (s *Service) runJob(j *job) error {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	return s.runJobCtx(ctx, j)
}

func (s *Service) runJobCtx(ctx context.Context, j *job) error {
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}
	start := time.Now()
	err := j.run(ctx)
	took := time.Since(start)

	s.mu.Lock()
	j.lastRun = start
	j.runs++
	j.lastErr = ""
	if err != nil {
		j.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("housekeeping job failed", logx.String("job", j.name), logx.Duration("took", took), logx.Err(err))
		return err
	}
	s.log.Debug("housekeeping job done", logx.String("job", j.name), logx.Duration("took", took))
	return nil
}

func (s *Service) Snapshot() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		st := JobStatus{Name: j.name, Spec: j.spec, LastRun: j.lastRun, LastErr: j.lastErr, Runs: j.runs}
		if s.c != nil && j.entry != 0 {
			st.Next = s.c.Entry(j.entry).Next
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
