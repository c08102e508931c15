package housekeeping

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

type fakeSweeper struct {
	calls atomic.Int32
	grace atomic.Int64
	err   error
}

func (f *fakeSweeper) SweepStale(_ context.Context, grace time.Duration) (int, error) {
	f.calls.Add(1)
	f.grace.Store(int64(grace))
	return 2, f.err
}

type fakeCompactor struct {
	calls       atomic.Int32
	sawDeadline atomic.Bool
}

func (f *fakeCompactor) Compact(ctx context.Context) error {
	f.calls.Add(1)
	_, ok := ctx.Deadline()
	f.sawDeadline.Store(ok)
	return nil
}

func TestRunNow(t *testing.T) {
	t.Parallel()

	sw := &fakeSweeper{}
	cp := &fakeCompactor{}
	s := New(Config{SweepSpec: "@every 1h", SweepGrace: time.Minute, CompactSpec: "@daily", JobTimeout: time.Second}, sw, cp, logx.Nop())

	if err := s.RunNow(context.Background(), JobSweep); err != nil {
		t.Fatal(err)
	}
	if sw.calls.Load() != 1 || time.Duration(sw.grace.Load()) != time.Minute {
		t.Fatalf("sweep calls=%d grace=%v", sw.calls.Load(), time.Duration(sw.grace.Load()))
	}
	if err := s.RunNow(context.Background(), JobCompact); err != nil {
		t.Fatal(err)
	}
	if cp.calls.Load() != 1 || !cp.sawDeadline.Load() {
		t.Fatalf("compact calls=%d deadline=%v", cp.calls.Load(), cp.sawDeadline.Load())
	}
	if err := s.RunNow(context.Background(), "nope"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("err=%v", err)
	}
}

func TestSnapshotRecordsFailures(t *testing.T) {
	t.Parallel()

	sw := &fakeSweeper{err: errors.New("store down")}
	s := New(Config{SweepSpec: "@every 1h"}, sw, nil, logx.Nop())
	_ = s.RunNow(context.Background(), JobSweep)

	snap := s.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("compaction should not be registered without a compactor: %+v", snap)
	}
	if snap[0].Runs != 1 || snap[0].LastErr != "store down" {
		t.Fatalf("snapshot %+v", snap[0])
	}
}

func TestScheduledRun(t *testing.T) {
	t.Parallel()

	sw := &fakeSweeper{}
	s := New(Config{SweepSpec: "@every 1s"}, sw, nil, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if next := s.Snapshot()[0].Next; next.IsZero() {
		t.Fatal("next run not scheduled")
	}

	deadline := time.Now().Add(3 * time.Second)
	for sw.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if sw.calls.Load() == 0 {
		t.Fatal("sweep never ran")
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	t.Parallel()

	s := New(Config{SweepSpec: "every tuesday"}, &fakeSweeper{}, nil, logx.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("bad spec accepted")
	}
}
