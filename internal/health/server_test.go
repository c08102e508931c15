package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/housekeeping"
	logx "remindbot/pkg/logx"
)

type fakeState struct {
	restored atomic.Bool
	pending  atomic.Int64
}

func (f *fakeState) Restored() bool { return f.restored.Load() }
func (f *fakeState) Pending() int   { return int(f.pending.Load()) }

type fakeJobs struct{}

func (fakeJobs) Snapshot() []housekeeping.JobStatus {
	return []housekeeping.JobStatus{{Name: housekeeping.JobSweep, Spec: "@every 5m", Runs: 3}}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestBanner(t *testing.T) {
	t.Parallel()

	s := New(Config{}, &fakeState{}, logx.Nop())
	rec := get(t, s.Handler(), "/")
	if rec.Code != http.StatusOK || rec.Body.String() != banner {
		t.Fatalf("code=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestHealthzUnavailableUntilRestored(t *testing.T) {
	t.Parallel()

	st := &fakeState{}
	st.pending.Store(4)
	s := New(Config{}, st, logx.Nop(), WithJobs(fakeJobs{}))
	h := s.Handler()

	rec := get(t, h, "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("before restore code=%d", rec.Code)
	}

	st.restored.Store(true)
	rec = get(t, h, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("after restore code=%d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Restored || resp.Pending != 4 || resp.Status != "ok" {
		t.Fatalf("resp %+v", resp)
	}
	if len(resp.Jobs) != 1 || resp.Jobs[0].Runs != 3 {
		t.Fatalf("jobs %+v", resp.Jobs)
	}
}

func TestObserveCountsReminderEvents(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	st := &fakeState{}
	st.restored.Store(true)
	s := New(Config{}, st, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Observe(ctx, bus)
		close(done)
	}()

	// Observe subscribes asynchronously; publish until the first count lands.
	deadline := time.Now().Add(2 * time.Second)
	for s.eventCounts()[eventbus.ReminderDelivered] == 0 && time.Now().Before(deadline) {
		bus.Publish(eventbus.Event{Type: eventbus.ReminderDelivered})
		time.Sleep(10 * time.Millisecond)
	}
	bus.Publish(eventbus.Event{Type: "plugin.started"})
	cancel()
	<-done

	counts := s.eventCounts()
	if counts[eventbus.ReminderDelivered] == 0 {
		t.Fatal("delivered events not counted")
	}
	if _, ok := counts["plugin.started"]; ok {
		t.Fatal("non-reminder events must be ignored")
	}
}
