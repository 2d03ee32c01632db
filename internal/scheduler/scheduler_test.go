package scheduler

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jxoesneon/hermesbot/internal/planner"
	"github.com/jxoesneon/hermesbot/internal/registry"
	"github.com/jxoesneon/hermesbot/pkg/logx"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []planner.Trigger
	fail  int // fail this many calls before succeeding
}

func (f *fakeDispatcher) Dispatch(_ context.Context, t planner.Trigger) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, t)
	if f.fail > 0 {
		f.fail--
		return errors.New("send failed")
	}
	return nil
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func anaSnapshot() map[string]registry.Record {
	return map[string]registry.Record{
		"U1": {
			DisplayName: "Ana Solano",
			Schedule: &registry.ScheduleDoc{
				ShiftStart: "09:00",
				ShiftEnd:   "12:00",
				Day1:       true,
			},
		},
	}
}

func startService(t *testing.T, disp Dispatcher) *Service {
	t.Helper()
	if disp == nil {
		disp = &fakeDispatcher{}
	}
	s := New(Config{Timezone: "UTC", Workers: 1}, disp, nil, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		s.Stop(stopCtx)
		cancel()
	})
	return s
}

func TestRebuildInstallsTriggerSet(t *testing.T) {
	t.Parallel()
	s := startService(t, nil)

	if err := s.Rebuild(anaSnapshot()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	want := []Key{
		{SubscriberID: "U1", Day: time.Monday, Hour: 8, Minute: 55},
		{SubscriberID: "U1", Day: time.Monday, Hour: 9, Minute: 55},
		{SubscriberID: "U1", Day: time.Monday, Hour: 10, Minute: 55},
		{SubscriberID: "U1", Day: time.Monday, Hour: 11, Minute: 55},
	}
	if got := s.Keys(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys() = %+v, want %+v", got, want)
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	t.Parallel()
	s := startService(t, nil)

	snap := anaSnapshot()
	if err := s.Rebuild(snap); err != nil {
		t.Fatal(err)
	}
	first := s.Keys()
	if err := s.Rebuild(snap); err != nil {
		t.Fatal(err)
	}
	second := s.Keys()

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("rebuild not idempotent: %+v vs %+v", first, second)
	}
	if s.InstalledCount() != 4 {
		t.Fatalf("expected 4 installed triggers, got %d", s.InstalledCount())
	}
}

func TestRebuildRemovesUnsubscribed(t *testing.T) {
	t.Parallel()
	s := startService(t, nil)

	if err := s.Rebuild(anaSnapshot()); err != nil {
		t.Fatal(err)
	}
	if s.InstalledCount() == 0 {
		t.Fatal("expected triggers after first rebuild")
	}

	if err := s.Rebuild(map[string]registry.Record{}); err != nil {
		t.Fatal(err)
	}
	if s.InstalledCount() != 0 {
		t.Fatalf("expected 0 triggers after removal, got %d", s.InstalledCount())
	}
}

func TestRebuildBeforeStart(t *testing.T) {
	t.Parallel()
	s := New(Config{}, &fakeDispatcher{}, nil, logx.Nop())
	if err := s.Rebuild(anaSnapshot()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestExecuteDispatches(t *testing.T) {
	t.Parallel()
	disp := &fakeDispatcher{}
	s := New(Config{MisfireGrace: time.Minute}, disp, nil, logx.Nop())

	tr := planner.Trigger{SubscriberID: "U1", Hour: 9, Minute: 55, Message: "hi"}
	s.execute(context.Background(), task{trigger: tr, firedAt: time.Now()})

	if disp.count() != 1 {
		t.Fatalf("expected 1 dispatch, got %d", disp.count())
	}
}

func TestExecuteRetriesOnce(t *testing.T) {
	t.Parallel()
	disp := &fakeDispatcher{fail: 1}
	s := New(Config{MisfireGrace: time.Minute}, disp, nil, logx.Nop())

	s.execute(context.Background(), task{
		trigger: planner.Trigger{SubscriberID: "U1"},
		firedAt: time.Now(),
	})

	if disp.count() != 2 {
		t.Fatalf("expected 2 attempts (1 retry), got %d", disp.count())
	}
}

func TestExecuteDropsMisfiredTrigger(t *testing.T) {
	t.Parallel()
	disp := &fakeDispatcher{}
	s := New(Config{MisfireGrace: time.Minute}, disp, nil, logx.Nop())

	s.execute(context.Background(), task{
		trigger: planner.Trigger{SubscriberID: "U1"},
		firedAt: time.Now().Add(-2 * time.Minute),
	})

	if disp.count() != 0 {
		t.Fatalf("misfired trigger was dispatched %d times", disp.count())
	}
}

type panickyDispatcher struct {
	fakeDispatcher
	panics int // panic this many calls before behaving
}

func (p *panickyDispatcher) Dispatch(ctx context.Context, tr planner.Trigger) error {
	p.mu.Lock()
	shouldPanic := p.panics > 0
	if shouldPanic {
		p.panics--
	}
	p.mu.Unlock()
	if shouldPanic {
		panic("dispatcher blew up")
	}
	return p.fakeDispatcher.Dispatch(ctx, tr)
}

func TestPanickingDispatchCostsOneFiringNotTheWorker(t *testing.T) {
	t.Parallel()
	disp := &panickyDispatcher{panics: 1}
	s := New(Config{MisfireGrace: time.Minute}, disp, nil, logx.Nop())

	bad := task{trigger: planner.Trigger{SubscriberID: "U1", Hour: 9, Minute: 55}, firedAt: time.Now()}
	good := task{trigger: planner.Trigger{SubscriberID: "U2", Hour: 10, Minute: 55}, firedAt: time.Now()}

	// The panic must be contained inside the task, exactly as the worker
	// loop experiences it, so the next task still runs.
	s.runTask(context.Background(), bad)
	s.runTask(context.Background(), good)

	if disp.count() != 1 {
		t.Fatalf("expected 1 successful dispatch after a panicking one, got %d", disp.count())
	}
	if got := disp.calls[0].SubscriberID; got != "U2" {
		t.Fatalf("surviving dispatch was %q, want U2", got)
	}
}

func TestCronSpec(t *testing.T) {
	t.Parallel()
	tr := planner.Trigger{Day: time.Monday, Hour: 8, Minute: 55}
	if got := cronSpec(tr); got != "55 8 * * 1" {
		t.Fatalf("cronSpec = %q", got)
	}
	daily := planner.Trigger{Day: planner.EveryDay, Hour: 22, Minute: 0}
	if got := cronSpec(daily); got != "0 22 * * *" {
		t.Fatalf("cronSpec = %q", got)
	}
}
