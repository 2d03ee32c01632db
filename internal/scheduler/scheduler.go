// Package scheduler drives the recurring-job engine. It owns the cron
// trigger table exclusively: on every registry change the whole table is
// thrown away and rebuilt from a fresh plan. That is deliberately not an
// incremental diff; a full rebuild can never drift from the registry.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jxoesneon/hermesbot/internal/metrics"
	"github.com/jxoesneon/hermesbot/internal/planner"
	"github.com/jxoesneon/hermesbot/internal/registry"
	"github.com/jxoesneon/hermesbot/pkg/logx"
)

// ErrNotStarted is returned by Rebuild before Start has run.
var ErrNotStarted = errors.New("scheduler not started")

// Dispatcher is the action a fired trigger invokes. Delivery errors are
// logged and retried once; they never stop the scheduler.
type Dispatcher interface {
	Dispatch(ctx context.Context, t planner.Trigger) error
}

type Config struct {
	Timezone  string // IANA TZ for all triggers, e.g. "America/Costa_Rica"
	Workers   int
	QueueSize int

	// MisfireGrace bounds how late a firing may still execute. A trigger
	// that sat in the queue longer (host asleep, workers busy) is
	// dropped rather than delivered stale.
	MisfireGrace time.Duration

	// DispatchTimeout caps a single delivery attempt.
	DispatchTimeout time.Duration

	Plan planner.Config
}

// Key identifies one installed trigger. Reinstalling the same key
// replaces the previous job instead of duplicating it.
type Key struct {
	SubscriberID string
	Day          time.Weekday
	Hour         int
	Minute       int
}

type task struct {
	trigger planner.Trigger
	firedAt time.Time
}

type Service struct {
	cfg  Config
	log  logx.Logger
	disp Dispatcher
	met  *metrics.Metrics

	mu      sync.Mutex
	c       *cron.Cron
	loc     *time.Location
	entries map[Key]cron.EntryID

	queue    chan task
	stopCh   chan struct{}
	workerWG sync.WaitGroup
}

func New(cfg Config, disp Dispatcher, met *metrics.Metrics, log logx.Logger) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.MisfireGrace <= 0 {
		cfg.MisfireGrace = 5 * time.Minute
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		disp:    disp,
		met:     met,
		entries: map[Key]cron.EntryID{},
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	// Fresh queue per run so a stop/start toggle never executes stale items.
	s.queue = make(chan task, s.cfg.QueueSize)

	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithLocation(s.loc))

	stopCh := s.stopCh
	queue := s.queue
	s.workerWG.Add(s.cfg.Workers)
	for i := 0; i < s.cfg.Workers; i++ {
		go func() {
			defer s.workerWG.Done()
			s.worker(ctx, stopCh, queue)
		}()
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("workers", s.cfg.Workers), logx.String("tz", s.loc.String()))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	c := s.c
	s.c = nil
	s.entries = map[Key]cron.EntryID{}
	s.mu.Unlock()

	if c != nil {
		// Wait for in-flight cron callbacks; they only enqueue, so this
		// is quick.
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// Rebuild replaces the entire installed trigger set with the plan for
// the given snapshot. The removal step completes synchronously before
// reinstallation, so a firing job can never race its own removal.
// Calling Rebuild twice with the same snapshot yields the same set.
func (s *Service) Rebuild(snapshot map[string]registry.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return ErrNotStarted
	}

	for _, id := range s.entries {
		s.c.Remove(id)
	}
	s.entries = make(map[Key]cron.EntryID)

	triggers := planner.Plan(snapshot, s.cfg.Plan)
	for _, tr := range triggers {
		if err := s.installLocked(tr); err != nil {
			// A bad cron spec here means a planner bug; surface it but
			// keep installing the rest.
			s.log.Error("install trigger", logx.String("subscriber", tr.SubscriberID), logx.Err(err))
		}
	}

	s.met.IncRebuilds()
	s.met.SetTriggersInstalled(len(s.entries))
	s.log.Info("schedule rebuilt", logx.Int("subscribers", len(snapshot)), logx.Int("triggers", len(s.entries)))
	return nil
}

func (s *Service) installLocked(tr planner.Trigger) error {
	key := Key{SubscriberID: tr.SubscriberID, Day: tr.Day, Hour: tr.Hour, Minute: tr.Minute}
	if old, ok := s.entries[key]; ok {
		s.c.Remove(old)
	}
	id, err := s.c.AddFunc(cronSpec(tr), func() {
		s.enqueue(task{trigger: tr, firedAt: time.Now()})
	})
	if err != nil {
		return fmt.Errorf("add cron %q: %w", cronSpec(tr), err)
	}
	s.entries[key] = id
	return nil
}

func cronSpec(tr planner.Trigger) string {
	dow := "*"
	if tr.Day != planner.EveryDay {
		dow = fmt.Sprintf("%d", int(tr.Day))
	}
	return fmt.Sprintf("%d %d * * %s", tr.Minute, tr.Hour, dow)
}

func (s *Service) enqueue(t task) {
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()
	if queue == nil {
		return
	}
	select {
	case queue <- t:
	default:
		s.met.IncFiring(metrics.FiringDropped)
		s.log.Warn("firing queue full, dropping trigger", logx.String("subscriber", t.trigger.SubscriberID))
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan task) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.runTask(ctx, t)
		}
	}
}

// runTask contains a panicking dispatch to the one firing that caused
// it; the worker stays in the pool.
func (s *Service) runTask(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			s.met.IncFiring(metrics.FiringFailed)
			s.log.Error("panic in trigger dispatch",
				logx.String("subscriber", t.trigger.SubscriberID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	s.execute(ctx, t)
}

// execute delivers one fired trigger, honoring the misfire grace window:
// a firing older than the grace is dropped, not queued, so a wakeup
// after a long suspend does not burst stale reminders at subscribers.
func (s *Service) execute(ctx context.Context, t task) {
	if lag := time.Since(t.firedAt); lag > s.cfg.MisfireGrace {
		s.met.IncFiring(metrics.FiringDropped)
		s.log.Warn("dropping misfired trigger",
			logx.String("subscriber", t.trigger.SubscriberID),
			logx.Duration("lag", lag),
			logx.Duration("grace", s.cfg.MisfireGrace))
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	defer cancel()

	err := s.disp.Dispatch(runCtx, t.trigger)
	if err != nil {
		// One quick retry; after that the next scheduled firing is the
		// retry mechanism.
		time.Sleep(500 * time.Millisecond)
		err = s.disp.Dispatch(runCtx, t.trigger)
	}
	if err != nil {
		s.met.IncFiring(metrics.FiringFailed)
		s.log.Warn("trigger delivery failed", logx.String("subscriber", t.trigger.SubscriberID), logx.Err(err))
		return
	}
	s.met.IncFiring(metrics.FiringOK)
	s.log.Debug("trigger delivered", logx.String("subscriber", t.trigger.SubscriberID), logx.Int("hour", t.trigger.Hour), logx.Int("minute", t.trigger.Minute))
}

// Keys returns the installed trigger keys in a stable order.
func (s *Service) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubscriberID != out[j].SubscriberID {
			return out[i].SubscriberID < out[j].SubscriberID
		}
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		if out[i].Hour != out[j].Hour {
			return out[i].Hour < out[j].Hour
		}
		return out[i].Minute < out[j].Minute
	})
	return out
}

// InstalledCount returns the number of installed triggers.
func (s *Service) InstalledCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
