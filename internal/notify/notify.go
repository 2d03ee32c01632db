// Package notify delivers rendered messages to subscribers. It is the
// boundary the scheduler fires into: everything platform-specific stays
// behind the kit.Adapter, and every attempt is rate-limited and recorded
// in the delivery history.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/jxoesneon/hermesbot/internal/kit"
	"github.com/jxoesneon/hermesbot/internal/metrics"
	"github.com/jxoesneon/hermesbot/internal/planner"
	"github.com/jxoesneon/hermesbot/internal/storage"
	"github.com/jxoesneon/hermesbot/pkg/logx"
)

const (
	KindShift     = "shift"
	KindFallback  = "fallback"
	KindBroadcast = "broadcast"
)

type Config struct {
	// RatePerSec caps outbound sends; chat platforms throttle bots that
	// burst, and a rebuild can line up many triggers at the same minute.
	RatePerSec int
}

type Service struct {
	adapter kit.Adapter
	log     logx.Logger
	store   storage.Store // nil means history disabled
	met     *metrics.Metrics
	limiter *rate.Limiter
}

func New(cfg Config, adapter kit.Adapter, store storage.Store, met *metrics.Metrics, log logx.Logger) *Service {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		adapter: adapter,
		log:     log,
		store:   store,
		met:     met,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Dispatch delivers one fired trigger to its subscriber.
func (s *Service) Dispatch(ctx context.Context, t planner.Trigger) error {
	kind := KindShift
	if t.Fallback {
		kind = KindFallback
	}
	return s.Send(ctx, t.SubscriberID, kind, t.Message)
}

// Send delivers text to a subscriber id. Subscriber ids are the decimal
// form of the platform chat id, so resolution is a parse, not a lookup.
func (s *Service) Send(ctx context.Context, subscriberID, kind, text string) error {
	chatID, err := strconv.ParseInt(subscriberID, 10, 64)
	if err != nil {
		return fmt.Errorf("subscriber id %q is not a chat id: %w", subscriberID, err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	_, sendErr := s.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, nil)
	took := time.Since(start)

	s.met.IncSend(kind, sendErr == nil)
	s.met.ObserveSendSeconds(took.Seconds())
	s.record(ctx, storage.DeliveryEntry{
		At:           start,
		SubscriberID: subscriberID,
		ChatID:       chatID,
		Kind:         kind,
		OK:           sendErr == nil,
		Error:        errString(sendErr),
		TookMS:       took.Milliseconds(),
	})

	if sendErr != nil {
		s.log.Warn("notification send failed", logx.String("subscriber", subscriberID), logx.String("kind", kind), logx.Err(sendErr))
		return fmt.Errorf("send to %s: %w", subscriberID, sendErr)
	}
	s.log.Debug("notification sent", logx.String("subscriber", subscriberID), logx.String("kind", kind), logx.Duration("took", took))
	return nil
}

// Broadcast sends text to every given subscriber, best effort, and
// returns how many sends succeeded. A failure for one subscriber never
// stops the rest.
func (s *Service) Broadcast(ctx context.Context, subscriberIDs []string, text string) int {
	sent := 0
	for _, id := range subscriberIDs {
		if err := s.Send(ctx, id, KindBroadcast, text); err == nil {
			sent++
		}
	}
	return sent
}

func (s *Service) record(ctx context.Context, e storage.DeliveryEntry) {
	if s.store == nil {
		return
	}
	if err := s.store.AppendDelivery(ctx, e); err != nil {
		s.log.Warn("cannot record delivery", logx.Err(err))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
