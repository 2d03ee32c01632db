// Package bot is the command surface. It owns the update loop, the
// slash commands and the subscription form; everything it does to the
// system goes through the registry, the reconciler and the notifier.
package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jxoesneon/hermesbot/internal/kit"
	"github.com/jxoesneon/hermesbot/internal/registry"
	"github.com/jxoesneon/hermesbot/internal/shift"
	"github.com/jxoesneon/hermesbot/pkg/logx"
)

// Reconciler is what the router calls after every registry mutation.
type Reconciler interface {
	Rebuild(snapshot map[string]registry.Record) error
}

// Broadcaster fans a message out to subscriber ids, best effort.
type Broadcaster interface {
	Broadcast(ctx context.Context, subscriberIDs []string, text string) int
}

type Config struct {
	// OwnerUserIDs gate /pingall. Empty means nobody can use it.
	OwnerUserIDs []int64
}

type pendingForm struct {
	ref   kit.MessageRef
	state formState
}

type Router struct {
	cfg      Config
	adapter  kit.Adapter
	reg      *registry.Registry
	rec      Reconciler
	notifier Broadcaster
	log      logx.Logger

	mu      sync.Mutex
	pending map[int64]pendingForm      // chat id -> open subscription form
	sent    map[int64][]kit.MessageRef // chat id -> messages we may /clean
}

func NewRouter(cfg Config, adapter kit.Adapter, reg *registry.Registry, rec Reconciler, notifier Broadcaster, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		cfg:      cfg,
		adapter:  adapter,
		reg:      reg,
		rec:      rec,
		notifier: notifier,
		log:      log,
		pending:  map[int64]pendingForm{},
		sent:     map[int64][]kit.MessageRef{},
	}
}

// Commands is the visible command menu. /pingall stays off it on purpose.
func Commands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "subscribe", Description: "Register and open the subscription form"},
		{Command: "shift", Description: "Set the shift hours on the open form"},
		{Command: "unsubscribe", Description: "Stop the reminders"},
		{Command: "listsubs", Description: "List all the people who will be pinged"},
		{Command: "clean", Description: "Remove my messages from this chat"},
		{Command: "help", Description: "Show what I can do"},
	}
}

// Run consumes updates until ctx is done or the channel closes. Each
// update is handled on its own goroutine; a panicking handler takes down
// one update, not the loop.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			go func(up kit.Update) {
				defer func() {
					if rec := recover(); rec != nil {
						r.log.Error("panic in update handler", logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
					}
				}()
				r.handle(ctx, up)
			}(up)
		}
	}
}

func (r *Router) handle(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			r.handleMessage(ctx, up.Message)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			r.handleCallback(ctx, up.Callback)
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, m *kit.Message) {
	cmd, args := splitCommand(m.Text)
	if cmd == "" {
		return
	}
	switch cmd {
	case "/start", "/help":
		r.send(ctx, m.ChatID, textHelp)
	case "/subscribe":
		r.cmdSubscribe(ctx, m)
	case "/shift":
		r.cmdShift(ctx, m, args)
	case "/unsubscribe":
		r.cmdUnsubscribe(ctx, m)
	case "/listsubs":
		r.cmdListSubs(ctx, m)
	case "/pingall":
		r.cmdPingAll(ctx, m)
	case "/clean":
		r.cmdClean(ctx, m)
	}
}

// cmdSubscribe registers the sender (a repeat is a profile refresh, not
// an error) and opens a fresh subscription form.
func (r *Router) cmdSubscribe(ctx context.Context, m *kit.Message) {
	id := subscriberID(m.ChatID)

	profile, err := r.adapter.Profile(ctx, m.FromID)
	if err != nil {
		// The platform lookup is presentation sugar; fall back to what
		// the update itself carries.
		r.log.Warn("profile lookup failed", logx.Int64("user", m.FromID), logx.Err(err))
		profile = kit.Profile{ID: m.FromID, DisplayName: m.FromUsername}
	}
	if strings.TrimSpace(profile.DisplayName) == "" {
		profile.DisplayName = m.FromUsername
	}

	added, err := r.reg.Upsert(id, profile.DisplayName, profile.Emails)
	if err != nil {
		r.log.Error("subscribe failed", logx.String("subscriber", id), logx.Err(err))
		return
	}
	// A new subscriber gets the daily fallback trigger until the form is
	// saved, and a profile refresh changes the rendered message text, so
	// the trigger table must follow the registry here too.
	if err := r.rec.Rebuild(r.reg.Snapshot()); err != nil {
		r.log.Error("rebuild after subscribe", logx.Err(err))
	}
	if added {
		r.send(ctx, m.ChatID, fmt.Sprintf(textAddedFormat, profile.DisplayName))
	}

	st := defaultFormState()
	if rec, ok := r.reg.Get(id); ok && rec.Schedule != nil {
		// Pre-fill from the stored schedule so resubmitting edits rather
		// than starting over.
		if prev, ok := formFromDoc(*rec.Schedule); ok {
			st = prev
		}
	}

	ref, err := r.adapter.SendText(ctx, kit.ChatTarget{ChatID: m.ChatID}, formText(st), &kit.SendOptions{ReplyMarkupAdapter: formMarkup(st)})
	if err != nil {
		r.log.Error("cannot send subscription form", logx.String("subscriber", id), logx.Err(err))
		return
	}
	r.mu.Lock()
	r.pending[m.ChatID] = pendingForm{ref: ref, state: st}
	r.sent[m.ChatID] = append(r.sent[m.ChatID], ref)
	r.mu.Unlock()
}

// cmdShift rewrites the hours on the open form. The day selection is
// untouched.
func (r *Router) cmdShift(ctx context.Context, m *kit.Message, args []string) {
	if len(args) != 2 {
		r.send(ctx, m.ChatID, textShiftUsage)
		return
	}
	start, err1 := shift.ParseClock(args[0])
	end, err2 := shift.ParseClock(args[1])
	if err1 != nil || err2 != nil {
		r.send(ctx, m.ChatID, textShiftUsage)
		return
	}

	r.mu.Lock()
	form, ok := r.pending[m.ChatID]
	r.mu.Unlock()
	if !ok {
		r.send(ctx, m.ChatID, textFormMissing)
		return
	}

	form.state.Start = start.String()
	form.state.End = end.String()
	if err := r.adapter.EditText(ctx, form.ref, formText(form.state), &kit.SendOptions{ReplyMarkupAdapter: formMarkup(form.state)}); err != nil {
		r.log.Warn("cannot update form hours", logx.Int64("chat", m.ChatID), logx.Err(err))
		return
	}
	r.mu.Lock()
	r.pending[m.ChatID] = form
	r.mu.Unlock()
}

func (r *Router) cmdUnsubscribe(ctx context.Context, m *kit.Message) {
	id := subscriberID(m.ChatID)
	rec, err := r.reg.Remove(id)
	if errors.Is(err, registry.ErrNotFound) {
		r.send(ctx, m.ChatID, textNotSubscribed)
		return
	}
	if err != nil {
		r.log.Error("unsubscribe failed", logx.String("subscriber", id), logx.Err(err))
		return
	}
	if err := r.rec.Rebuild(r.reg.Snapshot()); err != nil {
		r.log.Error("rebuild after unsubscribe", logx.Err(err))
	}
	r.send(ctx, m.ChatID, fmt.Sprintf(textRemovedFormat, rec.DisplayName, firstEmail(rec.Emails)))
}

func (r *Router) cmdListSubs(ctx context.Context, m *kit.Message) {
	snapshot := r.reg.Snapshot()
	if len(snapshot) == 0 {
		r.send(ctx, m.ChatID, textNoSubscribers)
		return
	}
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for i, id := range ids {
		rec := snapshot[id]
		fmt.Fprintf(&b, "%d)\t%s - %s\n\n", i+1, rec.DisplayName, firstEmail(rec.Emails))
	}
	r.send(ctx, m.ChatID, strings.TrimRight(b.String(), "\n"))
}

// cmdPingAll is a hidden, owner-only broadcast. Recipients see who asked
// for it.
func (r *Router) cmdPingAll(ctx context.Context, m *kit.Message) {
	if !r.isOwner(m.FromID) {
		return
	}
	requester := m.FromUsername
	if requester == "" {
		requester = subscriberID(m.FromID)
	}

	snapshot := r.reg.Snapshot()
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sent := r.notifier.Broadcast(ctx, ids, fmt.Sprintf(textBroadcastFormat, requester))
	r.send(ctx, m.ChatID, fmt.Sprintf(textPingSentFormat, sent))
}

// cmdClean deletes every message the bot remembers sending to this chat.
// Only the bot's own messages can go; the platform does not let bots
// delete what other people wrote.
func (r *Router) cmdClean(ctx context.Context, m *kit.Message) {
	r.mu.Lock()
	refs := r.sent[m.ChatID]
	delete(r.sent, m.ChatID)
	delete(r.pending, m.ChatID)
	r.mu.Unlock()

	if len(refs) == 0 {
		r.send(ctx, m.ChatID, textNothingToClean)
		return
	}
	for _, ref := range refs {
		if err := r.adapter.DeleteMessage(ctx, ref); err != nil {
			r.log.Debug("cannot delete message", logx.Int("message", ref.MessageID), logx.Err(err))
		}
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *kit.Callback) {
	action, day, payload, ok := parseFormCallback(cb.Data)
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	formRef := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}

	switch action {
	case "cancel":
		_ = r.adapter.DeleteMessage(ctx, formRef)
		r.mu.Lock()
		delete(r.pending, cb.ChatID)
		r.mu.Unlock()
		_ = r.adapter.AnswerCallback(ctx, cb.ID, textCallbackDone)

	case "toggle":
		st, err := unpackForm(payload)
		if err != nil {
			_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
			return
		}
		st = st.toggled(day)
		if err := r.adapter.EditText(ctx, formRef, formText(st), &kit.SendOptions{ReplyMarkupAdapter: formMarkup(st)}); err != nil {
			r.log.Warn("cannot update form", logx.Int64("chat", cb.ChatID), logx.Err(err))
		}
		r.mu.Lock()
		r.pending[cb.ChatID] = pendingForm{ref: formRef, state: st}
		r.mu.Unlock()
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")

	case "save":
		r.saveForm(ctx, cb, payload, formRef)
	}
}

// saveForm validates the submitted schedule, stores it and rebuilds the
// trigger table. Invalid input stays on screen with the reason in the
// callback toast.
func (r *Router) saveForm(ctx context.Context, cb *kit.Callback, payload string, formRef kit.MessageRef) {
	st, err := unpackForm(payload)
	if err != nil {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	sched, err := st.schedule()
	if err != nil {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, err.Error())
		return
	}
	if err := sched.Validate(); err != nil {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, err.Error())
		return
	}

	id := subscriberID(cb.ChatID)
	if err := r.reg.AttachSchedule(id, registry.FromSchedule(sched)); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			_ = r.adapter.AnswerCallback(ctx, cb.ID, textSubscribeFirst)
			return
		}
		r.log.Error("store schedule", logx.String("subscriber", id), logx.Err(err))
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	if err := r.rec.Rebuild(r.reg.Snapshot()); err != nil {
		r.log.Error("rebuild after form save", logx.Err(err))
	}

	_ = r.adapter.DeleteMessage(ctx, formRef)
	r.mu.Lock()
	delete(r.pending, cb.ChatID)
	r.mu.Unlock()
	r.send(ctx, cb.ChatID, textFormReceived)
	_ = r.adapter.AnswerCallback(ctx, cb.ID, textCallbackSaved)
}

// send delivers a plain reply and remembers it for /clean.
func (r *Router) send(ctx context.Context, chatID int64, text string) {
	ref, err := r.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, nil)
	if err != nil {
		r.log.Warn("reply failed", logx.Int64("chat", chatID), logx.Err(err))
		return
	}
	r.mu.Lock()
	r.sent[chatID] = append(r.sent[chatID], ref)
	r.mu.Unlock()
}

func (r *Router) isOwner(userID int64) bool {
	for _, id := range r.cfg.OwnerUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// subscriberID is the decimal chat id; the registry keys on it and the
// notifier parses it back.
func subscriberID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

// splitCommand extracts "/cmd" and its arguments, tolerating the
// "/cmd@BotName" form Telegram uses in group chats.
func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd := strings.ToLower(fields[0])
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	return cmd, fields[1:]
}

// formFromDoc rebuilds form state from a stored schedule so /subscribe
// can show the current values.
func formFromDoc(doc registry.ScheduleDoc) (formState, bool) {
	sched, err := doc.Schedule()
	if err != nil {
		return formState{}, false
	}
	st := formState{Start: sched.Start.String(), End: sched.End.String()}
	for d := 0; d < 7; d++ {
		if sched.Days[d] {
			st.Days |= 1 << uint(d)
		}
	}
	return st, true
}

func firstEmail(emails []string) string {
	if len(emails) == 0 {
		return ""
	}
	return emails[0]
}
