// Package lifecycle submits outgoing messages, walks their delivery status
// forward and keeps the local view of the shared message stream.
package lifecycle

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/dmitrijs2005/hawachat/internal/common"
	"github.com/dmitrijs2005/hawachat/internal/logging"
	"github.com/dmitrijs2005/hawachat/internal/models"
	"github.com/dmitrijs2005/hawachat/internal/store"
	"github.com/google/uuid"
)

const (
	DefaultDeliveredDelay = 300 * time.Millisecond
	DefaultReadDelay      = 800 * time.Millisecond

	localIDPrefix = "local_"
)

type Options struct {
	DeliveredDelay time.Duration
	ReadDelay      time.Duration
	// AutoReadRecipient decides whether read follows delivered without any
	// action from the recipient. Only automated and operator accounts
	// qualify, so read there means "reached the responder", not "seen".
	AutoReadRecipient func(to string) bool
	Notifier          Notifier
	Scheduler         Scheduler
}

type Engine struct {
	store store.MessageStore
	log   logging.Logger
	opts  Options

	mu     sync.RWMutex
	stream []models.Message
	local  []models.Message

	subMu sync.Mutex
	sub   *subscription

	wg sync.WaitGroup

	now     func() time.Time
	localID func() string
}

func NewEngine(ms store.MessageStore, log logging.Logger, opts Options) *Engine {
	if opts.DeliveredDelay <= 0 {
		opts.DeliveredDelay = DefaultDeliveredDelay
	}
	if opts.ReadDelay <= 0 {
		opts.ReadDelay = DefaultReadDelay
	}
	if opts.AutoReadRecipient == nil {
		opts.AutoReadRecipient = func(string) bool { return false }
	}
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = timerScheduler{}
	}

	return &Engine{
		store:   ms,
		log:     log.With("module", "lifecycle"),
		opts:    opts,
		now:     time.Now,
		localID: func() string { return localIDPrefix + uuid.NewString() },
	}
}

// Submit validates the draft and appends it to the store. Invalid drafts
// never reach the store. A store failure is not an error for the caller:
// the message is echoed locally and a LocalOnly result is returned.
func (e *Engine) Submit(ctx context.Context, d models.Draft) (Result, error) {
	if err := validate(d); err != nil {
		return Result{}, err
	}

	id, err := e.store.AppendMessage(ctx, d)
	if err != nil {
		return e.echoLocal(ctx, d, err), nil
	}

	if d.Track {
		e.track(context.WithoutCancel(ctx), id, d.To)
	}
	return Result{Kind: KindCommitted, ID: id}, nil
}

func (e *Engine) echoLocal(ctx context.Context, d models.Draft, cause error) Result {
	msg := d.Materialize(e.localID(), e.now())

	e.mu.Lock()
	e.local = append(slices.Clip(e.local), msg)
	e.mu.Unlock()

	e.log.Warn(ctx, "store rejected message, keeping local echo", "id", msg.ID, "to", d.To, "error", cause)
	e.opts.Notifier.ConversationUpdated(d.From, d.To)
	return Result{Kind: KindLocalOnly, ID: msg.ID}
}

// track schedules delivered, then read for auto-read recipients. Each step
// is tried once; read is only attempted after delivered committed.
func (e *Engine) track(ctx context.Context, id, to string) {
	e.after(e.opts.DeliveredDelay, func() {
		if !e.advance(ctx, id, models.StatusDelivered) {
			return
		}
		if !e.opts.AutoReadRecipient(to) {
			return
		}
		e.after(e.opts.ReadDelay, func() {
			e.advance(ctx, id, models.StatusRead)
		})
	})
}

func (e *Engine) after(d time.Duration, f func()) {
	e.wg.Add(1)
	e.opts.Scheduler.AfterFunc(d, func() {
		defer e.wg.Done()
		f()
	})
}

func (e *Engine) advance(ctx context.Context, id string, status models.Status) bool {
	err := e.store.UpdateMessageStatus(ctx, id, status)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		e.log.Debug(ctx, "message gone before status update", "id", id, "status", status)
		return false
	case err != nil:
		e.log.Error(ctx, "status update failed", "id", id, "status", status, "error", err)
		return false
	}
	e.opts.Notifier.StatusUpdated(id, status)
	return true
}

// Wait blocks until every scheduled transition has run.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// subscription is one open message stream. broken is set from the stream
// callback, which may run while Start holds subMu.
type subscription struct {
	unsub  store.Unsubscribe
	broken atomic.Bool
}

// Start subscribes to the whole message stream. Calling it again while
// subscribed does nothing; after the stream broke it subscribes anew.
func (e *Engine) Start(ctx context.Context) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if e.sub != nil {
		if !e.sub.broken.Load() {
			return
		}
		e.sub.unsub()
		e.sub = nil
	}

	sub := &subscription{}
	unsub, err := e.store.SubscribeMessages(ctx, func(snap []models.Message, err error) {
		if err != nil {
			e.log.Error(ctx, "message stream failed", "error", err)
			sub.broken.Store(true)
			snap = nil
		}
		e.apply(snap)
	})
	if err != nil {
		e.log.Error(ctx, "subscribe to messages", "error", err)
		e.apply(nil)
		return
	}
	sub.unsub = unsub
	e.sub = sub
}

// Live reports whether a message stream is open and healthy.
func (e *Engine) Live() bool {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	return e.sub != nil && !e.sub.broken.Load()
}

// Stop unsubscribes. Scheduled transitions still run.
func (e *Engine) Stop() {
	e.subMu.Lock()
	sub := e.sub
	e.sub = nil
	e.subMu.Unlock()

	if sub != nil {
		sub.unsub()
	}
}

// apply replaces the stream with snap and notifies every conversation
// whose messages changed.
func (e *Engine) apply(snap []models.Message) {
	next := dedupe(snap)

	e.mu.Lock()
	prev := e.stream
	e.stream = next
	e.mu.Unlock()

	for _, p := range changedPairs(prev, next) {
		e.opts.Notifier.ConversationUpdated(p[0], p[1])
	}
}

// ClearLocal empties the local view, echoes included. The next snapshot
// brings the stream back.
func (e *Engine) ClearLocal() {
	e.mu.Lock()
	e.stream = nil
	e.local = nil
	e.mu.Unlock()
}

// ConversationView returns the messages between a and b in stream order,
// followed by local echoes for the pair.
func (e *Engine) ConversationView(a, b string) []models.Message {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := []models.Message{}
	for _, m := range e.stream {
		if m.Between(a, b) {
			out = append(out, m)
		}
	}
	for _, m := range e.local {
		if m.Between(a, b) {
			out = append(out, m)
		}
	}
	return out
}

// Message looks id up in the stream, then among local echoes.
func (e *Engine) Message(id string) (models.Message, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, set := range [][]models.Message{e.stream, e.local} {
		if i := slices.IndexFunc(set, func(m models.Message) bool { return m.ID == id }); i >= 0 {
			return set[i], true
		}
	}
	return models.Message{}, false
}

// Snapshot returns a copy of the current stream.
func (e *Engine) Snapshot() []models.Message {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.stream)
}

// IsLocal reports whether id was synthesized after a failed store write.
func IsLocal(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}

// dedupe keeps each id once, at its first position, with the content of
// its last occurrence.
func dedupe(snap []models.Message) []models.Message {
	out := make([]models.Message, 0, len(snap))
	pos := make(map[string]int, len(snap))
	for _, m := range snap {
		if i, ok := pos[m.ID]; ok {
			out[i] = m
			continue
		}
		pos[m.ID] = len(out)
		out = append(out, m)
	}
	return out
}

func changedPairs(prev, next []models.Message) [][2]string {
	old := make(map[string]models.Message, len(prev))
	for _, m := range prev {
		old[m.ID] = m
	}

	seen := make(map[[2]string]struct{})
	var pairs [][2]string
	mark := func(m models.Message) {
		k := pairKey(m.From, m.To)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		pairs = append(pairs, k)
	}

	for _, m := range next {
		if o, ok := old[m.ID]; !ok || o != m {
			mark(m)
		}
		delete(old, m.ID)
	}
	for _, m := range prev {
		if _, gone := old[m.ID]; gone {
			mark(m)
		}
	}

	slices.SortFunc(pairs, func(x, y [2]string) int {
		if c := strings.Compare(x[0], y[0]); c != 0 {
			return c
		}
		return strings.Compare(x[1], y[1])
	})
	return pairs
}

func pairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

func isBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
