package eventbus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Kind names a class of host event.
type Kind string

const KindNoticeMessage Kind = "notice.message"

// Event is a single host event delivered to registered handlers.
//
// Data is the raw payload as emitted by the host; handlers decode it
// themselves (see DecodeNotice).
type Event struct {
	Kind Kind
	Time time.Time
	Data any
}

// Handler processes one event. Handlers must not retain the event after
// returning and must not block for long: delivery is synchronous.
type Handler func(ctx context.Context, e Event)

// PanicHook is called when a handler panics during Deliver.
type PanicHook func(kind Kind, owner string, recovered any)

// Registry maps event kinds to explicitly registered handlers.
//
// Contract:
//   - Register is explicit; nothing is discovered implicitly.
//   - Deliver calls each handler of the event kind in registration order,
//     on the caller's goroutine, and returns once all have finished.
//   - A panicking handler does not stop delivery to the others.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind]map[uint64]entry
	seq      atomic.Uint64

	onPanic PanicHook
}

type entry struct {
	owner  string
	handle Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[Kind]map[uint64]entry{}}
}

// OnPanic installs a hook for recovered handler panics.
func (r *Registry) OnPanic(fn PanicHook) {
	r.mu.Lock()
	r.onPanic = fn
	r.mu.Unlock()
}

// Register adds h for kind. owner is used for diagnostics only.
// The returned func removes the registration; it is safe to call more than once.
func (r *Registry) Register(kind Kind, owner string, h Handler) (unregister func()) {
	if h == nil {
		return func() {}
	}
	id := r.seq.Add(1)

	r.mu.Lock()
	m := r.handlers[kind]
	if m == nil {
		m = map[uint64]entry{}
		r.handlers[kind] = m
	}
	m[id] = entry{owner: owner, handle: h}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.handlers[kind], id)
			if len(r.handlers[kind]) == 0 {
				delete(r.handlers, kind)
			}
			r.mu.Unlock()
		})
	}
}

// Count returns the number of handlers registered for kind.
func (r *Registry) Count(kind Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[kind])
}

// Deliver hands e to every handler registered for e.Kind and returns the
// number of handlers invoked.
func (r *Registry) Deliver(ctx context.Context, e Event) int {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	// Snapshot handlers so Deliver doesn't hold locks while calling them.
	r.mu.RLock()
	ids := make([]uint64, 0, len(r.handlers[e.Kind]))
	for id := range r.handlers[e.Kind] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	entries := make([]entry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, r.handlers[e.Kind][id])
	}
	hook := r.onPanic
	r.mu.RUnlock()

	for _, en := range entries {
		func() {
			defer func() {
				if rec := recover(); rec != nil && hook != nil {
					hook(e.Kind, en.owner, rec)
				}
			}()
			en.handle(ctx, e)
		}()
	}
	return len(entries)
}

func (k Kind) String() string { return string(k) }

// ParseKind validates a kind string received from outside the process.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindNoticeMessage:
		return KindNoticeMessage, nil
	default:
		return "", fmt.Errorf("unknown event kind %q", s)
	}
}
