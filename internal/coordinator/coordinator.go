// Package coordinator gives every logical money action a stable idempotency
// key and drives its bounded retries. Concurrent callers of the same action
// share one attempt sequence and see the same outcome.
package coordinator

import (
	"context"
	"strings"
	"sync"
	"time"

	"cashier-settlement-go/internal/models"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

type Status string

const (
	StatusIdle     Status = "idle"
	StatusInFlight Status = "in_flight"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

const (
	defaultCacheSize = 1024
	defaultCacheTtl  = 30 * time.Minute
)

// DefaultRetrySchedule is three tries: immediately, after 250ms, after 750ms.
var DefaultRetrySchedule = []time.Duration{0, 250 * time.Millisecond, 750 * time.Millisecond}

// Work performs one attempt with the given idempotency key.
type Work func(ctx context.Context, key string) (any, error)

// Result is the outcome of Execute.
type Result struct {
	Status   Status
	Key      string
	Attempts int
	Value    any
	Err      error
}

// Entry is a snapshot of one action's idempotency state.
type Entry struct {
	Scope     string
	SubjectId string
	Action    string
	Nonce     string
	Status    Status
	Attempts  int
	LastErr   error
	UpdatedAt time.Time
}

// Key is the idempotency key sent with every attempt.
func (e Entry) Key() string {
	return BuildKey(e.Scope, e.SubjectId, e.Action, e.Nonce)
}

// Transition is passed to observers on every entry status change and retry.
type Transition struct {
	From  Status
	To    Status
	Entry Entry
}

type Observer func(Transition)

type entry struct {
	Entry
	key   string
	value any
}

func (e *entry) result() Result {
	return Result{Status: e.Status, Key: e.key, Attempts: e.Attempts, Value: e.value, Err: e.LastErr}
}

// Coordinator keeps non-terminal entries in live until they finish, so a
// running or suspended action keeps its nonce however full the cache gets.
// Only finished entries go to the bounded cache.
type Coordinator struct {
	mu        sync.Mutex
	live      map[string]*entry
	entries   *expirable.LRU[string, *entry]
	group     singleflight.Group
	schedule  []time.Duration
	observers []Observer
	now       func() time.Time
}

type Option func(*Coordinator)

func WithRetrySchedule(schedule []time.Duration) Option {
	return func(c *Coordinator) {
		if len(schedule) > 0 {
			c.schedule = append([]time.Duration(nil), schedule...)
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observers = append(c.observers, o) }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New builds a coordinator from cfg. Zero values fall back to defaults.
func New(cfg models.CoordinatorConfig, opts ...Option) *Coordinator {
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	ttl := cfg.CacheTtl
	if ttl <= 0 {
		ttl = defaultCacheTtl
	}

	c := &Coordinator{
		live:     make(map[string]*entry),
		entries:  expirable.NewLRU[string, *entry](size, nil, ttl),
		schedule: DefaultRetrySchedule,
		now:      time.Now,
	}
	WithRetrySchedule(cfg.RetrySchedule)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildKey formats scope:subjectId:action:nonce.
func BuildKey(scope, subjectId, action, nonce string) string {
	return strings.Join([]string{scope, subjectId, action, nonce}, ":")
}

// Execute runs work under the action's current key, joining an attempt
// sequence already running for it. A terminal entry is replaced by a fresh
// nonce, so each call after a finished action starts a new logical action.
func (c *Coordinator) Execute(ctx context.Context, scope, subjectId, action string, work Work) Result {
	e, _ := c.acquire(scope, subjectId, action)
	return c.do(ctx, e, work)
}

// TryExecute is Execute that returns StatusInFlight without waiting when an
// attempt for the action is already running.
func (c *Coordinator) TryExecute(ctx context.Context, scope, subjectId, action string, work Work) Result {
	e, running := c.acquire(scope, subjectId, action)
	if running {
		c.mu.Lock()
		defer c.mu.Unlock()
		return Result{Status: StatusInFlight, Key: e.key, Attempts: e.Attempts}
	}
	return c.do(ctx, e, work)
}

// Entry returns the current snapshot for an action.
func (c *Coordinator) Entry(scope, subjectId, action string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ek := entryKey(scope, subjectId, action)
	if e, ok := c.live[ek]; ok {
		return e.Entry, true
	}
	e, ok := c.entries.Get(ek)
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}

// Forget drops an action's entry so the next call starts with a fresh nonce.
// An entry with an attempt in flight is kept.
func (c *Coordinator) Forget(scope, subjectId, action string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ek := entryKey(scope, subjectId, action)
	if e, ok := c.live[ek]; ok && e.Status != StatusInFlight {
		delete(c.live, ek)
	}
	c.entries.Remove(ek)
}

// Len counts live and cached finished entries.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live) + c.entries.Len()
}
