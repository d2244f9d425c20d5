package coordinator

import (
	"context"
	"time"

	"cashier-settlement-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func entryKey(scope, subjectId, action string) string {
	return scope + ":" + subjectId + ":" + action
}

// acquire returns the action's live entry, creating one with a fresh nonce
// when there is none or the last one is terminal. running reports whether
// another caller already holds the entry in flight.
func (c *Coordinator) acquire(scope, subjectId, action string) (e *entry, running bool) {
	var changes []Transition

	c.mu.Lock()
	ek := entryKey(scope, subjectId, action)
	e, ok := c.live[ek]
	if !ok {
		e = &entry{Entry: Entry{
			Scope:     scope,
			SubjectId: subjectId,
			Action:    action,
			Nonce:     uuid.New().String(),
			Status:    StatusIdle,
			UpdatedAt: c.now(),
		}}
		e.key = e.Key()
		c.live[ek] = e
		c.entries.Remove(ek)
	}

	running = e.Status == StatusInFlight
	if e.Status == StatusIdle {
		changes = append(changes, c.setStatus(e, StatusInFlight))
	}
	c.mu.Unlock()

	c.notify(changes)
	return e, running
}

func (c *Coordinator) do(ctx context.Context, e *entry, work Work) Result {
	v, _, _ := c.group.Do(e.key, func() (any, error) {
		return c.run(ctx, e, work), nil
	})
	return v.(Result)
}

// run is the attempt sequence. It runs under the first caller's context.
func (c *Coordinator) run(ctx context.Context, e *entry, work Work) Result {
	c.mu.Lock()
	if e.Status.Terminal() {
		// finished between acquire and join
		r := e.result()
		c.mu.Unlock()
		return r
	}
	c.mu.Unlock()

	var lastErr error
	for i, delay := range c.schedule {
		if delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return c.suspend(e, err)
			}
		}

		c.beginAttempt(e, i)
		value, err := work(ctx, e.key)
		if err == nil {
			return c.finish(e, StatusDone, value, nil)
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
		zap.L().Warn("Retryable attempt failure",
			zap.String("idempotency_key", e.key),
			zap.Int("attempt", i+1),
			zap.String("error_code", store.Code(err)),
			zap.Error(err))
	}
	return c.finish(e, StatusFailed, nil, lastErr)
}

func (c *Coordinator) beginAttempt(e *entry, i int) {
	c.mu.Lock()
	e.Attempts++
	e.UpdatedAt = c.now()
	var changes []Transition
	if i > 0 {
		changes = append(changes, Transition{From: StatusInFlight, To: StatusInFlight, Entry: e.Entry})
	}
	c.mu.Unlock()
	c.notify(changes)
}

// suspend leaves the entry resumable under the same nonce. The outcome of
// the last attempt is unknown, so the key must not change.
func (c *Coordinator) suspend(e *entry, err error) Result {
	c.mu.Lock()
	e.LastErr = err
	change := c.setStatus(e, StatusIdle)
	r := e.result()
	c.mu.Unlock()
	c.notify([]Transition{change})

	r.Status = StatusInFlight
	return r
}

func (c *Coordinator) finish(e *entry, status Status, value any, err error) Result {
	c.mu.Lock()
	e.value = value
	e.LastErr = err
	change := c.setStatus(e, status)
	r := e.result()
	ek := entryKey(e.Scope, e.SubjectId, e.Action)
	if c.live[ek] == e {
		delete(c.live, ek)
	}
	c.entries.Add(ek, e)
	c.mu.Unlock()
	c.notify([]Transition{change})

	if status == StatusFailed {
		zap.L().Error("Action failed",
			zap.String("idempotency_key", e.key),
			zap.Int("attempts", r.Attempts),
			zap.String("error_code", store.Code(err)),
			zap.Error(err))
	} else {
		zap.L().Debug("Action done", zap.String("idempotency_key", e.key), zap.Int("attempts", r.Attempts))
	}
	return r
}

// setStatus must be called with c.mu held.
func (c *Coordinator) setStatus(e *entry, to Status) Transition {
	from := e.Status
	e.Status = to
	e.UpdatedAt = c.now()
	return Transition{From: from, To: to, Entry: e.Entry}
}

func (c *Coordinator) notify(changes []Transition) {
	for _, t := range changes {
		for _, o := range c.observers {
			o(t)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
