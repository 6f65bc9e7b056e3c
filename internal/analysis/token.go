package analysis

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultTimeout bounds one logical analysis request.
const DefaultTimeout = 60 * time.Second

var (
	// ErrTimeout is the cancellation cause when a Token's timer fires.
	ErrTimeout = errors.New("request timed out")
	// ErrCancelled is the cancellation cause when Token.Cancel is called.
	ErrCancelled = errors.New("request cancelled")
)

// Token is a cancellation signal that fires when its timer elapses or when
// Cancel is called, whichever comes first. It fires at most once and the
// pending timer is stopped as soon as it does, including when the parent
// context ends.
type Token struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	once   sync.Once
	timer  *time.Timer
}

// NewToken returns a Token derived from parent that cancels itself after d.
// A non-positive d uses DefaultTimeout.
func NewToken(parent context.Context, d time.Duration) *Token {
	if d <= 0 {
		d = DefaultTimeout
	}
	ctx, cancel := context.WithCancelCause(parent)
	t := &Token{ctx: ctx, cancel: cancel}
	t.timer = time.AfterFunc(d, func() { t.fire(ErrTimeout) })
	context.AfterFunc(ctx, func() { t.timer.Stop() })
	return t
}

// Context is the context to thread through network calls and backoff sleeps.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Cancel fires the token. Calls after the first have no effect.
func (t *Token) Cancel() {
	t.fire(ErrCancelled)
}

// Done is closed once the token has fired.
func (t *Token) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Cause returns ErrTimeout, ErrCancelled or the parent's cause once fired, nil before.
func (t *Token) Cause() error {
	return context.Cause(t.ctx)
}

func (t *Token) fire(cause error) {
	t.once.Do(func() {
		t.cancel(cause)
	})
}
