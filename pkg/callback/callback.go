// callback binds a function to a caller-owned context and invokes it later with
// event data, handing the context back untouched.
package callback

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("binding not found")
	ErrClosed          = errors.New("registry closed")
)

// Func is invoked with the event and the context supplied at registration.
type Func[E, C any] func(event E, ctx C)

// Invoker is the signature-erased view of a Binding.
type Invoker interface {
	ID() uuid.UUID
	Bound() bool
	InvokeAny(event any) error
	Unregister() error
}

// Registry hands out bindings. It keeps no table of them: a binding only
// remembers which registry produced it, so Close discards them all at once.
type Registry[E, C any] struct {
	closed atomic.Bool
}

func NewRegistry[E, C any]() *Registry[E, C] {
	return &Registry[E, C]{}
}

// Binding pairs a Func with its context. The context is never read or
// written by this package, and nothing here synchronizes access to it.
type Binding[E, C any] struct {
	id       uuid.UUID
	fn       Func[E, C]
	ctx      C
	registry *Registry[E, C]

	bound atomic.Bool
}

// Register binds fn to ctx in a registry that is never torn down.
func Register[E, C any](fn Func[E, C], ctx C) (*Binding[E, C], error) {
	return newBinding(nil, fn, ctx)
}

func (r *Registry[E, C]) Register(fn Func[E, C], ctx C) (*Binding[E, C], error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil callback", ErrInvalidArgument)
	}
	if r.closed.Load() {
		return nil, ErrClosed
	}
	return newBinding(r, fn, ctx)
}

func newBinding[E, C any](r *Registry[E, C], fn Func[E, C], ctx C) (*Binding[E, C], error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil callback", ErrInvalidArgument)
	}
	b := &Binding[E, C]{
		id:       uuid.New(),
		fn:       fn,
		ctx:      ctx,
		registry: r,
	}
	b.bound.Store(true)

	zap.L().Debug("registered callback", zap.String("id", b.id.String()))
	return b, nil
}

func (r *Registry[E, C]) Invoke(b *Binding[E, C], event E) error {
	if b == nil || b.registry != r {
		return ErrNotFound
	}
	return b.Invoke(event)
}

func (r *Registry[E, C]) Unregister(b *Binding[E, C]) error {
	if b == nil || b.registry != r {
		return ErrNotFound
	}
	return b.Unregister()
}

// Close tears the registry down. Every binding it produced stops accepting
// Invoke and Unregister. Closing twice is a no-op.
func (r *Registry[E, C]) Close() error {
	if r.closed.CompareAndSwap(false, true) {
		zap.L().Debug("closed callback registry")
	}
	return nil
}

// ID is uuid.Nil for a nil binding.
func (b *Binding[E, C]) ID() uuid.UUID {
	if b == nil {
		return uuid.Nil
	}
	return b.id
}

func (b *Binding[E, C]) Bound() bool {
	if b == nil || !b.bound.Load() {
		return false
	}
	return b.registry == nil || !b.registry.closed.Load()
}

// Invoke calls the bound function with event and the registered context.
// Concurrent calls are permitted; the function runs on the caller's goroutine.
func (b *Binding[E, C]) Invoke(event E) error {
	if !b.Bound() {
		return b.notFound()
	}
	b.fn(event, b.ctx)
	return nil
}

// InvokeAny is Invoke with a runtime check on the event type. A nil event is
// delivered as the zero value of E.
func (b *Binding[E, C]) InvokeAny(event any) error {
	if !b.Bound() {
		return b.notFound()
	}
	var e E
	if event != nil {
		v, ok := event.(E)
		if !ok {
			return fmt.Errorf("%w: event %T does not match binding %s", ErrInvalidArgument, event, b.id)
		}
		e = v
	}
	b.fn(e, b.ctx)
	return nil
}

func (b *Binding[E, C]) Unregister() error {
	if b == nil {
		return ErrNotFound
	}
	if b.registry != nil && b.registry.closed.Load() {
		return b.notFound()
	}
	if !b.bound.CompareAndSwap(true, false) {
		return b.notFound()
	}

	zap.L().Debug("unregistered callback", zap.String("id", b.id.String()))
	return nil
}

func (b *Binding[E, C]) notFound() error {
	if b == nil {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s", ErrNotFound, b.id)
}
