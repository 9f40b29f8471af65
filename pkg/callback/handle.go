package callback

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/mattn/go-pointer"
)

// handle is what a C-side user data pointer resolves to. Release clears inv
// but keeps the token saved, so its address is never handed out again and a
// stale pointer cannot reach a later binding.
type handle struct {
	inv atomic.Pointer[Invoker]
}

// Export returns an opaque handle for inv that may be stored in C memory and
// passed back as user data. The handle stays valid until Release, even after
// the binding is unregistered; dispatching through it then fails with
// ErrNotFound.
func Export(inv Invoker) (unsafe.Pointer, error) {
	if inv == nil || !inv.Bound() {
		return nil, ErrNotFound
	}
	h := &handle{}
	h.inv.Store(&inv)
	return pointer.Save(h), nil
}

// Restore recovers the binding behind h. A handle exported from a binding of
// another signature is rejected with ErrInvalidArgument.
func Restore[E, C any](h unsafe.Pointer) (*Binding[E, C], error) {
	inv, err := lookup(h)
	if err != nil {
		return nil, err
	}
	b, ok := inv.(*Binding[E, C])
	if !ok {
		return nil, fmt.Errorf("%w: handle refers to %T", ErrInvalidArgument, inv)
	}
	return b, nil
}

// Dispatch invokes the binding behind h with event.
func Dispatch(h unsafe.Pointer, event any) error {
	inv, err := lookup(h)
	if err != nil {
		return err
	}
	return inv.InvokeAny(event)
}

// Release drops the binding behind h. Releasing an unknown or already
// released handle is a no-op.
func Release(h unsafe.Pointer) {
	if h == nil {
		return
	}
	if saved, ok := pointer.Restore(h).(*handle); ok {
		saved.inv.Store(nil)
	}
}

func lookup(h unsafe.Pointer) (Invoker, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: nil handle", ErrNotFound)
	}
	saved, ok := pointer.Restore(h).(*handle)
	if !ok {
		return nil, fmt.Errorf("%w: unknown handle %p", ErrNotFound, h)
	}
	inv := saved.inv.Load()
	if inv == nil {
		return nil, fmt.Errorf("%w: released handle %p", ErrNotFound, h)
	}
	return *inv, nil
}
