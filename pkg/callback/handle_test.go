package callback

import (
	"errors"
	"testing"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestHandle_RoundTrip(t *testing.T) {
	logger := zaptest.NewLogger(t)
	defer logger.Sync()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	defer goleak.VerifyNone(t)

	c := &counter{}
	b, err := Register(func(event int, c *counter) { c.n += event }, c)
	if err != nil {
		t.Fatal(err)
	}

	h, err := Export(b)
	if err != nil {
		t.Fatal(err)
	}
	defer Release(h)

	restored, err := Restore[int, *counter](h)
	if err != nil {
		t.Fatal(err)
	}
	if restored != b {
		t.Fatalf("got %p, want %p", restored, b)
	}

	if err := Dispatch(h, 2); err != nil {
		t.Fatal(err)
	}
	if err := Dispatch(h, 3); err != nil {
		t.Fatal(err)
	}
	if c.n != 5 {
		t.Fatalf("got %d, want 5", c.n)
	}
}

func TestHandle_WrongSignature(t *testing.T) {
	logger := zaptest.NewLogger(t)
	defer logger.Sync()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	b, err := Register(func(int, string) {}, "ctx")
	if err != nil {
		t.Fatal(err)
	}
	h, err := Export(b)
	if err != nil {
		t.Fatal(err)
	}
	defer Release(h)

	if _, err := Restore[string, string](h); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
	if err := Dispatch(h, "not an int"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}

func TestHandle_Released(t *testing.T) {
	logger := zaptest.NewLogger(t)
	defer logger.Sync()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	b, err := Register(func(int, int) {}, 0)
	if err != nil {
		t.Fatal(err)
	}
	h, err := Export(b)
	if err != nil {
		t.Fatal(err)
	}
	Release(h)

	if err := Dispatch(h, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if _, err := Restore[int, int](h); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := Dispatch(nil, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	Release(nil)
}

func TestHandle_Unregistered(t *testing.T) {
	logger := zaptest.NewLogger(t)
	defer logger.Sync()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	b, err := Register(func(int, int) {}, 0)
	if err != nil {
		t.Fatal(err)
	}
	h, err := Export(b)
	if err != nil {
		t.Fatal(err)
	}
	defer Release(h)

	if err := b.Unregister(); err != nil {
		t.Fatal(err)
	}
	if err := Dispatch(h, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if _, err := Export(b); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if _, err := Export(nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestHandle_ReleaseThenExport(t *testing.T) {
	logger := zaptest.NewLogger(t)
	defer logger.Sync()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	first := &counter{}
	b1, err := Register(func(_ int, c *counter) { c.n++ }, first)
	if err != nil {
		t.Fatal(err)
	}
	second := &counter{}
	b2, err := Register(func(_ int, c *counter) { c.n++ }, second)
	if err != nil {
		t.Fatal(err)
	}

	h1, err := Export(b1)
	if err != nil {
		t.Fatal(err)
	}
	Release(h1)

	h2, err := Export(b2)
	if err != nil {
		t.Fatal(err)
	}
	defer Release(h2)

	if h1 == h2 {
		t.Fatalf("released handle %p was handed out again", h1)
	}
	if err := Dispatch(h1, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := Dispatch(h2, 1); err != nil {
		t.Fatal(err)
	}
	if first.n != 0 || second.n != 1 {
		t.Fatalf("got first=%d second=%d, want 0 and 1", first.n, second.n)
	}
}

func TestHandle_DoubleRelease(t *testing.T) {
	logger := zaptest.NewLogger(t)
	defer logger.Sync()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	b, err := Register(func(int, int) {}, 0)
	if err != nil {
		t.Fatal(err)
	}
	h, err := Export(b)
	if err != nil {
		t.Fatal(err)
	}

	Release(h)
	Release(h)

	if err := Dispatch(h, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	// the binding itself is untouched by releasing its handle.
	if err := b.Invoke(1); err != nil {
		t.Fatal(err)
	}
}

func TestHandle_RegistryClosed(t *testing.T) {
	logger := zaptest.NewLogger(t)
	defer logger.Sync()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	r := NewRegistry[int, *counter]()

	c := &counter{}
	b, err := r.Register(func(_ int, c *counter) { c.n++ }, c)
	if err != nil {
		t.Fatal(err)
	}
	h, err := Export(b)
	if err != nil {
		t.Fatal(err)
	}
	defer Release(h)

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := Dispatch(h, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if _, err := Export(b); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if c.n != 0 {
		t.Fatalf("callback ran after close: %d", c.n)
	}
}
