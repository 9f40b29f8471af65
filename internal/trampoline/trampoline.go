// trampoline drives bound callbacks from a C loop, the way GStreamer fires a
// GSourceFunc with its user data.
package trampoline

/*
#include "trampoline.h"
*/
import "C"
import (
	"fmt"
	"unsafe"

	"github.com/mattn/go-pointer"
	"github.com/muxable/callback/pkg/callback"
	"go.uber.org/zap"
)

// Tick is the event delivered on each iteration of the C loop.
type Tick int

type run struct {
	handle unsafe.Pointer
	err    error
}

// Run hands h to C, which calls back into Go once per tick. It returns the
// number of ticks delivered; the loop stops at the first failed dispatch.
func Run(h unsafe.Pointer, ticks int) (int, error) {
	if ticks < 0 {
		return 0, fmt.Errorf("%w: negative tick count %d", callback.ErrInvalidArgument, ticks)
	}

	r := &run{handle: h}
	userdata := pointer.Save(r)
	defer pointer.Unref(userdata)

	n := int(C.trampoline_run(userdata, C.int(ticks)))
	return n, r.err
}

//export goTickFunc
func goTickFunc(userdata unsafe.Pointer, index C.int) C.int {
	r := pointer.Restore(userdata).(*run)
	if err := callback.Dispatch(r.handle, Tick(index)); err != nil {
		zap.L().Debug("tick dispatch failed", zap.Int("index", int(index)), zap.Error(err))
		r.err = err
		return C.int(-1)
	}
	return C.int(0)
}
