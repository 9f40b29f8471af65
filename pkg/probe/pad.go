// probe attaches callbacks to a stream of RTP packets, in the manner of
// GStreamer pad probes: each probe carries its own user data and sees every
// packet that crosses the pad until it is removed.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/muxable/callback/pkg/callback"
	"github.com/pion/rtp"
	"github.com/pion/rtpio/pkg/rtpio"
	"go.uber.org/zap"
)

type Pad struct {
	id         uuid.UUID
	upstream   rtpio.RTPReader
	downstream rtpio.RTPWriter

	// the pad owns this list, probes own their contexts.
	mu     sync.Mutex
	probes []callback.Invoker
	closed bool
}

var _ rtpio.RTPReader = (*Pad)(nil)

// NewPad creates a pad fed by upstream. downstream may be nil if the pad is
// only read from.
func NewPad(upstream rtpio.RTPReader, downstream rtpio.RTPWriter) *Pad {
	return &Pad{
		id:         uuid.New(),
		upstream:   upstream,
		downstream: downstream,
	}
}

// AddProbe binds fn to ctx and attaches it to the pad.
func AddProbe[C any](p *Pad, fn callback.Func[*rtp.Packet, C], ctx C) (*callback.Binding[*rtp.Packet, C], error) {
	b, err := callback.Register(fn, ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		if err := b.Unregister(); err != nil {
			return nil, err
		}
		return nil, callback.ErrClosed
	}
	p.probes = append(p.probes, b)
	p.mu.Unlock()

	zap.L().Debug("added probe", zap.String("pad", p.id.String()), zap.String("probe", b.ID().String()))
	return b, nil
}

func (p *Pad) RemoveProbe(inv callback.Invoker) error {
	if inv == nil || !inv.Bound() {
		return callback.ErrNotFound
	}

	if err := p.detach(inv); err != nil {
		return err
	}
	return inv.Unregister()
}

func (p *Pad) detach(inv callback.Invoker) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, probe := range p.probes {
		if probe.ID() == inv.ID() {
			p.probes = append(p.probes[:i:i], p.probes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: probe %s is not attached to pad %s", callback.ErrNotFound, inv.ID(), p.id)
}

// ReadRTP reads the next packet from upstream and runs every live probe on it
// in the order they were added.
func (p *Pad) ReadRTP() (*rtp.Packet, error) {
	if p.upstream == nil {
		return nil, fmt.Errorf("%w: pad has no upstream", callback.ErrInvalidArgument)
	}
	pkt, err := p.upstream.ReadRTP()
	if err != nil {
		return nil, err
	}
	p.fire(pkt)
	return pkt, nil
}

// Forward pumps packets downstream until upstream reaches EOF.
func (p *Pad) Forward(ctx context.Context) error {
	if p.downstream == nil {
		return fmt.Errorf("%w: pad has no downstream", callback.ErrInvalidArgument)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pkt, err := p.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := p.downstream.WriteRTP(pkt); err != nil {
			return err
		}
	}
}

// Close detaches and unbinds every probe, and refuses new ones. Upstream and
// downstream are left open; the pad does not own them.
func (p *Pad) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	probes := p.probes
	p.probes = nil
	p.mu.Unlock()

	for _, probe := range probes {
		if err := probe.Unregister(); err != nil && !errors.Is(err, callback.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (p *Pad) fire(pkt *rtp.Packet) {
	p.mu.Lock()
	live := make([]callback.Invoker, 0, len(p.probes))
	for _, probe := range p.probes {
		if probe.Bound() {
			live = append(live, probe)
		}
	}
	p.probes = live
	p.mu.Unlock()

	for _, probe := range live {
		if err := probe.InvokeAny(pkt); err != nil {
			// removed while we were iterating.
			zap.L().Debug("probe skipped", zap.String("probe", probe.ID().String()), zap.Error(err))
		}
	}
}
