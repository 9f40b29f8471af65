package probe

import (
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"go.uber.org/zap"
)

// InterceptorFactory creates interceptors that run a pad's probes on every
// remote RTP packet of a peer connection.
type InterceptorFactory struct {
	pad *Pad
}

func (p *Pad) InterceptorFactory() *InterceptorFactory {
	return &InterceptorFactory{pad: p}
}

func (f *InterceptorFactory) NewInterceptor(id string) (interceptor.Interceptor, error) {
	return &Interceptor{pad: f.pad}, nil
}

type Interceptor struct {
	interceptor.NoOp
	pad *Pad
}

func (i *Interceptor) BindRemoteStream(info *interceptor.StreamInfo, reader interceptor.RTPReader) interceptor.RTPReader {
	return interceptor.RTPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, attr, err := reader.Read(b, a)
		if err != nil {
			return n, attr, err
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(b[:n]); err != nil {
			zap.L().Warn("failed to unmarshal rtp", zap.Uint32("ssrc", info.SSRC), zap.Error(err))
			return n, attr, nil
		}
		i.pad.fire(pkt)
		return n, attr, nil
	})
}
