// peerconnection is a package that configures a peerconnection whose incoming RTP passes through probes.
package peerconnection

import (
	"github.com/muxable/callback/pkg/probe"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

// NewProbedPeerConnection creates a new PeerConnection that fires the probes on pad for every remote packet.
func NewProbedPeerConnection(configuration webrtc.Configuration, pad *probe.Pad) (*webrtc.PeerConnection, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, err
	}
	i.Add(pad.InterceptorFactory())

	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i)).NewPeerConnection(configuration)
}
