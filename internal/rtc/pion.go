package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/medkiosk/consult-core/config"
	"github.com/medkiosk/consult-core/internal/models"
)

// TrackMedia is local media that exposes its capture tracks. The pion link
// needs the concrete tracks to attach them.
type TrackMedia interface {
	LocalMedia
	Tracks() []webrtc.TrackLocal
}

// PionLink implements PeerLink on a pion RTCPeerConnection.
type PionLink struct {
	pc *webrtc.PeerConnection

	mu            sync.Mutex
	onCandidate   func(c models.ICECandidate)
	onRemoteTrack func(track RemoteTrack)
	onState       func(state TransportState)
	closed        bool
}

// ICEServers translates config into the engine's server list.
func ICEServers(cfg config.ICEConfig) []webrtc.ICEServer {
	servers := []webrtc.ICEServer{{URLs: cfg.STUNServers}}
	if len(cfg.TURNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       cfg.TURNServers,
			Username:   cfg.TURNUser,
			Credential: cfg.TURNPass,
		})
	}
	return servers
}

// NewPionLink creates a peer connection configured with the given ICE
// servers and wires the engine callbacks through to the PeerLink surface.
func NewPionLink(cfg config.ICEConfig) (*PionLink, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: ICEServers(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	link := &PionLink{pc: pc}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return // gathering finished
		}
		init := candidate.ToJSON()
		link.mu.Lock()
		fn := link.onCandidate
		link.mu.Unlock()
		if fn != nil {
			fn(models.ICECandidate{
				Candidate:     init.Candidate,
				SDPMid:        init.SDPMid,
				SDPMLineIndex: init.SDPMLineIndex,
			})
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		link.mu.Lock()
		fn := link.onRemoteTrack
		link.mu.Unlock()
		if fn != nil {
			fn(track)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		link.mu.Lock()
		fn := link.onState
		link.mu.Unlock()
		if fn != nil {
			fn(mapTransportState(state))
		}
	})

	return link, nil
}

func mapTransportState(state webrtc.PeerConnectionState) TransportState {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return TransportNew
	case webrtc.PeerConnectionStateConnecting:
		return TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		return TransportDisconnected
	case webrtc.PeerConnectionStateFailed:
		return TransportFailed
	default:
		return TransportClosed
	}
}

func (l *PionLink) AttachMedia(media LocalMedia) error {
	tm, ok := media.(TrackMedia)
	if !ok {
		return fmt.Errorf("media source does not expose capture tracks")
	}
	for _, track := range tm.Tracks() {
		if _, err := l.pc.AddTrack(track); err != nil {
			return fmt.Errorf("failed to add %s track: %w", track.Kind(), err)
		}
	}
	return nil
}

func (l *PionLink) CreateOffer(ctx context.Context) (models.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return models.SessionDescription{}, fmt.Errorf("failed to create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return models.SessionDescription{}, fmt.Errorf("failed to set local description: %w", err)
	}
	return models.SessionDescription{Type: models.SDPTypeOffer, SDP: offer.SDP}, nil
}

func (l *PionLink) SetAnswer(desc models.SessionDescription) error {
	return l.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  desc.SDP,
	})
}

func (l *PionLink) HasRemoteDescription() bool {
	return l.pc.RemoteDescription() != nil
}

func (l *PionLink) NegotiationIdle() bool {
	return l.pc.SignalingState() == webrtc.SignalingStateStable && l.pc.RemoteDescription() == nil
}

func (l *PionLink) AddCandidate(c models.ICECandidate) error {
	return l.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	})
}

func (l *PionLink) OnCandidate(fn func(c models.ICECandidate)) {
	l.mu.Lock()
	l.onCandidate = fn
	l.mu.Unlock()
}

func (l *PionLink) OnRemoteTrack(fn func(track RemoteTrack)) {
	l.mu.Lock()
	l.onRemoteTrack = fn
	l.mu.Unlock()
}

func (l *PionLink) OnStateChange(fn func(state TransportState)) {
	l.mu.Lock()
	l.onState = fn
	l.mu.Unlock()
}

func (l *PionLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	return l.pc.Close()
}
