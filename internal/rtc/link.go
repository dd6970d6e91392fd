// Package rtc abstracts the peer connection used for the media leg of a
// call. The session package drives a PeerLink without knowing whether it
// talks to a real connection or a test double.
package rtc

import (
	"context"

	"github.com/medkiosk/consult-core/internal/models"
)

// TransportState is the peer link's connection state, mapped away from
// any particular media engine's enum.
type TransportState string

const (
	TransportNew          TransportState = "new"
	TransportConnecting   TransportState = "connecting"
	TransportConnected    TransportState = "connected"
	TransportDisconnected TransportState = "disconnected"
	TransportFailed       TransportState = "failed"
	TransportClosed       TransportState = "closed"
)

// RemoteTrack is the opaque remote media handle passed up to whatever
// renders the doctor's feed.
type RemoteTrack interface{}

// LocalMedia is the opaque local capture handle. Acquiring and rendering
// media is an external collaborator; the core only attaches and releases
// it.
type LocalMedia interface {
	Close() error
}

// MediaSource acquires the local camera and microphone. Failure is fatal
// for a session.
type MediaSource interface {
	Acquire(ctx context.Context) (LocalMedia, error)
}

// PeerLink is the offer/answer surface of one peer connection. A link is
// created per room occupancy and never reused.
type PeerLink interface {
	// AttachMedia adds the local capture tracks to the link.
	AttachMedia(media LocalMedia) error

	// CreateOffer builds an offer and installs it as the local
	// description.
	CreateOffer(ctx context.Context) (models.SessionDescription, error)

	// SetAnswer installs the remote answer description.
	SetAnswer(desc models.SessionDescription) error

	// HasRemoteDescription reports whether a remote description is set.
	HasRemoteDescription() bool

	// NegotiationIdle reports whether the link is in its initial stable
	// signaling state, i.e. no offer is outstanding.
	NegotiationIdle() bool

	// AddCandidate applies a remote ICE candidate.
	AddCandidate(c models.ICECandidate) error

	// OnCandidate registers the callback for locally gathered candidates.
	OnCandidate(fn func(c models.ICECandidate))

	// OnRemoteTrack registers the callback for incoming remote media.
	OnRemoteTrack(fn func(track RemoteTrack))

	// OnStateChange registers the callback for transport state changes.
	OnStateChange(fn func(state TransportState))

	// Close tears the link down. Idempotent.
	Close() error
}

// LinkFactory builds a PeerLink for a new session.
type LinkFactory func() (PeerLink, error)
