package models

// Role identifies which call leg wrote a piece of signaling state. The
// kiosk is the caller ("web" on the wire), the doctor's device the callee
// ("mobile"). Each side subscribes to the opposite role's candidate queue.
type Role string

const (
	RoleCaller Role = "web"
	RoleCallee Role = "mobile"
)

// Opposite returns the other call leg.
func (r Role) Opposite() Role {
	if r == RoleCaller {
		return RoleCallee
	}
	return RoleCaller
}

// SDPType represents the half of the description exchange a payload
// belongs to.
type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// SessionDescription is an opaque media session description. The core
// relays it; only the media engine interprets the SDP.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

// ICECandidate is a connectivity option proposed by one peer, in the
// shape candidate.toJSON() produces on the remote side.
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}
