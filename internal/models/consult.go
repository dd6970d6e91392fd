package models

// Status is the doctor's response to a consult request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// RoomState tracks the call room lifecycle.
type RoomState string

const (
	RoomWaiting RoomState = "waiting"
	RoomOpen    RoomState = "open"
	RoomClosed  RoomState = "closed"
)

// ConsultRequest represents one call attempt from a kiosk to a doctor.
// Identity is (calleeID, requestID); the record lives in the signaling
// store where the doctor's device watches it.
type ConsultRequest struct {
	PatientName string    `json:"patientName"`
	Timestamp   int64     `json:"timestamp"` // creation time, unix millis
	RoomID      string    `json:"roomId"`
	Status      Status    `json:"status"`
	RoomState   RoomState `json:"roomState"`
	Origin      string    `json:"origin"`
}

// CanTransition reports whether a status change is allowed. Status is
// monotonic: pending may become accepted or rejected, nothing reverses.
func (s Status) CanTransition(to Status) bool {
	if s == to {
		return false
	}
	return s == StatusPending
}

// CanTransition reports whether a room state change is allowed. Room state
// only moves forward: waiting -> open -> closed.
func (r RoomState) CanTransition(to RoomState) bool {
	switch r {
	case RoomWaiting:
		return to == RoomOpen || to == RoomClosed
	case RoomOpen:
		return to == RoomClosed
	default:
		return false
	}
}
