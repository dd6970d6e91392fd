package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/medkiosk/consult-core/internal/call"
	"github.com/medkiosk/consult-core/internal/consult"
	"github.com/medkiosk/consult-core/internal/directory"
	"github.com/medkiosk/consult-core/internal/models"
	"github.com/medkiosk/consult-core/internal/rtc"
	"github.com/medkiosk/consult-core/internal/session"
)

// CallService glues the kiosk API to the call core: it places calls,
// holds the active session, and tears everything down on hang-up or
// remote close.
type CallService struct {
	Consults     *consult.Manager
	Orchestrator *call.Orchestrator
	Directory    *directory.Directory
	Hub          *Hub
	NewSession   func(roomID string) *session.Session

	mu        sync.Mutex
	placement *call.Placement
	active    *session.Session
	lifecycle *session.LifecycleController
}

// PlaceCallRequest is the body for POST /api/calls.
type PlaceCallRequest struct {
	LocationID  string `json:"locationId" binding:"required"`
	DoctorID    string `json:"doctorId" binding:"required"`
	PatientName string `json:"patientName" binding:"required"`
	Origin      string `json:"origin"`
}

// PlaceCall runs the whole two-phase attempt and, on acceptance, enters
// the room signaling session. The request blocks for up to both phase
// timeouts; the kiosk UI shows its spinner meanwhile.
func (s *CallService) PlaceCall(c *gin.Context) {
	var req PlaceCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Origin == "" {
		req.Origin = "unknown"
	}

	doctor, found, err := s.Directory.Doctor(c.Request.Context(), req.LocationID, req.DoctorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up doctor"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Doctor not found"})
		return
	}

	// A new attempt supersedes whatever this kiosk had going.
	s.teardown(c.Request.Context())

	s.Hub.Broadcast(Event{Type: "phase", Payload: gin.H{"phase": "calling", "doctorId": doctor.ID}})

	placement, err := s.Orchestrator.PlaceCall(c.Request.Context(), doctor, req.PatientName, req.Origin)
	if err != nil {
		s.Hub.Broadcast(Event{Type: "phase", Payload: gin.H{"phase": "failed"}})
		switch {
		case errors.Is(err, call.ErrDoctorOffline), errors.Is(err, call.ErrNoDeliveryToken):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, call.ErrDoctorUnreachable):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		case errors.Is(err, call.ErrSuperseded):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Call failed"})
		}
		return
	}

	if err := s.enterRoom(placement); err != nil {
		log.Printf("Failed to enter room %s: %v", placement.RoomID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not start media session"})
		return
	}

	c.JSON(http.StatusOK, placement)
}

// enterRoom starts the signaling session for an accepted call and hooks
// the lifecycle watch that ends it.
func (s *CallService) enterRoom(placement *call.Placement) error {
	// Session and lifecycle outlive the HTTP request.
	ctx := context.Background()

	sess := s.NewSession(placement.RoomID)
	if err := sess.Start(ctx); err != nil {
		return err
	}

	lc, err := session.WatchLifecycle(ctx, s.Consults, placement.DoctorID, placement.RequestID, sess,
		func() {
			s.Hub.Broadcast(Event{Type: "room-open", Payload: placement})
		},
		func() {
			s.Hub.Broadcast(Event{Type: "ended", Payload: gin.H{"roomId": placement.RoomID}})
			s.clearActive(sess)
		})
	if err != nil {
		sess.Leave(ctx)
		return err
	}

	s.mu.Lock()
	s.placement = placement
	s.active = sess
	s.lifecycle = lc
	s.mu.Unlock()
	return nil
}

// Hangup closes the active room. The lifecycle controller sees the closed
// state and tears the session down, same as when the doctor hangs up.
func (s *CallService) Hangup(c *gin.Context) {
	s.mu.Lock()
	placement := s.placement
	s.mu.Unlock()

	if placement == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active call"})
		return
	}

	if err := s.Consults.MarkClosed(c.Request.Context(), placement.DoctorID, placement.RequestID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to close call"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Call ended"})
}

// ActiveCall reports the current placement, if any.
func (s *CallService) ActiveCall(c *gin.Context) {
	s.mu.Lock()
	placement := s.placement
	s.mu.Unlock()

	if placement == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active call"})
		return
	}
	c.JSON(http.StatusOK, placement)
}

// Doctors lists the doctors available at a location.
func (s *CallService) Doctors(c *gin.Context) {
	locationID := c.Param("locationId")

	doctors, err := s.Directory.DoctorsByLocation(c.Request.Context(), locationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list doctors"})
		return
	}
	if doctors == nil {
		doctors = []models.Doctor{}
	}
	c.JSON(http.StatusOK, gin.H{"doctors": doctors})
}

// clearActive drops the active session if sess is still it.
func (s *CallService) clearActive(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == sess {
		if s.lifecycle != nil {
			s.lifecycle.Close()
		}
		s.placement = nil
		s.active = nil
		s.lifecycle = nil
	}
}

// teardown ends whatever call is active, used when a new attempt starts.
func (s *CallService) teardown(ctx context.Context) {
	s.mu.Lock()
	sess := s.active
	lc := s.lifecycle
	s.placement = nil
	s.active = nil
	s.lifecycle = nil
	s.mu.Unlock()

	if lc != nil {
		lc.Close()
	}
	if sess != nil {
		sess.Leave(ctx)
	}
}

// StatusBroadcaster returns session callbacks that forward status and
// remote media notices onto the event stream.
func (s *CallService) StatusBroadcaster() (func(status string), func(track rtc.RemoteTrack)) {
	onStatus := func(status string) {
		s.Hub.Broadcast(Event{Type: "status", Payload: gin.H{"status": status}})
	}
	onTrack := func(rtc.RemoteTrack) {
		s.Hub.Broadcast(Event{Type: "status", Payload: gin.H{"status": "Receiving doctor video"}})
	}
	return onStatus, onTrack
}
