// Package consult manages ConsultRequest records: one record per call
// attempt, watched by the doctor's device through the signaling store.
package consult

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/medkiosk/consult-core/internal/models"
	"github.com/medkiosk/consult-core/internal/store"
)

// Outcome is the result of waiting for the doctor's response.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeTimeout  Outcome = "timeout"
)

// Manager creates and tracks consult requests in the signaling store.
type Manager struct {
	store store.Store
	now   func() time.Time
}

func NewManager(s store.Store) *Manager {
	return &Manager{store: s, now: time.Now}
}

func requestPath(calleeID, requestID string) string {
	return fmt.Sprintf("consultRequests/%s/%s", calleeID, requestID)
}

// Create writes a new pending request and returns its ID. The ID is the
// creation time in unix millis, which keeps requests ordered and unique
// per callee at kiosk concurrency levels.
func (m *Manager) Create(ctx context.Context, calleeID, patientName, roomID, origin string) (string, error) {
	now := m.now()
	requestID := strconv.FormatInt(now.UnixMilli(), 10)

	req := models.ConsultRequest{
		PatientName: patientName,
		Timestamp:   now.UnixMilli(),
		RoomID:      roomID,
		Status:      models.StatusPending,
		RoomState:   models.RoomWaiting,
		Origin:      origin,
	}

	if err := m.store.Write(ctx, requestPath(calleeID, requestID), req); err != nil {
		return "", fmt.Errorf("failed to create consult request: %w", err)
	}

	log.Printf("Consult request %s created for doctor %s (room %s)", requestID, calleeID, roomID)
	return requestID, nil
}

// Get reads the current record. Returns false if it does not exist.
func (m *Manager) Get(ctx context.Context, calleeID, requestID string) (models.ConsultRequest, bool, error) {
	var req models.ConsultRequest
	ok, err := m.store.Read(ctx, requestPath(calleeID, requestID), &req)
	return req, ok, err
}

// WaitForOutcome blocks until the doctor accepts or rejects the request,
// the timeout elapses, or ctx is cancelled (reported as timeout). It
// resolves exactly once and always closes its store watch on the way out,
// so no late store event can fire a second resolution.
func (m *Manager) WaitForOutcome(ctx context.Context, calleeID, requestID string, timeout time.Duration) (Outcome, error) {
	resolved := make(chan Outcome, 1)

	sub, err := m.store.Subscribe(ctx, requestPath(calleeID, requestID), func(data []byte) {
		if data == nil {
			return
		}
		var req models.ConsultRequest
		if err := json.Unmarshal(data, &req); err != nil {
			log.Printf("Failed to parse consult request %s: %v", requestID, err)
			return
		}

		switch req.Status {
		case models.StatusAccepted:
			select {
			case resolved <- OutcomeAccepted:
			default:
			}
		case models.StatusRejected:
			select {
			case resolved <- OutcomeRejected:
			default:
			}
		}
	})
	if err != nil {
		return OutcomeTimeout, fmt.Errorf("failed to watch consult request: %w", err)
	}
	defer sub.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case outcome := <-resolved:
		return outcome, nil
	case <-timer.C:
		return OutcomeTimeout, nil
	case <-ctx.Done():
		return OutcomeTimeout, ctx.Err()
	}
}

// MarkRejected closes out a request that no phase could deliver.
func (m *Manager) MarkRejected(ctx context.Context, calleeID, requestID string) error {
	return m.setState(ctx, calleeID, requestID, models.StatusRejected, models.RoomClosed)
}

// MarkClosed ends the room for a request, leaving the status alone.
// Used by the local hang-up path.
func (m *Manager) MarkClosed(ctx context.Context, calleeID, requestID string) error {
	return m.setState(ctx, calleeID, requestID, "", models.RoomClosed)
}

// setState applies a status and/or room-state change, enforcing the
// monotonic transitions. A backward transition is dropped with a warning
// rather than written, so a racing peer cannot reverse a final state.
func (m *Manager) setState(ctx context.Context, calleeID, requestID string, status models.Status, roomState models.RoomState) error {
	path := requestPath(calleeID, requestID)

	var req models.ConsultRequest
	ok, err := m.store.Read(ctx, path, &req)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("consult request %s/%s not found", calleeID, requestID)
	}

	changed := false
	if status != "" && status != req.Status {
		if !req.Status.CanTransition(status) {
			log.Printf("Ignoring status transition %s -> %s on request %s", req.Status, status, requestID)
		} else {
			req.Status = status
			changed = true
		}
	}
	if roomState != "" && roomState != req.RoomState {
		if !req.RoomState.CanTransition(roomState) {
			log.Printf("Ignoring room state transition %s -> %s on request %s", req.RoomState, roomState, requestID)
		} else {
			req.RoomState = roomState
			changed = true
		}
	}

	if !changed {
		return nil
	}
	return m.store.Write(ctx, path, req)
}

// WatchRoomState watches the request and reports each room state change.
// The returned subscription must be closed by the caller.
func (m *Manager) WatchRoomState(ctx context.Context, calleeID, requestID string, fn func(state models.RoomState)) (store.Subscription, error) {
	return m.store.Subscribe(ctx, requestPath(calleeID, requestID), func(data []byte) {
		if data == nil {
			return
		}
		var req models.ConsultRequest
		if err := json.Unmarshal(data, &req); err != nil {
			log.Printf("Failed to parse consult request %s: %v", requestID, err)
			return
		}
		fn(req.RoomState)
	})
}
