// Package call drives the two-phase call attempt: wait on the request
// record directly first, then push a notification and wait once more
// before declaring the doctor unreachable.
package call

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/medkiosk/consult-core/internal/consult"
	"github.com/medkiosk/consult-core/internal/models"
)

// Placement describes an accepted call: everything the caller needs to
// join the room signaling session.
type Placement struct {
	DoctorID   string `json:"doctorId"`
	DoctorName string `json:"doctorName"`
	RoomID     string `json:"roomId"`
	RequestID  string `json:"requestId"`
	Origin     string `json:"origin"`
}

// Orchestrator places calls. A kiosk runs one orchestrator; placing a new
// call cancels any attempt still in flight, since the patient walked away
// from the previous one.
type Orchestrator struct {
	consults     *consult.Manager
	notifier     Notifier
	phaseTimeout time.Duration

	mu     sync.Mutex
	active *attempt
}

type attempt struct {
	cancel context.CancelFunc
}

func NewOrchestrator(consults *consult.Manager, notifier Notifier, phaseTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		consults:     consults,
		notifier:     notifier,
		phaseTimeout: phaseTimeout,
	}
}

// PlaceCall runs the full attempt policy against one doctor and returns a
// Placement once the doctor accepts. One ConsultRequest is shared across
// both phases: the doctor never sees two request IDs for one button press.
func (o *Orchestrator) PlaceCall(ctx context.Context, doctor models.Doctor, patientName, origin string) (*Placement, error) {
	if !doctor.Online {
		return nil, ErrDoctorOffline
	}
	if doctor.FCMToken == "" {
		return nil, ErrNoDeliveryToken
	}

	ctx, cancel := context.WithCancel(ctx)
	att := o.supersede(cancel)
	defer o.clear(att)

	roomID := GenerateRoomCode()
	requestID, err := o.consults.Create(ctx, doctor.ID, patientName, roomID, origin)
	if err != nil {
		return nil, err
	}

	// Phase 1: the doctor's app may be watching the request directly.
	log.Printf("Call %s: phase 1, waiting for doctor %s", requestID, doctor.ID)
	outcome, err := o.consults.WaitForOutcome(ctx, doctor.ID, requestID, o.phaseTimeout)
	if err != nil {
		return nil, o.abandon(doctor.ID, requestID, err)
	}

	switch outcome {
	case consult.OutcomeAccepted:
		return o.placement(doctor, roomID, requestID, origin), nil
	case consult.OutcomeRejected:
		// A rejection is final; phase 2 would only ring a doctor who
		// already said no.
		return nil, o.fail(ctx, doctor.ID, requestID)
	}

	// Phase 2: push a notification and wait again. Delivery is
	// best-effort, so a send failure is logged and the wait proceeds.
	log.Printf("Call %s: phase 1 timed out, notifying doctor %s", requestID, doctor.ID)
	if err := o.notifier.Send(ctx, doctor.FCMToken, patientName, roomID, requestID, origin); err != nil {
		log.Printf("Call %s: notification failed: %v", requestID, err)
	}

	outcome, err = o.consults.WaitForOutcome(ctx, doctor.ID, requestID, o.phaseTimeout)
	if err != nil {
		return nil, o.abandon(doctor.ID, requestID, err)
	}

	if outcome == consult.OutcomeAccepted {
		return o.placement(doctor, roomID, requestID, origin), nil
	}
	return nil, o.fail(ctx, doctor.ID, requestID)
}

// Cancel aborts any attempt currently in flight.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	prev := o.active
	o.active = nil
	o.mu.Unlock()
	if prev != nil {
		prev.cancel()
	}
}

func (o *Orchestrator) placement(doctor models.Doctor, roomID, requestID, origin string) *Placement {
	log.Printf("Call %s accepted by doctor %s, entering room %s", requestID, doctor.ID, roomID)
	return &Placement{
		DoctorID:   doctor.ID,
		DoctorName: doctor.Name,
		RoomID:     roomID,
		RequestID:  requestID,
		Origin:     origin,
	}
}

// fail closes out an attempt neither phase could deliver.
func (o *Orchestrator) fail(ctx context.Context, doctorID, requestID string) error {
	if err := o.consults.MarkRejected(ctx, doctorID, requestID); err != nil {
		log.Printf("Call %s: failed to mark rejected: %v", requestID, err)
	}
	log.Printf("Call %s: doctor %s unreachable", requestID, doctorID)
	return ErrDoctorUnreachable
}

// abandon handles a wait cut short by cancellation. The record is closed
// out with a background context because the attempt's own context is gone.
func (o *Orchestrator) abandon(doctorID, requestID string, cause error) error {
	cleanup, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := o.consults.MarkRejected(cleanup, doctorID, requestID); err != nil {
		log.Printf("Call %s: failed to mark rejected: %v", requestID, err)
	}
	if errors.Is(cause, context.Canceled) {
		return ErrSuperseded
	}
	return cause
}

// supersede installs this attempt as the active one, cancelling whatever
// was in flight before it.
func (o *Orchestrator) supersede(cancel context.CancelFunc) *attempt {
	att := &attempt{cancel: cancel}
	o.mu.Lock()
	prev := o.active
	o.active = att
	o.mu.Unlock()
	if prev != nil {
		prev.cancel()
	}
	return att
}

// clear releases an attempt's slot, unless a newer attempt already took it.
func (o *Orchestrator) clear(att *attempt) {
	o.mu.Lock()
	if o.active == att {
		o.active = nil
	}
	o.mu.Unlock()
	att.cancel()
}
