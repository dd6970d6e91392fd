package call

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medkiosk/consult-core/internal/consult"
	"github.com/medkiosk/consult-core/internal/models"
	"github.com/medkiosk/consult-core/internal/store"
)

const testPhaseTimeout = 50 * time.Millisecond

type fakeNotifier struct {
	mu    sync.Mutex
	sends int
	// onSend, when set, runs on every delivery; used to simulate the
	// doctor answering the notification.
	onSend func()
}

func (n *fakeNotifier) Send(ctx context.Context, token, patientName, roomID, requestID, origin string) error {
	n.mu.Lock()
	n.sends++
	fn := n.onSend
	n.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sends
}

// doctorLeg watches a doctor's consult requests the way the doctor app
// does and answers each new one with the given status.
func doctorLeg(t *testing.T, s *store.MemoryStore, doctorID string, status models.Status, delay time.Duration) {
	t.Helper()
	ctx := context.Background()

	sub, err := s.SubscribeChildren(ctx, "consultRequests/"+doctorID, func(key string, data []byte) {
		go func() {
			time.Sleep(delay)
			var req models.ConsultRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return
			}
			req.Status = status
			s.Write(ctx, "consultRequests/"+doctorID+"/"+key, req)
		}()
	})
	require.NoError(t, err)
	t.Cleanup(sub.Close)
}

func onlineDoctor() models.Doctor {
	return models.Doctor{ID: "doc1", Name: "Dr. Niran", Online: true, FCMToken: "tok-1"}
}

func TestPlaceCallRejectsOfflineDoctor(t *testing.T) {
	s := store.NewMemoryStore()
	notifier := &fakeNotifier{}
	o := NewOrchestrator(consult.NewManager(s), notifier, testPhaseTimeout)

	doctor := onlineDoctor()
	doctor.Online = false

	_, err := o.PlaceCall(context.Background(), doctor, "Somchai", "kiosk")
	assert.ErrorIs(t, err, ErrDoctorOffline)

	// Validation failures write nothing and notify nobody.
	var req models.ConsultRequest
	ok, _ := s.Read(context.Background(), "consultRequests/doc1", &req)
	assert.False(t, ok)
	assert.Zero(t, notifier.count())
}

func TestPlaceCallRejectsDoctorWithoutToken(t *testing.T) {
	s := store.NewMemoryStore()
	o := NewOrchestrator(consult.NewManager(s), &fakeNotifier{}, testPhaseTimeout)

	doctor := onlineDoctor()
	doctor.FCMToken = ""

	_, err := o.PlaceCall(context.Background(), doctor, "Somchai", "kiosk")
	assert.ErrorIs(t, err, ErrNoDeliveryToken)
}

func TestPlaceCallPhaseOneAccepted(t *testing.T) {
	// Scenario: the doctor is watching the request feed directly and
	// accepts within phase 1. No notification goes out.
	s := store.NewMemoryStore()
	notifier := &fakeNotifier{}
	o := NewOrchestrator(consult.NewManager(s), notifier, testPhaseTimeout)

	doctorLeg(t, s, "doc1", models.StatusAccepted, 10*time.Millisecond)

	placement, err := o.PlaceCall(context.Background(), onlineDoctor(), "Somchai", "North Clinic")
	require.NoError(t, err)

	assert.Equal(t, "doc1", placement.DoctorID)
	assert.Equal(t, "Dr. Niran", placement.DoctorName)
	assert.Len(t, placement.RoomID, 6)
	assert.NotEmpty(t, placement.RequestID)
	assert.Zero(t, notifier.count(), "phase 1 acceptance must not trigger a notification")
}

func TestPlaceCallPhaseTwoAccepted(t *testing.T) {
	// Scenario: phase 1 times out, the push notification lands, and the
	// doctor accepts during phase 2. Exactly one notification goes out.
	s := store.NewMemoryStore()
	consults := consult.NewManager(s)

	notifier := &fakeNotifier{}
	notifier.onSend = func() {
		// The notification wakes the doctor, who accepts shortly after.
		doctorLeg(t, s, "doc1", models.StatusAccepted, 10*time.Millisecond)
	}

	o := NewOrchestrator(consults, notifier, testPhaseTimeout)

	placement, err := o.PlaceCall(context.Background(), onlineDoctor(), "Somchai", "kiosk")
	require.NoError(t, err)
	require.NotNil(t, placement)
	assert.Equal(t, 1, notifier.count())
}

func TestPlaceCallBothPhasesTimeout(t *testing.T) {
	// Scenario: nobody answers. One notification, a rejected and closed
	// request, and a single unreachable error for the user.
	s := store.NewMemoryStore()
	consults := consult.NewManager(s)
	notifier := &fakeNotifier{}
	o := NewOrchestrator(consults, notifier, testPhaseTimeout)

	var requestID string
	sub, err := s.SubscribeChildren(context.Background(), "consultRequests/doc1", func(key string, _ []byte) {
		requestID = key
	})
	require.NoError(t, err)
	defer sub.Close()

	_, err = o.PlaceCall(context.Background(), onlineDoctor(), "Somchai", "kiosk")
	assert.ErrorIs(t, err, ErrDoctorUnreachable)
	assert.Equal(t, 1, notifier.count())

	require.NotEmpty(t, requestID)
	req, ok, err := consults.Get(context.Background(), "doc1", requestID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.StatusRejected, req.Status)
	assert.Equal(t, models.RoomClosed, req.RoomState)
}

func TestPlaceCallRejectionIsFinal(t *testing.T) {
	// A phase 1 rejection skips phase 2 entirely: no notification rings a
	// doctor who already said no.
	s := store.NewMemoryStore()
	notifier := &fakeNotifier{}
	o := NewOrchestrator(consult.NewManager(s), notifier, testPhaseTimeout)

	doctorLeg(t, s, "doc1", models.StatusRejected, 10*time.Millisecond)

	_, err := o.PlaceCall(context.Background(), onlineDoctor(), "Somchai", "kiosk")
	assert.ErrorIs(t, err, ErrDoctorUnreachable)
	assert.Zero(t, notifier.count())
}

func TestPlaceCallSuperseded(t *testing.T) {
	// A second attempt cancels the first mid-wait.
	s := store.NewMemoryStore()
	o := NewOrchestrator(consult.NewManager(s), &fakeNotifier{}, time.Second)

	errs := make(chan error, 1)
	go func() {
		_, err := o.PlaceCall(context.Background(), onlineDoctor(), "Somchai", "kiosk")
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	o.Cancel()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("superseded attempt did not return")
	}
}

func TestGenerateRoomCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := GenerateRoomCode()
		require.Len(t, code, roomCodeLength)
		for _, ch := range code {
			assert.Contains(t, codeChars, string(ch))
		}
		seen[code] = true
	}
	// Not a collision proof, just a sanity check the generator varies.
	assert.Greater(t, len(seen), 90)
}
