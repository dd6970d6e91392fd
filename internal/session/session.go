// Package session owns the media negotiation inside one room: cleanup on
// entry, the one-shot offer, answer consumption, ICE relay both ways, and
// cleanup on exit so the room is reusable.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/medkiosk/consult-core/internal/models"
	"github.com/medkiosk/consult-core/internal/rtc"
	"github.com/medkiosk/consult-core/internal/store"
)

// Config wires a session's collaborators.
type Config struct {
	Store   store.Store
	Media   rtc.MediaSource
	NewLink rtc.LinkFactory

	// OnRemoteTrack surfaces the doctor's media handle to the renderer.
	OnRemoteTrack func(track rtc.RemoteTrack)

	// OnStatus surfaces a human-readable connection status for the UI.
	OnStatus func(status string)
}

// Session is one occupancy of a room by the caller leg. Create a new
// session per call; a closed session is not restartable.
type Session struct {
	cfg    Config
	roomID string

	mu        sync.Mutex
	state     State
	offerSent bool
	media     rtc.LocalMedia
	link      rtc.PeerLink
	ready     bool
	pending   []models.ICECandidate
	subs      []store.Subscription
	candSeq   int
}

func New(cfg Config, roomID string) *Session {
	return &Session{cfg: cfg, roomID: roomID, state: StateIdle}
}

func (s *Session) path(parts string) string {
	return fmt.Sprintf("rooms/%s/%s", s.roomID, parts)
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition applies an event through the state machine. Illegal events
// are logged and dropped, never allowed to corrupt the session.
func (s *Session) transition(e Event) bool {
	next, ok := Transition(s.state, e)
	if !ok {
		log.Printf("[SESSION] Ignoring event %s in state %s (room %s)", e, s.state, s.roomID)
		return false
	}
	log.Printf("[SESSION] %s -> %s (room %s)", s.state, next, s.roomID)
	s.state = next
	return true
}

// Start enters the room: scrubs stale signaling state, acquires local
// media, creates the peer link, and begins the offer/answer/ICE exchange.
// A media failure is terminal and returned; everything after that runs on
// store callbacks.
func (s *Session) Start(ctx context.Context) error {
	log.Printf("[INIT] Entering room %s, clearing stale signaling state", s.roomID)
	// Offer, answer and candidates from the previous occupancy must not
	// leak into this call. The callee-ready flag is owned by the doctor's
	// side and is left alone.
	for _, leaf := range []string{"offer", "answer", "candidates"} {
		if err := s.cfg.Store.Delete(ctx, s.path(leaf)); err != nil {
			log.Printf("[CLEANUP] Failed to clear %s: %v", leaf, err)
		}
	}

	media, err := s.cfg.Media.Acquire(ctx)
	if err != nil {
		s.mu.Lock()
		s.transition(EventClosed)
		s.mu.Unlock()
		return fmt.Errorf("failed to acquire local media: %w", err)
	}

	link, err := s.cfg.NewLink()
	if err != nil {
		media.Close()
		s.mu.Lock()
		s.transition(EventClosed)
		s.mu.Unlock()
		return fmt.Errorf("failed to create peer link: %w", err)
	}

	if err := link.AttachMedia(media); err != nil {
		media.Close()
		link.Close()
		s.mu.Lock()
		s.transition(EventClosed)
		s.mu.Unlock()
		return fmt.Errorf("failed to attach local media: %w", err)
	}

	s.mu.Lock()
	s.media = media
	s.transition(EventMediaAcquired)
	s.link = link
	s.offerSent = false
	s.transition(EventLinkCreated)
	s.mu.Unlock()

	link.OnCandidate(func(c models.ICECandidate) {
		s.relayCandidate(ctx, c)
	})
	link.OnRemoteTrack(func(track rtc.RemoteTrack) {
		log.Printf("[TRACK] Remote media received (room %s)", s.roomID)
		if s.cfg.OnRemoteTrack != nil {
			s.cfg.OnRemoteTrack(track)
		}
	})
	link.OnStateChange(func(state rtc.TransportState) {
		s.handleTransportState(state)
	})

	if err := s.watchRoom(ctx); err != nil {
		s.Leave(ctx)
		return err
	}
	return nil
}

// watchRoom installs the three store watches the exchange runs on.
func (s *Session) watchRoom(ctx context.Context) error {
	readySub, err := s.cfg.Store.Subscribe(ctx, s.path("calleeReady"), func(data []byte) {
		var ready bool
		if data != nil {
			if err := json.Unmarshal(data, &ready); err != nil {
				log.Printf("[SIGNAL] Bad calleeReady payload: %v", err)
				return
			}
		}
		log.Printf("[SIGNAL] calleeReady -> %v (room %s)", ready, s.roomID)
		s.mu.Lock()
		s.ready = ready
		s.mu.Unlock()
		if ready {
			s.maybeSendOffer(ctx)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to watch callee readiness: %w", err)
	}

	answerSub, err := s.cfg.Store.Subscribe(ctx, s.path("answer"), func(data []byte) {
		if data == nil {
			return
		}
		var answer models.SessionDescription
		if err := json.Unmarshal(data, &answer); err != nil {
			log.Printf("[SIGNAL] Bad answer payload: %v", err)
			return
		}
		s.applyAnswer(answer)
	})
	if err != nil {
		readySub.Close()
		return fmt.Errorf("failed to watch answer: %w", err)
	}

	calleeCands := s.path("candidates/" + string(models.RoleCallee))
	candSub, err := s.cfg.Store.SubscribeChildren(ctx, calleeCands, func(key string, data []byte) {
		var cand models.ICECandidate
		if err := json.Unmarshal(data, &cand); err != nil {
			log.Printf("[ICE] Bad candidate payload %s: %v", key, err)
			return
		}
		s.acceptCandidate(cand)
	})
	if err != nil {
		readySub.Close()
		answerSub.Close()
		return fmt.Errorf("failed to watch remote candidates: %w", err)
	}

	s.mu.Lock()
	s.subs = append(s.subs, readySub, answerSub, candSub)
	s.mu.Unlock()
	return nil
}

// maybeSendOffer creates and stores the offer when every precondition
// holds: the callee signaled readiness, the link has nothing in flight,
// and this session has not offered before. The one-shot flag resets only
// at session entry, so a session can never put a second offer in the room.
func (s *Session) maybeSendOffer(ctx context.Context) {
	s.mu.Lock()
	link := s.link
	if link == nil || !s.ready || s.offerSent || s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	if !link.NegotiationIdle() {
		log.Printf("[OFFER] Skip - negotiation not idle (room %s)", s.roomID)
		s.mu.Unlock()
		return
	}
	// Claim the one-shot slot before the store write so a second
	// readiness event cannot race a duplicate offer.
	s.offerSent = true
	s.mu.Unlock()

	offer, err := link.CreateOffer(ctx)
	if err != nil {
		log.Printf("[OFFER] createOffer failed: %v", err)
		s.mu.Lock()
		s.offerSent = false
		s.mu.Unlock()
		return
	}

	if err := s.cfg.Store.Write(ctx, s.path("offer"), offer); err != nil {
		log.Printf("[OFFER] Failed to store offer: %v", err)
		return
	}
	log.Printf("[OFFER] Offer stored (room %s)", s.roomID)

	s.mu.Lock()
	s.transition(EventOfferSent)
	s.mu.Unlock()
}

// applyAnswer installs the answer at most once. The store may fire the
// watch repeatedly with the same value; only the first application wins.
func (s *Session) applyAnswer(answer models.SessionDescription) {
	s.mu.Lock()
	link := s.link
	s.mu.Unlock()
	if link == nil {
		return
	}
	if link.HasRemoteDescription() {
		log.Printf("[SIGNAL] Ignoring duplicate answer (room %s)", s.roomID)
		return
	}

	if err := link.SetAnswer(answer); err != nil {
		log.Printf("[SIGNAL] setRemoteDescription error: %v", err)
		return
	}
	log.Printf("[SIGNAL] Answer applied (room %s)", s.roomID)

	s.flushPending(link)
}

// acceptCandidate applies a remote candidate, or buffers it until the
// answer lands. Candidates racing the description exchange are expected;
// an add error is logged and the session carries on.
func (s *Session) acceptCandidate(cand models.ICECandidate) {
	s.mu.Lock()
	link := s.link
	if link == nil {
		s.mu.Unlock()
		return
	}
	if !link.HasRemoteDescription() {
		s.pending = append(s.pending, cand)
		s.mu.Unlock()
		log.Printf("[ICE] Buffered candidate, no remote description yet (room %s)", s.roomID)
		return
	}
	s.mu.Unlock()

	if err := link.AddCandidate(cand); err != nil {
		log.Printf("[ICE] addIceCandidate error: %v", err)
	}
}

// flushPending applies buffered candidates in arrival order.
func (s *Session) flushPending(link rtc.PeerLink) {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, cand := range pending {
		if err := link.AddCandidate(cand); err != nil {
			log.Printf("[ICE] addIceCandidate error on flush: %v", err)
		}
	}
	if len(pending) > 0 {
		log.Printf("[ICE] Flushed %d buffered candidates (room %s)", len(pending), s.roomID)
	}
}

// relayCandidate writes a locally gathered candidate under this leg's
// role so the doctor's side can pick it up.
func (s *Session) relayCandidate(ctx context.Context, cand models.ICECandidate) {
	s.mu.Lock()
	s.candSeq++
	key := fmt.Sprintf("%d-%04d", time.Now().UnixMilli(), s.candSeq)
	s.mu.Unlock()

	path := s.path(fmt.Sprintf("candidates/%s/%s", models.RoleCaller, key))
	if err := s.cfg.Store.Write(ctx, path, cand); err != nil {
		log.Printf("[ICE] Failed to relay local candidate: %v", err)
	}
}

func (s *Session) handleTransportState(state rtc.TransportState) {
	log.Printf("[PC] connectionState -> %s (room %s)", state, s.roomID)

	if state == rtc.TransportConnected {
		s.mu.Lock()
		s.transition(EventMediaFlowing)
		s.mu.Unlock()
	}

	if s.cfg.OnStatus != nil {
		s.cfg.OnStatus(humanStatus(state))
	}
}

// humanStatus maps transport states to what the patient should read.
func humanStatus(state rtc.TransportState) string {
	switch state {
	case rtc.TransportConnected:
		return "In consultation"
	case rtc.TransportDisconnected:
		return "Connection interrupted, reconnecting"
	case rtc.TransportFailed:
		return "Connection lost"
	case rtc.TransportClosed:
		return "Call ended"
	default:
		return "Connecting to doctor"
	}
}

// Leave exits the room: stops local capture, closes the peer link, drops
// every store watch, and scrubs the signaling state so the room can host
// the next call. Safe to call more than once.
func (s *Session) Leave(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.transition(EventClosed)
	media := s.media
	link := s.link
	subs := s.subs
	s.media = nil
	s.link = nil
	s.subs = nil
	s.pending = nil
	s.mu.Unlock()

	log.Printf("[LEAVE] Leaving room %s", s.roomID)

	for _, sub := range subs {
		sub.Close()
	}
	if media != nil {
		if err := media.Close(); err != nil {
			log.Printf("[LEAVE] Failed to stop local media: %v", err)
		}
	}
	if link != nil {
		if err := link.Close(); err != nil {
			log.Printf("[LEAVE] Failed to close peer link: %v", err)
		}
	}

	// Same scrub as on entry; the callee-ready flag stays so the doctor
	// can flag readiness for a future call without re-setting it.
	for _, leaf := range []string{"offer", "answer", "candidates"} {
		if err := s.cfg.Store.Delete(ctx, s.path(leaf)); err != nil {
			log.Printf("[CLEANUP] Failed to clear %s: %v", leaf, err)
		}
	}
	log.Printf("[LEAVE] Cleanup done (room %s)", s.roomID)
}
