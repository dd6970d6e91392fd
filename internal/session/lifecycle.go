package session

import (
	"context"
	"log"
	"sync"

	"github.com/medkiosk/consult-core/internal/consult"
	"github.com/medkiosk/consult-core/internal/models"
	"github.com/medkiosk/consult-core/internal/store"
)

// LifecycleController watches a consult request's room state and tears
// the active session down when either side closes the room. It never
// writes room state itself; closing is owned by whichever leg hangs up.
type LifecycleController struct {
	sub   store.Subscription
	ended sync.Once
}

// WatchLifecycle starts watching the request behind an active session.
// onOpen fires when the doctor opens the room (the UI switches views; the
// session itself is started by the caller). onEnded fires exactly once
// when the room closes, after the session has been torn down, no matter
// how many closed notifications the store delivers.
func WatchLifecycle(ctx context.Context, consults *consult.Manager, calleeID, requestID string,
	sess *Session, onOpen func(), onEnded func()) (*LifecycleController, error) {

	c := &LifecycleController{}

	sub, err := consults.WatchRoomState(ctx, calleeID, requestID, func(state models.RoomState) {
		switch state {
		case models.RoomOpen:
			log.Printf("Room opened for request %s", requestID)
			if onOpen != nil {
				onOpen()
			}
		case models.RoomClosed:
			c.ended.Do(func() {
				log.Printf("Room closed for request %s, ending session", requestID)
				if sess != nil {
					sess.Leave(ctx)
				}
				if onEnded != nil {
					onEnded()
				}
			})
		}
	})
	if err != nil {
		return nil, err
	}

	c.sub = sub
	return c, nil
}

// Close stops watching. Idempotent.
func (c *LifecycleController) Close() {
	if c.sub != nil {
		c.sub.Close()
	}
}
