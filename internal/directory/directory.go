// Package directory serves the doctor listing a kiosk shows: the static
// per-location entries merged with live presence and delivery tokens.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/medkiosk/consult-core/internal/models"
	"github.com/medkiosk/consult-core/internal/store"
)

const placeholderPhoto = "https://via.placeholder.com/80"

// Directory reads doctor records from the signaling store.
type Directory struct {
	store store.Store
}

func New(s store.Store) *Directory {
	return &Directory{store: s}
}

// Doctor returns one doctor's merged record.
func (d *Directory) Doctor(ctx context.Context, locationID, doctorID string) (models.Doctor, bool, error) {
	doctors, err := d.DoctorsByLocation(ctx, locationID)
	if err != nil {
		return models.Doctor{}, false, err
	}
	for _, doc := range doctors {
		if doc.ID == doctorID {
			return doc, true, nil
		}
	}
	return models.Doctor{}, false, nil
}

// DoctorsByLocation merges doctorsByLocation/<locationId> (name, photo,
// specialty) with each doctor's presence record (online, token), sorted
// by ID for a stable listing.
func (d *Directory) DoctorsByLocation(ctx context.Context, locationID string) ([]models.Doctor, error) {
	var entries map[string]models.DirectoryEntry
	ok, err := d.store.Read(ctx, "doctorsByLocation/"+locationID, &entries)
	if err != nil {
		return nil, fmt.Errorf("failed to read location directory: %w", err)
	}
	if !ok {
		return nil, nil
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	doctors := make([]models.Doctor, 0, len(ids))
	for _, id := range ids {
		entry := entries[id]

		doc := models.Doctor{
			ID:        id,
			Name:      entry.Name,
			PhotoURL:  entry.PhotoURL,
			Specialty: entry.Specialty,
		}
		if doc.Name == "" {
			doc.Name = "Unknown"
		}
		if doc.PhotoURL == "" {
			doc.PhotoURL = placeholderPhoto
		}
		if doc.Specialty == nil {
			doc.Specialty = []string{}
		}

		var presence models.Presence
		if found, err := d.store.Read(ctx, "doctors/"+id, &presence); err != nil {
			log.Printf("Failed to read presence for doctor %s: %v", id, err)
		} else if found {
			doc.Online = presence.Online
			doc.FCMToken = presence.FCMToken
		}

		doctors = append(doctors, doc)
	}
	return doctors, nil
}

// WatchDoctors re-reads the merged listing whenever the location
// directory or any listed doctor's presence record changes, and hands the
// fresh listing to fn. Presence watches follow the doctor set: doctors
// added to the location gain a watch, removed ones lose theirs.
func (d *Directory) WatchDoctors(ctx context.Context, locationID string, fn func(doctors []models.Doctor)) (store.Subscription, error) {
	w := &directoryWatch{
		dir:        d,
		ctx:        ctx,
		locationID: locationID,
		fn:         fn,
		presence:   make(map[string]store.Subscription),
	}

	locSub, err := d.store.Subscribe(ctx, "doctorsByLocation/"+locationID, func(data []byte) {
		w.syncPresenceWatches(data)
		w.refresh()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch location directory: %w", err)
	}
	w.locSub = locSub
	return w, nil
}

type directoryWatch struct {
	dir        *Directory
	ctx        context.Context
	locationID string
	fn         func(doctors []models.Doctor)

	mu       sync.Mutex
	closed   bool
	locSub   store.Subscription
	presence map[string]store.Subscription
	// suppress gates the refresh storm while presence watches replay
	// their current values during a sync.
	suppress bool
}

func (w *directoryWatch) refresh() {
	w.mu.Lock()
	skip := w.closed || w.suppress
	w.mu.Unlock()
	if skip {
		return
	}

	doctors, err := w.dir.DoctorsByLocation(w.ctx, w.locationID)
	if err != nil {
		log.Printf("Failed to refresh doctor list for %s: %v", w.locationID, err)
		return
	}
	w.fn(doctors)
}

// syncPresenceWatches reconciles the per-doctor presence watches against
// the current location membership.
func (w *directoryWatch) syncPresenceWatches(data []byte) {
	var entries map[string]models.DirectoryEntry
	if data != nil {
		if err := json.Unmarshal(data, &entries); err != nil {
			log.Printf("Bad location directory payload for %s: %v", w.locationID, err)
			return
		}
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	var stale []store.Subscription
	for id, sub := range w.presence {
		if _, ok := entries[id]; !ok {
			stale = append(stale, sub)
			delete(w.presence, id)
		}
	}
	var added []string
	for id := range entries {
		if _, ok := w.presence[id]; !ok {
			added = append(added, id)
		}
	}
	w.suppress = true
	w.mu.Unlock()

	for _, sub := range stale {
		sub.Close()
	}
	for _, id := range added {
		sub, err := w.dir.store.Subscribe(w.ctx, "doctors/"+id, func([]byte) {
			w.refresh()
		})
		if err != nil {
			log.Printf("Failed to watch presence for doctor %s: %v", id, err)
			continue
		}
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			sub.Close()
			continue
		}
		w.presence[id] = sub
		w.mu.Unlock()
	}

	w.mu.Lock()
	w.suppress = false
	w.mu.Unlock()
}

func (w *directoryWatch) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	subs := make([]store.Subscription, 0, len(w.presence)+1)
	subs = append(subs, w.locSub)
	for _, sub := range w.presence {
		subs = append(subs, sub)
	}
	w.presence = nil
	w.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
