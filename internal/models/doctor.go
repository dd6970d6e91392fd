package models

// Doctor merges the per-location directory entry (name, photo, specialty)
// with the live presence record (online flag, device token).
type Doctor struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Specialty []string `json:"specialty"`
	PhotoURL  string   `json:"photoUrl"`
	Online    bool     `json:"online"`
	FCMToken  string   `json:"fcmToken,omitempty"`
}

// DirectoryEntry is the per-location half of a doctor record, stored
// under doctorsByLocation/<locationId>/<doctorId>.
type DirectoryEntry struct {
	Name      string   `json:"name"`
	PhotoURL  string   `json:"photoUrl"`
	Specialty []string `json:"specialty"`
}

// Presence is the live half of a doctor record, stored under
// doctors/<doctorId>. The token is the push-delivery address.
type Presence struct {
	Online   bool   `json:"online"`
	FCMToken string `json:"fcmToken"`
}
