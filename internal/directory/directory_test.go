package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medkiosk/consult-core/internal/models"
	"github.com/medkiosk/consult-core/internal/store"
)

func seedDirectory(t *testing.T, s *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "doctorsByLocation/loc1", map[string]models.DirectoryEntry{
		"doc1": {Name: "Dr. Niran", PhotoURL: "https://example.com/niran.jpg", Specialty: []string{"Neurology"}},
		"doc2": {Name: "Dr. Waan"},
	}))
	require.NoError(t, s.Write(ctx, "doctors/doc1", models.Presence{Online: true, FCMToken: "tok-1"}))
	// doc2 has no presence record at all.
}

func TestDoctorsByLocationMergesPresence(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedDirectory(t, s)

	doctors, err := New(s).DoctorsByLocation(ctx, "loc1")
	require.NoError(t, err)
	require.Len(t, doctors, 2)

	assert.Equal(t, "doc1", doctors[0].ID)
	assert.Equal(t, "Dr. Niran", doctors[0].Name)
	assert.True(t, doctors[0].Online)
	assert.Equal(t, "tok-1", doctors[0].FCMToken)
	assert.Equal(t, []string{"Neurology"}, doctors[0].Specialty)

	// Missing presence means offline with no token; missing directory
	// fields get defaults.
	assert.Equal(t, "doc2", doctors[1].ID)
	assert.False(t, doctors[1].Online)
	assert.Empty(t, doctors[1].FCMToken)
	assert.NotEmpty(t, doctors[1].PhotoURL)
	assert.Empty(t, doctors[1].Specialty)
}

func TestDoctorsByLocationUnknownLocation(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	doctors, err := New(s).DoctorsByLocation(ctx, "nowhere")
	require.NoError(t, err)
	assert.Empty(t, doctors)
}

func TestDoctorLookup(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedDirectory(t, s)

	doc, found, err := New(s).Doctor(ctx, "loc1", "doc1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Dr. Niran", doc.Name)

	_, found, err = New(s).Doctor(ctx, "loc1", "ghost")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWatchDoctorsRefreshesOnPresenceChange(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedDirectory(t, s)

	var latest []models.Doctor
	calls := 0
	sub, err := New(s).WatchDoctors(ctx, "loc1", func(doctors []models.Doctor) {
		latest = doctors
		calls++
	})
	require.NoError(t, err)
	defer sub.Close()

	require.Greater(t, calls, 0)
	require.Len(t, latest, 2)
	assert.False(t, latest[1].Online)

	// doc2 comes online.
	require.NoError(t, s.Write(ctx, "doctors/doc2", models.Presence{Online: true, FCMToken: "tok-2"}))
	require.Len(t, latest, 2)
	assert.True(t, latest[1].Online)
	assert.Equal(t, "tok-2", latest[1].FCMToken)
}
