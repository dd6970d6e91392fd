package call

import (
	"crypto/rand"
	"math/big"
)

const (
	roomCodeLength = 6
	codeChars      = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // Removed ambiguous chars
)

// GenerateRoomCode generates a short room ID a human could read over the
// phone. Collisions are accepted as negligible for the handful of rooms
// a clinic runs at once.
func GenerateRoomCode() string {
	code := make([]byte, roomCodeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		code[i] = codeChars[n.Int64()]
	}
	return string(code)
}
