package ledger

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewRequestID returns a 16 character hex token drawn from a version 4 UUID.
// Sixty of its bits are random, so the probability of any collision among
// n ids is roughly n²/2⁶¹ (about 4e-7 after a million requests).
func NewRequestID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}
