package util

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"maatje/pkg/domain"
)

// NewID returns a URL-safe hex string ID.
func NewID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// AnonymousID synthesizes a session-local user identifier. Stable only for
// the moment it is generated; callers cache it for the session if needed.
func AnonymousID() string {
	return domain.AnonymousPrefix + strconv.FormatInt(time.Now().UnixMilli(), 10)
}
