package domain

import (
	"strings"
	"time"
)

// AlertStatus tracks the lifecycle of a silent alert.
// Records are always created open; closing happens out of band.
type AlertStatus string

const (
	AlertOpen   AlertStatus = "open"
	AlertClosed AlertStatus = "closed"
)

// AnonymousPrefix marks locally synthesized user identifiers.
const AnonymousPrefix = "anonymous_"

// ChatTurn is one user/assistant exchange. Append-only: turns are never
// updated or deleted after being written.
type ChatTurn struct {
	UserID      string    `json:"user_id"`
	UserMessage string    `json:"user_message"`
	BotReply    string    `json:"bot_reply"`
	Timestamp   time.Time `json:"timestamp"`
}

// AlertRecord is one flagged exchange addressed to a caretaker.
// AIResponse holds the raw assistant reply including the sentinel marker.
type AlertRecord struct {
	UserID         string      `json:"user_id"`
	UserMessage    string      `json:"user_message"`
	AIResponse     string      `json:"ai_response"`
	Status         AlertStatus `json:"status"`
	CaretakerEmail string      `json:"caretaker_email"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Profile is the read-only per-user record owned by the auth provider.
// Used only to personalize greetings and to pick the alert recipient.
type Profile struct {
	ID             string `json:"id"`
	FullName       string `json:"full_name"`
	CaretakerEmail string `json:"caretaker_email"`
}

// IsAnonymous reports whether the identifier was synthesized locally
// rather than issued by the auth provider.
func IsAnonymous(userID string) bool {
	return strings.HasPrefix(userID, AnonymousPrefix)
}
