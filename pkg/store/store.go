package store

import (
	"context"
	"errors"

	"maatje/pkg/domain"
)

// ErrUnavailable signals that no persistence backend is configured or
// reachable. Callers in the chat flow treat persistence as best-effort and
// only log this; the history endpoint maps it to 503.
var ErrUnavailable = errors.New("persistence store unavailable")

// Store defines persistence operations for chat turns, alerts, and profiles.
// Chat turns and alerts are append-only; profiles are read-only here (owned
// by the auth provider).
type Store interface {
	AppendTurn(ctx context.Context, turn domain.ChatTurn) error
	// ListTurns returns turns for a user ordered by timestamp.
	// asc=true yields chronological order (history rendering); asc=false
	// yields newest-first (the history API).
	ListTurns(ctx context.Context, userID string, limit int, asc bool) ([]domain.ChatTurn, error)

	CreateAlert(ctx context.Context, alert domain.AlertRecord) error

	GetProfile(ctx context.Context, userID string) (domain.Profile, bool, error)
}
