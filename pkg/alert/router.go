package alert

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"maatje/pkg/domain"
	"maatje/pkg/store"
)

// FallbackRecipient receives alerts for users without a caretaker on file.
const FallbackRecipient = "begeleiding@abrona.nl"

// Notifier delivers an out-of-band caretaker notification for a new alert.
// Implementations are best-effort: the router logs failures and moves on.
type Notifier interface {
	NotifyAlert(ctx context.Context, alert domain.AlertRecord) error
}

// Router writes silent alert records and notifies caretakers. Callers invoke
// Route at most once per detected reply; the router itself does not dedupe.
type Router struct {
	store    store.Store
	notifier Notifier
	logger   *slog.Logger
}

// NewRouter builds a router. notifier may be nil when no broker is configured.
func NewRouter(s store.Store, notifier Notifier, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{store: s, notifier: notifier, logger: logger}
}

// Route persists exactly one AlertRecord for the exchange and best-effort
// publishes a caretaker notification. rawReply is the unstripped assistant
// text including the marker. The recipient comes from the profile's caretaker
// email when present, the fixed fallback address otherwise.
func (r *Router) Route(ctx context.Context, userID, userMessage, rawReply string, profile *domain.Profile) error {
	recipient := FallbackRecipient
	if profile != nil && strings.TrimSpace(profile.CaretakerEmail) != "" {
		recipient = profile.CaretakerEmail
	}
	record := domain.AlertRecord{
		UserID:         userID,
		UserMessage:    userMessage,
		AIResponse:     rawReply,
		Status:         domain.AlertOpen,
		CaretakerEmail: recipient,
		CreatedAt:      time.Now().UTC(),
	}
	if r.store == nil {
		return store.ErrUnavailable
	}
	if err := r.store.CreateAlert(ctx, record); err != nil {
		return err
	}
	r.logger.Info("silent alert recorded", "user_id", userID, "recipient", recipient)

	if r.notifier != nil {
		if err := r.notifier.NotifyAlert(ctx, record); err != nil {
			r.logger.Error("caretaker notification failed", "user_id", userID, "err", err)
		}
	}
	return nil
}
