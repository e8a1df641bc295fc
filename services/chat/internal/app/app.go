package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"maatje/pkg/assistant"
	"maatje/pkg/domain"
	"maatje/pkg/store"
)

// Config holds runtime configuration for the orchestration core.
type Config struct {
	AssistantAPIKey  string
	AssistantID      string
	AssistantBaseURL string // optional override, used by tests

	DatabaseURL string
	Store       store.Store // takes precedence over DatabaseURL when set

	Threads assistant.ThreadStore // nil means in-memory

	PollInterval time.Duration
	WaitBudget   time.Duration

	Logger *slog.Logger
}

// App drives one chat exchange end to end: session, run, reply, persistence.
type App struct {
	client      *assistant.Client
	runner      *assistant.Runner
	sessions    *assistant.SessionManager
	store       store.Store
	assistantID string
	logger      *slog.Logger

	writes sync.WaitGroup
}

// New constructs the application. Missing provider credentials do not fail
// construction: the app comes up degraded and Chat returns ErrNotConfigured
// until credentials are supplied.
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dataStore := cfg.Store
	if dataStore == nil && cfg.DatabaseURL != "" {
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	if dataStore == nil {
		logger.Warn("no persistence store configured, chat history is disabled")
	}

	a := &App{
		store:       dataStore,
		assistantID: strings.TrimSpace(cfg.AssistantID),
		logger:      logger,
	}

	if strings.TrimSpace(cfg.AssistantAPIKey) == "" || a.assistantID == "" {
		logger.Error("assistant credentials missing, running degraded")
		return a, nil
	}

	client, err := assistant.NewClient(cfg.AssistantAPIKey)
	if err != nil {
		return nil, err
	}
	if cfg.AssistantBaseURL != "" {
		client = client.WithBaseURL(cfg.AssistantBaseURL)
	}
	a.client = client
	a.runner = assistant.NewRunner(client, cfg.PollInterval, cfg.WaitBudget)
	a.sessions = assistant.NewSessionManager(client, cfg.Threads)
	return a, nil
}

// CheckAssistant verifies credentials by fetching the assistant once.
// Called at startup; failures are reported, not fatal.
func (a *App) CheckAssistant(ctx context.Context) (assistant.Assistant, error) {
	if a.client == nil {
		return assistant.Assistant{}, ErrNotConfigured
	}
	return a.client.RetrieveAssistant(ctx, a.assistantID)
}

// HasStore reports whether a persistence backend is configured.
func (a *App) HasStore() bool { return a.store != nil }

// Chat relays one user message through the assistant and returns the reply.
//
// The turn is persisted best-effort in the background; persistence failure
// never reaches the caller. Provider failures and timeouts surface wrapped
// in ErrProcessing.
func (a *App) Chat(ctx context.Context, userID, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyMessage
	}
	if a.client == nil {
		return "", fmt.Errorf("%w: %w", ErrProcessing, ErrNotConfigured)
	}
	if userID == "" {
		userID = domain.AnonymousPrefix + "unknown"
	}

	threadID, err := a.sessions.ThreadFor(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	if err := a.client.AddMessage(ctx, threadID, message); err != nil {
		return "", fmt.Errorf("%w: send message: %w", ErrProcessing, err)
	}
	run, err := a.client.CreateRun(ctx, threadID, a.assistantID)
	if err != nil {
		return "", fmt.Errorf("%w: start run: %w", ErrProcessing, err)
	}
	if err := a.runner.WaitForRun(ctx, threadID, run); err != nil {
		return "", fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	reply, err := a.client.LatestAssistantMessage(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("%w: fetch reply: %w", ErrProcessing, err)
	}

	a.persistTurn(domain.ChatTurn{
		UserID:      userID,
		UserMessage: message,
		BotReply:    reply,
		Timestamp:   time.Now().UTC(),
	})
	return reply, nil
}

// History returns a user's turns newest-first.
func (a *App) History(ctx context.Context, userID string, limit int) ([]domain.ChatTurn, error) {
	if a.store == nil {
		return nil, store.ErrUnavailable
	}
	return a.store.ListTurns(ctx, userID, limit, false)
}

// persistTurn writes the turn as a detached best-effort task: the write
// must never block or fail the reply that has already been produced.
func (a *App) persistTurn(turn domain.ChatTurn) {
	if a.store == nil {
		return
	}
	a.writes.Add(1)
	go func() {
		defer a.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.store.AppendTurn(ctx, turn); err != nil {
			a.logger.Error("persist chat turn failed", "user_id", turn.UserID, "err", err)
		}
	}()
}

// Close drains pending best-effort writes. Used on graceful shutdown.
func (a *App) Close() {
	a.writes.Wait()
}
