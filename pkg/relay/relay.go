package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"maatje/pkg/alert"
	"maatje/pkg/domain"
	"maatje/pkg/store"
)

// DeployedBaseURL is the backend address everywhere except local development.
const DeployedBaseURL = "https://maatjechat.vercel.app"

// FallbackReplies is the fixed set of canned responses used when the
// backend cannot be reached.
var FallbackReplies = []string{
	"Hallo! Ik ben Maatje AI. Mijn verbinding wordt nog geconfigureerd, maar ik luister wel!",
	"Bedankt voor je bericht. Ik kan even niet bij mijn brein, maar ik ben er voor je.",
	"Ik hoor je! Wat kan ik voor je doen terwijl mijn systemen opstarten?",
}

// BaseURLFor maps the host the client runs on to the backend base URL:
// local development resolves to loopback, anything else to the deployed URL.
func BaseURLFor(hostname string) string {
	switch hostname {
	case "localhost", "127.0.0.1", "::1":
		return "http://localhost:3000"
	}
	return DeployedBaseURL
}

// Config wires the relay's collaborators. Only UI is required: without a
// backend the relay degrades to fallback replies, without a store it skips
// persistence and history.
type Config struct {
	BackendURL string
	UI         UI
	Auth       AuthClient
	Store      store.Store
	Notifier   alert.Notifier
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Relay runs the widget's send/receive cycle against the chat backend.
// One send is in flight at a time; the send control stays disabled for the
// cycle's duration.
type Relay struct {
	backendURL string
	ui         UI
	auth       AuthClient
	store      store.Store
	router     *alert.Router
	httpClient *http.Client
	logger     *slog.Logger

	profile *domain.Profile
	userID  string
}

// New constructs a relay.
func New(cfg Config) (*Relay, error) {
	if cfg.UI == nil {
		return nil, fmt.Errorf("relay requires a UI")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// No explicit timeout: the relay relies on transport defaults and
		// the server's own wait budget.
		httpClient = &http.Client{}
	}
	r := &Relay{
		backendURL: strings.TrimRight(cfg.BackendURL, "/"),
		ui:         cfg.UI,
		auth:       cfg.Auth,
		store:      cfg.Store,
		httpClient: httpClient,
		logger:     logger,
	}
	if cfg.Store != nil {
		r.router = alert.NewRouter(cfg.Store, cfg.Notifier, logger)
	}
	return r, nil
}

// Start resolves the session identity, loads the profile and prior history,
// and shows the welcome message when the log is empty. Every step is
// best-effort; a failed lookup never blocks the chat.
func (r *Relay) Start(ctx context.Context) {
	r.userID = resolveIdentity(ctx, r.auth)
	r.loadProfile(ctx)
	rendered := r.loadHistory(ctx)
	if rendered == 0 {
		r.ui.AppendBot(r.welcomeText())
	}
	r.ui.SetSendEnabled(true)
	r.ui.Focus()
}

// UserID returns the identity resolved at Start.
func (r *Relay) UserID() string { return r.userID }

// Send runs one send/receive cycle. Whitespace-only input is never sent.
// The user's message is displayed optimistically before any network
// activity and never rolled back. The send control is re-enabled on every
// exit path, including panics.
func (r *Relay) Send(ctx context.Context, input string) {
	message := strings.TrimSpace(input)
	if message == "" {
		return
	}

	r.ui.AppendUser(message)
	r.ui.SetSendEnabled(false)
	r.ui.SetTyping(true)
	defer func() {
		r.ui.SetTyping(false)
		r.ui.SetSendEnabled(true)
		r.ui.Focus()
	}()

	userID := resolveIdentity(ctx, r.auth)

	var displayed string
	var rawReply string
	reply, err := r.callBackend(ctx, message, userID)
	if err != nil {
		r.logger.Warn("backend unreachable, using fallback reply", "err", err)
		displayed = FallbackReplies[rand.Intn(len(FallbackReplies))]
		r.ui.AppendBot(displayed)
	} else if alert.Detect(reply) {
		rawReply = reply
		displayed = alert.Clean(reply)
		r.ui.AppendBot(displayed)
	} else {
		displayed = reply
		r.ui.AppendBot(displayed)
	}

	// Display first, then persistence, then alert routing. Neither write
	// may hide or delay the reply the user already sees.
	r.persistTurn(ctx, userID, message, displayed)
	if rawReply != "" && r.router != nil {
		if err := r.router.Route(ctx, userID, message, rawReply, r.profile); err != nil {
			r.logger.Error("alert routing failed", "user_id", userID, "err", err)
		}
	}
}

func (r *Relay) callBackend(ctx context.Context, message, userID string) (string, error) {
	if r.backendURL == "" {
		return "", fmt.Errorf("no backend configured")
	}
	payload := map[string]string{
		"message": message,
		"userId":  userID,
	}
	if r.profile != nil && r.profile.FullName != "" {
		payload["userName"] = r.profile.FullName
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.backendURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("backend status %s", resp.Status)
	}
	var out struct {
		Reply   string `json:"reply"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Reply != "" {
		return out.Reply, nil
	}
	return out.Message, nil
}

func (r *Relay) persistTurn(ctx context.Context, userID, message, reply string) {
	if r.store == nil {
		return
	}
	turn := domain.ChatTurn{
		UserID:      userID,
		UserMessage: message,
		BotReply:    reply,
		Timestamp:   time.Now().UTC(),
	}
	if err := r.store.AppendTurn(ctx, turn); err != nil {
		r.logger.Error("persist chat turn failed", "user_id", userID, "err", err)
	}
}

func (r *Relay) loadProfile(ctx context.Context) {
	if r.store == nil || domain.IsAnonymous(r.userID) {
		return
	}
	profile, ok, err := r.store.GetProfile(ctx, r.userID)
	if err != nil {
		r.logger.Warn("profile lookup failed", "user_id", r.userID, "err", err)
		return
	}
	if ok {
		r.profile = &profile
	}
}

// loadHistory renders prior turns oldest-first and returns the number of
// bubbles added.
func (r *Relay) loadHistory(ctx context.Context) int {
	if r.store == nil {
		return 0
	}
	turns, err := r.store.ListTurns(ctx, r.userID, 500, true)
	if err != nil {
		r.logger.Warn("history load failed", "user_id", r.userID, "err", err)
		return 0
	}
	rendered := 0
	for _, turn := range turns {
		if turn.UserMessage != "" {
			r.ui.AppendUser(turn.UserMessage)
			rendered++
		}
		if turn.BotReply != "" {
			r.ui.AppendBot(turn.BotReply)
			rendered++
		}
	}
	return rendered
}

func (r *Relay) welcomeText() string {
	if r.profile != nil && r.profile.FullName != "" {
		return fmt.Sprintf("👋 Hallo %s! Ik ben Maatje AI. Hoe kan ik je helpen?", r.profile.FullName)
	}
	return "👋 Hallo! Ik ben Maatje AI. Hoe kan ik je helpen?"
}
