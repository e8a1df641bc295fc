package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"maatje/pkg/domain"
	"maatje/pkg/store"
)

// fakeUI records every relay-driven UI event in order.
type fakeUI struct {
	mu          sync.Mutex
	events      []string
	sendEnabled bool
	typing      bool
}

func (u *fakeUI) record(event string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.events = append(u.events, event)
}

func (u *fakeUI) AppendUser(text string) { u.record("user:" + text) }
func (u *fakeUI) AppendBot(text string)  { u.record("bot:" + text) }
func (u *fakeUI) SetTyping(active bool) {
	u.mu.Lock()
	u.typing = active
	u.mu.Unlock()
	if active {
		u.record("typing:on")
	} else {
		u.record("typing:off")
	}
}
func (u *fakeUI) SetSendEnabled(enabled bool) {
	u.mu.Lock()
	u.sendEnabled = enabled
	u.mu.Unlock()
	if enabled {
		u.record("send:on")
	} else {
		u.record("send:off")
	}
}
func (u *fakeUI) Focus() { u.record("focus") }

func (u *fakeUI) bubbles() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	var out []string
	for _, e := range u.events {
		if strings.HasPrefix(e, "user:") || strings.HasPrefix(e, "bot:") {
			out = append(out, e)
		}
	}
	return out
}

type staticAuth struct {
	id  string
	err error
}

func (a staticAuth) CurrentUserID(context.Context) (string, error) { return a.id, a.err }

func chatBackend(t *testing.T, reply string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "boom", "details": "x"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": reply})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRelay(t *testing.T, backendURL string, s store.Store, auth AuthClient) (*Relay, *fakeUI) {
	t.Helper()
	ui := &fakeUI{}
	r, err := New(Config{
		BackendURL: backendURL,
		UI:         ui,
		Auth:       auth,
		Store:      s,
	})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	return r, ui
}

func TestSendHappyPath(t *testing.T) {
	// Scenario A: "Hallo" in, "Hoi! Hoe gaat het?" out, one turn persisted.
	backend := chatBackend(t, "Hoi! Hoe gaat het?", http.StatusOK)
	s := store.NewMemoryStore()
	r, ui := newTestRelay(t, backend.URL, s, staticAuth{id: "user-1"})

	r.Send(context.Background(), "Hallo")

	bubbles := ui.bubbles()
	want := []string{"user:Hallo", "bot:Hoi! Hoe gaat het?"}
	if !slices.Equal(bubbles, want) {
		t.Fatalf("bubbles = %v, want %v", bubbles, want)
	}
	turns, err := s.ListTurns(context.Background(), "user-1", 50, true)
	if err != nil || len(turns) != 1 {
		t.Fatalf("expected 1 persisted turn, got %d (err %v)", len(turns), err)
	}
	if turns[0].UserMessage != "Hallo" || turns[0].BotReply != "Hoi! Hoe gaat het?" {
		t.Fatalf("persisted turn mismatch: %+v", turns[0])
	}
	if len(s.Alerts()) != 0 {
		t.Fatalf("plain reply must not create alerts")
	}
}

func TestSendOptimisticDisplayPrecedesNetwork(t *testing.T) {
	var sawRequest atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawRequest.Store(true)
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "ok"})
	}))
	t.Cleanup(srv.Close)

	ui := &fakeUI{}
	r, err := New(Config{BackendURL: srv.URL, UI: ui})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	r.Send(context.Background(), "  Hallo  ")

	// The trimmed user bubble is the very first event, before typing and
	// before the request went out.
	ui.mu.Lock()
	first := ui.events[0]
	ui.mu.Unlock()
	if first != "user:Hallo" {
		t.Fatalf("first event = %q, want optimistic user bubble", first)
	}
	if !sawRequest.Load() {
		t.Fatalf("backend was never called")
	}
}

func TestWhitespaceOnlyNeverSent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(srv.Close)

	r, ui := newTestRelay(t, srv.URL, store.NewMemoryStore(), nil)
	r.Send(context.Background(), "   \n\t ")

	if calls.Load() != 0 {
		t.Fatalf("whitespace-only input must not reach the network")
	}
	if len(ui.bubbles()) != 0 {
		t.Fatalf("whitespace-only input must not be displayed")
	}
}

func TestSendFallbackOnBackendError(t *testing.T) {
	// Scenario B: backend down, canned reply, no alert, send re-enabled.
	backend := chatBackend(t, "", http.StatusInternalServerError)
	s := store.NewMemoryStore()
	r, ui := newTestRelay(t, backend.URL, s, staticAuth{id: "user-1"})

	r.Send(context.Background(), "test")

	bubbles := ui.bubbles()
	if len(bubbles) != 2 {
		t.Fatalf("expected user + fallback bubble, got %v", bubbles)
	}
	got := strings.TrimPrefix(bubbles[1], "bot:")
	if !slices.Contains(FallbackReplies, got) {
		t.Fatalf("reply %q is not from the fallback set", got)
	}
	if len(s.Alerts()) != 0 {
		t.Fatalf("fallback path must never create alerts")
	}
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if !ui.sendEnabled {
		t.Fatalf("send control must be re-enabled after failure")
	}
	if ui.typing {
		t.Fatalf("typing indicator must be removed after failure")
	}
}

func TestSendFallbackOnUnreachableBackend(t *testing.T) {
	r, ui := newTestRelay(t, "http://127.0.0.1:1", store.NewMemoryStore(), nil)
	r.Send(context.Background(), "test")

	bubbles := ui.bubbles()
	if len(bubbles) != 2 {
		t.Fatalf("expected user + fallback bubble, got %v", bubbles)
	}
	got := strings.TrimPrefix(bubbles[1], "bot:")
	if !slices.Contains(FallbackReplies, got) {
		t.Fatalf("reply %q is not from the fallback set", got)
	}
}

func TestSendAlertFlow(t *testing.T) {
	// Scenario C: sentinel reply is cleaned for display and routed raw.
	raw := "[ALERT]Ik maak me zorgen||Kun je hulp zoeken?"
	backend := chatBackend(t, raw, http.StatusOK)
	s := store.NewMemoryStore()
	r, ui := newTestRelay(t, backend.URL, s, staticAuth{id: "user-1"})

	r.Send(context.Background(), "ik voel me somber")

	bubbles := ui.bubbles()
	wantShown := "Ik maak me zorgen\n\nKun je hulp zoeken?"
	if bubbles[1] != "bot:"+wantShown {
		t.Fatalf("displayed %q, want cleaned text %q", bubbles[1], wantShown)
	}

	alerts := s.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(alerts))
	}
	if alerts[0].AIResponse != raw {
		t.Fatalf("alert must keep raw reply, got %q", alerts[0].AIResponse)
	}
	if alerts[0].Status != domain.AlertOpen {
		t.Fatalf("alert status = %q, want open", alerts[0].Status)
	}
	if alerts[0].UserMessage != "ik voel me somber" {
		t.Fatalf("alert user message = %q", alerts[0].UserMessage)
	}

	// The persisted turn holds the cleaned text the user saw.
	turns, _ := s.ListTurns(context.Background(), "user-1", 50, true)
	if len(turns) != 1 || turns[0].BotReply != wantShown {
		t.Fatalf("persisted turn must hold cleaned reply, got %+v", turns)
	}
}

func TestAnonymousIdentityFallback(t *testing.T) {
	// Scenario E: identity lookup fails, identifier gets the fixed prefix.
	backend := chatBackend(t, "ok", http.StatusOK)
	s := store.NewMemoryStore()
	r, _ := newTestRelay(t, backend.URL, s, staticAuth{err: errors.New("no session")})

	r.Send(context.Background(), "Hallo")

	turns := s.Turns()
	if len(turns) != 1 {
		t.Fatalf("expected one persisted turn, got %d", len(turns))
	}
	if !domain.IsAnonymous(turns[0].UserID) || turns[0].UserID == domain.AnonymousPrefix {
		t.Fatalf("expected non-empty anonymous id, got %q", turns[0].UserID)
	}
}

func TestStartRendersHistoryAndSuppressesWelcome(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	_ = s.AppendTurn(ctx, domain.ChatTurn{UserID: "user-1", UserMessage: "eerste", BotReply: "antwoord een"})
	_ = s.AppendTurn(ctx, domain.ChatTurn{UserID: "user-1", UserMessage: "tweede", BotReply: "antwoord twee"})

	r, ui := newTestRelay(t, "", s, staticAuth{id: "user-1"})
	r.Start(ctx)

	bubbles := ui.bubbles()
	want := []string{"user:eerste", "bot:antwoord een", "user:tweede", "bot:antwoord twee"}
	if !slices.Equal(bubbles, want) {
		t.Fatalf("history render = %v, want %v", bubbles, want)
	}

	// Loading again yields the same ordered sequence.
	r2, ui2 := newTestRelay(t, "", s, staticAuth{id: "user-1"})
	r2.Start(ctx)
	if !slices.Equal(ui2.bubbles(), want) {
		t.Fatalf("second load = %v, want %v", ui2.bubbles(), want)
	}
}

func TestStartShowsWelcomeOnEmptyHistory(t *testing.T) {
	r, ui := newTestRelay(t, "", store.NewMemoryStore(), staticAuth{id: "user-1"})
	r.Start(context.Background())

	bubbles := ui.bubbles()
	if len(bubbles) != 1 || !strings.Contains(bubbles[0], "Ik ben Maatje AI") {
		t.Fatalf("expected generic welcome, got %v", bubbles)
	}
}

func TestStartPersonalizesWelcomeFromProfile(t *testing.T) {
	s := store.NewMemoryStore()
	s.PutProfile(domain.Profile{ID: "user-1", FullName: "Jan", CaretakerEmail: "zorg@example.com"})

	r, ui := newTestRelay(t, "", s, staticAuth{id: "user-1"})
	r.Start(context.Background())

	bubbles := ui.bubbles()
	if len(bubbles) != 1 || !strings.Contains(bubbles[0], "Hallo Jan!") {
		t.Fatalf("expected personalized welcome, got %v", bubbles)
	}
}

func TestAlertRecipientFromProfile(t *testing.T) {
	raw := "[ALERT]zorgen||zoek hulp"
	backend := chatBackend(t, raw, http.StatusOK)
	s := store.NewMemoryStore()
	s.PutProfile(domain.Profile{ID: "user-1", FullName: "Jan", CaretakerEmail: "zorg@example.com"})

	r, _ := newTestRelay(t, backend.URL, s, staticAuth{id: "user-1"})
	r.Start(context.Background())
	r.Send(context.Background(), "bericht")

	alerts := s.Alerts()
	if len(alerts) != 1 || alerts[0].CaretakerEmail != "zorg@example.com" {
		t.Fatalf("expected profile caretaker as recipient, got %+v", alerts)
	}
}

// panicUI blows up when the bot reply is rendered.
type panicUI struct{ fakeUI }

func (u *panicUI) AppendBot(string) { panic("render failure") }

func TestSendReenablesControlOnPanic(t *testing.T) {
	backend := chatBackend(t, "ok", http.StatusOK)
	ui := &panicUI{}
	r, err := New(Config{BackendURL: backend.URL, UI: ui})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		r.Send(context.Background(), "Hallo")
	}()

	ui.mu.Lock()
	defer ui.mu.Unlock()
	if !ui.sendEnabled {
		t.Fatalf("send control must be re-enabled even when rendering panics")
	}
	if ui.typing {
		t.Fatalf("typing indicator must be cleared even when rendering panics")
	}
}

func TestBaseURLFor(t *testing.T) {
	if got := BaseURLFor("localhost"); got != "http://localhost:3000" {
		t.Fatalf("localhost resolved to %q", got)
	}
	if got := BaseURLFor("maatjechat.vercel.app"); got != DeployedBaseURL {
		t.Fatalf("deployed host resolved to %q", got)
	}
}
