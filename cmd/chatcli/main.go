package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"maatje/internal/util"
	"maatje/pkg/alert"
	"maatje/pkg/notify"
	"maatje/pkg/relay"
	"maatje/pkg/store"
)

// terminalUI renders chat bubbles as plain stdout lines.
type terminalUI struct {
	typing bool
}

func (u *terminalUI) AppendUser(text string) { fmt.Printf("jij     > %s\n", text) }
func (u *terminalUI) AppendBot(text string) {
	for i, line := range strings.Split(text, "\n") {
		if i == 0 {
			fmt.Printf("maatje  > %s\n", line)
		} else {
			fmt.Printf("          %s\n", line)
		}
	}
}

func (u *terminalUI) SetTyping(active bool) {
	if active && !u.typing {
		fmt.Println("maatje  > ...")
	}
	u.typing = active
}

func (u *terminalUI) SetSendEnabled(bool) {}
func (u *terminalUI) Focus()              {}

func main() {
	_ = godotenv.Load()

	logger := util.InitLogger(os.Getenv("LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backendURL := os.Getenv("MAATJE_BACKEND_URL")
	if backendURL == "" {
		backendURL = relay.BaseURLFor(os.Getenv("MAATJE_HOST"))
	}

	var st store.Store
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		gs, err := store.NewGormStore(dsn)
		if err != nil {
			logger.Error("database unavailable, continuing without persistence", "err", err)
		} else {
			st = gs
		}
	}

	var auth relay.AuthClient
	if authURL := os.Getenv("AUTH_URL"); authURL != "" {
		auth = relay.NewHTTPAuthClient(authURL, os.Getenv("AUTH_ANON_KEY"), os.Getenv("AUTH_ACCESS_TOKEN"))
	}

	var notifier alert.Notifier
	if brokerURL := os.Getenv("BROKER_URL"); brokerURL != "" {
		pub, err := notify.Dial(ctx, notify.DialOptions{
			URL:           brokerURL,
			Exchange:      os.Getenv("BROKER_EXCHANGE"),
			RetryAttempts: 3,
			Logger:        logger,
		})
		if err != nil {
			logger.Error("broker unavailable, alerts stay store-only", "err", err)
		} else {
			defer pub.Close()
			notifier = pub
		}
	}

	ui := &terminalUI{}
	r, err := relay.New(relay.Config{
		BackendURL: backendURL,
		UI:         ui,
		Auth:       auth,
		Store:      st,
		Notifier:   notifier,
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	r.Start(ctx)
	fmt.Println("(typ een bericht, /quit om te stoppen)")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				return
			}
			r.Send(ctx, line)
		}
	}
}
