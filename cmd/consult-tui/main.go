// ABOUTME: Terminal client for consultation chat sessions over the platform API.
// ABOUTME: Provides readline-style input, live message sending, and call handoff.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/astroveda/consult-core/internal/api"
	"github.com/astroveda/consult-core/internal/config"
	"github.com/astroveda/consult-core/internal/consult"
	"github.com/astroveda/consult-core/internal/identity"
	"github.com/astroveda/consult-core/internal/live"
	"github.com/astroveda/consult-core/internal/render"
	"github.com/astroveda/consult-core/internal/session"
)

// Version is set at build time.
var version = "dev"

func main() {
	configPath := flag.String("config", config.Path(), "Path to the client config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	token := identity.LoadToken(cfg.Auth.TokenFile)
	viewer, err := identity.FromToken(token)
	if err != nil {
		// No usable identity: the only valid action is sending the user to
		// authentication, which for the TUI means telling them how.
		fmt.Println("Not authenticated. Set CONSULT_TOKEN or sign in via the web app.")
		return err
	}

	gray := color.New(color.FgHiBlack)
	fmt.Printf("consult-tui %s connected to %s\n", version, cfg.API.BaseURL)
	gray.Printf("signed in as %s\n", viewer.ID)
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	client := api.NewClient(cfg.API.BaseURL, viewer.Token)
	dialer := live.NewDialer(cfg.Live.URL, viewer.Token, cfg.Live.ConnectTimeout, logger)
	opener := session.OpenerFunc(func(ctx context.Context, conversationID, senderID string) session.Channel {
		return dialer.Open(ctx, conversationID, senderID)
	})

	manager := session.NewManager(viewer.ID, client, client, opener, logger)
	defer manager.End()

	return loop(ctx, client, manager, viewer.ID)
}

func loop(ctx context.Context, client *api.Client, manager *session.Manager, viewerID string) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		printPrompt(manager)

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if handled := handleCommand(ctx, client, manager, viewerID, input); handled {
			fmt.Println()
			continue
		}

		// Plain text goes to the active session
		ctrl := manager.Active()
		if ctrl == nil {
			fmt.Println("No open conversation. Use /open <partner_id> first.")
			fmt.Println()
			continue
		}

		if err := ctrl.Send(input); err != nil {
			fmt.Printf("[error] %v\n", err)
		} else if ctrl.Status() == consult.StatusOffline {
			color.Yellow("offline: delivery is not guaranteed until you reopen")
		}
		fmt.Println()
	}
}

// handleCommand dispatches slash commands. Returns false for plain text.
func handleCommand(ctx context.Context, client *api.Client, manager *session.Manager, viewerID, input string) bool {
	switch {
	case input == "/help":
		printHelp()

	case input == "/chats":
		if err := listConversations(ctx, client, viewerID); err != nil {
			fmt.Printf("[error] %v\n", err)
		}

	case strings.HasPrefix(input, "/open"):
		partner := strings.TrimSpace(strings.TrimPrefix(input, "/open"))
		if partner == "" {
			fmt.Println("Usage: /open <partner_id>")
			return true
		}
		openSession(ctx, manager, partner, viewerID)

	case input == "/history":
		ctrl := manager.Active()
		if ctrl == nil {
			fmt.Println("No open conversation.")
			return true
		}
		printTimeline(ctrl, viewerID)

	case input == "/status":
		printStatus(manager)

	case strings.HasPrefix(input, "/call"):
		kind := strings.TrimSpace(strings.TrimPrefix(input, "/call"))
		startCall(manager, kind)

	case input == "/end":
		if manager.Active() == nil {
			fmt.Println("No open conversation.")
			return true
		}
		manager.End()
		fmt.Println("Session ended.")

	default:
		return false
	}

	return true
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /chats              List your conversations")
	fmt.Println("  /open <partner_id>  Open a consultation with a partner")
	fmt.Println("  /history            Show the conversation timeline")
	fmt.Println("  /status             Show connection status")
	fmt.Println("  /call audio|video   Hand off to a voice/video call")
	fmt.Println("  /end                End the current session")
	fmt.Println("  /help               Show this help")
	fmt.Println("  /quit               Exit")
}

func printPrompt(manager *session.Manager) {
	if ctrl := manager.Active(); ctrl != nil {
		if conv := ctrl.Conversation(); conv != nil {
			fmt.Printf("[%s]> ", conv.ID)
			return
		}
	}
	fmt.Print("> ")
}

func openSession(ctx context.Context, manager *session.Manager, partner, viewerID string) {
	ctrl, err := manager.Open(ctx, partner)
	if err != nil {
		fmt.Printf("[error] %v\n", err)
		return
	}

	conv := ctrl.Conversation()
	green := color.New(color.FgGreen)
	green.Printf("Opened conversation %s", conv.ID)
	fmt.Printf(" with %s\n", strings.Join(conv.Participants, ", "))

	if ctrl.Degraded() {
		color.Yellow("history could not be loaded, earlier messages may be missing")
	}

	printTimeline(ctrl, viewerID)
}

func printTimeline(ctrl *session.Controller, viewerID string) {
	msgs := ctrl.Messages()
	if len(msgs) == 0 {
		fmt.Println("No messages yet.")
		return
	}

	blue := color.New(color.FgBlue)
	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	for _, m := range msgs {
		if m.Sender == viewerID || m.Provenance == consult.ProvenanceOptimistic {
			green.Print("→ ")
		} else {
			blue.Print("← ")
		}
		fmt.Print(render.Plain(m.Body))
		if m.Provenance == consult.ProvenanceOptimistic {
			gray.Print("  (sending)")
		}
		fmt.Println()
	}

	if n := ctrl.PendingSends(); n > 0 {
		gray.Printf("%d message(s) awaiting confirmation\n", n)
	}
}

func printStatus(manager *session.Manager) {
	ctrl := manager.Active()
	if ctrl == nil {
		fmt.Println("No open conversation.")
		return
	}

	switch ctrl.Status() {
	case consult.StatusOnline:
		color.Green("online")
	case consult.StatusConnecting:
		color.Yellow("connecting")
	case consult.StatusOffline:
		color.Red("offline: reopen the conversation to reconnect")
	}
}

func startCall(manager *session.Manager, kind string) {
	ctrl := manager.Active()
	if ctrl == nil {
		fmt.Println("No open conversation.")
		return
	}

	ct, err := consult.ParseCallType(kind)
	if err != nil {
		fmt.Println("Usage: /call audio|video")
		return
	}

	token, err := ctrl.Handoff(ct)
	if err != nil {
		fmt.Printf("[error] %v\n", err)
		return
	}

	// The call subsystem owns the room from here; chat stays open.
	cyan := color.New(color.FgCyan)
	cyan.Printf("Call room: %s\n", token.Room())
	fmt.Println("Join from the app to start the call. Chat stays open meanwhile.")
}

func listConversations(ctx context.Context, client *api.Client, viewerID string) error {
	convs, err := client.ListConversations(ctx)
	if err != nil {
		return err
	}

	if len(convs) == 0 {
		fmt.Println("No conversations yet.")
		return nil
	}

	fmt.Println("Your conversations:")
	for _, c := range convs {
		others := make([]string, 0, len(c.Participants))
		for _, p := range c.Participants {
			if p != viewerID {
				others = append(others, p)
			}
		}
		fmt.Printf("  %s: %s", c.ID, strings.Join(others, ", "))
		if c.LastMessage != nil {
			preview := render.Plain(c.LastMessage.Body)
			if len(preview) > 48 {
				preview = preview[:45] + "..."
			}
			fmt.Printf("  - %s", preview)
		}
		fmt.Println()
	}

	return nil
}

// setupLogger builds the slog logger from config. The TUI keeps logs quiet
// on stderr so they do not fight with the prompt.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
