// sanctuary-cli 是一个终端聊天客户端
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/ashwinyue/sanctuary/internal/chatclient"
	"github.com/ashwinyue/sanctuary/internal/service/catalog"
)

var (
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	youStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("111")).Bold(true)
	botStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("180")).Bold(true)
)

func main() {
	server := flag.String("server", envOr("SANCTUARY_SERVER", "http://localhost:8080"), "server base URL")
	email := flag.String("email", os.Getenv("SANCTUARY_EMAIL"), "login email")
	token := flag.String("token", os.Getenv("SANCTUARY_TOKEN"), "bearer token (skips login)")
	conversation := flag.String("conversation", "", "resume an existing conversation")
	modelID := flag.String("model", "", "model id, defaults to your settings")
	flag.Parse()

	if *modelID != "" && !catalog.IsKnown(*modelID) {
		fatalf("unknown model %q", *modelID)
	}

	ctx := context.Background()
	client := chatclient.New(*server, *token)
	if client.Token == "" {
		if err := login(ctx, client, *email); err != nil {
			fatalf("login failed: %v", err)
		}
	}

	session := chatclient.NewSession(client, *conversation)
	session.Model = *modelID
	session.OnDelta = func(text string) { fmt.Print(text) }
	if err := session.Load(ctx); err != nil {
		fatalf("failed to load conversation: %v", err)
	}
	printHistory(session.Messages())

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	historyFile := filepath.Join(os.TempDir(), "sanctuary_cli_history")
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.OpenFile(historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
		line.Close()
	}()

	fmt.Println(dimStyle.Render("Type a message. /retry resends, /new starts over, /quit exits. Ctrl-C stops a reply."))
	for {
		input, err := line.Prompt("you> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			fatalf("read input: %v", err)
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch {
		case input == "/quit":
			return
		case input == "/new":
			session = newSession(client, session)
			fmt.Println(dimStyle.Render("new conversation"))
		case input == "/retry":
			runTurn(session, func(ctx context.Context) error { return session.Retry(ctx) })
		case strings.HasPrefix(input, "/"):
			fmt.Println(errorStyle.Render("unknown command " + input))
		default:
			runTurn(session, func(ctx context.Context) error { return session.Send(ctx, input, "") })
		}
	}
}

// runTurn 执行一轮对话，Ctrl-C 只中止当前回复
func runTurn(session *chatclient.Session, send func(ctx context.Context) error) {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	done := make(chan error, 1)
	fmt.Print(botStyle.Render("sanctuary> "))
	go func() { done <- send(context.Background()) }()

	var err error
	select {
	case err = <-done:
	case <-interrupt:
		session.Cancel()
		err = <-done
		fmt.Println()
		fmt.Println(dimStyle.Render("(stopped)"))
		return
	}
	fmt.Println()

	if err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		return
	}

	msgs := session.Messages()
	if n := len(msgs); n > 0 && msgs[n-1].Error {
		fmt.Println(errorStyle.Render("error: " + msgs[n-1].ContentText))
		return
	}
	if u := session.LastUsage(); u != nil {
		cost := "-"
		if u.CostUSD != nil {
			cost = catalog.FormatCost(*u.CostUSD, true)
		}
		fmt.Println(dimStyle.Render(fmt.Sprintf("%d in / %d out · %s", u.InputTokens, u.OutputTokens, cost)))
	}
}

func newSession(client *chatclient.Client, prev *chatclient.Session) *chatclient.Session {
	s := chatclient.NewSession(client, "")
	s.Model = prev.Model
	s.OnDelta = prev.OnDelta
	return s
}

func login(ctx context.Context, client *chatclient.Client, email string) error {
	if email == "" {
		return errors.New("-email or -token is required")
	}
	fmt.Print("Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	return client.Login(ctx, email, strings.TrimSpace(string(raw)))
}

func printHistory(entries []chatclient.Entry) {
	for _, e := range entries {
		if e.Role == "user" {
			fmt.Println(youStyle.Render("you> ") + e.ContentText)
		} else {
			fmt.Println(botStyle.Render("sanctuary> ") + e.ContentText)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf(format, args...)))
	os.Exit(1)
}
