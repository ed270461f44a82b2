// debate-tui drives a debate from the terminal using the same controller as
// the web panel.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/ashureev/debate-panel/internal/conversation"
	"github.com/ashureev/debate-panel/internal/gateway"
)

func main() {
	_ = godotenv.Load()

	defaults := gateway.DefaultClientConfig()
	backend := flag.String("backend", envOr("CONVERSATION_BACKEND_URL", defaults.BaseURL), "Conversation backend URL")
	interval := flag.Duration("sync", 2*time.Second, "Polling interval while a conversation runs")
	verbose := flag.Bool("v", false, "Log gateway traffic to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	client, err := gateway.NewClient(gateway.ClientConfig{
		BaseURL: *backend,
		Token:   os.Getenv("CONVERSATION_BACKEND_TOKEN"),
		Timeout: defaults.Timeout,
	}, logger)
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}

	ctrl := conversation.NewController(client, conversation.Options{
		SyncInterval: *interval,
		Logger:       logger,
	})
	defer ctrl.Close()

	fmt.Printf("debate-tui connected to %s\n", *backend)
	fmt.Println("Type /help for commands. Ctrl+C to quit.")
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := newConsole(ctrl, os.Stdout)
	go c.watch(ctx)

	if err := c.run(ctx, os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
