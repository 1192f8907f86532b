package main

import (
	"bufio"
	"campus-chat/client"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string `env:"CHAT_SERVER_URL,default=ws://localhost:8080/ws"`
	Author    string `env:"CHAT_AUTHOR,default=anonymous"`
	Origin    string `env:"CHAT_ORIGIN"`
	Limit     int    `env:"RETENTION_LIMIT,default=100"`
	LogLevel  string `env:"LOG_LEVEL,default=INFO"`
	Colours   bool   `env:"CHAT_COLOURS,default=true"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run mirrors the feed on the terminal and posts every line typed on stdin.
func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	header := http.Header{}
	if config.Origin != "" {
		header.Set("Origin", config.Origin)
	}
	feed, err := client.Dial(ctx, log, config.ServerURL, config.Limit, header)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		log.Info("Closing connection...")
		_ = feed.Close()
	}()
	log.Info(fmt.Sprintf(">>> Connected to %s as %s (Ctrl+C to quit)...", config.ServerURL, config.Author))

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := feed.Send(config.Author, line); err != nil {
				log.Error("Message not sent", "error", err)
				stop()
				return
			}
		}
	}()

	if err = feed.Listen(ctx, client.NewPrinter(os.Stdout, config.Colours)); err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}
