// Command ragask is a terminal client for a running ragchat service.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/0xcro3dile/ragchat/internal/chat"
	"github.com/0xcro3dile/ragchat/internal/config"
	"github.com/0xcro3dile/ragchat/internal/domain/entities"
	"github.com/0xcro3dile/ragchat/internal/logging"
)

const defaultBackendURL = "http://127.0.0.1:8080"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ragask:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()
	if err := cfg.ApplyEnv(nil); err != nil {
		return err
	}
	if cfg.BackendURL == "" {
		cfg.BackendURL = defaultBackendURL
	}
	if _, ok := os.LookupEnv("RAGCHAT_LOG_LEVEL"); !ok {
		cfg.LogLevel = "warn"
	}

	fs := flag.NewFlagSet("ragask", flag.ExitOnError)
	fs.StringVar(&cfg.BackendURL, "backend-url", cfg.BackendURL, "ragchat service URL")
	question := fs.String("question", "", "ask one question and exit")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := chat.NewClient(cfg.BackendURL)
	if *question != "" {
		answer, err := client.Ask(ctx, *question)
		if err != nil {
			return err
		}
		printAnswer(os.Stdout, answer)
		return nil
	}

	conv := chat.NewConversation(client, cfg.Greeting, logger)
	return loop(ctx, conv, os.Stdin, os.Stdout)
}

func printAnswer(w io.Writer, a *entities.Answer) {
	fmt.Fprintln(w, a.Result)
	if a.Source != "" {
		fmt.Fprintln(w, entities.CitationPrefix+a.Source)
	}
}

func loop(ctx context.Context, conv *chat.Conversation, in io.Reader, out io.Writer) error {
	shown, err := conv.RenderFrom(out, 0)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "/quit" {
			return nil
		}
		if !conv.Submit(ctx, line) {
			continue
		}
		conv.Wait()
		// The question itself was echoed by the terminal.
		shown++
		if shown, err = conv.RenderFrom(out, shown); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
