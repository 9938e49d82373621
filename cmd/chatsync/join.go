package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/workspace-chat/backend/internal/client"
	"github.com/workspace-chat/backend/internal/config"
	"github.com/workspace-chat/backend/internal/conn"
	"github.com/workspace-chat/backend/internal/logger"
	"github.com/workspace-chat/backend/internal/metrics"
	"github.com/workspace-chat/backend/internal/model"
	"github.com/workspace-chat/backend/internal/session"
)

func init() {
	joinCmd.Flags().String("record", "", "write a transcript of every frame to this file")
	joinCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.AddCommand(joinCmd)
}

var joinCmd = &cobra.Command{
	Use:   "join <workspace>",
	Short: "Join a workspace and chat from the terminal",
	Long: `join prints the workspace history and every new message. Each line read
from stdin is sent as a message. "/older" loads an older page and "/quit" exits.`,
	Args: cobra.ExactArgs(1),
	RunE: runJoin,
}

func runJoin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	workspaceID := args[0]
	log := config.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, false)
	principal := &model.Principal{UserID: cfg.UserID, Name: cfg.UserName, Token: cfg.Token}

	vcfg := session.ViewConfig{
		Principal:      principal,
		Transport:      conn.NewWebSocketTransport(cfg.WebSocketURL()),
		Logger:         log,
		PageSize:       cfg.PageSize,
		TypingWindow:   cfg.TypingWindow,
		TypingDebounce: cfg.TypingDebounce,
		Reconnect: conn.ReconnectPolicy{
			MaxAttempts:  cfg.ReconnectAttempts,
			InitialDelay: cfg.ReconnectDelay,
			MaxDelay:     cfg.ReconnectMaxDelay,
		},
	}
	api := client.New(cfg.ServerURL, principal, client.WithLogger(log))
	vcfg.History = api
	vcfg.Sender = api

	if path, _ := cmd.Flags().GetString("record"); path != "" {
		transcript, err := logger.NewTranscript(path)
		if err != nil {
			return err
		}
		defer func() {
			if err := transcript.Close(); err != nil {
				log.Warn("failed to close transcript", "path", path, "err", err)
			}
		}()
		if err := transcript.WriteHeader(workspaceID, cfg.UserID); err != nil {
			return err
		}
		vcfg.Recorder = transcript
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		reg := prometheus.NewRegistry()
		vcfg.Metrics = metrics.NewEngine(reg)
		serveMetrics(ctx, newMetricsServer(addr, reg), log)
	}

	view := session.NewView(vcfg)
	defer view.Close()

	p := newPrinter(cmd.OutOrStdout())
	updates := make(chan struct{}, 1)
	view.OnUpdate(func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	})

	if err := view.Select(ctx, workspaceID); err != nil {
		return err
	}

	lines := make(chan string)
	go readLines(cmd.InOrStdin(), lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-updates:
			p.render(view)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, view, p, line); quit {
				return nil
			}
		}
	}
}

// handleLine submits a typed line or runs a slash command. It reports
// whether the client should exit.
func handleLine(ctx context.Context, view *session.View, p *printer, line string) bool {
	switch strings.TrimSpace(line) {
	case "/quit":
		return true
	case "/older":
		n, err := view.LoadOlder(ctx)
		if err != nil {
			p.errorf("load older: %v", err)
			return false
		}
		p.infof("loaded %d older messages", n)
		p.render(view)
		return false
	}

	c := view.Composer()
	if c == nil {
		p.errorf("no workspace selected")
		return false
	}
	c.BodyChanged(line)
	if _, err := c.Submit(); err != nil {
		if !errors.Is(err, model.ErrEmptyDraft) {
			p.errorf("send: %v", err)
		}
	}
	return false
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "stdin: %v\n", err)
	}
}
