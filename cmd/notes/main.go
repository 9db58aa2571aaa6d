package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-notes/internal/client/document"
	clienttutor "github.com/zhouzirui/z-notes/internal/client/tutor"
	"github.com/zhouzirui/z-notes/internal/client/workspace"
	"github.com/zhouzirui/z-notes/internal/config"
	"github.com/zhouzirui/z-notes/internal/logging"
	"github.com/zhouzirui/z-notes/internal/ui"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	apiBase := flag.String("api", cfg.Client.APIBase, "notes API base URL")
	projectID := flag.String("project", "", "project to make active before starting")
	fileID := flag.String("file", "", "note in the project to open (without .md)")
	flag.Parse()

	logger, err := logging.NewFile(cfg.Client.LogFile, cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws := workspace.New(*apiBase, nil, logger.Named("workspace"))
	if err := selectActive(ctx, ws, *projectID, *fileID); err != nil {
		fmt.Fprintf(os.Stderr, "notes: %v\n", err)
		os.Exit(1)
	}

	var program *tea.Program
	doc := document.New(ws, logger.Named("document"), func() {
		// Appends run on the chat goroutine while the UI may be inside Reset.
		go program.Send(ui.DocumentChangedMsg{})
	})
	session := clienttutor.NewSession(clienttutor.Options{
		Transport: clienttutor.NewHTTPTransport(*apiBase, nil),
		Sink:      doc,
		Logger:    logger.Named("chat"),
		Pacing:    cfg.Client.Pacing,
		OnChange: func(s clienttutor.Snapshot) {
			program.Send(ui.SessionChangedMsg{Snapshot: s})
		},
	})
	defer session.Close()

	model := ui.NewModel(ctx, session, doc, ws, logger.Named("ui"))
	program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	logger.Info("notes client started", zap.String("api", *apiBase))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		logger.Error("terminal ui failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "notes: %v\n", err)
		os.Exit(1)
	}
}

// selectActive records the project and note chosen on the command line so
// the server reads the same active file the editor shows.
func selectActive(ctx context.Context, ws *workspace.Client, projectID, fileID string) error {
	if projectID == "" {
		if fileID != "" {
			return fmt.Errorf("-file requires -project")
		}
		return nil
	}

	p, err := ws.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("open project %q: %w", projectID, err)
	}
	if err := ws.SetActiveProject(ctx, &p.ID); err != nil {
		return fmt.Errorf("activate project: %w", err)
	}
	if fileID == "" {
		return nil
	}

	f, err := ws.OpenFile(ctx, p.ID, fileID)
	if err != nil {
		return fmt.Errorf("open note %q: %w", fileID, err)
	}
	if err := ws.SetActiveFile(ctx, &f.Path); err != nil {
		return fmt.Errorf("activate note: %w", err)
	}
	return nil
}
