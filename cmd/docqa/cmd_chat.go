package main

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docqa/internal/logging"
	"docqa/internal/tui"
)

var chatFlags struct {
	logFile string
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions interactively in a terminal UI",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatFlags.logFile, "log-file", "", "Write logs to this file while the UI is running (default: discard)")
}

func runChat(cmd *cobra.Command, _ []string) error {
	// Logs would draw over the UI.
	var sink io.Writer = io.Discard
	if chatFlags.logFile != "" {
		f, err := os.OpenFile(chatFlags.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		sink = f
	}
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logging.Init(level, cfg.Logging.Format, sink)

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.index.Open(cmd.Context()); err != nil {
		return err
	}
	n, err := a.index.Count(cmd.Context())
	if err != nil {
		return err
	}
	summary := fmt.Sprintf("%d chunks indexed. Generator: %s. Esc to quit.", n, cfg.Generator.Type)
	m := tui.New(a.pipeline, summary, cfg.Retrieval.Sentinel, requestTimeout(cfg))
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
	return err
}
