package main

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/auth"
	"github.com/ayusman/mudra/internal/tui"
)

var (
	practiceToken   string
	practiceDevice  int
	practiceBackend string
)

func newPracticeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Practise signs in the terminal",
		Args:  cobra.NoArgs,
		RunE:  runPracticeCmd,
	}

	cmd.Flags().StringVar(&practiceToken, "token", "", "learner token for recording progress")
	cmd.Flags().IntVar(&practiceDevice, "device", 0, "camera device index")
	cmd.Flags().StringVar(&practiceBackend, "backend", "http", "detection backend: http or gemini")

	return cmd
}

func runPracticeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyStringFlag(cmd, "token", &cfg.Practice.Token, practiceToken)
	applyIntFlag(cmd, "device", &cfg.Camera.Device, practiceDevice)
	applyStringFlag(cmd, "backend", &cfg.Detection.Backend, practiceBackend)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// The terminal belongs to the UI; logs go to file only.
	logger, err := newLogger(cfg.Log, true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	ctx := cmd.Context()
	env, err := newPracticeEnv(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	id, err := auth.NewStoreResolver(env.store).Resolve(ctx, cfg.Practice.Token)
	if err != nil {
		return fmt.Errorf("failed to resolve learner token: %w", err)
	}
	if !id.Authenticated() {
		logErrf("practising anonymously; progress will not be saved\n")
	}

	program := tea.NewProgram(tui.NewModel(ctx, env.app, id), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}
