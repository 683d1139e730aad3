package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/auth"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/vocab"
)

var (
	configEdit    bool
	sessionsToken string
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create the config file and print its path",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
	cmd.Flags().BoolVar(&configEdit, "edit", false, "open the config file in $EDITOR")
	return cmd
}

func runConfigCmd(cmd *cobra.Command, _ []string) error {
	path := configPath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.Template()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)

	if !configEdit {
		return nil
	}
	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	c := exec.Command(parts[0], append(parts[1:], path)...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

// withStore loads config, opens the database and runs fn against it.
func withStore(cmd *cobra.Command, fn func(cfg config.Config, st *store.Store, logger *zap.SugaredLogger) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, false)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	st, err := openStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()
	return fn(cfg, st, logger)
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the default sign vocabulary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(_ config.Config, st *store.Store, logger *zap.SugaredLogger) error {
				res, err := vocab.Seed(cmd.Context(), st, vocab.DefaultCatalog, logger.Named("seed"))
				if err != nil {
					return fmt.Errorf("failed to seed vocabulary: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Vocabulary seeded: %d added, %d already present\n", res.Added, res.Skipped)
				return nil
			})
		},
	}
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

func newVocabCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vocab",
		Short: "List the practice vocabulary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(_ config.Config, st *store.Store, _ *zap.SugaredLogger) error {
				items, err := vocab.NewStoreSource(st).List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list vocabulary: %w", err)
				}
				if len(items) == 0 {
					logErrf("No vocabulary yet. Load the default signs with: mudra seed\n")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, it := range items {
					rows = append(rows, []string{it.ClassID, it.ClassName, it.DisplayName, it.Category, string(it.Difficulty)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Class", "Name", "Sign", "Category", "Difficulty"}, rows))
				return nil
			})
		},
	}
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage learners",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add NAME",
		Short: "Create a learner and print their token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return errors.New("name must not be empty")
			}
			return withStore(cmd, func(_ config.Config, st *store.Store, logger *zap.SugaredLogger) error {
				token, err := auth.NewToken()
				if err != nil {
					return fmt.Errorf("failed to generate token: %w", err)
				}
				u := &store.User{ID: uuid.NewString(), Name: name, Token: token}
				if err := st.Users().Create(cmd.Context(), u); err != nil {
					return fmt.Errorf("failed to create user: %w", err)
				}
				logger.Infow("user created", "user_id", u.ID, "name", u.Name)
				fmt.Fprintf(cmd.OutOrStdout(), "User %s created.\nToken: %s\n", u.Name, u.Token)
				return nil
			})
		},
	})
	return cmd
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List a learner's practice sessions",
		Args:  cobra.NoArgs,
		RunE:  runSessionsCmd,
	}
	cmd.Flags().StringVar(&sessionsToken, "token", "", "learner token (default from config)")
	return cmd
}

func runSessionsCmd(cmd *cobra.Command, _ []string) error {
	return withStore(cmd, func(cfg config.Config, st *store.Store, _ *zap.SugaredLogger) error {
		token := sessionsToken
		if token == "" {
			token = cfg.Practice.Token
		}
		if token == "" {
			return errors.New("a learner token is required (--token or practice.token)")
		}

		id, err := auth.NewStoreResolver(st).Resolve(cmd.Context(), token)
		if err != nil {
			return fmt.Errorf("failed to resolve learner token: %w", err)
		}
		sessions, err := st.Sessions().ListByUser(cmd.Context(), id.UserID)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(sessions) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No sessions for %s yet.\n", id.Name)
			return nil
		}

		rows := make([][]string, 0, len(sessions))
		for _, s := range sessions {
			rows = append(rows, sessionRow(s))
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Started", "Mode", "Attempts", "Correct", "Rate", "Time"}, rows))
		return nil
	})
}

func sessionRow(s *store.PracticeSession) []string {
	rate := "-"
	duration := "in progress"
	if s.CompletedAt != nil {
		rate = fmt.Sprintf("%.0f%%", s.SuccessRate*100)
		duration = s.Duration.Round(time.Second).String()
	}
	return []string{
		s.StartedAt.Local().Format("2006-01-02 15:04"),
		string(s.Mode),
		strconv.Itoa(s.Attempts),
		strconv.Itoa(s.Successes),
		rate,
		duration,
	}
}

func newPluginsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List installed practice event plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			mgr := plugin.NewManager(cfg.Plugins.Dir, nil)
			if err := mgr.Discover(); err != nil {
				return fmt.Errorf("failed to scan plugins: %w", err)
			}
			plugins := mgr.List()
			if len(plugins) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No plugins in %s\n", mgr.PluginDir())
				return nil
			}
			rows := make([][]string, 0, len(plugins))
			for _, p := range plugins {
				rows = append(rows, []string{p.Manifest.Name, p.Manifest.Version, strings.Join(p.Manifest.Events, ", "), p.Manifest.Description})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Name", "Version", "Events", "Description"}, rows))
			return nil
		},
	}
}
