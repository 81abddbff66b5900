// Command conductor is the terminal front end: it loads settings, builds a
// session.Controller wired to the Anthropic provider and the local
// workspace, and hands control to the bubbletea chat view. Flags override
// the persisted settings for one run without writing them back.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/conductorhq/conductor/internal/approval"
	"github.com/conductorhq/conductor/internal/checkpoint"
	"github.com/conductorhq/conductor/internal/config"
	"github.com/conductorhq/conductor/internal/llmprovider/anthropic"
	"github.com/conductorhq/conductor/internal/mcp"
	"github.com/conductorhq/conductor/internal/notifier"
	"github.com/conductorhq/conductor/internal/session"
	"github.com/conductorhq/conductor/internal/telegram"
	"github.com/conductorhq/conductor/internal/toolcatalog"
	"github.com/conductorhq/conductor/internal/tui"
	"github.com/conductorhq/conductor/internal/workspace"
)

const (
	exitOK        = 0
	exitError     = 1
	exitAuthSetup = 2
)

var (
	flagModel   string
	flagWorkdir string
	flagSession string
	flagAuth    bool
)

func main() {
	root := &cobra.Command{
		Use:           "conductor",
		Short:         "A terminal coding agent backed by Claude",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runChat,
	}

	root.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "override the configured model for this run")
	root.PersistentFlags().StringVarP(&flagWorkdir, "workdir", "w", "", "working directory for the session (default: current directory)")
	root.PersistentFlags().StringVarP(&flagSession, "session", "s", "", "resume a previously saved session id")
	root.PersistentFlags().BoolVar(&flagAuth, "auth-setup", false, "print where to put your Anthropic API key and exit")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "conductor:", err)
		os.Exit(exitError)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	if flagAuth {
		return printAuthSetup()
	}

	store, err := config.NewStore()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	settings := store.Get()

	apiKey := settings.Provider.ResolveAPIKey()
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "conductor: no Anthropic API key configured; run with --auth-setup")
		os.Exit(exitAuthSetup)
	}

	modelName := settings.Provider.Model
	if flagModel != "" {
		modelName = flagModel
	}

	workDir := flagWorkdir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getwd: %w", err)
		}
		workDir = wd
	}
	workDir, err = filepath.Abs(workDir)
	if err != nil {
		return fmt.Errorf("resolve workdir: %w", err)
	}

	provider := anthropic.New(apiKey, modelName, settings.Provider.MaxTokens)

	catalog := toolcatalog.NewCatalog()
	toolcatalog.RegisterBuiltins(catalog, workDir)

	ws := workspace.NewLocalWorkspace(workDir, "AGENTS.md")

	policy := approval.NewPolicy(approval.Mode(settings.Approval.Mode))

	ctrl := session.New(session.Config{
		Provider:     provider,
		Catalog:      catalog,
		Workspace:    ws,
		WorkingDir:   workDir,
		Policy:       policy,
		SystemPrompt: settings.SystemPrompt,
		Model:        modelName,
		MaxTokens:    settings.Provider.MaxTokens,
	})

	if flagSession != "" {
		fmt.Fprintf(os.Stderr, "conductor: --session resume is not yet wired to persistent storage; starting a fresh session\n")
	}

	if settings.Checkpoint.Enabled {
		storageDir := settings.Checkpoint.StorageDir
		if storageDir == "" {
			storageDir = filepath.Join(homeOrDot(), ".conductor", "checkpoints")
		}
		cp := checkpoint.New(workDir, storageDir)
		if err := cp.Init(); err != nil {
			fmt.Fprintf(os.Stderr, "conductor: checkpoint init: %v (continuing without checkpoints)\n", err)
		}
	}

	var hub *mcp.Hub
	if mcpConfigDir := filepath.Join(homeOrDot(), ".conductor"); dirExists(mcpConfigDir) {
		hub = mcp.NewHub(mcpConfigDir)
		hub.AttachCatalog(catalog)
		defer hub.Close()
	}

	var notify *notifier.Notifier
	if token := os.Getenv("DISCORD_BOT_TOKEN"); token != "" {
		if channelID := os.Getenv("DISCORD_CHANNEL_ID"); channelID != "" {
			n, err := notifier.New(token, channelID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "conductor: notifier disabled: %v\n", err)
			} else if err := n.Start(ctrl); err != nil {
				fmt.Fprintf(os.Stderr, "conductor: notifier disabled: %v\n", err)
			} else {
				notify = n
			}
		}
	}
	if notify != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = notify.Close(ctx)
		}()
	}

	var notifyTG *telegram.Notifier
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		if chatID, err := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64); err == nil {
			n, err := telegram.New(token, chatID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "conductor: telegram notifier disabled: %v\n", err)
			} else if err := n.Start(ctrl); err != nil {
				fmt.Fprintf(os.Stderr, "conductor: telegram notifier disabled: %v\n", err)
			} else {
				notifyTG = n
			}
		}
	}
	if notifyTG != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = notifyTG.Close(ctx)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		ctrl.CancelCurrentOperation()
	}()

	model := tui.New(workDir, modelName, ctrl)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func printAuthSetup() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home dir: %w", err)
	}
	path := filepath.Join(home, ".conductor", "settings.yaml")
	fmt.Printf("Set your Anthropic API key one of two ways:\n\n")
	fmt.Printf("  export ANTHROPIC_API_KEY=sk-ant-...\n\n")
	fmt.Printf("or add it to %s under provider.api_key.\n", path)
	return nil
}

func homeOrDot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
