package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sqlnerd/internal/autocorrect"
	"sqlnerd/internal/config"
	"sqlnerd/internal/logging"
	"sqlnerd/internal/model"
	"sqlnerd/internal/pipeline"
	"sqlnerd/internal/session"
)

var (
	// Global flags
	verbose   bool
	workspace string
	timeout   time.Duration
	modelName string
	ollamaURL string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sqlnerd",
	Short: "sqlNERD - natural language to SQL with autonomous correction",
	Long: `sqlNERD turns natural-language questions into executed SQL.

A staged pipeline classifies the question, repairs misspelled entity values
against live database content, generates SQL, validates it against the
schema, executes it, and refines failed attempts using diagnosed errors.

Supported engines: SQLite, PostgreSQL, Vertica.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if err := logging.Initialize(workspace); err != nil {
			return fmt.Errorf("failed to initialize file logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// app bundles the wired subsystems behind the CLI commands.
type app struct {
	registry *config.Registry
	sessions *session.Manager
	history  *autocorrect.History
	engine   *pipeline.Engine
}

// buildApp wires registry, session manager, model client and pipeline.
func buildApp(ctx context.Context) (*app, error) {
	registry, err := config.LoadRegistry(config.RegistryPath(workspace))
	if err != nil {
		return nil, err
	}
	if err := registry.Watch(ctx); err != nil {
		logger.Warn("registry watcher unavailable", zap.Error(err))
	}

	history, err := autocorrect.LoadHistory(autocorrect.HistoryPath(workspace))
	if err != nil {
		return nil, err
	}

	client, err := buildModelClient(ctx)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(registry)
	engine := pipeline.NewEngine(sessions, client, history, pipeline.Options{
		ExecTimeout: timeout,
	})
	return &app{
		registry: registry,
		sessions: sessions,
		history:  history,
		engine:   engine,
	}, nil
}

// buildModelClient prefers Gemini when an API key is present, otherwise a
// local Ollama server.
func buildModelClient(ctx context.Context) (model.Client, error) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return model.NewGeminiClient(ctx, key, modelName)
	}
	cfg := model.DefaultOllamaConfig()
	if ollamaURL != "" {
		cfg.BaseURL = ollamaURL
	}
	if modelName != "" {
		cfg.Model = modelName
	}
	return model.NewOllamaClientWithConfig(cfg), nil
}

func (a *app) close() {
	if err := a.history.Save(); err != nil {
		logger.Warn("failed to save correction history", zap.Error(err))
	}
	if err := a.sessions.Close(); err != nil {
		logger.Warn("failed to close active connection", zap.Error(err))
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory (holds .sqlnerd/)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "per-query execution timeout")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "model name override")
	rootCmd.PersistentFlags().StringVar(&ollamaURL, "ollama-url", "", "Ollama server URL (default http://localhost:11434)")

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(databasesCmd)
	rootCmd.AddCommand(switchCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(currentCmd)
	rootCmd.AddCommand(mistakesCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
