// Package cmd provides the CLI commands for codechatd.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codechat/codechatd/internal/config"
	"github.com/codechat/codechatd/internal/embed"
	"github.com/codechat/codechatd/internal/logging"
	"github.com/codechat/codechatd/pkg/version"
)

var (
	configPath string
	debugMode  bool
	offline    bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the codechatd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codechatd",
		Short: "Local code-index daemon for conversational clients",
		Long: `codechatd maintains a continuously-updated, searchable representation
of a source-code project: a persistent vector index over file contents
and a file-to-file dependency graph, kept consistent under live
filesystem changes.

Run 'codechatd serve' in a project directory to start the daemon.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("codechatd version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file (default ~/.config/codechat/config.json)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&offline, "offline", false, "Use deterministic hash embeddings (no provider calls)")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newDepsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func setupLogging(*cobra.Command, []string) error {
	logCfg := logging.DefaultConfig()

	// Log level and rotation thresholds come from the config document;
	// a broken document falls back to defaults and surfaces when the
	// subcommand loads it properly.
	if cfg, err := config.Load(configPath); err == nil {
		logCfg.Level = cfg.LogLevel
		logCfg.MaxSizeMB = cfg.LogMaxSizeMB
		logCfg.MaxFiles = cfg.LogMaxFiles
	}
	if debugMode {
		logCfg.Level = "debug"
	}

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	return nil
}

// loadConfig loads the config holder from the --config path.
func loadConfig() (*config.Holder, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.NewHolder(path)
}

// newEmbedder builds the embedding client from the config. The
// --offline flag substitutes the deterministic hash embedder.
func newEmbedder(cfg *config.Config) (embed.Embedder, error) {
	if offline {
		return embed.NewStaticEmbedder(cfg.Embedding.Dimensions), nil
	}
	return embed.NewOpenAIEmbedder(embed.OpenAIConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout(),
	})
}

// projectRoot resolves the project root argument, defaulting to the
// working directory.
func projectRoot(args []string) (string, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve project root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("project root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project root %s is not a directory", abs)
	}
	return abs, nil
}
