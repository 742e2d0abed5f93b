package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codechat/codechatd/internal/indexer"
	"github.com/codechat/codechatd/internal/server"
	"github.com/codechat/codechatd/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var addr string
	var skipInitialBuild bool

	cmd := &cobra.Command{
		Use:   "serve [project-root]",
		Short: "Run the indexing daemon",
		Long: `Builds the index for the project, starts the filesystem watcher and
serves queries over HTTP until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot(args)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), root, addr, skipInitialBuild)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().BoolVar(&skipInitialBuild, "skip-initial-build", false, "Serve the persisted index without rebuilding first")

	return cmd
}

func runServe(parent context.Context, root, addr string, skipInitialBuild bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	holder, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := holder.Get()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	defer embedder.Close()

	idx, err := indexer.New(indexer.Config{
		Root:       root,
		CacheDir:   cfg.CacheDir,
		Dimensions: cfg.Embedding.Dimensions,
		Embedder:   embedder,
	})
	if err != nil {
		return err
	}
	defer idx.Close()

	if !skipInitialBuild {
		if err := idx.BuildIndex(ctx); err != nil {
			return err
		}
	}

	w, err := watcher.NewFsWatcher(watcher.DefaultOptions())
	if err != nil {
		return err
	}
	defer w.Stop()

	go func() {
		if err := w.Start(ctx, root); err != nil && ctx.Err() == nil {
			slog.Error("watcher stopped", slog.String("error", err.Error()))
		}
	}()

	go drainEvents(ctx, idx, w)

	if addr == "" {
		addr = cfg.ListenAddr
	}
	return server.New(idx, holder).ListenAndServe(ctx, addr)
}

// drainEvents forwards watcher batches into the indexer one event at
// a time. Per-event failures are logged; the stream continues.
func drainEvents(ctx context.Context, idx *indexer.Indexer, w watcher.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-w.Events():
			if !ok {
				return
			}
			for _, ev := range batch {
				if err := idx.ProcessEvent(ctx, ev); err != nil {
					slog.Warn("failed to process file event",
						slog.String("kind", ev.Kind.String()),
						slog.String("path", ev.Src),
						slog.String("error", err.Error()))
				}
			}
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}
