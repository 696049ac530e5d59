package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Luppa90/vertex-local/internal/profile"
	"github.com/Luppa90/vertex-local/plugin/llm"
	"github.com/Luppa90/vertex-local/plugin/vectorstore"
	"github.com/Luppa90/vertex-local/server"
	"github.com/Luppa90/vertex-local/store"
	"github.com/Luppa90/vertex-local/store/db/postgres"
	"github.com/Luppa90/vertex-local/store/db/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "vertex-local",
	Short: "Local branching-chat server backed by SQLite or Postgres",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

func run(ctx context.Context) error {
	p, err := profile.Load()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p.Data, 0750); err != nil {
		return err
	}

	var driver store.Driver
	switch p.Driver {
	case "postgres":
		driver, err = postgres.NewDB(p.DSN)
	default:
		driver, err = sqlite.NewDB(p.DSN)
	}
	if err != nil {
		return err
	}

	st := store.New(driver)
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	defer st.Close()

	var vs *vectorstore.Store
	if p.Embeddings {
		vs, err = vectorstore.New(p.Data, chromem.NewEmbeddingFuncDefault())
		if err != nil {
			slog.Warn("semantic index disabled", "err", err)
			vs = nil
		}
	}

	srv := server.New(p, st, llm.NewGeminiClient(p.APIKey, p.BaseURL), vs)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("exit", "err", err)
		os.Exit(1)
	}
}
