package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/statements-tracker/internal/common"
	"github.com/joseph-ayodele/statements-tracker/internal/llm"
	"github.com/joseph-ayodele/statements-tracker/internal/llm/provider"
	"github.com/joseph-ayodele/statements-tracker/internal/memory"
	"github.com/joseph-ayodele/statements-tracker/internal/pipeline"
	repo "github.com/joseph-ayodele/statements-tracker/internal/repository"
	"github.com/joseph-ayodele/statements-tracker/internal/services/statement"
)

// app holds what the subcommands share. The database is opened on first use.
type app struct {
	cfg    *common.Config
	logger *slog.Logger
	db     *repo.DB
	out    io.Writer

	logLevel string
	userID   string
}

func newRootCmd() *cobra.Command {
	a := &app{out: os.Stdout}
	root := &cobra.Command{
		Use:           "statements",
		Short:         "Extract transactions from bank statements",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	root.PersistentFlags().StringVar(&a.userID, "user", "", "user id; defaults to INBOX_USER")

	root.AddCommand(parseCmd(a))
	root.AddCommand(healthCmd(a))
	root.AddCommand(migrateCmd(a))
	root.AddCommand(exportCmd(a))
	root.AddCommand(listCmd(a))
	root.AddCommand(traceCmd(a))
	root.AddCommand(memoryCmd(a))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) init() error {
	a.cfg = common.LoadConfig()
	if a.logLevel != "" {
		a.cfg.Log.Level = a.logLevel
	}
	if a.userID == "" {
		a.userID = a.cfg.Inbox.UserID
	}
	// logs go to stderr; stdout carries results
	a.logger = common.SetupLogger(os.Stderr, a.cfg.Log)
	return a.cfg.Validate()
}

func (a *app) open(ctx context.Context) (*repo.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := repo.Open(ctx, repo.Config(a.cfg.Database), a.logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := repo.Migrate(ctx, db, a.logger); err != nil {
		db.Close(a.logger)
		return nil, err
	}
	a.db = db
	return db, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close(a.logger)
		a.db = nil
	}
}

func (a *app) model() llm.Client {
	return provider.New(a.cfg.LLM, a.logger)
}

func (a *app) memory() *memory.FileStore {
	return memory.NewFileStore(a.cfg.Memory.Dir, a.logger)
}

// service wires the parser with the store as its sink.
func (a *app) service(ctx context.Context) (*statement.Service, *repo.Store, error) {
	db, err := a.open(ctx)
	if err != nil {
		return nil, nil, err
	}
	store := repo.NewStore(db, a.logger)
	parser := pipeline.New(pipeline.SettingsFromConfig(a.cfg), a.model(), store, nil, a.logger)
	return statement.NewService(store, parser, a.memory(), a.logger), store, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
