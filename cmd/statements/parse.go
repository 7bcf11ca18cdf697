package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/entity"
	"github.com/joseph-ayodele/statements-tracker/internal/ingest"
	"github.com/joseph-ayodele/statements-tracker/internal/pipeline"
)

type parseOutput struct {
	entity.ParseResult
	File         string               `json:"file"`
	Deduplicated bool                 `json:"deduplicated,omitempty"`
	Transactions []entity.Transaction `json:"transactions,omitempty"`
}

func parseCmd(a *app) *cobra.Command {
	var (
		dryRun   bool
		force    bool
		withRows bool
	)
	cmd := &cobra.Command{
		Use:   "parse <file|dir>...",
		Short: "Parse statements and store their transactions",
		Long: `Parse one or more PDF or text statements. Directories are scanned for
statement files. Each result is printed as JSON.

With --dry-run nothing is stored and no database is needed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expand(args)
			if err != nil {
				return err
			}
			failed := 0
			for _, p := range paths {
				out, err := a.parseOne(cmd.Context(), p, dryRun, force)
				if err != nil {
					a.logger.Error("parse failed", "path", p, "error", err)
					failed++
					continue
				}
				if !withRows {
					out.Transactions = nil
				}
				if err := a.printJSON(out); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(paths))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse without storing anything")
	cmd.Flags().BoolVar(&force, "force", false, "parse again even if the same file was parsed before")
	cmd.Flags().BoolVar(&withRows, "transactions", false, "include the transactions in the output")
	return cmd
}

func (a *app) parseOne(ctx context.Context, path string, dryRun, force bool) (parseOutput, error) {
	if a.cfg.Pipeline.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Pipeline.RunTimeout)
		defer cancel()
	}

	if dryRun {
		f, err := ingest.ReadFile(path)
		if err != nil {
			return parseOutput{}, err
		}
		snap, err := a.memory().Snapshot(ctx, a.userID)
		if err != nil {
			a.logger.Warn("memory unavailable", "error", err)
		}
		parser := pipeline.New(pipeline.SettingsFromConfig(a.cfg), a.model(), nil, nil, a.logger)
		res := parser.Parse(ctx, f.Data, entity.UserContext{UserID: a.userID, Memory: snap})
		return parseOutput{ParseResult: res, File: f.Path, Transactions: res.Transactions}, nil
	}

	svc, _, err := a.service(ctx)
	if err != nil {
		return parseOutput{}, err
	}
	out, err := svc.ParseFile(ctx, path, a.userID, force)
	if err != nil {
		return parseOutput{}, err
	}
	res := out.Result
	if out.Deduplicated {
		res = entity.ParseResult{
			Status:           constants.RunStatus(out.Statement.Status),
			Message:          out.Statement.Message,
			StatementID:      out.Statement.ID,
			TransactionCount: out.Statement.TransactionCount,
			SchemaConfidence: out.Statement.SchemaConfidence,
			SchemaVariant:    out.Statement.SchemaVariant,
		}
		if out.Statement.Trace != nil {
			res.Trace = *out.Statement.Trace
		}
	}
	abs, _ := filepath.Abs(path)
	return parseOutput{ParseResult: res, File: abs, Deduplicated: out.Deduplicated, Transactions: res.Transactions}, nil
}

// expand replaces directories by the statement files under them.
func expand(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, _, _, err := ingest.ScanDirectory(arg, true)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	return paths, nil
}
