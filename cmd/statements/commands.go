package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/export"
	"github.com/joseph-ayodele/statements-tracker/internal/llm"
	repo "github.com/joseph-ayodele/statements-tracker/internal/repository"
)

func healthCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the database and the model backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			report := struct {
				Database string     `json:"database"`
				Model    llm.Health `json:"model"`
			}{Database: "ok"}

			db, err := a.open(ctx)
			if err == nil {
				err = repo.HealthCheck(ctx, db, timeout, a.logger)
			}
			if err != nil {
				report.Database = err.Error()
			}
			report.Model = llm.CheckHealth(ctx, a.model(), a.cfg.LLM.Provider, timeout)

			if err := a.printJSON(report); err != nil {
				return err
			}
			if report.Database != "ok" {
				return fmt.Errorf("database unhealthy")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per check timeout")
	return cmd
}

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// open migrates
			if _, err := a.open(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(a.out, "migrations applied")
			return nil
		},
	}
}

func statementID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid statement id %q", arg)
	}
	return id, nil
}

func exportCmd(a *app) *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export <statement-id>",
		Short: "Export the transactions of a statement to XLSX or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := statementID(args[0])
			if err != nil {
				return err
			}
			db, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			svc := export.NewService(repo.NewStore(db, a.logger), a.logger)

			var data []byte
			switch strings.ToLower(format) {
			case "xlsx":
				data, err = svc.ExportXLSX(cmd.Context(), id)
			case "csv":
				data, err = svc.ExportCSV(cmd.Context(), id)
			default:
				return fmt.Errorf("unknown format %q (xlsx or csv)", format)
			}
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("statement-%d.%s", id, strings.ToLower(format))
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			_, _ = fmt.Fprintf(a.out, "wrote %s (%d bytes)\n", out, len(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "xlsx", "xlsx or csv")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default statement-<id>.<format>)")
	return cmd
}

func listCmd(a *app) *cobra.Command {
	var (
		limit int
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List parsed statements",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			user := a.userID
			if all {
				user = ""
			}
			sts, err := repo.NewStore(db, a.logger).ListStatements(cmd.Context(), user, limit)
			if err != nil {
				return err
			}
			for _, st := range sts {
				_, _ = fmt.Fprintf(a.out, "%d\t%s\t%s\t%-8s\t%3d\t%.2f\t%s\n",
					st.ID, st.UploadedAt.Format(time.DateTime), st.UserID, st.Status,
					st.TransactionCount, st.SchemaConfidence, st.OriginalFilename)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum statements to list")
	cmd.Flags().BoolVar(&all, "all", false, "list every user's statements")
	return cmd
}

func traceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "trace <statement-id>",
		Short: "Print the decision trace of the last parse of a statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := statementID(args[0])
			if err != nil {
				return err
			}
			db, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			st, err := repo.NewStore(db, a.logger).GetStatement(cmd.Context(), id)
			if err != nil {
				return err
			}
			if st.Trace == nil || st.Status == repo.StatementStatusPending {
				return fmt.Errorf("statement %d has not been parsed", id)
			}
			return a.printJSON(struct {
				Status  constants.RunStatus `json:"status"`
				Variant string              `json:"schema_variant"`
				Trace   any                 `json:"trace"`
			}{constants.RunStatus(st.Status), st.SchemaVariant, st.Trace})
		},
	}
}

func memoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Show or edit the user's known merchants and layout hints",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the memory snapshot parse runs see",
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := a.memory().Snapshot(cmd.Context(), a.userID)
			if err != nil {
				return err
			}
			return a.printJSON(snap)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "add-merchant <name>...",
		Short: "Add known merchant names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := a.memory()
			snap, err := store.Snapshot(cmd.Context(), a.userID)
			if err != nil {
				return err
			}
			snap.KnownMerchants = append(snap.KnownMerchants, args...)
			return store.Save(cmd.Context(), a.userID, snap)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "add-hint <hint>...",
		Short: "Add prior layout hints, e.g. " + string(constants.LayoutTabularLedger),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := a.memory()
			snap, err := store.Snapshot(cmd.Context(), a.userID)
			if err != nil {
				return err
			}
			snap.PriorLayoutHints = append(snap.PriorLayoutHints, args...)
			return store.Save(cmd.Context(), a.userID, snap)
		},
	})
	return cmd
}
