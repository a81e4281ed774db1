package main

import (
	"github.com/koustreak/dbspec/internal/apply"
	"github.com/spf13/cobra"
)

func applyCmd() *cobra.Command {
	var (
		pf     planFlags
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Execute the plan in one transaction",
		Long: `Apply computes the same statements as plan and runs them inside a single
transaction, stopping at the first failure. With --dry-run the statements are
printed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			db, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			stmts, err := pf.statements(ctx, a, db)
			if err != nil {
				return err
			}
			_, err = apply.Run(ctx, db, stmts, apply.Options{
				DryRun:           dryRun,
				Out:              cmd.OutOrStdout(),
				StatementTimeout: a.cfg.Database.QueryTimeout,
				Logger:           a.log,
			})
			return err
		},
	}
	pf.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the statements instead of executing them")
	return cmd
}
