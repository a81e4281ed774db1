package main

import (
	"context"

	"github.com/koustreak/dbspec/internal/apply"
	"github.com/koustreak/dbspec/internal/database/postgres"
	"github.com/koustreak/dbspec/internal/ddl"
	"github.com/spf13/cobra"
)

// planFlags are shared by plan and apply.
type planFlags struct {
	input  string
	revert bool
}

func (p *planFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&p.input, "input", "i", "", `Read the target from this file ("-" for stdin) instead of the store`)
	f.BoolVar(&p.revert, "revert", false, "Produce the statements that undo the plan")
	f.String("dir", "", "Directory inside the store bucket")
}

// statements compares the live database with the target and synthesizes
// the DDL between them.
func (p *planFlags) statements(ctx context.Context, a *app, db *postgres.Driver) ([]ddl.Statement, error) {
	target, err := a.readTarget(ctx, p.input)
	if err != nil {
		return nil, err
	}
	current, err := a.dump(ctx, db)
	if err != nil {
		return nil, err
	}
	if p.revert {
		current, target = target, current
	}
	stmts, cs, err := ddl.New(ddl.Options{Policy: a.policy, Logger: a.log}).
		Plan(current, target, a.cfg.Options.Schemas)
	if err != nil {
		return nil, err
	}
	a.log.DebugWith("plan computed", map[string]interface{}{
		"changes":    len(cs.Changes),
		"reordered":  len(cs.Reordered),
		"statements": len(stmts),
	})
	return stmts, nil
}

func planCmd() *cobra.Command {
	var pf planFlags
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the DDL that turns the database into the specification",
		Args:  cobra.NoArgs,
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
			return apply.Write(cmd.OutOrStdout(), stmts)
		},
	}
	pf.register(cmd)
	return cmd
}
