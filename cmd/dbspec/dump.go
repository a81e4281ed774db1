package main

import (
	"os"

	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/spec"
	"github.com/spf13/cobra"
)

func dumpCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write the live database as YAML specification files",
		Long: `Dump reads the catalog of the configured database and writes it to the
configured store, split per --split. With --output the whole database goes to
one document instead ("-" for stdout).`,
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

			cur, err := a.dump(ctx, db)
			if err != nil {
				return err
			}
			layout := a.cfg.Layout(a.dbName())

			if output != "" {
				text, err := spec.Marshal(cur, layout.Options)
				if err != nil {
					return err
				}
				if output == "-" {
					_, err = cmd.OutOrStdout().Write(text)
				} else {
					err = os.WriteFile(output, text, 0o644)
				}
				if err != nil {
					return errs.Wrap(errs.ErrKindInvalidInput, "write "+output, err)
				}
				return nil
			}

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			keys, err := spec.WriteFiles(ctx, store, cur, layout)
			if err != nil {
				return err
			}
			a.log.InfoWith("specification written", map[string]interface{}{
				"objects": cur.Len(),
				"files":   len(keys),
				"root":    layout.RootKey(),
			})
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "", `Write a single document to this file ("-" for stdout)`)
	f.String("split", "", "File layout: none, schema or object")
	f.Bool("no-owner", false, "Omit owners")
	f.Bool("no-privileges", false, "Omit privileges")
	f.String("dir", "", "Directory inside the store bucket")
	return cmd
}
