package main

import (
	"github.com/koustreak/dbspec/internal/server"
	"github.com/koustreak/dbspec/internal/spec"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve dump and plan over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				a.cfg.Server.Listen = listen
			}
			db, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			srv := server.New(db, server.Options{
				Catalog: a.catalogOptions(),
				Spec: spec.Options{
					NoOwner:      a.cfg.Options.NoOwner,
					NoPrivileges: a.cfg.Options.NoPrivileges,
				},
				Policy:         a.policy,
				Logger:         a.log,
				Store:          store,
				RequestTimeout: a.cfg.Database.QueryTimeout,
			})
			return srv.Run(ctx, a.cfg.Server.Listen)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (default from config, :8080)")
	return cmd
}
