package main

import (
	"context"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/dbspec/internal/catalog"
	"github.com/koustreak/dbspec/internal/catalog/pgcatalog"
	"github.com/koustreak/dbspec/internal/config"
	"github.com/koustreak/dbspec/internal/database/postgres"
	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/filestore"
	localstore "github.com/koustreak/dbspec/internal/filestore/local"
	miniostore "github.com/koustreak/dbspec/internal/filestore/minio"
	"github.com/koustreak/dbspec/internal/ident"
	"github.com/koustreak/dbspec/internal/logger"
	"github.com/koustreak/dbspec/internal/model"
	"github.com/koustreak/dbspec/internal/spec"
	"github.com/spf13/cobra"
)

// app is the state shared by every subcommand: the effective configuration
// after flag overrides and the logger built from it.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	policy *ident.Policy
}

func newApp(cmd *cobra.Command) (*app, error) {
	f := cmd.Flags()
	path, _ := f.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if f.Changed("dsn") {
		cfg.Database.DSN, _ = f.GetString("dsn")
	}
	if f.Changed("host") {
		cfg.Database.Host, _ = f.GetString("host")
	}
	if f.Changed("port") {
		cfg.Database.Port, _ = f.GetInt("port")
	}
	if f.Changed("user") {
		cfg.Database.User, _ = f.GetString("user")
	}
	if f.Changed("dbname") {
		cfg.Database.Database, _ = f.GetString("dbname")
	}
	if f.Changed("schema") {
		cfg.Options.Schemas, _ = f.GetStringSlice("schema")
	}
	if f.Changed("exclude-schema") {
		cfg.Options.ExcludeSchemas, _ = f.GetStringSlice("exclude-schema")
	}
	if f.Changed("log-level") {
		cfg.Log.Level, _ = f.GetString("log-level")
	}
	if f.Changed("log-format") {
		cfg.Log.Format, _ = f.GetString("log-format")
	}
	if f.Lookup("split") != nil && f.Changed("split") {
		cfg.Options.Split, _ = f.GetString("split")
	}
	if f.Lookup("no-owner") != nil && f.Changed("no-owner") {
		cfg.Options.NoOwner, _ = f.GetBool("no-owner")
	}
	if f.Lookup("no-privileges") != nil && f.Changed("no-privileges") {
		cfg.Options.NoPrivileges, _ = f.GetBool("no-privileges")
	}
	if f.Lookup("dir") != nil && f.Changed("dir") {
		cfg.Store.Dir, _ = f.GetString("dir")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logCfg := cfg.Log
	logCfg.Output = os.Stderr
	return &app{cfg: cfg, log: logger.New(&logCfg), policy: cfg.Policy()}, nil
}

func (a *app) catalogOptions() catalog.Options {
	return catalog.Options{
		Policy:         a.policy,
		Schemas:        a.cfg.Options.Schemas,
		ExcludeSchemas: a.cfg.Options.ExcludeSchemas,
		Logger:         a.log,
	}
}

func (a *app) connect(ctx context.Context) (*postgres.Driver, error) {
	db, err := postgres.New(ctx, &a.cfg.Database)
	if err != nil {
		return nil, err
	}
	a.log.With().Str("database", a.dbName()).Logger().Debug("connected")
	return db, nil
}

// dump materializes the live database.
func (a *app) dump(ctx context.Context, db *postgres.Driver) (*model.Database, error) {
	if a.cfg.Database.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Database.QueryTimeout)
		defer cancel()
	}
	return pgcatalog.Dump(ctx, db, a.catalogOptions())
}

// dbName names the root document. It comes from the configuration or,
// failing that, from the connection string.
func (a *app) dbName() string {
	if a.cfg.Database.Database != "" {
		return a.cfg.Database.Database
	}
	if pc, err := pgconn.ParseConfig(a.cfg.Database.DSN); err == nil && pc.Database != "" {
		return pc.Database
	}
	return "postgres"
}

func (a *app) openStore(ctx context.Context) (filestore.Store, error) {
	switch a.cfg.Store.Provider {
	case filestore.ProviderLocal:
		return localstore.New(ctx, &a.cfg.Store.Config)
	case filestore.ProviderMinIO:
		return miniostore.New(ctx, &a.cfg.Store.Config)
	}
	return nil, errs.Newf(errs.ErrKindInvalidInput, "unknown store provider %q", a.cfg.Store.Provider)
}

// readTarget loads the desired state: from input when given ("-" is
// stdin), otherwise from the configured store.
func (a *app) readTarget(ctx context.Context, input string) (*model.Database, error) {
	if input != "" {
		var (
			data []byte
			err  error
		)
		if input == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(input)
		}
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "read "+input, err)
		}
		return spec.Unmarshal(data, a.policy)
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return spec.ReadFiles(ctx, store, a.cfg.Layout(a.dbName()), a.policy)
}
