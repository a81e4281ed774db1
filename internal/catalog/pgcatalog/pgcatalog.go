// Package pgcatalog reads a live PostgreSQL catalog into catalog rows.
package pgcatalog

import (
	"context"
	"fmt"
	"time"

	"github.com/koustreak/dbspec/internal/catalog"
	"github.com/koustreak/dbspec/internal/database"
	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/logger"
	"github.com/koustreak/dbspec/internal/model"
)

// minServerVersion is the oldest server whose catalog the queries match
// (pg_proc.prokind, pg_constraint.conparentid).
const minServerVersion = 110000

// Introspector implements catalog.Source over a database connection.
type Introspector struct {
	db  database.Querier
	log *logger.Logger
}

// NewIntrospector creates an introspector reading through db.
func NewIntrospector(db database.Querier, log *logger.Logger) *Introspector {
	return &Introspector{db: db, log: logger.OrNop(log)}
}

// Rows runs the catalog query for kind.
func (p *Introspector) Rows(ctx context.Context, kind model.Kind) ([]catalog.Row, error) {
	q, ok := queries[kind]
	if !ok {
		return nil, errs.Newf(errs.ErrKindUnsupportedObject, "no catalog query for %s", kind)
	}

	start := time.Now()
	rows, err := p.db.Query(ctx, q)
	if err != nil {
		return nil, errs.Wrap(errs.KindOf(err), fmt.Sprintf("reading %s catalog", kind), err)
	}
	maps, err := database.ScanRows(rows)
	if err != nil {
		return nil, errs.Wrap(errs.KindOf(err), fmt.Sprintf("reading %s catalog", kind), err)
	}

	out := make([]catalog.Row, len(maps))
	for i, m := range maps {
		out[i] = catalog.Row(m)
	}
	p.log.DebugWith("catalog query", map[string]interface{}{
		"kind":        kind.String(),
		"rows":        len(out),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return out, nil
}

// ServerVersion returns server_version_num.
func (p *Introspector) ServerVersion(ctx context.Context) (int, error) {
	var v int
	if err := p.db.QueryRow(ctx, "SELECT current_setting('server_version_num')::int").Scan(&v); err != nil {
		return 0, errs.Wrap(errs.KindOf(err), "reading server version", err)
	}
	return v, nil
}

// Dump materializes the database behind db from one consistent snapshot:
// every catalog query runs in a single read-only repeatable-read
// transaction, which is rolled back afterwards.
func Dump(ctx context.Context, db database.DB, opts catalog.Options) (*model.Database, error) {
	log := logger.OrNop(opts.Logger)

	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := tx.Rollback(ctx); rerr != nil {
			log.With().Err(rerr).Logger().Warn("rollback of catalog snapshot failed")
		}
	}()

	if _, err := tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL REPEATABLE READ READ ONLY"); err != nil {
		return nil, err
	}

	src := NewIntrospector(tx, log)
	version, err := src.ServerVersion(ctx)
	if err != nil {
		return nil, err
	}
	if version < minServerVersion {
		return nil, errs.Newf(errs.ErrKindUnsupportedObject,
			"server version %d is older than the supported minimum %d", version, minServerVersion)
	}
	log.With().Int("server_version", version).Logger().Debug("reading catalog")

	return catalog.Load(ctx, src, opts)
}
