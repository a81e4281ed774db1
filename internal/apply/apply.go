// Package apply runs synthesized DDL against a database.
package apply

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/koustreak/dbspec/internal/database"
	"github.com/koustreak/dbspec/internal/ddl"
	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/logger"
)

// Options control execution.
type Options struct {
	// DryRun writes the statements to Out instead of executing them.
	DryRun bool
	Out    io.Writer

	// StatementTimeout bounds each statement; zero means no limit.
	StatementTimeout time.Duration

	Logger *logger.Logger
}

// Result summarizes a run.
type Result struct {
	Executed int
	Duration time.Duration
}

// StatementError reports the statement that failed.
type StatementError struct {
	Index     int
	Statement ddl.Statement
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement %d failed: %v\n%s", e.Index+1, e.Err, e.Statement.SQL)
}

func (e *StatementError) Unwrap() error { return e.Err }

// Write prints statements, each terminated by ";" and a newline.
func Write(w io.Writer, stmts []ddl.Statement) error {
	var b strings.Builder
	for _, s := range stmts {
		b.WriteString(s.SQL)
		b.WriteString(";\n")
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "failed to write statements", err)
	}
	return nil
}

// Run executes stmts inside one transaction. Execution stops at the first
// failure; the transaction is rolled back and the returned error is a
// *StatementError wrapping the database error.
func Run(ctx context.Context, db database.DB, stmts []ddl.Statement, opts Options) (Result, error) {
	log := logger.OrNop(opts.Logger)
	start := time.Now()

	if opts.DryRun {
		if opts.Out == nil {
			return Result{}, errs.New(errs.ErrKindInvalidInput, "dry run needs an output")
		}
		return Result{}, Write(opts.Out, stmts)
	}
	if len(stmts) == 0 {
		log.Info("nothing to apply")
		return Result{}, nil
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for i, s := range stmts {
		if err := execOne(ctx, tx, s, opts.StatementTimeout); err != nil {
			log.ErrorWith("statement failed", err, map[string]interface{}{
				"index": i + 1,
				"key":   s.Key.String(),
				"sql":   s.SQL,
			})
			if rerr := tx.Rollback(ctx); rerr != nil {
				log.With().Err(rerr).Logger().Warn("rollback failed")
			}
			return res, &StatementError{Index: i, Statement: s, Err: err}
		}
		log.DebugWith("statement applied", map[string]interface{}{
			"phase": s.Phase.String(),
			"sql":   s.SQL,
		})
		res.Executed++
	}

	if err := tx.Commit(ctx); err != nil {
		return res, err
	}
	res.Duration = time.Since(start)
	log.InfoWith("changes applied", map[string]interface{}{
		"statements":  res.Executed,
		"duration_ms": res.Duration.Milliseconds(),
	})
	return res, nil
}

func execOne(ctx context.Context, tx database.Tx, s ddl.Statement, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	_, err := tx.Exec(ctx, s.SQL)
	return err
}
