// Package sqlxrepos implements the repositories on top of PostgreSQL.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core"
)

// postgres error codes
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeDiskFull            = "53100"
)

// NewDB wraps a connection opened with database.Open.
func NewDB(db *sql.DB) *sqlx.DB {
	return sqlx.NewDb(db, "postgres")
}

// psql builds statements with `$n` placeholders. Where conditions are AND-ed.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// selectAll runs `qb` and scans every row into `dest`.
func selectAll(ctx context.Context, db *sqlx.DB, dest interface{}, qb sq.SelectBuilder) error {
	q, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return db.SelectContext(ctx, dest, q, args...)
}

// selectRow runs `qb` and scans the first row into `dest`; sql.ErrNoRows when there is none.
func selectRow(ctx context.Context, db *sqlx.DB, dest interface{}, qb sq.SelectBuilder) error {
	q, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return db.GetContext(ctx, dest, q, args...)
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

// storageErr maps a full disk to core.ErrStorageQuota.
func storageErr(err error) error {
	if pqCode(err) == codeDiskFull {
		return core.ErrStorageQuota
	}
	return err
}

// namedGet runs a named query expected to return one row and scans it into `dest`.
func namedGet(ctx context.Context, db *sqlx.DB, dest interface{}, query string, arg interface{}) error {
	rows, err := db.NamedQueryContext(ctx, query, arg)
	if err != nil {
		return storageErr(err)
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	return rows.StructScan(dest)
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	return int(n), err
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
