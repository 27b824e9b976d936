package persistence

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vendapro/vendapro-saas/platform/go/tenant/poolcache"
)

// ScopedDB executes queries for one resolved session, always inside the
// session's schema. Call sites never name the schema themselves; the
// search_path is pinned on every borrowed connection before the statement
// runs, since pooled connections have no guaranteed schema affinity over
// their lifetime.
type ScopedDB struct {
	handle   *poolcache.Handle
	tenantID uuid.UUID
	schema   string
}

// NewScopedDB wraps a pool handle for the given schema.
func NewScopedDB(handle *poolcache.Handle, schema string) (*ScopedDB, error) {
	if handle == nil {
		return nil, errors.New("scoped db requires a pool handle")
	}
	if err := ValidIdentifier(schema); err != nil {
		return nil, fmt.Errorf("schema name: %w", err)
	}
	return &ScopedDB{handle: handle, tenantID: handle.TenantID(), schema: schema}, nil
}

// Schema returns the schema every statement from this ScopedDB runs against.
func (db *ScopedDB) Schema() string { return db.schema }

// QueryError annotates a failed statement with the owning tenant and a
// redacted statement text. Parameters are never included; they may carry
// secrets or personal data.
type QueryError struct {
	TenantID  uuid.UUID
	Statement string
	Err       error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed for tenant %s: %v (stmt: %s)", e.TenantID, e.Err, e.Statement)
}

func (e *QueryError) Unwrap() error { return e.Err }

// RowSet is the materialized result of a scoped query.
type RowSet struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (rs RowSet) Len() int { return len(rs.Rows) }

// Query borrows a connection, pins the search_path, runs sql with positional
// parameters, and releases the connection on every path. The executor never
// retries; retry policy belongs to the caller.
func (db *ScopedDB) Query(ctx context.Context, sql string, args ...any) (RowSet, error) {
	var rs RowSet
	err := db.withConn(ctx, sql, func(conn poolcache.Conn) error {
		rows, err := conn.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for _, fd := range rows.FieldDescriptions() {
			rs.Columns = append(rs.Columns, string(fd.Name))
		}
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return err
			}
			rs.Rows = append(rs.Rows, values)
		}
		return rows.Err()
	})
	if err != nil {
		return RowSet{}, err
	}
	return rs, nil
}

// Exec runs a statement and reports affected rows.
func (db *ScopedDB) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	var affected int64
	err := db.withConn(ctx, sql, func(conn poolcache.Conn) error {
		tag, err := conn.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	return affected, err
}

// WithSession executes fn inside one transaction pinned to the session
// schema. fn returning an error rolls the transaction back; nil commits.
// Statements issued through tx need no further scoping.
func (db *ScopedDB) WithSession(ctx context.Context, fn func(tx pgx.Tx) error) error {
	conn, err := db.handle.Pool().Acquire(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			db.handle.MarkDegraded()
		}
		return &QueryError{TenantID: db.tenantID, Statement: "begin", Err: err}
	}
	defer conn.Release()
	db.handle.Touch()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return &QueryError{TenantID: db.tenantID, Statement: "begin", Err: err}
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, false)`, db.schema); err != nil {
		return &QueryError{TenantID: db.tenantID, Statement: "begin", Err: fmt.Errorf("set search_path: %w", err)}
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return &QueryError{TenantID: db.tenantID, Statement: "commit", Err: err}
	}
	return nil
}

func (db *ScopedDB) withConn(ctx context.Context, sql string, fn func(conn poolcache.Conn) error) error {
	conn, err := db.handle.Pool().Acquire(ctx)
	if err != nil {
		// Failure to hand out a connection after successful pool creation
		// means the tenant database went away; flag the handle so the cache
		// recreates it on next access.
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			db.handle.MarkDegraded()
		}
		return &QueryError{TenantID: db.tenantID, Statement: redactStatement(sql), Err: err}
	}
	defer conn.Release()
	db.handle.Touch()

	if _, err := conn.Exec(ctx, `SELECT set_config('search_path', $1, false)`, db.schema); err != nil {
		return &QueryError{TenantID: db.tenantID, Statement: redactStatement(sql), Err: fmt.Errorf("set search_path: %w", err)}
	}

	if err := fn(conn); err != nil {
		return &QueryError{TenantID: db.tenantID, Statement: redactStatement(sql), Err: err}
	}
	return nil
}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// reservedIdentifiers are SQL keywords that match the pattern but must never
// be accepted as dynamic schema or table names.
var reservedIdentifiers = map[string]struct{}{
	"all": {}, "alter": {}, "and": {}, "create": {}, "delete": {},
	"drop": {}, "from": {}, "grant": {}, "group": {}, "insert": {},
	"join": {}, "not": {}, "null": {}, "or": {}, "order": {},
	"schema": {}, "select": {}, "table": {}, "union": {}, "update": {},
	"user": {}, "where": {},
}

// ValidIdentifier is the allow-list for dynamic schema/table identifiers.
// Anything dynamic that cannot pass here must not reach a statement.
func ValidIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	if _, reserved := reservedIdentifiers[name]; reserved {
		return fmt.Errorf("reserved identifier %q", name)
	}
	return nil
}

var (
	stringLiteral = regexp.MustCompile(`'(?:[^']|'')*'`)
	whitespace    = regexp.MustCompile(`\s+`)
)

const redactedMaxLen = 200

// redactStatement collapses embedded string literals and whitespace so the
// statement shape survives into logs without any literal values.
func redactStatement(sql string) string {
	s := stringLiteral.ReplaceAllString(sql, "'?'")
	s = whitespace.ReplaceAllString(strings.TrimSpace(s), " ")
	if len(s) > redactedMaxLen {
		s = s[:redactedMaxLen] + "..."
	}
	return s
}
