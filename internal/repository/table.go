package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// table bundles the query helpers shared by every repository: a fixed
// column list, a row scanner and not-found translation.  Repositories embed
// one per table instead of repeating the plumbing.
type table[T any] struct {
	db      *sql.DB
	name    string
	columns string
	scan    func(rowScanner) (*T, error)
}

// one runs "SELECT <columns> FROM <name> <tail>" and scans a single row.
func (t table[T]) one(ctx context.Context, tail string, args ...any) (*T, error) {
	q := fmt.Sprintf("SELECT %s FROM %s %s", t.columns, t.name, tail)
	v, err := t.scan(t.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: query: %w", t.name, err)
	}
	return v, nil
}

// many runs "SELECT <columns> FROM <name> <tail>" and scans every row.
func (t table[T]) many(ctx context.Context, tail string, args ...any) ([]T, error) {
	q := fmt.Sprintf("SELECT %s FROM %s %s", t.columns, t.name, tail)
	rows, err := t.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", t.name, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", t.name, err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", t.name, err)
	}
	return out, nil
}

// count runs "SELECT COUNT(*) FROM <name> <where>".
func (t table[T]) count(ctx context.Context, where string, args ...any) (int, error) {
	var n int
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", t.name, where)
	if err := t.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: count: %w", t.name, err)
	}
	return n, nil
}

// exec runs a write and returns the number of matched rows.
func (t table[T]) exec(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := t.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: rows affected: %w", t.name, err)
	}
	return n, nil
}
