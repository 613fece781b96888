package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// maxParams bounds the number of IN (...) parameters per query.
const maxParams = 500

// Get loads one row by key. A missing row is not an error.
func (s *Store) Get(ctx context.Context, entity, key string) (Values, bool, error) {
	ent, err := Lookup(entity)
	if err != nil {
		return nil, false, queryErr("get", err)
	}
	db, err := s.conn("get")
	if err != nil {
		return nil, false, err
	}

	names := make([]string, len(ent.Columns))
	dest := make([]any, len(ent.Columns))
	strs := make([]string, len(ent.Columns))
	ints := make([]int64, len(ent.Columns))
	for i, c := range ent.Columns {
		names[i] = c.Name
		if c.Int {
			dest[i] = &ints[i]
		} else {
			dest[i] = &strs[i]
		}
	}

	err = db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", strings.Join(names, ", "), ent.Table, ent.Key),
		key).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, queryErr("get", fmt.Errorf("%s %s: %w", entity, key, err))
	}

	v := make(Values, len(ent.Columns))
	for i, c := range ent.Columns {
		if c.Int {
			v[c.Name] = ints[i]
		} else {
			v[c.Name] = strs[i]
		}
	}
	return v, true, nil
}

// Keys returns every key of entity in ascending order.
func (s *Store) Keys(ctx context.Context, entity string) ([]string, error) {
	db, err := s.conn("keys")
	if err != nil {
		return nil, err
	}
	return queryKeys(ctx, db, entity)
}

// querier is the read side shared by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryKeys(ctx context.Context, q querier, entity string) ([]string, error) {
	ent, err := Lookup(entity)
	if err != nil {
		return nil, queryErr("keys", err)
	}
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", ent.Key, ent.Table, ent.Key))
	if err != nil {
		return nil, queryErr("keys", err)
	}
	return scanStrings(rows, "keys")
}

// Project returns the distinct values of column selectCol for rows whose
// whereCol is in values, in ascending order. Both columns must be text columns.
func (s *Store) Project(ctx context.Context, entity, selectCol, whereCol string, values []string) ([]string, error) {
	db, err := s.conn("project")
	if err != nil {
		return nil, err
	}
	return queryProject(ctx, db, entity, selectCol, whereCol, values)
}

func queryProject(ctx context.Context, q querier, entity, selectCol, whereCol string, values []string) ([]string, error) {
	ent, err := Lookup(entity)
	if err != nil {
		return nil, queryErr("project", err)
	}
	for _, name := range []string{selectCol, whereCol} {
		c, ok := ent.Column(name)
		if !ok || c.Int {
			return nil, queryErr("project", fmt.Errorf("%s has no text column %q", entity, name))
		}
	}
	seen := make(map[string]bool)
	var out []string
	for start := 0; start < len(values); start += maxParams {
		end := min(start+maxParams, len(values))
		chunk := values[start:end]

		args := make([]any, len(chunk))
		for i, v := range chunk {
			args[i] = v
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ")
		rows, err := q.QueryContext(ctx,
			fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IN (%s)", selectCol, ent.Table, whereCol, placeholders),
			args...)
		if err != nil {
			return nil, queryErr("project", err)
		}
		got, err := scanStrings(rows, "project")
		if err != nil {
			return nil, err
		}
		for _, v := range got {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// KeysWhere returns the keys of rows whose column is in values.
func (s *Store) KeysWhere(ctx context.Context, entity, column string, values []string) ([]string, error) {
	ent, err := Lookup(entity)
	if err != nil {
		return nil, queryErr("keys where", err)
	}
	return s.Project(ctx, entity, ent.Key, column, values)
}

// Count returns the number of rows of entity.
func (s *Store) Count(ctx context.Context, entity string) (int, error) {
	ent, err := Lookup(entity)
	if err != nil {
		return 0, queryErr("count", err)
	}
	db, err := s.conn("count")
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", ent.Table)).Scan(&n); err != nil {
		return 0, queryErr("count", fmt.Errorf("%s: %w", entity, err))
	}
	return n, nil
}

func scanStrings(rows *sql.Rows, op string) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, queryErr(op, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr(op, err)
	}
	return out, nil
}
