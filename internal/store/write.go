package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roach88/nostrcache/internal/diag"
)

// Commit applies cs in a single transaction. Either every change is
// persisted or none is.
//
// Upserts write only the columns present in Change.Values, so two contexts
// editing different columns of the same row never overwrite each other, and
// for a column both edited the later commit wins. Inserted rows take the
// table defaults for columns not in Values, and an insert of a row that
// already exists only updates the columns in Values. An update of a row that
// no longer exists is dropped rather than resurrecting it. Deleting an owner
// also deletes its owned rows; those deletions are added to the returned
// change set with Cascaded set.
//
// onCommitted, if not nil, runs after the transaction commits and while the
// writer gate is still held, so notifications observe commits in order.
func (s *Store) Commit(ctx context.Context, cs ChangeSet, onCommitted func(ChangeSet)) (ChangeSet, error) {
	return s.CommitPlanned(ctx, func(context.Context, *Snapshot) (ChangeSet, error) {
		return cs, nil
	}, onCommitted)
}

// Snapshot reads the store from inside a commit's transaction. No other
// commit can interleave between its reads and the commit it belongs to.
type Snapshot struct {
	tx *sql.Tx
}

// Keys is Store.Keys read inside the transaction.
func (sn *Snapshot) Keys(ctx context.Context, entity string) ([]string, error) {
	return queryKeys(ctx, sn.tx, entity)
}

// Project is Store.Project read inside the transaction.
func (sn *Snapshot) Project(ctx context.Context, entity, selectCol, whereCol string, values []string) ([]string, error) {
	return queryProject(ctx, sn.tx, entity, selectCol, whereCol, values)
}

// CommitPlanned is Commit for a change set that depends on the stored data.
// plan runs under the writer gate inside the commit's transaction and
// returns the change set to apply, so the data it read cannot change before
// the commit. A plan error rolls the transaction back.
//
// The snapshot must not be used after plan returns.
func (s *Store) CommitPlanned(ctx context.Context, plan func(context.Context, *Snapshot) (ChangeSet, error), onCommitted func(ChangeSet)) (ChangeSet, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	db, err := s.conn("commit")
	if err != nil {
		return ChangeSet{}, err
	}

	start := time.Now()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		diag.RecordCommitFailure()
		return ChangeSet{}, commitErr("commit", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() // No-op if committed

	cs, err := plan(ctx, &Snapshot{tx: tx})
	if err != nil {
		diag.RecordCommitFailure()
		return ChangeSet{}, commitErr("commit", fmt.Errorf("plan: %w", err))
	}

	committed := ChangeSet{ID: cs.ID, Origin: cs.Origin}
	for _, ch := range orderChanges(cs.Changes) {
		ent, err := Lookup(ch.Entity)
		if err != nil {
			diag.RecordCommitFailure()
			return ChangeSet{}, commitErr("commit", err)
		}

		switch ch.Op {
		case OpUpsert:
			applied, err := upsertRow(ctx, tx, ent, ch)
			if err != nil {
				diag.RecordCommitFailure()
				return ChangeSet{}, commitErr("commit", err)
			}
			if applied {
				committed.Changes = append(committed.Changes, ch)
			}
		case OpDelete:
			deleted, err := deleteRow(ctx, tx, ent, ch.Key)
			if err != nil {
				diag.RecordCommitFailure()
				return ChangeSet{}, commitErr("commit", err)
			}
			committed.Changes = append(committed.Changes, deleted...)
		default:
			diag.RecordCommitFailure()
			return ChangeSet{}, commitErr("commit", fmt.Errorf("unknown op %d for %s %s", ch.Op, ch.Entity, ch.Key))
		}
	}

	if err := tx.Commit(); err != nil {
		diag.RecordCommitFailure()
		return ChangeSet{}, commitErr("commit", err)
	}

	s.seq++
	committed.Seq = s.seq
	diag.RecordCommit(time.Since(start))
	for _, ch := range committed.Changes {
		diag.RecordChange(ch.Entity, ch.Op.String())
	}

	if onCommitted != nil {
		onCommitted(committed)
	}
	return committed, nil
}

// orderChanges puts upserts first, owners before owned rows, then deletes.
// Within a group the input order is kept.
func orderChanges(changes []Change) []Change {
	out := make([]Change, len(changes))
	copy(out, changes)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Op != b.Op {
			return a.Op < b.Op
		}
		return entityByName[a.Entity].rank < entityByName[b.Entity].rank
	})
	return out
}

// sortedColumns validates the changed columns against the schema and
// returns them in a stable order.
func sortedColumns(ent Entity, values Values) ([]string, error) {
	cols := make([]string, 0, len(values))
	for name := range values {
		if name == ent.Key {
			continue
		}
		if _, ok := ent.Column(name); !ok {
			return nil, fmt.Errorf("%s has no column %q", ent.Name, name)
		}
		cols = append(cols, name)
	}
	sort.Strings(cols)
	return cols, nil
}

func upsertRow(ctx context.Context, tx *sql.Tx, ent Entity, ch Change) (bool, error) {
	cols, err := sortedColumns(ent, ch.Values)
	if err != nil {
		return false, err
	}

	if !ch.Inserted {
		if len(cols) == 0 {
			return false, nil
		}
		sets := make([]string, len(cols))
		args := make([]any, 0, len(cols)+1)
		for i, c := range cols {
			sets[i] = c + " = ?"
			args = append(args, ch.Values[c])
		}
		args = append(args, ch.Key)
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", ent.Table, strings.Join(sets, ", "), ent.Key),
			args...)
		if err != nil {
			return false, fmt.Errorf("update %s %s: %w", ent.Name, ch.Key, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("update %s %s: rows affected: %w", ent.Name, ch.Key, err)
		}
		return n > 0, nil
	}

	names := append([]string{ent.Key}, cols...)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	args := make([]any, 0, len(names))
	args = append(args, ch.Key)
	for _, c := range cols {
		args = append(args, ch.Values[c])
	}

	conflict := "DO NOTHING"
	if len(cols) > 0 {
		sets := make([]string, len(cols))
		for i, c := range cols {
			sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
		}
		conflict = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	_, err = tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) %s",
			ent.Table, strings.Join(names, ", "), placeholders, ent.Key, conflict),
		args...)
	if err != nil {
		return false, fmt.Errorf("insert %s %s: %w", ent.Name, ch.Key, err)
	}
	return true, nil
}

// deleteRow deletes one row and reports it together with the owned rows the
// foreign keys cascade to. Deleting a missing row reports nothing.
func deleteRow(ctx context.Context, tx *sql.Tx, ent Entity, key string) ([]Change, error) {
	cascaded, err := collectOwned(ctx, tx, ent, key)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", ent.Table, ent.Key), key)
	if err != nil {
		return nil, fmt.Errorf("delete %s %s: %w", ent.Name, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("delete %s %s: rows affected: %w", ent.Name, key, err)
	}
	if n == 0 {
		return nil, nil
	}

	// Owned rows are removed explicitly as well, so the result does not
	// depend on the foreign_keys pragma of the connection.
	for _, ch := range cascaded {
		owned, _ := Lookup(ch.Entity)
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", owned.Table, owned.Key), ch.Key); err != nil {
			return nil, fmt.Errorf("delete %s %s: %w", owned.Name, ch.Key, err)
		}
	}

	return append([]Change{{Entity: ent.Name, Key: key, Op: OpDelete}}, cascaded...), nil
}

func collectOwned(ctx context.Context, tx *sql.Tx, ent Entity, key string) ([]Change, error) {
	var out []Change
	for _, owned := range ent.Owned() {
		rows, err := tx.QueryContext(ctx,
			fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY %s", owned.Key, owned.Table, owned.OwnerColumn, owned.Key),
			key)
		if err != nil {
			return nil, fmt.Errorf("collect %s of %s %s: %w", owned.Name, ent.Name, key, err)
		}
		var keys []string
		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				rows.Close()
				return nil, fmt.Errorf("collect %s: %w", owned.Name, err)
			}
			keys = append(keys, k)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("collect %s: %w", owned.Name, err)
		}
		rows.Close()

		for _, k := range keys {
			out = append(out, Change{Entity: owned.Name, Key: k, Op: OpDelete, Cascaded: true})
			nested, err := collectOwned(ctx, tx, owned, k)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		}
	}
	return out, nil
}
