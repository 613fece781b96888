package store

// Op is the kind of change applied to one row.
type Op int

const (
	OpUpsert Op = iota + 1
	OpDelete
)

// String returns the op name used in logs and metrics.
func (o Op) String() string {
	switch o {
	case OpUpsert:
		return "upsert"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Change describes one row-level modification.
type Change struct {
	Entity string
	Key    string
	Op     Op

	// Inserted marks rows created by the committing context. Inserted rows
	// are upserted; other upserts only update rows that still exist.
	Inserted bool

	// Values holds the changed columns only. Empty for deletes.
	Values Values

	// Cascaded marks deletes that the store performed because an owner was deleted.
	Cascaded bool
}

// ChangeSet is the unit of commit and of cross-context notification.
type ChangeSet struct {
	ID      string
	Origin  string
	Seq     int64
	Changes []Change
}

// Empty reports whether the change set carries no changes.
func (cs ChangeSet) Empty() bool { return len(cs.Changes) == 0 }

// Count returns the number of changes per entity and op, keyed "Entity/op".
func (cs ChangeSet) Count() map[string]int {
	out := make(map[string]int)
	for _, ch := range cs.Changes {
		out[ch.Entity+"/"+ch.Op.String()]++
	}
	return out
}

// Deleted returns the number of deleted rows per entity.
func (cs ChangeSet) Deleted() map[string]int {
	out := make(map[string]int)
	for _, ch := range cs.Changes {
		if ch.Op == OpDelete {
			out[ch.Entity]++
		}
	}
	return out
}
