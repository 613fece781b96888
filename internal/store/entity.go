package store

import (
	"fmt"
	"sort"
)

// Entity names. These are also the names reported by statistics.
const (
	EntityAuthor         = "Author"
	EntityEvent          = "Event"
	EntityEventReference = "EventReference"
	EntityFollow         = "Follow"
)

// Values holds column values of one row, keyed by column name.
// Values are either string or int64.
type Values map[string]any

// Column describes one non-key column.
type Column struct {
	Name string
	Int  bool
}

// Entity is the in-memory schema description of one table.
type Entity struct {
	Name    string
	Table   string
	Key     string
	Columns []Column

	// Owner is the entity whose deletion cascades to this one, joined on OwnerColumn.
	Owner       string
	OwnerColumn string

	// rank orders upserts inside a commit so owners are written before owned rows.
	rank int
}

var entities = []Entity{
	{
		Name:  EntityAuthor,
		Table: "authors",
		Key:   "public_key",
		Columns: []Column{
			{Name: "name"},
			{Name: "display_name"},
			{Name: "about"},
			{Name: "picture_url"},
			{Name: "nip05"},
			{Name: "metadata_updated_at", Int: true},
		},
		rank: 0,
	},
	{
		Name:  EntityEvent,
		Table: "events",
		Key:   "id",
		Columns: []Column{
			{Name: "kind", Int: true},
			{Name: "author_key"},
			{Name: "created_at", Int: true},
			{Name: "content"},
			{Name: "signature"},
			{Name: "tags"},
			{Name: "root_id"},
			{Name: "reply_to_id"},
			{Name: "seen_on"},
		},
		rank: 1,
	},
	{
		Name:  EntityEventReference,
		Table: "event_references",
		Key:   "id",
		Columns: []Column{
			{Name: "referencing_id"},
			{Name: "event_id"},
			{Name: "marker"},
			{Name: "relay_url"},
			{Name: "position", Int: true},
		},
		Owner:       EntityEvent,
		OwnerColumn: "referencing_id",
		rank:        2,
	},
	{
		Name:  EntityFollow,
		Table: "follows",
		Key:   "id",
		Columns: []Column{
			{Name: "source_key"},
			{Name: "destination_key"},
			{Name: "petname"},
			{Name: "relay_url"},
		},
		Owner:       EntityAuthor,
		OwnerColumn: "source_key",
		rank:        2,
	},
}

var entityByName = func() map[string]Entity {
	m := make(map[string]Entity, len(entities))
	for _, e := range entities {
		m[e.Name] = e
	}
	return m
}()

// Entities returns the schema description sorted by entity name.
func Entities() []Entity {
	out := make([]Entity, len(entities))
	copy(out, entities)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the entity with the given name.
func Lookup(name string) (Entity, error) {
	e, ok := entityByName[name]
	if !ok {
		return Entity{}, fmt.Errorf("unknown entity %q", name)
	}
	return e, nil
}

// Column returns the column description for name.
func (e Entity) Column(name string) (Column, bool) {
	if name == e.Key {
		return Column{Name: name}, true
	}
	for _, c := range e.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Owned returns the entities whose rows are deleted together with rows of e.
func (e Entity) Owned() []Entity {
	var out []Entity
	for _, other := range entities {
		if other.Owner == e.Name {
			out = append(out, other)
		}
	}
	return out
}

// Zero returns a Values map with every non-key column set to its zero value.
func (e Entity) Zero() Values {
	v := make(Values, len(e.Columns))
	for _, c := range e.Columns {
		if c.Int {
			v[c.Name] = int64(0)
		} else {
			v[c.Name] = ""
		}
	}
	return v
}
