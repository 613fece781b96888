// Package store provides the SQLite-backed physical store of nostrcache.
//
// The store is a cache: everything in it can be fetched again from relays.
// That shapes the lifecycle:
//   - A schema version marker lives outside the database file (see
//     VersionMarker). When it is older than RequiredVersion the database is
//     deleted and recreated instead of migrated.
//   - Destroy deletes the file outright.
//
// # Entities
//
// Four tables back the four entities (Author, Event, EventReference, Follow).
// Entities() is the in-memory schema description used by the commit path,
// the generic readers and statistics. Rows travel as Values maps; marshal.go
// converts them to and from model types.
//
// Ownership cascades: deleting an Event deletes its EventReferences, deleting
// an Author deletes its outgoing Follows. Everything else is a soft reference.
//
// # Writes
//
// Commit is the only write path. It applies a ChangeSet in one transaction
// under a single-writer gate and writes only the columns that changed, which
// is what makes cross-context merging property-level.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce ownership cascades
package store
