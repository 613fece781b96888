package store

import (
	"fmt"
	"strconv"

	"github.com/roach88/nostrcache/internal/diag"
)

// RequiredVersion is the schema version this build expects. Increment it
// whenever schema.sql changes incompatibly; existing databases are then
// dropped and rebuilt from the network.
const RequiredVersion = 3

// CurrentVersion reads the persisted marker. Absent means 0.
func CurrentVersion(m VersionMarker) (int, error) {
	return m.Load()
}

// Open attaches to the backing store, running the schema version gate first.
//
// If the marker is older than RequiredVersion, or opts.Erase is set, the
// backing files are deleted, the marker is rewritten and the store is opened
// once more. The reopen happens at most once: if the marker still reads as
// stale afterwards, Open fails instead of looping.
//
// Every error returned by Open is fatal (see IsFatal).
func Open(opts Options) (*Store, error) {
	return openGated(opts.withDefaults(), false)
}

func openGated(opts Options, reopened bool) (*Store, error) {
	current, err := CurrentVersion(opts.Marker)
	if err != nil {
		return nil, fatal("open", opts.Path, fmt.Errorf("read schema version: %w", err))
	}

	if current < RequiredVersion || opts.Erase {
		if reopened {
			return nil, fatal("open", opts.Path, fmt.Errorf("schema version marker still %d after reset to %d", current, RequiredVersion))
		}

		opts.Logger.Warn("dropping persistent store",
			"path", opts.Path,
			"version", current,
			"required", RequiredVersion,
			"erase", opts.Erase,
		)
		if !opts.InMemory {
			if err := destroyFiles(opts.Path); err != nil {
				return nil, fatal("destroy", opts.Path, err)
			}
		}
		if err := opts.Marker.Save(RequiredVersion); err != nil {
			return nil, fatal("open", opts.Path, fmt.Errorf("write schema version: %w", err))
		}
		opts.Reporter.Report(diag.Warn(diag.KindDestructiveReset, "schema version changed, store dropped", map[string]string{
			"path":     opts.Path,
			"from":     strconv.Itoa(current),
			"required": strconv.Itoa(RequiredVersion),
		}))
		diag.RecordDestroy()

		opts.Erase = false
		return openGated(opts, true)
	}

	return openDB(opts)
}
