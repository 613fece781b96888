package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nostrcache/internal/fixture"
	"github.com/roach88/nostrcache/internal/store"
	"github.com/roach88/nostrcache/internal/testutil"
)

var alice = strings.Repeat("a1", 32)

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(args, "--no-color"))
	err := cmd.Execute()
	return stdout.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	require.NoError(t, err, out)
	return out
}

func decode(t *testing.T, out string, data any) {
	t.Helper()
	resp := struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	require.NoError(t, json.Unmarshal(resp.Data, data))
}

func tempDB(t *testing.T) string {
	return filepath.Join(t.TempDir(), "cache.sqlite")
}

func TestOpen_InMemory(t *testing.T) {
	out := mustExecute(t, "open", "--in-memory", "--format", "json")

	var res OpenResult
	decode(t, out, &res)
	assert.True(t, res.InMemory)
	assert.Equal(t, store.RequiredVersion, res.SchemaVersion)
	require.Len(t, res.Entities, 4)
	for _, ec := range res.Entities {
		assert.Zero(t, ec.Count, ec.Entity)
	}
}

func TestOpen_CreatesFileAndMarker(t *testing.T) {
	db := tempDB(t)
	out := mustExecute(t, "open", "--db", db)

	assert.Contains(t, out, "Opened "+db)
	assert.FileExists(t, db)
	assert.FileExists(t, filepath.Join(filepath.Dir(db), store.DefaultMarkerFile))
}

func TestOpen_InvalidConfig(t *testing.T) {
	out, err := execute(t, "open", "--in-memory", "--follow-depth", "-1", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)
}

func TestSeedThenStats(t *testing.T) {
	db := tempDB(t)
	out := mustExecute(t, "seed", "--db", db, "--format", "json")

	var seeded SeedResult
	decode(t, out, &seeded)
	assert.Equal(t, "sample", seeded.Fixture)
	assert.Equal(t, fixture.Sample().CurrentUser, seeded.CurrentUser)

	jsonOut := mustExecute(t, "stats", "--db", db, "--format", "json")
	testutil.AssertGolden(t, "stats_sample_json", []byte(jsonOut))

	textOut := mustExecute(t, "stats", "--db", db)
	testutil.AssertGolden(t, "stats_sample_text", []byte(textOut))
}

func TestStats_NonEmptyAndMetrics(t *testing.T) {
	out := mustExecute(t, "stats", "--in-memory", "--non-empty", "--metrics", "--format", "json")

	var res StatsResult
	decode(t, out, &res)
	assert.Empty(t, res.Entities)

	text := mustExecute(t, "stats", "--in-memory", "--metrics")
	assert.Contains(t, text, "ENTITY")
}

func TestIngest_IsIdempotent(t *testing.T) {
	db := tempDB(t)
	file := filepath.Join("testdata", "stranger.yaml")

	var first, second struct {
		Inserted   int `json:"inserted"`
		Duplicates int `json:"duplicates"`
	}
	decode(t, mustExecute(t, "ingest", file, "--db", db, "--format", "json"), &first)
	decode(t, mustExecute(t, "ingest", file, "--db", db, "--format", "json"), &second)

	assert.Equal(t, 1, first.Inserted)
	assert.Equal(t, 0, first.Duplicates)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 1, second.Duplicates)
}

func TestIngest_MissingFile(t *testing.T) {
	_, err := execute(t, "ingest", filepath.Join(t.TempDir(), "missing.yaml"), "--in-memory")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCleanup_DeletesUnrelatedData(t *testing.T) {
	db := tempDB(t)
	mustExecute(t, "seed", "--db", db)
	mustExecute(t, "ingest", filepath.Join("testdata", "stranger.yaml"), "--db", db)

	var res CleanupResult
	decode(t, mustExecute(t, "cleanup", "--db", db, "--current-user", alice, "--format", "json"), &res)
	assert.Equal(t, alice, res.Anchor)
	assert.Equal(t, 1, res.DeletedEvents)
	assert.Equal(t, 1, res.DeletedAuthors)

	// A second sweep finds nothing to delete.
	var again CleanupResult
	decode(t, mustExecute(t, "cleanup", "--db", db, "--anchor", alice, "--format", "json"), &again)
	assert.Zero(t, again.DeletedEvents)
	assert.Zero(t, again.DeletedAuthors)

	testutil.AssertGolden(t, "stats_sample_json", []byte(mustExecute(t, "stats", "--db", db, "--format", "json")))
}

func TestCleanup_WithoutAnchor(t *testing.T) {
	out := mustExecute(t, "cleanup", "--in-memory")
	assert.Contains(t, out, "nothing deleted")
}

func TestDestroy_RequiresConfirmation(t *testing.T) {
	db := tempDB(t)
	mustExecute(t, "seed", "--db", db)

	_, err := execute(t, "destroy", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.FileExists(t, db)

	mustExecute(t, "destroy", "--db", db, "--yes")
	_, statErr := os.Stat(db)
	assert.True(t, os.IsNotExist(statErr))
}

func TestReset_EmptiesStore(t *testing.T) {
	db := tempDB(t)
	mustExecute(t, "seed", "--db", db)

	var res AdminResult
	decode(t, mustExecute(t, "reset", "--db", db, "--format", "json"), &res)
	assert.True(t, res.Destroyed)
	assert.True(t, res.Recreated)
	assert.Equal(t, db, res.Path)

	var stats StatsResult
	decode(t, mustExecute(t, "stats", "--db", db, "--non-empty", "--format", "json"), &stats)
	assert.Empty(t, stats.Entities)
}
