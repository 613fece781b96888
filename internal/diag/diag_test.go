package diag

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_OfKind(t *testing.T) {
	r := &Recorder{}
	r.Report(Warn(KindDestructiveReset, "dropping store", nil))
	r.Report(Error(KindSweepFailed, "sweep failed", errors.New("boom")))
	r.Report(Warn(KindDestructiveReset, "dropping store again", nil))

	assert.Len(t, r.Events(), 3)
	assert.Len(t, r.OfKind(KindDestructiveReset), 2)
	require.Len(t, r.OfKind(KindSweepFailed), 1)
	assert.EqualError(t, r.OfKind(KindSweepFailed)[0].Err, "boom")
}

func TestLogReporter_WritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	LogReporter{Logger: logger}.Report(Error(KindSaveFailed, "save failed", errors.New("constraint")))

	line := buf.String()
	assert.True(t, strings.Contains(line, "kind=save_failed"), line)
	assert.True(t, strings.Contains(line, "error=constraint"), line)
	assert.True(t, strings.Contains(line, "level=ERROR"), line)
}

func TestMulti_FansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	Multi{a, nil, b}.Report(Warn(KindFatalOpen, "x", nil))

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

func TestCounterValues(t *testing.T) {
	before, err := CounterValues()
	require.NoError(t, err)

	RecordCommit(time.Millisecond)
	RecordSweep(time.Millisecond, map[string]int{"Event": 3})

	after, err := CounterValues()
	require.NoError(t, err)
	assert.Equal(t, before["nostrcache_commits_total"]+1, after["nostrcache_commits_total"])
	assert.Equal(t, before["nostrcache_sweep_deleted_total,entity=Event"]+3, after["nostrcache_sweep_deleted_total,entity=Event"])
}

func TestRecordFunctions_IncrementTheirCounters(t *testing.T) {
	tests := []struct {
		name   string
		record func()
		metric string
		delta  float64
	}{
		{"commit failure", RecordCommitFailure, "nostrcache_commit_failures_total", 1},
		{"save skipped", RecordSaveSkipped, "nostrcache_saves_skipped_total", 1},
		{"merge", RecordMerge, "nostrcache_merges_total", 1},
		{"destroy", RecordDestroy, "nostrcache_destroys_total", 1},
		{"ingested", func() { RecordIngested("inserted", 4) }, "nostrcache_ingested_total,result=inserted", 4},
		{"change", func() { RecordChange("Author", "upsert") }, "nostrcache_changes_committed_total,entity=Author,op=upsert", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, err := CounterValues()
			require.NoError(t, err)

			tt.record()

			after, err := CounterValues()
			require.NoError(t, err)
			assert.Equal(t, before[tt.metric]+tt.delta, after[tt.metric])
		})
	}
}
