package solver

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latticelab/pyramid-engine/internal/pieces"
	"github.com/latticelab/pyramid-engine/pkg/models"
)

func TestSnapshotRoundTripResumesExactly(t *testing.T) {
	set := models.SearchSettings{
		MaxSolutions:    1000,
		UniqueSolutions: true,
		Pruning:         models.PruningSettings{Connectivity: true, MultipleOf4: true},
	}
	table := pieces.DefaultTable()
	orig := newEngine(t, gridCells(4, 4), pieces.InventoryUnlimited(table), set)

	// Advance mid-search so the snapshot carries a non-trivial stack.
	for i := 0; i < 37; i++ {
		res := orig.Step()
		require.False(t, res.Done, "4x4 patch must not be exhausted after 37 steps")
	}
	require.Greater(t, orig.Depth(), 0)

	snap := orig.Snapshot(1234)
	require.Equal(t, models.SnapshotSchema, snap.Schema)
	require.Equal(t, int64(1234), snap.ElapsedMs)

	// The snapshot must survive serialization: that is how it crosses the
	// wire and lands in storage.
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded models.Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))

	restored, err := Restore(table, decoded)
	require.NoError(t, err)
	require.Equal(t, orig.Depth(), restored.Depth())
	require.Equal(t, orig.OpenCount(), restored.OpenCount())

	on, op, os := orig.Counters()
	rn, rp, rs := restored.Counters()
	require.Equal(t, []int64{on, op, os}, []int64{rn, rp, rs})

	// Both engines must now produce the identical remainder of the search.
	origSigs, origReason := runEngine(t, orig, 2000000)
	restSigs, restReason := runEngine(t, restored, 2000000)
	require.Equal(t, origReason, restReason)
	require.Equal(t, origSigs, restSigs)

	on, op, os = orig.Counters()
	rn, rp, rs = restored.Counters()
	require.Equal(t, []int64{on, op, os}, []int64{rn, rp, rs})
}

func TestSnapshotPreservesSeenSignatures(t *testing.T) {
	e := newEngine(t, lineCells(8), singleRod(t), models.SearchSettings{
		MaxSolutions:    5,
		PauseOnSolution: true,
		UniqueSolutions: true,
	})
	// Run until the first solution is recorded.
	for i := 0; i < 100000; i++ {
		if res := e.Step(); res.PauseRequested || res.Done {
			break
		}
	}
	snap := e.Snapshot(0)
	require.NotEmpty(t, snap.Seen, "dedup state must be captured")

	restored, err := Restore(pieces.DefaultTable(), snap)
	require.NoError(t, err)
	again := restored.Snapshot(0)
	require.Equal(t, snap.Seen, again.Seen)
}

func TestRestoreRejectsBadInput(t *testing.T) {
	table := pieces.DefaultTable()
	e := newEngine(t, lineCells(8), singleRod(t), models.SearchSettings{MaxSolutions: 1})
	e.Step()
	good := e.Snapshot(0)

	bad := good
	bad.Schema = 99
	_, err := Restore(table, bad)
	require.Error(t, err, "unknown schema versions must be rejected")

	bad = good
	bad.Remaining = map[string]int64{"ghost": 1}
	_, err = Restore(table, bad)
	require.Error(t, err, "unknown piece ids must be rejected")

	bad = good
	bad.OccupancyHex = "00"
	_, err = Restore(table, bad)
	require.Error(t, err, "malformed occupancy must be rejected")

	bad = good
	bad.Keys = append([]string{"not-a-cell"}, good.Keys[1:]...)
	_, err = Restore(table, bad)
	require.Error(t, err, "malformed cell keys must be rejected")
}

func TestRestoredElapsedAccumulates(t *testing.T) {
	e := newEngine(t, lineCells(8), singleRod(t), models.SearchSettings{MaxSolutions: 1})
	e.Step()
	first := e.Snapshot(500)
	require.Equal(t, int64(500), first.ElapsedMs)

	restored, err := Restore(pieces.DefaultTable(), first)
	require.NoError(t, err)

	// A later snapshot reports total elapsed across both sessions.
	second := restored.Snapshot(300)
	require.Equal(t, int64(800), second.ElapsedMs)
}
