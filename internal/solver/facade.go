package solver

import (
	"context"
	"math"
	"time"

	"github.com/latticelab/pyramid-engine/internal/lattice"
	"github.com/latticelab/pyramid-engine/internal/pieces"
	"github.com/latticelab/pyramid-engine/pkg/models"
)

// DefaultEmptyThreshold is the open-cell count above which a check falls
// back to lightweight (pruning-only) mode instead of a full search.
const DefaultEmptyThreshold = 64

// DefaultCheckTimeoutMs bounds a full-mode solvability check.
const DefaultCheckTimeoutMs = 5000

// Facade is the thin call surface over the engine used by solvability checks
// and hint generation. It reuses precomputed indexes across calls for
// containers that carry an identifier.
type Facade struct {
	table *pieces.Table
	cache *lattice.Cache
}

func NewFacade(table *pieces.Table) *Facade {
	return &Facade{table: table, cache: lattice.NewCache()}
}

// Table returns the orientation table this facade searches with.
func (f *Facade) Table() *pieces.Table {
	return f.table
}

// BuildEngine assembles an engine for one search input: indexed container,
// occupancy from the empty-cell list (or from placed pieces when no list is
// given), and inventory from the request's policy.
func (f *Facade) BuildEngine(input models.SearchInput, set models.SearchSettings) *Engine {
	idx := f.cache.Get(input.ContainerID, input.ContainerCells)

	var occ lattice.Mask
	if len(input.EmptyCells) > 0 {
		occ = idx.Full.Clone()
		for _, c := range input.EmptyCells {
			if i := idx.Ord(c); i >= 0 {
				occ.Clear(i)
			}
		}
	} else {
		occ = lattice.NewMask(idx.N)
		for _, pl := range input.PlacedPieces {
			f.markPlacement(idx, occ, pl)
		}
	}

	inv := f.inventoryFor(input, set)
	return New(Config{
		Index:       idx,
		Table:       f.table,
		Inventory:   inv,
		Occupied:    occ,
		Settings:    set,
		ContainerID: input.ContainerID,
	})
}

// markPlacement sets the occupancy bits of a pre-placed piece. Cells that
// fall outside the container are ignored; inconsistent input simply yields a
// position with no legal completions rather than an error.
func (f *Facade) markPlacement(idx *lattice.Index, occ lattice.Mask, pl models.Placement) {
	p := f.table.Piece(pl.PieceID)
	if p == nil || pl.OrientationID < 0 || pl.OrientationID >= len(p.Orientations) {
		return
	}
	for _, off := range p.Orientations[pl.OrientationID].Offsets {
		if i := idx.Ord(pl.Translation.Add(off)); i >= 0 {
			occ.Set(i)
		}
	}
}

// inventoryFor resolves the inventory policy: explicit remaining counts win,
// then the named mode, then the settings' piece filter defaults.
func (f *Facade) inventoryFor(input models.SearchInput, set models.SearchSettings) pieces.Inventory {
	if len(input.RemainingPieces) > 0 {
		counts := make(map[string]int64, len(input.RemainingPieces))
		for _, pc := range input.RemainingPieces {
			counts[pc.PieceID] = pc.Remaining
		}
		return pieces.InventoryCounts(f.table, counts)
	}

	var inv pieces.Inventory
	switch input.Mode {
	case models.ModeUnlimited:
		inv = pieces.InventoryUnlimited(f.table)
	case models.ModeSingleType:
		if single, err := pieces.InventorySingleType(f.table, input.SinglePieceID); err == nil {
			inv = single
		} else {
			inv = pieces.InventoryOneOfEach(f.table)
		}
	case models.ModeOneOfEach, models.ModeCustom, "":
		inv = InventoryFromSettings(f.table, set)
	default:
		inv = InventoryFromSettings(f.table, set)
	}

	// Pieces already on the board consume from mode-derived inventories.
	for _, pl := range input.PlacedPieces {
		inv.Take(pl.PieceID)
	}
	return inv
}

// Check answers "does any completion exist" with a three-valued verdict.
// Above the empty-cell threshold only the pruning module's necessary
// conditions run: they can prove definite failure but never solvability.
func (f *Facade) Check(ctx context.Context, req models.CheckRequest) (models.CheckResult, error) {
	timeout := req.TimeoutMs
	if timeout <= 0 {
		timeout = DefaultCheckTimeoutMs
	}
	threshold := req.EmptyThreshold
	if threshold <= 0 {
		threshold = DefaultEmptyThreshold
	}

	set := models.SearchSettings{
		MaxSolutions: 1,
		TimeoutMs:    timeout,
		Pruning:      models.PruningSettings{Connectivity: true, MultipleOf4: true},
	}
	eng := f.BuildEngine(req.Input, set)
	emptyCount := eng.OpenCount()

	if emptyCount > threshold {
		return f.lightweightCheck(eng, emptyCount), nil
	}
	return f.fullCheck(ctx, eng, emptyCount, time.Duration(timeout)*time.Millisecond)
}

// lightweightCheck applies only the necessary-condition checks. It reports
// definite failure when one is violated and unknown otherwise; it never
// claims solvability without a full search.
func (f *Facade) lightweightCheck(eng *Engine, emptyCount int) models.CheckResult {
	res := models.CheckResult{
		Mode:       models.CheckModeLightweight,
		EmptyCount: emptyCount,
	}
	moves := eng.openRegionMoveCount()
	res.ValidNextMoveCount = moves
	if moves > 0 {
		res.EstimatedSearchSpace = math.Pow(float64(moves), float64(emptyCount)/pieces.PieceSize)
	}

	if emptyCount%pieces.PieceSize != 0 {
		res.Verdict = models.VerdictUnsolvable
		res.DefiniteFailure = true
		res.Reason = "open cell count is not a multiple of 4"
		return res
	}
	if !eng.openConnected() {
		res.Verdict = models.VerdictUnsolvable
		res.DefiniteFailure = true
		res.Reason = "open region is disconnected"
		return res
	}
	if moves == 0 && emptyCount > 0 {
		res.Verdict = models.VerdictUnsolvable
		res.DefiniteFailure = true
		res.Reason = "an open cell has no legal cover"
		return res
	}
	res.Verdict = models.VerdictUnknown
	res.Reason = "lightweight mode cannot prove solvability"
	return res
}

// fullCheck runs the bounded exhaustive search: one solution proves
// solvability, exhaustion proves unsolvability, and a timeout stays unknown.
func (f *Facade) fullCheck(ctx context.Context, eng *Engine, emptyCount int, timeout time.Duration) (models.CheckResult, error) {
	res := models.CheckResult{
		Mode:       models.CheckModeFull,
		EmptyCount: emptyCount,
	}
	deadline := time.Now().Add(timeout)

	var out StepResult
	for {
		for i := 0; i < DefaultBatchSize; i++ {
			out = eng.Step()
			if out.Done {
				break
			}
		}
		if out.Done {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if time.Now().After(deadline) {
			res.Verdict = models.VerdictUnknown
			res.Reason = "search timed out"
			return res, nil
		}
	}

	_, _, solutions := eng.Counters()
	res.SolutionCount = solutions
	if solutions > 0 {
		res.Solvable = true
		res.Verdict = models.VerdictSolvable
		res.Reason = "completion found"
	} else if out.Reason == models.DoneComplete {
		res.Verdict = models.VerdictUnsolvable
		res.Reason = "search space exhausted with no completion"
	} else {
		res.Verdict = models.VerdictUnknown
		res.Reason = "search timed out"
	}
	return res, nil
}

// Hint returns the first legal placement covering the target cell, under the
// same pruning and inventory rules as a full search.
func (f *Facade) Hint(input models.SearchInput) (models.HintResult, bool) {
	if input.TargetCell == nil {
		return models.HintResult{}, false
	}
	set := models.SearchSettings{
		MaxSolutions: 1,
		Pruning:      models.PruningSettings{Connectivity: true, MultipleOf4: true},
	}
	eng := f.BuildEngine(input, set)
	target := eng.idx.Ord(*input.TargetCell)
	if target < 0 || eng.occ.Test(target) {
		return models.HintResult{}, false
	}
	return eng.FirstPlacementAt(target)
}

// openRegionMoveCount counts legal placements covering the first open cell.
// Cheap proxy used by lightweight mode for move counts and search-space
// estimates.
func (e *Engine) openRegionMoveCount() int {
	for i := 0; i < e.idx.N; i++ {
		if !e.occ.Test(i) {
			return e.countCovers(i, math.MaxInt)
		}
	}
	return 0
}

// openConnected reports whether the current open region (no hypothetical
// placement applied) is one connected component.
func (e *Engine) openConnected() bool {
	open := e.idx.N - e.occ.OnesCount()
	if open == 0 {
		return true
	}
	empty := &placement{mask: lattice.NewMask(e.idx.N)}
	return e.openConnectedExcluding(empty, open)
}
