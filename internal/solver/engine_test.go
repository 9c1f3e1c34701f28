package solver

import (
	"testing"

	"github.com/latticelab/pyramid-engine/internal/lattice"
	"github.com/latticelab/pyramid-engine/internal/pieces"
	"github.com/latticelab/pyramid-engine/pkg/models"
)

// lineCells chains n cells along the (1,1,0) lattice direction. A 4k-cell
// line is exactly coverable by k rods and by nothing else in the library.
func lineCells(n int) []models.Cell {
	cells := make([]models.Cell, n)
	for i := range cells {
		cells[i] = models.Cell{X: i, Y: i}
	}
	return cells
}

// gridCells builds a w x h planar patch. In grid coordinates (u,v) the FCC
// steps (1,1,0) and (1,-1,0) act as unit moves, so the patch behaves like a
// rectangular board for the in-plane pieces.
func gridCells(w, h int) []models.Cell {
	cells := make([]models.Cell, 0, w*h)
	for u := 0; u < w; u++ {
		for v := 0; v < h; v++ {
			cells = append(cells, models.Cell{X: u + v, Y: u - v})
		}
	}
	return cells
}

func newEngine(t *testing.T, cells []models.Cell, inv pieces.Inventory, set models.SearchSettings) *Engine {
	t.Helper()
	return New(Config{
		Index:     lattice.NewIndex(cells),
		Table:     pieces.DefaultTable(),
		Inventory: inv,
		Settings:  set,
	})
}

// runEngine steps until the search terminates or maxSteps is hit, collecting
// emitted solution signatures.
func runEngine(t *testing.T, e *Engine, maxSteps int) (sigs []string, reason string) {
	t.Helper()
	for i := 0; i < maxSteps; i++ {
		res := e.Step()
		if res.Solution != nil {
			sigs = append(sigs, res.Solution.Signature)
		}
		if res.Done {
			return sigs, res.Reason
		}
	}
	return sigs, ""
}

func singleRod(t *testing.T) pieces.Inventory {
	t.Helper()
	inv, err := pieces.InventorySingleType(pieces.DefaultTable(), "rod")
	if err != nil {
		t.Fatalf("rod must exist in the shipped table: %v", err)
	}
	return inv
}

func TestLineContainerExactCover(t *testing.T) {
	// An 8-cell line has exactly one tiling: two rods end to end.
	e := newEngine(t, lineCells(8), singleRod(t), models.SearchSettings{
		MaxSolutions:    10,
		UniqueSolutions: true,
		Pruning:         models.PruningSettings{Connectivity: true, MultipleOf4: true},
	})

	sigs, reason := runEngine(t, e, 100000)
	if reason != models.DoneComplete {
		t.Fatalf("Expected exhaustive completion, got reason %q", reason)
	}
	if len(sigs) != 1 {
		t.Fatalf("Expected exactly 1 solution, got %d: %v", len(sigs), sigs)
	}
	if sigs[0] != "rod:0,1,2,3;rod:4,5,6,7" {
		t.Errorf("Unexpected canonical signature: %q", sigs[0])
	}
}

func TestDeterministicReplay(t *testing.T) {
	// The same input must yield the same solution sequence and counters.
	set := models.SearchSettings{
		MaxSolutions:    30,
		UniqueSolutions: true,
		Pruning:         models.PruningSettings{Connectivity: true, MultipleOf4: true},
	}
	a := newEngine(t, gridCells(4, 4), pieces.InventoryUnlimited(pieces.DefaultTable()), set)
	b := newEngine(t, gridCells(4, 4), pieces.InventoryUnlimited(pieces.DefaultTable()), set)

	sigsA, reasonA := runEngine(t, a, 500000)
	sigsB, reasonB := runEngine(t, b, 500000)

	if reasonA != reasonB {
		t.Fatalf("Replay diverged on reason: %q vs %q", reasonA, reasonB)
	}
	if len(sigsA) == 0 {
		t.Fatal("A 4x4 patch with unlimited pieces should have solutions")
	}
	if len(sigsA) != len(sigsB) {
		t.Fatalf("Replay diverged on solution count: %d vs %d", len(sigsA), len(sigsB))
	}
	for i := range sigsA {
		if sigsA[i] != sigsB[i] {
			t.Fatalf("Replay diverged at solution %d: %q vs %q", i, sigsA[i], sigsB[i])
		}
	}
	an, ap, as := a.Counters()
	bn, bp, bs := b.Counters()
	if an != bn || ap != bp || as != bs {
		t.Errorf("Replay diverged on counters: (%d,%d,%d) vs (%d,%d,%d)", an, ap, as, bn, bp, bs)
	}
}

func TestUniqueSolutionsAreDistinct(t *testing.T) {
	e := newEngine(t, gridCells(4, 4), pieces.InventoryUnlimited(pieces.DefaultTable()), models.SearchSettings{
		MaxSolutions:    25,
		UniqueSolutions: true,
		Pruning:         models.PruningSettings{Connectivity: true, MultipleOf4: true},
	})
	sigs, _ := runEngine(t, e, 500000)
	seen := make(map[string]bool, len(sigs))
	for _, s := range sigs {
		if seen[s] {
			t.Fatalf("Duplicate signature emitted under dedup: %q", s)
		}
		seen[s] = true
	}
	if len(sigs) == 0 {
		t.Fatal("Expected at least one solution")
	}
}

func TestMod4PruningRejectsOddRemainder(t *testing.T) {
	// 5 open cells can never be covered by 4-cell pieces; every candidate
	// leaves a remainder of 1 and must be pruned.
	e := newEngine(t, lineCells(5), singleRod(t), models.SearchSettings{
		MaxSolutions: 1,
		Pruning:      models.PruningSettings{MultipleOf4: true},
	})
	sigs, reason := runEngine(t, e, 100000)
	if len(sigs) != 0 || reason != models.DoneComplete {
		t.Fatalf("Expected an exhausted search with no solutions, got %d solutions, reason %q", len(sigs), reason)
	}
	_, pruned, _ := e.Counters()
	if pruned == 0 {
		t.Error("Expected the multiple-of-4 check to prune candidates")
	}
}

func TestPruningPreservesSolutionSet(t *testing.T) {
	// Pruning only rejects provably dead branches, so the solution sequence
	// must be identical with and without it; only the node count drops.
	set := models.SearchSettings{
		MaxSolutions:    10,
		UniqueSolutions: true,
	}
	withSet := set
	withSet.Pruning = models.PruningSettings{Connectivity: true, MultipleOf4: true}

	plain := newEngine(t, gridCells(4, 4), pieces.InventoryUnlimited(pieces.DefaultTable()), set)
	pruned := newEngine(t, gridCells(4, 4), pieces.InventoryUnlimited(pieces.DefaultTable()), withSet)

	plainSigs, _ := runEngine(t, plain, 2000000)
	prunedSigs, _ := runEngine(t, pruned, 2000000)

	if len(plainSigs) != len(prunedSigs) {
		t.Fatalf("Pruning changed the solution count: %d vs %d", len(plainSigs), len(prunedSigs))
	}
	for i := range plainSigs {
		if plainSigs[i] != prunedSigs[i] {
			t.Fatalf("Pruning changed solution %d: %q vs %q", i, plainSigs[i], prunedSigs[i])
		}
	}
	pn, _, _ := plain.Counters()
	qn, _, _ := pruned.Counters()
	if qn > pn {
		t.Errorf("Pruned search expanded more nodes (%d) than unpruned (%d)", qn, pn)
	}
}

func TestSolutionsAreExactCovers(t *testing.T) {
	// Every emitted solution must cover each container cell exactly once.
	cells := gridCells(4, 4)
	idx := lattice.NewIndex(cells)
	table := pieces.DefaultTable()
	e := New(Config{
		Index:     idx,
		Table:     table,
		Inventory: pieces.InventoryUnlimited(table),
		Settings: models.SearchSettings{
			MaxSolutions:    15,
			UniqueSolutions: true,
			Pruning:         models.PruningSettings{Connectivity: true, MultipleOf4: true},
		},
	})

	var sols []*models.SolutionEvent
	for i := 0; i < 500000; i++ {
		res := e.Step()
		if res.Solution != nil {
			sols = append(sols, res.Solution)
		}
		if res.Done {
			break
		}
	}
	if len(sols) == 0 {
		t.Fatal("Expected at least one solution to validate")
	}

	for si, sol := range sols {
		covered := lattice.NewMask(idx.N)
		total := 0
		for _, pl := range sol.Placements {
			p := table.Piece(pl.PieceID)
			if p == nil || pl.OrientationID < 0 || pl.OrientationID >= len(p.Orientations) {
				t.Fatalf("Solution %d references an invalid placement: %+v", si, pl)
			}
			for _, off := range p.Orientations[pl.OrientationID].Offsets {
				j := idx.Ord(pl.Translation.Add(off))
				if j < 0 {
					t.Fatalf("Solution %d places a cell outside the container", si)
				}
				if covered.Test(j) {
					t.Fatalf("Solution %d double-covers cell %d", si, j)
				}
				covered.Set(j)
				total++
			}
		}
		if total != idx.N || !covered.Equals(idx.Full) {
			t.Fatalf("Solution %d under-covers the container: %d of %d cells", si, total, idx.N)
		}
	}
}

func TestInventoryIsRespected(t *testing.T) {
	// One rod cannot cover 8 cells.
	e := newEngine(t, lineCells(8), pieces.Inventory{"rod": 1}, models.SearchSettings{
		MaxSolutions: 5,
		Pruning:      models.PruningSettings{Connectivity: true, MultipleOf4: true},
	})
	sigs, reason := runEngine(t, e, 100000)
	if len(sigs) != 0 {
		t.Errorf("One rod cannot tile 8 cells; got %d solutions", len(sigs))
	}
	if reason != models.DoneComplete {
		t.Errorf("Expected exhaustion, got %q", reason)
	}

	// One of each piece fails too: only rods fit a collinear container.
	e = newEngine(t, lineCells(8), pieces.InventoryOneOfEach(pieces.DefaultTable()), models.SearchSettings{
		MaxSolutions: 5,
	})
	sigs, reason = runEngine(t, e, 500000)
	if len(sigs) != 0 || reason != models.DoneComplete {
		t.Errorf("Expected no solutions with one of each, got %d (reason %q)", len(sigs), reason)
	}
}

func TestSolutionLimitStopsSearch(t *testing.T) {
	e := newEngine(t, gridCells(4, 4), pieces.InventoryUnlimited(pieces.DefaultTable()), models.SearchSettings{
		MaxSolutions:    1,
		UniqueSolutions: true,
		Pruning:         models.PruningSettings{Connectivity: true, MultipleOf4: true},
	})
	sigs, reason := runEngine(t, e, 500000)
	if len(sigs) != 1 || reason != models.DoneLimit {
		t.Fatalf("Expected exactly 1 solution and a limit stop, got %d (reason %q)", len(sigs), reason)
	}
	// Terminated engines stay terminated.
	res := e.Step()
	if !res.Done || res.Reason != models.DoneLimit {
		t.Error("Stepping a finished engine should keep reporting done")
	}
}

func TestPauseOnSolutionRequestsPause(t *testing.T) {
	e := newEngine(t, lineCells(8), singleRod(t), models.SearchSettings{
		MaxSolutions:    5,
		PauseOnSolution: true,
		UniqueSolutions: true,
	})
	paused := false
	for i := 0; i < 100000; i++ {
		res := e.Step()
		if res.PauseRequested {
			if res.Solution == nil {
				t.Fatal("Pause-on-solution must coincide with an emitted solution")
			}
			paused = true
			break
		}
		if res.Done {
			t.Fatal("Search finished before requesting a pause")
		}
	}
	if !paused {
		t.Fatal("Expected a pause request after the first solution")
	}
	if done, _ := e.Done(); done {
		t.Error("A pause request must not terminate the engine")
	}
}

func TestEmptyContainerIsTriviallySolved(t *testing.T) {
	e := newEngine(t, nil, singleRod(t), models.SearchSettings{MaxSolutions: 1})
	sigs, reason := runEngine(t, e, 10)
	if len(sigs) != 1 || sigs[0] != "" || reason != models.DoneComplete {
		t.Errorf("Empty container should yield one empty solution, got %v (reason %q)", sigs, reason)
	}
}

func TestNormalizeSettings(t *testing.T) {
	set := NormalizeSettings(models.SearchSettings{})
	if set.MaxSolutions != 1 {
		t.Errorf("Zero MaxSolutions should default to 1, got %d", set.MaxSolutions)
	}
	if set.MoveOrdering != models.OrderMostConstrained {
		t.Errorf("Missing move ordering should default to most-constrained, got %q", set.MoveOrdering)
	}
	if set.StatusIntervalMs != DefaultStatusIntervalMs {
		t.Errorf("Missing status interval should default to %d, got %d", DefaultStatusIntervalMs, set.StatusIntervalMs)
	}
	scan := NormalizeSettings(models.SearchSettings{MoveOrdering: models.OrderScan})
	if scan.MoveOrdering != models.OrderScan {
		t.Error("Explicit scan ordering must be preserved")
	}
}

func TestScanOrderingAlsoFindsSolutions(t *testing.T) {
	e := newEngine(t, lineCells(8), singleRod(t), models.SearchSettings{
		MaxSolutions:    10,
		MoveOrdering:    models.OrderScan,
		UniqueSolutions: true,
	})
	sigs, reason := runEngine(t, e, 100000)
	if len(sigs) != 1 || reason != models.DoneComplete {
		t.Errorf("Scan ordering should find the unique tiling, got %d (reason %q)", len(sigs), reason)
	}
}
