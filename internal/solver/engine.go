// Package solver implements the exact-cover search engine: an iterative,
// frame-stack depth-first search over a bit-encoded occupancy state, with
// pruning, move ordering, solution deduplication, and a cooperative runner
// that exposes pause/resume/cancel/snapshot.
package solver

import (
	"sort"
	"strconv"
	"strings"

	"github.com/latticelab/pyramid-engine/internal/lattice"
	"github.com/latticelab/pyramid-engine/internal/pieces"
	"github.com/latticelab/pyramid-engine/pkg/models"
)

// DefaultBatchSize is the number of search steps executed between yield
// points. Cancellation and timeout latency are bounded by this.
const DefaultBatchSize = 100

// DefaultStatusIntervalMs is the heartbeat period for status events.
const DefaultStatusIntervalMs = 500

// placement is a committed assignment: piece, orientation, translation, and
// the derived occupancy bits.
type placement struct {
	pieceIdx int
	orient   int
	trans    models.Cell
	cells    [pieces.PieceSize]int
	mask     lattice.Mask
}

// frame is one level of backtracking state: the open cell being filled and
// the cursor positions where candidate enumeration resumes. placed is nil
// while the frame is still searching.
type frame struct {
	target int
	pi     int // index into the usable-piece order
	oi     int // orientation cursor
	ai     int // anchor cursor (which offset lands on target)
	placed *placement
}

// Config assembles everything one engine instance needs. The engine owns the
// occupancy mask, inventory, and frame stack exclusively while running.
type Config struct {
	Index       *lattice.Index
	Table       *pieces.Table
	Inventory   pieces.Inventory
	Occupied    lattice.Mask // cells covered before the search starts; may be nil
	Settings    models.SearchSettings
	ContainerID string
}

// Engine is the depth-first exact-cover searcher. It is single-threaded and
// advanced explicitly via Step; the Runner drives it in bounded batches.
type Engine struct {
	idx   *lattice.Index
	table *pieces.Table
	order []int // usable piece indexes, table order
	inv   pieces.Inventory
	set   models.SearchSettings

	occ   lattice.Mask
	stack []*frame

	nodes     int64
	pruned    int64
	solutions int64
	seen      map[string]bool

	done        bool
	reason      string
	containerID string

	// elapsed time carried over from a restored snapshot
	baseElapsedMs int64
}

// StepResult reports what one search step produced.
type StepResult struct {
	Solution       *models.SolutionEvent
	Done           bool
	Reason         string
	PauseRequested bool
}

// NormalizeSettings fills malformed or missing settings with safe defaults
// rather than rejecting them.
func NormalizeSettings(set models.SearchSettings) models.SearchSettings {
	if set.MaxSolutions <= 0 {
		set.MaxSolutions = 1
	}
	if set.MoveOrdering != models.OrderScan {
		set.MoveOrdering = models.OrderMostConstrained
	}
	if set.StatusIntervalMs <= 0 {
		set.StatusIntervalMs = DefaultStatusIntervalMs
	}
	return set
}

// InventoryFromSettings derives the inventory from the settings' piece
// filter. A missing allow-list defaults to every known piece id with
// inventory 1 each.
func InventoryFromSettings(table *pieces.Table, set models.SearchSettings) pieces.Inventory {
	if len(set.Pieces.Inventory) > 0 {
		return pieces.InventoryCounts(table, set.Pieces.Inventory)
	}
	if len(set.Pieces.Allow) > 0 {
		inv := make(pieces.Inventory, len(set.Pieces.Allow))
		for _, id := range set.Pieces.Allow {
			if table.Piece(id) != nil {
				inv[id] = 1
			}
		}
		return inv
	}
	return pieces.InventoryOneOfEach(table)
}

// New builds an engine over a prepared index. Pieces absent from the
// inventory are never iterated.
func New(cfg Config) *Engine {
	set := NormalizeSettings(cfg.Settings)
	inv := cfg.Inventory
	if inv == nil {
		inv = InventoryFromSettings(cfg.Table, set)
	}
	e := &Engine{
		idx:         cfg.Index,
		table:       cfg.Table,
		inv:         inv,
		set:         set,
		containerID: cfg.ContainerID,
		seen:        make(map[string]bool),
	}
	for i, p := range cfg.Table.Pieces {
		if _, ok := inv[p.ID]; ok {
			e.order = append(e.order, i)
		}
	}
	e.occ = lattice.NewMask(cfg.Index.N)
	if cfg.Occupied != nil {
		e.occ.Or(cfg.Occupied)
	}
	return e
}

// Step advances the search by one unit: either one committed placement, one
// emitted solution, or one backtrack. It never blocks and never errors.
func (e *Engine) Step() StepResult {
	if e.done {
		return StepResult{Done: true, Reason: e.reason}
	}

	// Root-level completeness: an empty container or a fully pre-occupied
	// position is trivially solved.
	if len(e.stack) == 0 && e.occ.Equals(e.idx.Full) {
		res := e.recordSolution()
		e.finish(models.DoneComplete)
		res.Done, res.Reason = true, e.reason
		return res
	}

	// Open a new frame whenever the top one holds a committed placement.
	if len(e.stack) == 0 || e.top().placed != nil {
		e.stack = append(e.stack, &frame{target: e.selectTarget()})
	}

	f := e.top()
	for {
		pl, ok := e.nextCandidate(f)
		if !ok {
			break
		}
		if e.rejectedByPruning(pl) {
			e.pruned++
			continue
		}
		e.commit(f, pl)
		e.nodes++
		if e.occ.Equals(e.idx.Full) {
			return e.solutionAt(f)
		}
		return StepResult{}
	}

	// Frame exhausted: backtrack one level.
	e.stack = e.stack[:len(e.stack)-1]
	if len(e.stack) == 0 {
		e.finish(models.DoneComplete)
		return StepResult{Done: true, Reason: e.reason}
	}
	e.uncommit(e.top())
	return StepResult{}
}

func (e *Engine) top() *frame {
	return e.stack[len(e.stack)-1]
}

func (e *Engine) finish(reason string) {
	e.done = true
	e.reason = reason
}

// Finish terminates the search from outside the loop (timeout, cancel).
func (e *Engine) Finish(reason string) {
	if !e.done {
		e.finish(reason)
	}
}

// Done reports whether the search has terminated and why.
func (e *Engine) Done() (bool, string) {
	return e.done, e.reason
}

// nextCandidate advances the frame's cursors (piece, then orientation, then
// anchor) until a placement covering the frame target fits: all four cells
// inside the container, all open, piece inventory positive. The cursor is
// left pointing past the returned candidate so the next attempt differs.
func (e *Engine) nextCandidate(f *frame) (*placement, bool) {
	for ; f.pi < len(e.order); f.pi, f.oi, f.ai = f.pi+1, 0, 0 {
		p := &e.table.Pieces[e.order[f.pi]]
		if !e.inv.Available(p.ID) {
			continue
		}
		for ; f.oi < len(p.Orientations); f.oi, f.ai = f.oi+1, 0 {
			or := &p.Orientations[f.oi]
			for ; f.ai < pieces.PieceSize; f.ai++ {
				pl, ok := e.placementAt(e.order[f.pi], or, f.ai, f.target)
				if ok {
					f.ai++
					return pl, true
				}
			}
		}
	}
	return nil, false
}

// placementAt builds the placement that puts offset anchor of the
// orientation onto the target cell, if all four translated cells are open
// container cells.
func (e *Engine) placementAt(pieceIdx int, or *pieces.Orientation, anchor, target int) (*placement, bool) {
	trans := e.idx.Keys[target].Sub(or.Offsets[anchor])
	var cells [pieces.PieceSize]int
	for i, off := range or.Offsets {
		j := e.idx.Ord(trans.Add(off))
		if j < 0 || e.occ.Test(j) {
			return nil, false
		}
		cells[i] = j
	}
	mask := lattice.NewMask(e.idx.N)
	for _, j := range cells {
		mask.Set(j)
	}
	return &placement{
		pieceIdx: pieceIdx,
		orient:   or.ID,
		trans:    trans,
		cells:    cells,
		mask:     mask,
	}, true
}

func (e *Engine) commit(f *frame, pl *placement) {
	e.occ.Or(pl.mask)
	e.inv.Take(e.table.Pieces[pl.pieceIdx].ID)
	f.placed = pl
}

func (e *Engine) uncommit(f *frame) {
	e.occ.AndNot(f.placed.mask)
	e.inv.Put(e.table.Pieces[f.placed.pieceIdx].ID)
	f.placed = nil
}

// solutionAt handles a completed occupancy at frame f: emit (subject to
// dedup), then un-commit the just-placed piece so the search keeps making
// progress past this leaf.
func (e *Engine) solutionAt(f *frame) StepResult {
	res := e.recordSolution()
	e.uncommit(f)
	if res.Solution != nil && e.solutions >= int64(e.set.MaxSolutions) {
		e.finish(models.DoneLimit)
		res.Done, res.Reason = true, e.reason
		return res
	}
	if res.Solution != nil && e.set.PauseOnSolution {
		res.PauseRequested = true
	}
	return res
}

// recordSolution builds the solution from all committed frames, computes the
// canonical signature, and suppresses duplicates when dedup is active.
func (e *Engine) recordSolution() StepResult {
	var wire []models.Placement
	parts := make([]string, 0, len(e.stack))
	for _, f := range e.stack {
		if f.placed == nil {
			continue
		}
		id := e.table.Pieces[f.placed.pieceIdx].ID
		wire = append(wire, models.Placement{
			PieceID:       id,
			OrientationID: f.placed.orient,
			Translation:   f.placed.trans,
		})
		parts = append(parts, signaturePart(id, f.placed.cells))
	}
	sort.Strings(parts)
	sig := strings.Join(parts, ";")

	if e.set.UniqueSolutions {
		if e.seen[sig] {
			return StepResult{}
		}
		e.seen[sig] = true
	}
	e.solutions++
	return StepResult{Solution: &models.SolutionEvent{Placements: wire, Signature: sig}}
}

// signaturePart is the order-independent encoding of one placement:
// "pieceId:idx,idx,idx,idx" with covered indices ascending.
func signaturePart(id string, cells [pieces.PieceSize]int) string {
	sorted := cells
	sort.Ints(sorted[:])
	var b strings.Builder
	b.WriteString(id)
	b.WriteByte(':')
	for i, c := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(c))
	}
	return b.String()
}

// Counters returns the node, pruned, and solution counts.
func (e *Engine) Counters() (nodes, pruned, solutions int64) {
	return e.nodes, e.pruned, e.solutions
}

// Depth returns the current frame-stack depth.
func (e *Engine) Depth() int {
	return len(e.stack)
}

// StackPlacements returns the currently committed placements, bottom-up.
func (e *Engine) StackPlacements() []models.Placement {
	out := make([]models.Placement, 0, len(e.stack))
	for _, f := range e.stack {
		if f.placed == nil {
			continue
		}
		out = append(out, models.Placement{
			PieceID:       e.table.Pieces[f.placed.pieceIdx].ID,
			OrientationID: f.placed.orient,
			Translation:   f.placed.trans,
		})
	}
	return out
}

// Settings returns the normalized settings in effect.
func (e *Engine) Settings() models.SearchSettings {
	return e.set
}

// OpenCount returns the number of still-open container cells.
func (e *Engine) OpenCount() int {
	return e.idx.N - e.occ.OnesCount()
}
