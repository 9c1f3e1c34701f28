package solver

import (
	"fmt"
	"sort"

	"github.com/latticelab/pyramid-engine/internal/lattice"
	"github.com/latticelab/pyramid-engine/internal/pieces"
	"github.com/latticelab/pyramid-engine/pkg/models"
)

// Snapshot serializes the engine's full state: occupancy, inventory, the
// frame stack with cursor positions, counters, and settings. The result is a
// deep, point-in-time copy; resuming from it continues the search exactly
// where it left off.
func (e *Engine) Snapshot(elapsedMs int64) models.Snapshot {
	snap := models.Snapshot{
		Schema:       models.SnapshotSchema,
		ContainerID:  e.containerID,
		N:            e.idx.N,
		Keys:         make([]string, e.idx.N),
		OccupancyHex: e.occ.Hex(),
		Remaining:    make(map[string]int64, len(e.inv)),
		PieceOrder:   make([]string, len(e.order)),
		Stack:        make([]models.SnapshotFrame, len(e.stack)),
		Nodes:        e.nodes,
		Pruned:       e.pruned,
		Solutions:    e.solutions,
		ElapsedMs:    e.baseElapsedMs + elapsedMs,
		Settings:     e.set,
	}
	for i, c := range e.idx.Keys {
		snap.Keys[i] = c.Key()
	}
	for id, n := range e.inv {
		snap.Remaining[id] = n
	}
	for i, pieceIdx := range e.order {
		snap.PieceOrder[i] = e.table.Pieces[pieceIdx].ID
	}
	for i, f := range e.stack {
		sf := models.SnapshotFrame{
			Target:       f.target,
			PieceCursor:  f.pi,
			OrientCursor: f.oi,
			AnchorCursor: f.ai,
		}
		if f.placed != nil {
			sf.Committed = true
			sf.PieceID = e.table.Pieces[f.placed.pieceIdx].ID
			sf.OrientationID = f.placed.orient
			sf.Translation = f.placed.trans
			sf.MaskHex = f.placed.mask.Hex()
		}
		snap.Stack[i] = sf
	}
	if len(e.seen) > 0 {
		snap.Seen = make([]string, 0, len(e.seen))
		for sig := range e.seen {
			snap.Seen = append(snap.Seen, sig)
		}
		sort.Strings(snap.Seen)
	}
	return snap
}

// Restore reconstructs an engine from a snapshot produced by Snapshot. The
// orientation table must be the one the snapshot was taken against.
func Restore(table *pieces.Table, snap models.Snapshot) (*Engine, error) {
	if snap.Schema != models.SnapshotSchema {
		return nil, fmt.Errorf("unsupported snapshot schema %d", snap.Schema)
	}
	cells := make([]models.Cell, len(snap.Keys))
	for i, key := range snap.Keys {
		c, err := models.CellFromKey(key)
		if err != nil {
			return nil, err
		}
		cells[i] = c
	}
	idx := lattice.NewIndex(cells)
	if idx.N != snap.N {
		return nil, fmt.Errorf("snapshot key list has %d distinct cells, want %d", idx.N, snap.N)
	}

	occ, err := lattice.MaskFromHex(snap.OccupancyHex, idx.N)
	if err != nil {
		return nil, fmt.Errorf("occupancy: %v", err)
	}

	inv := make(pieces.Inventory, len(snap.Remaining))
	for id, n := range snap.Remaining {
		if table.Piece(id) == nil {
			return nil, fmt.Errorf("snapshot references unknown piece %q", id)
		}
		inv[id] = n
	}

	e := &Engine{
		idx:           idx,
		table:         table,
		inv:           inv,
		set:           NormalizeSettings(snap.Settings),
		containerID:   snap.ContainerID,
		nodes:         snap.Nodes,
		pruned:        snap.Pruned,
		solutions:     snap.Solutions,
		baseElapsedMs: snap.ElapsedMs,
		seen:          make(map[string]bool, len(snap.Seen)),
		occ:           occ,
	}
	for _, sig := range snap.Seen {
		e.seen[sig] = true
	}
	for _, id := range snap.PieceOrder {
		i, ok := tableIndex(table, id)
		if !ok {
			return nil, fmt.Errorf("snapshot piece order references unknown piece %q", id)
		}
		e.order = append(e.order, i)
	}

	for _, sf := range snap.Stack {
		if sf.Target < 0 || sf.Target >= idx.N {
			return nil, fmt.Errorf("snapshot frame target %d out of range", sf.Target)
		}
		f := &frame{target: sf.Target, pi: sf.PieceCursor, oi: sf.OrientCursor, ai: sf.AnchorCursor}
		if sf.Committed {
			pl, err := e.restorePlacement(sf)
			if err != nil {
				return nil, err
			}
			f.placed = pl
		}
		e.stack = append(e.stack, f)
	}
	return e, nil
}

func (e *Engine) restorePlacement(sf models.SnapshotFrame) (*placement, error) {
	pieceIdx, ok := tableIndex(e.table, sf.PieceID)
	if !ok {
		return nil, fmt.Errorf("snapshot frame references unknown piece %q", sf.PieceID)
	}
	p := &e.table.Pieces[pieceIdx]
	if sf.OrientationID < 0 || sf.OrientationID >= len(p.Orientations) {
		return nil, fmt.Errorf("snapshot frame orientation %d out of range for piece %q", sf.OrientationID, sf.PieceID)
	}
	or := &p.Orientations[sf.OrientationID]

	var cells [pieces.PieceSize]int
	mask := lattice.NewMask(e.idx.N)
	for i, off := range or.Offsets {
		j := e.idx.Ord(sf.Translation.Add(off))
		if j < 0 {
			return nil, fmt.Errorf("snapshot placement of %q falls outside the container", sf.PieceID)
		}
		cells[i] = j
		mask.Set(j)
	}
	if sf.MaskHex != "" {
		want, err := lattice.MaskFromHex(sf.MaskHex, e.idx.N)
		if err != nil {
			return nil, fmt.Errorf("frame mask: %v", err)
		}
		if !mask.Equals(want) {
			return nil, fmt.Errorf("snapshot placement mask mismatch for piece %q", sf.PieceID)
		}
	}
	return &placement{
		pieceIdx: pieceIdx,
		orient:   sf.OrientationID,
		trans:    sf.Translation,
		cells:    cells,
		mask:     mask,
	}, nil
}

func tableIndex(t *pieces.Table, id string) (int, bool) {
	for i, p := range t.Pieces {
		if p.ID == id {
			return i, true
		}
	}
	return 0, false
}
