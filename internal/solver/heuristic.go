package solver

import (
	"math"

	"github.com/latticelab/pyramid-engine/internal/pieces"
	"github.com/latticelab/pyramid-engine/pkg/models"
)

// selectTarget picks the next open cell to fill. Most-constrained-cell fails
// fast: the cell with the fewest legal covers branches least, and a cell with
// zero covers proves the current partial state is a dead end.
func (e *Engine) selectTarget() int {
	if e.set.MoveOrdering == models.OrderScan {
		for i := 0; i < e.idx.N; i++ {
			if !e.occ.Test(i) {
				return i
			}
		}
		return -1
	}

	best, bestCount := -1, math.MaxInt
	for i := 0; i < e.idx.N; i++ {
		if e.occ.Test(i) {
			continue
		}
		c := e.countCovers(i, bestCount)
		if c == 0 {
			return i
		}
		if c < bestCount {
			best, bestCount = i, c
		}
	}
	return best
}

// countCovers counts legal placements covering the cell across all pieces,
// orientations, and anchors with positive remaining inventory, stopping once
// the count reaches limit (the best known minimum so far).
func (e *Engine) countCovers(cell, limit int) int {
	count := 0
	for _, pieceIdx := range e.order {
		p := &e.table.Pieces[pieceIdx]
		if !e.inv.Available(p.ID) {
			continue
		}
		for oi := range p.Orientations {
			or := &p.Orientations[oi]
			for ai := 0; ai < pieces.PieceSize; ai++ {
				if _, ok := e.placementAt(pieceIdx, or, ai, cell); ok {
					count++
					if count >= limit {
						return count
					}
				}
			}
		}
	}
	return count
}

// FirstPlacementAt returns the first legal placement covering the given cell
// under the same cursor order, pruning, and inventory rules as the search.
// It backs hint generation and does not mutate engine state.
func (e *Engine) FirstPlacementAt(cell int) (models.HintResult, bool) {
	for _, pieceIdx := range e.order {
		p := &e.table.Pieces[pieceIdx]
		if !e.inv.Available(p.ID) {
			continue
		}
		for oi := range p.Orientations {
			or := &p.Orientations[oi]
			for ai := 0; ai < pieces.PieceSize; ai++ {
				pl, ok := e.placementAt(pieceIdx, or, ai, cell)
				if !ok {
					continue
				}
				if e.rejectedByPruning(pl) {
					continue
				}
				return models.HintResult{
					PieceID:       p.ID,
					OrientationID: or.ID,
					Anchor:        pl.trans,
				}, true
			}
		}
	}
	return models.HintResult{}, false
}
