// Package pieces holds the piece orientation table: every shipped 4-cell
// piece shape together with its symmetry-distinct rigid orientations on the
// FCC lattice. Orientations are deduplicated here, at table build time; the
// search engine consumes them as-is.
package pieces

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/latticelab/pyramid-engine/pkg/models"
)

// PieceSize is fixed: every piece covers exactly 4 cells.
const PieceSize = 4

// Orientation is one rigid rotation of a piece, expressed as 4 relative
// offsets with the lexicographically smallest cell at the origin.
type Orientation struct {
	ID      int
	Offsets [PieceSize]models.Cell
}

// Piece is a shape identifier plus its distinct orientations.
type Piece struct {
	ID           string
	Orientations []Orientation
}

// Table is an ordered piece library with id lookup. The order is significant:
// it fixes the engine's piece-cursor iteration and therefore determinism.
type Table struct {
	Pieces []Piece
	byID   map[string]int
}

// NewTable builds a lookup table over the given pieces, keeping their order.
func NewTable(ps []Piece) *Table {
	t := &Table{Pieces: ps, byID: make(map[string]int, len(ps))}
	for i, p := range ps {
		t.byID[p.ID] = i
	}
	return t
}

// Piece returns the piece with the given id, or nil.
func (t *Table) Piece(id string) *Piece {
	if i, ok := t.byID[id]; ok {
		return &t.Pieces[i]
	}
	return nil
}

// IDs returns the piece ids in table order.
func (t *Table) IDs() []string {
	ids := make([]string, len(t.Pieces))
	for i, p := range t.Pieces {
		ids[i] = p.ID
	}
	return ids
}

// baseShapes are the shipped 4-cell shapes, each written as a chain of FCC
// neighbor steps from the origin. d1=(1,1,0) d2=(1,-1,0) d3=(1,0,1) d4=(0,1,1).
var baseShapes = []struct {
	id    string
	cells [PieceSize]models.Cell
}{
	{"rod", [PieceSize]models.Cell{{}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}},
	{"bend", [PieceSize]models.Cell{{}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 1}}},
	{"zig", [PieceSize]models.Cell{{}, {X: 1, Y: 1}, {X: 2, Y: 0}, {X: 3, Y: 1}}},
	{"rhomb", [PieceSize]models.Cell{{}, {X: 1, Y: 1}, {X: 2, Y: 0}, {X: 1, Y: -1}}},
	{"tee", [PieceSize]models.Cell{{}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 2, Y: 0}}},
	{"tetra", [PieceSize]models.Cell{{}, {X: 1, Y: 1}, {X: 1, Z: 1}, {Y: 1, Z: 1}}},
	{"twist", [PieceSize]models.Cell{{}, {X: 1, Y: 1}, {X: 2, Y: 1, Z: 1}, {X: 2, Y: 2, Z: 2}}},
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// DefaultTable returns the shipped piece library with all distinct proper
// rotations precomputed. The table is built once and shared; it is immutable.
func DefaultTable() *Table {
	defaultOnce.Do(func() {
		ps := make([]Piece, 0, len(baseShapes))
		for _, s := range baseShapes {
			ps = append(ps, Piece{ID: s.id, Orientations: orientationsOf(s.cells)})
		}
		defaultTable = NewTable(ps)
	})
	return defaultTable
}

type matrix [3][3]int

func (m matrix) apply(c models.Cell) models.Cell {
	return models.Cell{
		X: m[0][0]*c.X + m[0][1]*c.Y + m[0][2]*c.Z,
		Y: m[1][0]*c.X + m[1][1]*c.Y + m[1][2]*c.Z,
		Z: m[2][0]*c.X + m[2][1]*c.Y + m[2][2]*c.Z,
	}
}

// rotations returns the 24 proper rotations of the lattice: signed
// permutation matrices with determinant +1. These map the 12-direction
// neighbor kernel onto itself, so rotated pieces stay valid shapes.
func rotations() []matrix {
	perms := [][3]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	var out []matrix
	for _, p := range perms {
		for signs := 0; signs < 8; signs++ {
			var m matrix
			for row := 0; row < 3; row++ {
				s := 1
				if signs&(1<<row) != 0 {
					s = -1
				}
				m[row][p[row]] = s
			}
			det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
				m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
				m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
			if det == 1 {
				out = append(out, m)
			}
		}
	}
	return out
}

// orientationsOf applies every proper rotation to the base cells, normalizes
// each image, and keeps one copy per distinct shape.
func orientationsOf(base [PieceSize]models.Cell) []Orientation {
	seen := make(map[string]bool)
	var out []Orientation
	for _, m := range rotations() {
		var img [PieceSize]models.Cell
		for i, c := range base {
			img[i] = m.apply(c)
		}
		norm := normalize(img)
		key := shapeKey(norm)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Orientation{ID: len(out), Offsets: norm})
	}
	return out
}

// normalize sorts the cells lexicographically and translates the shape so
// its first cell sits at the origin.
func normalize(cells [PieceSize]models.Cell) [PieceSize]models.Cell {
	sorted := cells[:]
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	origin := sorted[0]
	var out [PieceSize]models.Cell
	for i, c := range sorted {
		out[i] = c.Sub(origin)
	}
	return out
}

func shapeKey(cells [PieceSize]models.Cell) string {
	parts := make([]string, PieceSize)
	for i, c := range cells {
		parts[i] = c.Key()
	}
	return strings.Join(parts, ";")
}

// Inventory maps piece id to remaining count; models.RemainingInfinite marks
// an unlimited supply. Counts never go negative: the engine decrements once
// per commit and increments once per undo.
type Inventory map[string]int64

// Clone returns an independent copy.
func (inv Inventory) Clone() Inventory {
	out := make(Inventory, len(inv))
	for k, v := range inv {
		out[k] = v
	}
	return out
}

// Available reports whether the piece can still be placed.
func (inv Inventory) Available(id string) bool {
	n, ok := inv[id]
	return ok && (n == models.RemainingInfinite || n > 0)
}

// Take decrements the remaining count for one committed placement.
func (inv Inventory) Take(id string) {
	if n, ok := inv[id]; ok && n != models.RemainingInfinite && n > 0 {
		inv[id] = n - 1
	}
}

// Put restores the count for one undone placement.
func (inv Inventory) Put(id string) {
	if n, ok := inv[id]; ok && n != models.RemainingInfinite {
		inv[id] = n + 1
	}
}

// InventoryUnlimited allows every piece in the table without limit.
func InventoryUnlimited(t *Table) Inventory {
	inv := make(Inventory, len(t.Pieces))
	for _, p := range t.Pieces {
		inv[p.ID] = models.RemainingInfinite
	}
	return inv
}

// InventoryOneOfEach allows each piece exactly once. This is also the safe
// default when a request names no inventory at all.
func InventoryOneOfEach(t *Table) Inventory {
	inv := make(Inventory, len(t.Pieces))
	for _, p := range t.Pieces {
		inv[p.ID] = 1
	}
	return inv
}

// InventorySingleType allows only the named piece, without limit.
func InventorySingleType(t *Table, id string) (Inventory, error) {
	if t.Piece(id) == nil {
		return nil, fmt.Errorf("unknown piece id %q", id)
	}
	return Inventory{id: models.RemainingInfinite}, nil
}

// InventoryCounts uses caller-supplied counts verbatim, dropping unknown ids
// and non-positive entries (a zero or negative count means "never selected").
func InventoryCounts(t *Table, counts map[string]int64) Inventory {
	inv := make(Inventory, len(counts))
	for id, n := range counts {
		if t.Piece(id) == nil {
			continue
		}
		if n == models.RemainingInfinite || n > 0 {
			inv[id] = n
		}
	}
	return inv
}
