package pieces

import (
	"testing"

	"github.com/latticelab/pyramid-engine/internal/lattice"
	"github.com/latticelab/pyramid-engine/pkg/models"
)

func TestDefaultTableShapes(t *testing.T) {
	table := DefaultTable()
	if len(table.Pieces) != len(baseShapes) {
		t.Fatalf("Expected %d shipped pieces, got %d", len(baseShapes), len(table.Pieces))
	}
	for _, p := range table.Pieces {
		if len(p.Orientations) == 0 {
			t.Errorf("Piece %q has no orientations", p.ID)
		}
		if len(p.Orientations) > 24 {
			t.Errorf("Piece %q has %d orientations; 24 proper rotations is the ceiling", p.ID, len(p.Orientations))
		}
	}
	if table.Piece("rod") == nil || table.Piece("nonexistent") != nil {
		t.Error("Piece lookup by id is broken")
	}
}

func TestRodHasSixOrientations(t *testing.T) {
	// A straight rod lies along one of the 12 lattice directions; direction
	// and its negation give the same cell set, leaving 6 distinct lines.
	rod := DefaultTable().Piece("rod")
	if got := len(rod.Orientations); got != 6 {
		t.Errorf("Expected 6 distinct rod orientations, got %d", got)
	}
}

func TestOrientationsAreNormalizedAndDistinct(t *testing.T) {
	for _, p := range DefaultTable().Pieces {
		seen := make(map[string]bool)
		for _, or := range p.Orientations {
			// Normal form: offsets sorted, first at the origin.
			if or.Offsets[0] != (models.Cell{}) {
				t.Errorf("%s orientation %d: first offset should be origin, got %v", p.ID, or.ID, or.Offsets[0])
			}
			key := shapeKey(or.Offsets)
			if seen[key] {
				t.Errorf("%s orientation %d duplicates another orientation", p.ID, or.ID)
			}
			seen[key] = true
		}
	}
}

func TestOrientationsStayConnected(t *testing.T) {
	// Rotation preserves adjacency, so every orientation must remain one
	// connected cluster under the 12-direction kernel.
	for _, p := range DefaultTable().Pieces {
		for _, or := range p.Orientations {
			cells := make(map[models.Cell]bool, PieceSize)
			for _, c := range or.Offsets {
				cells[c] = true
			}
			visited := map[models.Cell]bool{or.Offsets[0]: true}
			queue := []models.Cell{or.Offsets[0]}
			for len(queue) > 0 {
				cur := queue[0]
				queue = queue[1:]
				for _, d := range lattice.Directions {
					nb := cur.Add(d)
					if cells[nb] && !visited[nb] {
						visited[nb] = true
						queue = append(queue, nb)
					}
				}
			}
			if len(visited) != PieceSize {
				t.Errorf("%s orientation %d is disconnected: reached %d of %d cells",
					p.ID, or.ID, len(visited), PieceSize)
			}
		}
	}
}

func TestInventoryTakePut(t *testing.T) {
	inv := Inventory{"rod": 1, "bend": models.RemainingInfinite}

	if !inv.Available("rod") {
		t.Error("rod with count 1 should be available")
	}
	inv.Take("rod")
	if inv.Available("rod") {
		t.Error("rod should be exhausted after one take")
	}
	inv.Put("rod")
	if !inv.Available("rod") {
		t.Error("rod should be available again after put")
	}

	// Infinite supply never changes.
	inv.Take("bend")
	inv.Take("bend")
	if inv["bend"] != models.RemainingInfinite || !inv.Available("bend") {
		t.Error("Infinite inventory must not decrement")
	}

	// Unknown pieces are never available and never tracked.
	inv.Take("ghost")
	if inv.Available("ghost") {
		t.Error("Unknown piece should not be available")
	}
}

func TestInventoryConstructors(t *testing.T) {
	table := DefaultTable()

	unlimited := InventoryUnlimited(table)
	for _, id := range table.IDs() {
		if unlimited[id] != models.RemainingInfinite {
			t.Errorf("Unlimited inventory for %q should be infinite", id)
		}
	}

	one := InventoryOneOfEach(table)
	if one["rod"] != 1 || len(one) != len(table.Pieces) {
		t.Error("OneOfEach inventory should have count 1 per shipped piece")
	}

	if _, err := InventorySingleType(table, "nonexistent"); err == nil {
		t.Error("SingleType with an unknown id should error")
	}
	single, err := InventorySingleType(table, "rod")
	if err != nil || single["rod"] != models.RemainingInfinite || len(single) != 1 {
		t.Errorf("SingleType rod should be {rod: infinite}, got %v (err %v)", single, err)
	}

	counts := InventoryCounts(table, map[string]int64{
		"rod":   2,
		"bend":  0,
		"zig":   -3,
		"ghost": 5,
	})
	if counts["rod"] != 2 {
		t.Error("Positive counts should pass through")
	}
	if _, ok := counts["bend"]; ok {
		t.Error("Zero counts mean never selected and should be dropped")
	}
	if _, ok := counts["zig"]; ok {
		t.Error("Negative counts (other than the infinite sentinel) should be dropped")
	}
	if _, ok := counts["ghost"]; ok {
		t.Error("Unknown ids should be dropped")
	}
}

func TestInventoryCloneIsIndependent(t *testing.T) {
	inv := Inventory{"rod": 2}
	cl := inv.Clone()
	cl.Take("rod")
	if inv["rod"] != 2 {
		t.Error("Mutating a clone must not touch the original")
	}
}
