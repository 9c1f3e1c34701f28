package lattice

import (
	"sync"

	"github.com/latticelab/pyramid-engine/pkg/models"
)

// Directions is the 12-neighbor connectivity kernel of the face-centered
// cubic lattice: every signed combination of two unit steps in distinct axes.
var Directions = [12]models.Cell{
	{X: 1, Y: 1}, {X: 1, Y: -1}, {X: -1, Y: 1}, {X: -1, Y: -1},
	{X: 1, Z: 1}, {X: 1, Z: -1}, {X: -1, Z: 1}, {X: -1, Z: -1},
	{Y: 1, Z: 1}, {Y: 1, Z: -1}, {Y: -1, Z: 1}, {Y: -1, Z: -1},
}

// Index is the precomputed dense view of one container: a bijection from
// cell to bit index, the reverse key list, the full-occupancy constant, and
// the neighbor graph used by connectivity pruning. Immutable once built.
type Index struct {
	N         int
	Keys      []models.Cell
	Ords      map[models.Cell]int
	Neighbors [][]int
	Full      Mask
}

// NewIndex builds the dense index for a container. The input order is kept
// (first occurrence wins for duplicates). An empty container yields N=0 and
// a trivially complete occupancy.
func NewIndex(cells []models.Cell) *Index {
	idx := &Index{Ords: make(map[models.Cell]int, len(cells))}
	for _, c := range cells {
		if _, dup := idx.Ords[c]; dup {
			continue
		}
		idx.Ords[c] = len(idx.Keys)
		idx.Keys = append(idx.Keys, c)
	}
	idx.N = len(idx.Keys)
	idx.Full = NewMask(idx.N)
	idx.Neighbors = make([][]int, idx.N)
	for i, c := range idx.Keys {
		idx.Full.Set(i)
		for _, d := range Directions {
			if j, ok := idx.Ords[c.Add(d)]; ok {
				idx.Neighbors[i] = append(idx.Neighbors[i], j)
			}
		}
	}
	return idx
}

// Ord returns the dense index of a cell, or -1 if it is outside the
// container.
func (idx *Index) Ord(c models.Cell) int {
	if i, ok := idx.Ords[c]; ok {
		return i
	}
	return -1
}

// Cache memoizes indexes by container id so repeated checks against the same
// container (the common case during interactive play) skip the precompute.
type Cache struct {
	mu      sync.Mutex
	indexes map[string]*Index
}

func NewCache() *Cache {
	return &Cache{indexes: make(map[string]*Index)}
}

// Get returns the cached index for id, building and storing it on first use.
// Anonymous containers (empty id) are never cached.
func (c *Cache) Get(id string, cells []models.Cell) *Index {
	if id == "" {
		return NewIndex(cells)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx, ok := c.indexes[id]; ok {
		return idx
	}
	idx := NewIndex(cells)
	c.indexes[id] = idx
	return idx
}
