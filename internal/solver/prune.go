package solver

import "github.com/latticelab/pyramid-engine/internal/pieces"

// rejectedByPruning applies the enabled necessary-condition checks to a
// candidate before committing it. Both checks are conservative: they only
// reject positions no completion can rescue.
func (e *Engine) rejectedByPruning(pl *placement) bool {
	openAfter := e.idx.N - e.occ.OnesCount() - pieces.PieceSize
	if e.set.Pruning.MultipleOf4 && openAfter%pieces.PieceSize != 0 {
		return true
	}
	if e.set.Pruning.Connectivity && openAfter > 0 {
		if !e.openConnectedExcluding(pl, openAfter) {
			return true
		}
	}
	return false
}

// openConnectedExcluding reports whether the open region, after hypothetically
// placing pl, is a single connected component of the neighbor graph. A
// disconnected open region can never be exactly covered because a piece's
// four cells are always drawn from one component.
func (e *Engine) openConnectedExcluding(pl *placement, openAfter int) bool {
	closed := func(i int) bool {
		return e.occ.Test(i) || pl.mask.Test(i)
	}

	seed := -1
	for i := 0; i < e.idx.N; i++ {
		if !closed(i) {
			seed = i
			break
		}
	}
	if seed < 0 {
		return true
	}

	// Single-source BFS flood fill from the seed.
	visited := make([]bool, e.idx.N)
	queue := make([]int, 0, openAfter)
	visited[seed] = true
	queue = append(queue, seed)
	count := 1
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, nb := range e.idx.Neighbors[cur] {
			if visited[nb] || closed(nb) {
				continue
			}
			visited[nb] = true
			queue = append(queue, nb)
			count++
		}
	}
	return count == openAfter
}
