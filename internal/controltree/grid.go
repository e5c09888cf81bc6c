package controltree

// grid is a uniform spatial index over node bounds. Each cell lists the
// nodes overlapping it, so a point lookup only tests a handful of candidates.
type grid struct {
	size  int
	cells map[[2]int][]*Node
}

func newGrid(size int, nodes []*Node) *grid {
	g := &grid{size: size, cells: make(map[[2]int][]*Node)}
	for _, n := range nodes {
		if n.bounds.Empty() {
			continue
		}
		x0, y0 := g.cell(n.bounds.Left, n.bounds.Top)
		x1, y1 := g.cell(n.bounds.Right-1, n.bounds.Bottom-1)
		for cx := x0; cx <= x1; cx++ {
			for cy := y0; cy <= y1; cy++ {
				k := [2]int{cx, cy}
				g.cells[k] = append(g.cells[k], n)
			}
		}
	}
	return g
}

func (g *grid) cell(x, y int) (int, int) {
	return floorDiv(x, g.size), floorDiv(y, g.size)
}

// lookup picks the deepest containing node; among equals the one visited
// last wins, matching top-most z-order for overlapping siblings.
func (g *grid) lookup(x, y int) *Node {
	cx, cy := g.cell(x, y)
	var best *Node
	for _, n := range g.cells[[2]int{cx, cy}] {
		if !n.bounds.Contains(x, y) {
			continue
		}
		if best == nil || n.depth > best.depth || (n.depth == best.depth && n.order > best.order) {
			best = n
		}
	}
	return best
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
