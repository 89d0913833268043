// internal/bingo/validate.go
package bingo

// Line is one winnable set of cells, as [row, col] pairs.
type Line [GridSize][2]int

// lines holds the 5 rows, 5 columns and 2 diagonals in check order.
var lines = buildLines()

func buildLines() []Line {
	out := make([]Line, 0, 2*GridSize+2)
	for row := 0; row < GridSize; row++ {
		var l Line
		for col := 0; col < GridSize; col++ {
			l[col] = [2]int{row, col}
		}
		out = append(out, l)
	}
	for col := 0; col < GridSize; col++ {
		var l Line
		for row := 0; row < GridSize; row++ {
			l[row] = [2]int{row, col}
		}
		out = append(out, l)
	}
	var diag, anti Line
	for i := 0; i < GridSize; i++ {
		diag[i] = [2]int{i, i}
		anti[i] = [2]int{i, GridSize - 1 - i}
	}
	return append(out, diag, anti)
}

// Lines returns every winning pattern.
func Lines() []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}

// WinningLine returns the first row, column or diagonal of g fully covered by called.
// The free cell always counts as covered.
func (g *Grid) WinningLine(called []int) (Line, bool) {
	var marked [MaxNumber + 1]bool
	for _, n := range called {
		if n >= 1 && n <= MaxNumber {
			marked[n] = true
		}
	}

	for _, l := range lines {
		complete := true
		for _, cell := range l {
			n := g[cell[0]][cell[1]]
			if n == Free {
				continue
			}
			if n < 1 || n > MaxNumber || !marked[n] {
				complete = false
				break
			}
		}
		if complete {
			return l, true
		}
	}
	return Line{}, false
}

// IsWinning reports whether card cardID currently satisfies a winning pattern against the
// authoritative called numbers. Unknown cards never win.
func (c *Catalog) IsWinning(cardID int, called []int) bool {
	card, ok := c.Card(cardID)
	if !ok {
		return false
	}
	_, won := card.Grid.WinningLine(called)
	return won
}
