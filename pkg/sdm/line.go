package sdm

// VisitLine walks the Bresenham line from a to b inclusive, calling fn for
// every cell. Returning false stops the walk.
func VisitLine(a, b CellIndex, fn func(ci CellIndex) bool) {
	dx := b.X - a.X
	if dx < 0 {
		dx = -dx
	}
	dy := b.Y - a.Y
	if dy < 0 {
		dy = -dy
	}
	sx := int32(1)
	if a.X > b.X {
		sx = -1
	}
	sy := int32(1)
	if a.Y > b.Y {
		sy = -1
	}

	err := dx - dy
	x, y := a.X, a.Y
	for {
		if !fn(CellIndex{X: x, Y: y}) {
			return
		}
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x += sx
		}
		if e2 < dx {
			err += dx
			y += sy
		}
	}
}
