package components

// Position is a grid cell.
type Position struct {
	X, Y int
}

// Velocity is the last displacement, in cells per tick.
type Velocity struct {
	X, Y int
}

// Trail holds the most recent positions, oldest first.
type Trail struct {
	Points []Position
}

// Push appends p and drops the oldest points beyond limit.
func (t *Trail) Push(p Position, limit int) {
	t.Points = append(t.Points, p)
	if over := len(t.Points) - limit; limit > 0 && over > 0 {
		// Shift down instead of reslicing so the backing array stays bounded.
		n := copy(t.Points, t.Points[over:])
		t.Points = t.Points[:n]
	}
}

// Last returns the most recent point.
func (t *Trail) Last() (Position, bool) {
	if len(t.Points) == 0 {
		return Position{}, false
	}
	return t.Points[len(t.Points)-1], true
}
