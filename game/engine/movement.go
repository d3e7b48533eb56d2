package engine

// AdvanceState computes the cell in front of the player. The move is
// rejected, not clamped: when the target is off the grid the original
// state comes back with moved=false.
func AdvanceState(state PlayerState, grid *Grid) (PlayerState, bool) {
	dx, dy := state.Facing.Delta()
	nx, ny := state.X+dx, state.Y+dy
	if !grid.InBounds(nx, ny) {
		return state, false
	}
	state.X, state.Y = nx, ny
	return state, true
}

// TurnRightState rotates the player clockwise
func TurnRightState(state PlayerState) PlayerState {
	state.Facing = state.Facing.Right()
	return state
}

// TurnLeftState rotates the player counter-clockwise
func TurnLeftState(state PlayerState) PlayerState {
	state.Facing = state.Facing.Left()
	return state
}
