package state

// validTransitions contains the permitted forward transitions of every flow. Moving to idle is
// always allowed; a flow's entry state is reachable from idle only.
var validTransitions = func() map[State][]State {
	table := make(map[State][]State)
	for _, steps := range flowSteps {
		table[StateIdle] = append(table[StateIdle], steps[0])
		for i := 0; i+1 < len(steps); i++ {
			table[steps[i]] = append(table[steps[i]], steps[i+1])
		}
	}
	return table
}()

// IsTransitionAllowed reports whether moving from one state to another is valid.
func IsTransitionAllowed(from, to State) bool {
	if to == StateIdle {
		return true
	}

	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}

	for _, state := range allowed {
		if state == to {
			return true
		}
	}

	return false
}
