package xmppsession

type State int

const (
	StateClosed State = iota
	StateConnecting
	StateNegotiating
	StateBound
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateNegotiating:
		return "negotiating"
	case StateBound:
		return "bound"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// transitions[old][new] tells whether a session may move from old to new.
var transitions = [...][5]bool{
	StateClosed:      {StateClosed: true, StateConnecting: true},
	StateConnecting:  {StateClosed: true, StateNegotiating: true, StateClosing: true},
	StateNegotiating: {StateClosed: true, StateNegotiating: true, StateBound: true, StateClosing: true},
	StateBound:       {StateClosed: true, StateClosing: true},
	StateClosing:     {StateClosed: true},
}

func legalTransition(from, to State) bool {
	if from < 0 || int(from) >= len(transitions) || to < 0 || int(to) >= len(transitions[from]) {
		return false
	}
	return transitions[from][to]
}
