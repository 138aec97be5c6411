package checkout

// State is where one checkout attempt currently stands. Errors never move the
// state: they overlay it, the user retries in place.
type State string

const (
	StateLoadingCart State = "LOADING_CART"
	StateDetails     State = "DETAILS"
	StatePayment     State = "PAYMENT"
	StateSuccess     State = "SUCCESS"
)

func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether no further mutation is possible.
func (s State) IsTerminal() bool {
	return s == StateSuccess
}

var allowedTransitions = map[State]map[State]bool{
	StateLoadingCart: {
		StateDetails: true,
	},
	StateDetails: {
		StatePayment: true,
		StateSuccess: true, // cash on delivery skips PAYMENT entirely
	},
	StatePayment: {
		StateSuccess: true,
		StateDetails: true, // user backs out to edit the order
	},
	StateSuccess: {},
}

// CanTransition reports whether the state machine allows moving from one
// state to another.
func CanTransition(from, to State) bool {
	next, ok := allowedTransitions[from]

	return ok && next[to]
}
