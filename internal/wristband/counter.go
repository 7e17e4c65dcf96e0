package wristband

// CounterResult classifies a presented counter against the stored one.
type CounterResult int

const (
	CounterOK CounterResult = iota
	CounterReplay
	CounterForwardJump
)

func (r CounterResult) String() string {
	switch r {
	case CounterOK:
		return "ok"
	case CounterReplay:
		return "replay"
	case CounterForwardJump:
		return "forward_jump"
	}
	return "unknown"
}

// ClassifyCounter compares the server's stored counter with the one a
// tag presented. Counters are unsigned and never wrap in practice.
func ClassifyCounter(stored, presented uint32) CounterResult {
	switch {
	case presented == stored:
		return CounterOK
	case presented < stored:
		return CounterReplay
	default:
		return CounterForwardJump
	}
}
