package ifacemgr

import "sync/atomic"

// State is a NetworkInterface's position in the lifecycle spec.md §4.8
// describes: Discovered -> Live <-> Failing -> Dead, with Dead terminal.
type State int32

const (
	StateDiscovered State = iota
	StateLive
	StateFailing
	StateDead
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateLive:
		return "live"
	case StateFailing:
		return "failing"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// stateBox is an atomically-swapped State, letting the sender task and the
// scanner observe/transition state without a mutex.
type stateBox struct {
	v atomic.Int32
}

func (b *stateBox) load() State {
	return State(b.v.Load())
}

func (b *stateBox) store(s State) {
	b.v.Store(int32(s))
}

// markDead transitions to Dead unconditionally; the transition is terminal.
func (b *stateBox) markDead() {
	b.v.Store(int32(StateDead))
}

// recoverToLive moves Failing back to Live. It is a no-op from any other
// state (in particular, it can never revive a Dead interface).
func (b *stateBox) recoverToLive() {
	b.v.CompareAndSwap(int32(StateFailing), int32(StateLive))
}

// degradeToFailing moves Live to Failing. No-op from any other state.
func (b *stateBox) degradeToFailing() {
	b.v.CompareAndSwap(int32(StateLive), int32(StateFailing))
}
