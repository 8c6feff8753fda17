package chooser

// Selector is the uniform contract implemented by every layer of the
// chooser stack: the round-robin baseline, the batching selector, the
// tiered-priority selector, and the bootstrapping gate. Selectors
// compose by delegation — an outer selector holds an inner Selector and
// forwards transformed calls to it — never by inheritance.
//
// Implementations MUST NOT block in any method, and MUST NOT perform
// network or disk I/O. A Selector instance is owned by exactly one
// goroutine; Register, Update, Choose, Start, and Stop are all called
// from that goroutine, and no synchronization is required internally.
//
// Universal invariants that every Selector implementation preserves:
//
//   - Non-loss: every envelope passed to Update is eventually returned
//     by Choose, unless Stop is called first.
//   - No duplication: no envelope is returned by Choose twice.
//   - Purity of choice: Choose only inspects state; calling it when the
//     selector holds nothing acceptable returns ok == false.
type Selector interface {
	// Register declares that envelopes for ssp are about to be
	// delivered, starting just after lastReadOffset. Register must be
	// called for an SSP before any Update or Choose call refers to it.
	// lastReadOffset is OffsetNone if the partition has never been read.
	Register(ssp SSP, lastReadOffset Offset)

	// Update deposits an envelope read from a previously registered
	// SSP. Update never blocks and never returns an error: a caller
	// handing Update an envelope for an unregistered SSP has violated
	// the contract (see pkg/errors.CodeProtocolError for how adapters
	// surface that).
	Update(e Envelope)

	// Choose returns the next envelope to process. ok is false when the
	// selector currently has no acceptable choice — a normal
	// flow-control signal, not an error. A returned envelope is removed
	// from the selector's internal state and will not be presented
	// again.
	Choose() (e Envelope, ok bool)

	// Start is a lifecycle hook, recursively invoked through the stack
	// before the first Register call.
	Start()

	// Stop is a terminal lifecycle hook. After Stop returns, no further
	// Choose result is defined and any envelopes still held internally
	// are discarded.
	Stop()
}

// QueueDepther is an optional interface a Selector implementation may
// satisfy to report how many envelopes it currently holds. RoundRobin
// and Batching implement it; TieredPriority and Bootstrapping forward
// through their own more specific optional interfaces instead (see
// TierDepther, FindTierDepther) since a single depth number would
// flatten away per-tier information metrics actually wants.
type QueueDepther interface {
	QueueDepth() int
}

// Unwrapper is implemented by every Selector layer that wraps exactly
// one inner Selector (Batching, Bootstrapping), letting introspection
// walk past it to whatever it wraps. TieredPriority does not implement
// it, since it wraps one selector per tier rather than a single inner
// selector.
type Unwrapper interface {
	Inner() Selector
}

// BootstrapLagger is implemented by Bootstrapping. FindBootstrapLagger
// walks a composed stack to find it regardless of how many Unwrapper
// layers sit above it.
type BootstrapLagger interface {
	Lagging() []SSP
}

// TierDepther is implemented by TieredPriority. FindTierDepther walks a
// composed stack to find it regardless of how many Unwrapper layers
// sit above it.
type TierDepther interface {
	QueueDepthByTier() map[int]int
}

// FindBootstrapLagger walks sel, and successive Unwrapper layers, for
// the first one implementing BootstrapLagger. Returns ok == false if
// no layer of the stack is a Bootstrapping gate.
func FindBootstrapLagger(sel Selector) (BootstrapLagger, bool) {
	for {
		if bl, ok := sel.(BootstrapLagger); ok {
			return bl, true
		}
		uw, ok := sel.(Unwrapper)
		if !ok {
			return nil, false
		}
		sel = uw.Inner()
	}
}

// FindTierDepther walks sel, and successive Unwrapper layers, for the
// first one implementing TierDepther. Returns ok == false if no layer
// of the stack is a TieredPriority.
func FindTierDepther(sel Selector) (TierDepther, bool) {
	for {
		if td, ok := sel.(TierDepther); ok {
			return td, true
		}
		uw, ok := sel.(Unwrapper)
		if !ok {
			return nil, false
		}
		sel = uw.Inner()
	}
}
