// Package chooser implements the message-selection core of a
// partitioned-stream task runtime: the pluggable pipeline that decides
// which envelope a task processes next out of many input streams.
//
// The package is built as a stack of small, composable state machines
// (Selector implementations) that wrap one another. Every type here is
// pure and single-threaded: no network I/O, no blocking, no locking.
// Callers own the thread; see Selector for the full contract.
package chooser

import "fmt"

// SSP identifies one ordered log of envelopes: a (system, stream,
// partition) triple. Two SSP values are equal if and only if all three
// fields are equal, which makes SSP safe to use as a map key.
type SSP struct {
	System    string
	Stream    string
	Partition int32
}

// String renders the SSP in "system.stream.partition" form, used for
// logging and error messages throughout the chooser stack.
func (s SSP) String() string {
	return fmt.Sprintf("%s.%s.%d", s.System, s.Stream, s.Partition)
}

// Offset is an opaque position within one SSP's log. Its only use is
// the bootstrap catch-up check against a target offset (numeric >= when
// both parse as integers, equality otherwise; see offsetReachesTarget);
// ordering within an SSP is given entirely by arrival order.
//
// OffsetNone is the sentinel passed to Register for a partition that
// has never been read (an empty stream, from the consumer's point of
// view).
type Offset string

// OffsetNone is the sentinel "no prior offset" value. A registration
// with lastReadOffset == OffsetNone declares that delivery will start
// from the beginning of the partition.
const OffsetNone Offset = ""
