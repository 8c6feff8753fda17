package chooser

// Envelope is one record handed to a task for processing: the SSP it
// came from, an opaque key and message (interpreted by whatever
// processes the chosen envelope, never by the chooser stack itself),
// and the offset it was read at.
//
// Offset must be strictly increasing per SSP in production order. The
// chooser stack compares an offset only against a bootstrap target, to
// decide whether that target has been reached (see Bootstrapping and
// offsetReachesTarget).
type Envelope struct {
	SSP     SSP
	Key     interface{}
	Message interface{}
	Offset  Offset
}
