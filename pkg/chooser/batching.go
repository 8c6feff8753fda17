package chooser

// Batching wraps an inner Selector and adds affinity to the
// last-chosen SSP: once an SSP is chosen, Batching keeps returning
// envelopes from that same SSP before consulting the inner selector
// again, up to batchSize envelopes in a row.
//
// The envelope that starts a batch always comes from the inner
// selector's own Choose — Batching never buffers it itself. Only
// envelopes that arrive *while* their SSP is the active batch are
// withheld from the inner selector, in a small local queue; everything
// else is forwarded to the inner selector exactly as it arrives. This
// keeps the inner selector's view consistent: it never holds envelopes
// Batching has already handed out, and it never needs a "remove this
// specific envelope" operation the Selector interface doesn't provide.
type Batching struct {
	inner     Selector
	batchSize int

	pending []Envelope // envelopes for currentBatchSSP withheld from inner

	currentBatchSSP SSP
	hasCurrentBatch bool
	remaining       int // budget left in the current batch, excluding the envelope that started it
}

// NewBatching wraps inner with batch affinity of up to batchSize
// consecutive envelopes per SSP. A non-positive batchSize is treated
// as 1.
func NewBatching(inner Selector, batchSize int) *Batching {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Batching{inner: inner, batchSize: batchSize}
}

// Register forwards to the inner selector.
func (b *Batching) Register(ssp SSP, lastReadOffset Offset) {
	b.inner.Register(ssp, lastReadOffset)
}

// Update forwards e to the inner selector, unless e.SSP is the SSP
// currently being batched — in which case it is withheld in the
// pending queue until the batch drains it.
func (b *Batching) Update(e Envelope) {
	if b.hasCurrentBatch && e.SSP == b.currentBatchSSP {
		b.pending = append(b.pending, e)
		return
	}
	b.inner.Update(e)
}

// Choose drains the pending queue for the active batch SSP while
// budget remains; once the batch ends, any envelopes still pending are
// flushed to the inner selector (preserving arrival order) before it is
// consulted for the next SSP to batch.
func (b *Batching) Choose() (Envelope, bool) {
	if b.hasCurrentBatch {
		if b.remaining > 0 && len(b.pending) > 0 {
			e := b.pending[0]
			b.pending = b.pending[1:]
			b.remaining--
			return e, true
		}
		b.hasCurrentBatch = false
	}

	for _, e := range b.pending {
		b.inner.Update(e)
	}
	b.pending = nil

	e, ok := b.inner.Choose()
	if !ok {
		return Envelope{}, false
	}

	b.currentBatchSSP = e.SSP
	b.remaining = b.batchSize - 1
	b.hasCurrentBatch = true

	return e, true
}

// Start recursively starts the inner selector.
func (b *Batching) Start() {
	b.inner.Start()
}

// Stop recursively stops the inner selector and discards any pending
// envelopes from an in-progress batch.
func (b *Batching) Stop() {
	b.inner.Stop()
	b.pending = nil
	b.hasCurrentBatch = false
}

// Inner returns the wrapped selector, letting introspection (see
// FindTierDepther/FindBootstrapLagger) walk past a batching layer to
// whatever it wraps.
func (b *Batching) Inner() Selector {
	return b.inner
}

// QueueDepth reports envelopes withheld for the active batch plus
// whatever the inner selector reports holding, if it implements
// QueueDepther. Satisfies QueueDepther for metrics polling.
func (b *Batching) QueueDepth() int {
	depth := len(b.pending)
	if qd, ok := b.inner.(QueueDepther); ok {
		depth += qd.QueueDepth()
	}
	return depth
}
