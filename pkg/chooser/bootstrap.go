package chooser

// Bootstrapping wraps an inner Selector with a liveness gate: it
// forces coverage of a configured set of SSPs up to a target offset
// before it will return anything from the inner selector, so the
// priority or batching layers beneath it can never starve a bootstrap
// stream of its historical backlog.
//
// Catch-up semantics: an SSP is caught up once an observed offset is
// greater than or equal to its recorded target (monotonic), not
// strictly equal. Producers may keep writing to a bootstrap stream
// between the moment its target offset is captured at composition time
// and the moment replay reaches it, so strict equality could be missed
// entirely; see DESIGN.md for the open-question resolution this
// follows.
type Bootstrapping struct {
	inner Selector

	targets map[SSP]Offset
	lagging map[SSP]bool

	updatedSinceLastChoose map[SSP]bool
}

// NewBootstrapping wraps inner with a bootstrap gate over targets: the
// set of SSPs that must reach their recorded target offset before the
// gate stops constraining Choose.
func NewBootstrapping(inner Selector, targets map[SSP]Offset) *Bootstrapping {
	b := &Bootstrapping{
		inner:                  inner,
		targets:                make(map[SSP]Offset, len(targets)),
		lagging:                make(map[SSP]bool, len(targets)),
		updatedSinceLastChoose: make(map[SSP]bool),
	}
	for ssp, target := range targets {
		b.targets[ssp] = target
		b.lagging[ssp] = true
	}
	return b
}

// Register forwards to the inner selector; an SSP registered already at
// or past its bootstrap target is immediately caught up.
func (b *Bootstrapping) Register(ssp SSP, lastReadOffset Offset) {
	b.inner.Register(ssp, lastReadOffset)

	target, isBootstrap := b.targets[ssp]
	if !isBootstrap {
		return
	}
	if offsetReachesTarget(lastReadOffset, target) {
		delete(b.lagging, ssp)
	}
}

// Update forwards e to the inner selector and records that ssp has
// produced an envelope since the last successful Choose, arming the
// gate to admit a decision once every lagging SSP has done the same.
func (b *Bootstrapping) Update(e Envelope) {
	b.inner.Update(e)
	b.updatedSinceLastChoose[e.SSP] = true
}

// Choose enforces the coverage gate — refusing to return anything while
// any lagging SSP has not contributed an envelope since the previous
// successful Choose — then delegates to the inner selector and clears
// bookkeeping for whatever it returns.
func (b *Bootstrapping) Choose() (Envelope, bool) {
	if len(b.lagging) > 0 {
		for ssp := range b.lagging {
			if !b.updatedSinceLastChoose[ssp] {
				return Envelope{}, false
			}
		}
	}

	e, ok := b.inner.Choose()
	if !ok {
		return Envelope{}, false
	}

	delete(b.updatedSinceLastChoose, e.SSP)

	if target, isBootstrap := b.targets[e.SSP]; isBootstrap && b.lagging[e.SSP] {
		if offsetReachesTarget(e.Offset, target) {
			delete(b.lagging, e.SSP)
		}
	}

	return e, true
}

// Start recursively starts the inner selector.
func (b *Bootstrapping) Start() {
	b.inner.Start()
}

// Stop recursively stops the inner selector.
func (b *Bootstrapping) Stop() {
	b.inner.Stop()
}

// Lagging reports the SSPs still awaiting bootstrap catch-up. Exposed
// for metrics (see internal/metrics) and for tests.
func (b *Bootstrapping) Lagging() []SSP {
	out := make([]SSP, 0, len(b.lagging))
	for ssp := range b.lagging {
		out = append(out, ssp)
	}
	return out
}

// Inner returns the wrapped selector, letting introspection (see
// FindTierDepther) walk past the bootstrap gate to whatever it wraps.
func (b *Bootstrapping) Inner() Selector {
	return b.inner
}
