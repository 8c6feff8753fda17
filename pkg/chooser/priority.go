package chooser

import "sort"

// TieredPriority routes envelopes into priority tiers — integer levels
// where higher means more preferred — and always returns an envelope
// from the highest tier that currently holds one. Each tier has its own
// inner Selector for tie-breaking among the streams assigned to it;
// streams with no explicit tier use the default selector.
//
// Strict priority (spec invariant): while any envelope sits queued at
// tier T, Choose never returns an envelope from a tier below T.
type TieredPriority struct {
	streamTier map[string]int // stream name -> tier
	tierInner  map[int]Selector
	defaultTier int
	defaultSel Selector

	orderedTiers []int // tiers present, descending, computed once at construction
}

// NewTieredPriority builds a tiered-priority selector. streamTier maps
// a stream name to its tier; tierInner supplies the tie-breaker
// selector for each tier that appears as a value in streamTier.
// defaultSel is consulted for any stream absent from streamTier, at
// defaultTier.
func NewTieredPriority(streamTier map[string]int, tierInner map[int]Selector, defaultTier int, defaultSel Selector) *TieredPriority {
	tp := &TieredPriority{
		streamTier: make(map[string]int, len(streamTier)),
		tierInner:  make(map[int]Selector, len(tierInner)),
		defaultTier: defaultTier,
		defaultSel: defaultSel,
	}
	for stream, tier := range streamTier {
		tp.streamTier[stream] = tier
	}
	for tier, sel := range tierInner {
		tp.tierInner[tier] = sel
	}
	tp.recomputeOrder()
	return tp
}

func (tp *TieredPriority) recomputeOrder() {
	tiers := make(map[int]bool, len(tp.tierInner)+1)
	for tier := range tp.tierInner {
		tiers[tier] = true
	}
	tiers[tp.defaultTier] = true

	ordered := make([]int, 0, len(tiers))
	for tier := range tiers {
		ordered = append(ordered, tier)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ordered)))
	tp.orderedTiers = ordered
}

// tierFor returns the tier and inner selector responsible for stream.
// A stream assigned to a tier with no configured inner selector falls
// back to the default tier, so every stream always resolves to a tier
// that Choose actually scans.
func (tp *TieredPriority) tierFor(stream string) (int, Selector) {
	if tier, ok := tp.streamTier[stream]; ok {
		if sel, ok := tp.tierInner[tier]; ok {
			return tier, sel
		}
	}
	return tp.defaultTier, tp.defaultSel
}

// Register forwards to the tier's inner selector, determined by the
// SSP's stream.
func (tp *TieredPriority) Register(ssp SSP, lastReadOffset Offset) {
	_, sel := tp.tierFor(ssp.Stream)
	sel.Register(ssp, lastReadOffset)
}

// Update routes e to the inner selector of the tier its stream belongs
// to.
func (tp *TieredPriority) Update(e Envelope) {
	_, sel := tp.tierFor(e.SSP.Stream)
	sel.Update(e)
}

// Choose iterates tiers in descending order and returns the first
// non-empty choice, enforcing strict priority across tiers.
func (tp *TieredPriority) Choose() (Envelope, bool) {
	for _, tier := range tp.orderedTiers {
		sel := tp.selectorForTier(tier)
		if sel == nil {
			continue
		}
		if e, ok := sel.Choose(); ok {
			return e, true
		}
	}
	return Envelope{}, false
}

// QueueDepthByTier reports, for each tier currently configured, how
// many envelopes its inner selector holds — only tiers whose inner
// selector implements QueueDepther contribute an entry. Polled by
// internal/taskloop, whose callback populates chooser_tier_queue_depth.
func (tp *TieredPriority) QueueDepthByTier() map[int]int {
	depths := make(map[int]int, len(tp.orderedTiers))
	for _, tier := range tp.orderedTiers {
		sel := tp.selectorForTier(tier)
		if sel == nil {
			continue
		}
		if qd, ok := sel.(QueueDepther); ok {
			depths[tier] = qd.QueueDepth()
		}
	}
	return depths
}

func (tp *TieredPriority) selectorForTier(tier int) Selector {
	if sel, ok := tp.tierInner[tier]; ok {
		return sel
	}
	if tier == tp.defaultTier {
		return tp.defaultSel
	}
	return nil
}

// Start recursively starts every tier's inner selector plus the
// default.
func (tp *TieredPriority) Start() {
	started := make(map[Selector]bool)
	for _, sel := range tp.tierInner {
		if !started[sel] {
			sel.Start()
			started[sel] = true
		}
	}
	if !started[tp.defaultSel] {
		tp.defaultSel.Start()
	}
}

// Stop recursively stops every tier's inner selector plus the default.
func (tp *TieredPriority) Stop() {
	stopped := make(map[Selector]bool)
	for _, sel := range tp.tierInner {
		if !stopped[sel] {
			sel.Stop()
			stopped[sel] = true
		}
	}
	if !stopped[tp.defaultSel] {
		tp.defaultSel.Stop()
	}
}
