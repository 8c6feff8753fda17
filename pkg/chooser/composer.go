package chooser

import (
	"context"
	"math"
	"sort"

	apperrors "github.com/streamrt/chooser/pkg/errors"
)

// Factory produces a fresh tie-breaker Selector instance. Composer calls
// a Factory once per distinct tier it needs to populate, plus once for
// the innermost default, so a Factory must not share state across
// calls.
type Factory func() Selector

var factories = map[string]Factory{
	"round-robin": func() Selector { return NewRoundRobin() },
}

// RegisterFactory makes a named Factory available to Compose. Intended
// to run from package init in whichever package defines the factory;
// registering the same name twice overwrites the previous entry, which
// is only ever exercised deliberately in tests.
func RegisterFactory(name string, f Factory) {
	factories[name] = f
}

// lookupFactory returns the named factory, or the round-robin default
// when name is empty.
func lookupFactory(name string) (Factory, bool) {
	if name == "" {
		name = "round-robin"
	}
	f, ok := factories[name]
	return f, ok
}

// Admin is the metadata collaborator Compose consults to resolve the
// head offset of every bootstrap stream's partitions, so the
// bootstrapping gate knows what "caught up" means for each one. An
// empty bootstrap configuration never calls Admin at all.
type Admin interface {
	// GetOffsetsAfter returns, for each requested SSP, the offset that
	// bootstrap replay must reach before that SSP is no longer gated.
	GetOffsetsAfter(ctx context.Context, sspOffsets map[SSP]Offset) (map[SSP]Offset, error)
}

// maxTier is the priority tier assigned to every bootstrap stream that
// has no explicit entry in Config.Priorities, so bootstrap streams
// always outrank ordinary traffic until caught up.
const maxTier = math.MaxInt32

// Config carries every option the composer recognizes, already parsed
// out of the dotted configuration grammar (task.chooser.batch.size,
// task.chooser.priorities.<sys>.<stream>, task.chooser.bootstrap.<sys>.<stream>)
// by chooserconfig.Load — Compose itself never looks at raw strings.
type Config struct {
	// BatchSize enables the batching layer when positive.
	BatchSize int

	// Priorities maps a stream name to its explicit tier. Streams
	// absent from this map default to tier 0, unless they are also
	// named in BootstrapStreams (see maxTier).
	Priorities map[string]int

	// BootstrapStreams lists the streams whose partitions must be
	// fully replayed before ordinary priority/batching policy applies
	// to them.
	BootstrapStreams map[string]bool

	// DefaultSelectorFactory names the Factory used for every tier's
	// tie-breaker and for the innermost default when no priority layer
	// is built. Empty selects "round-robin".
	DefaultSelectorFactory string
}

// Input describes one SSP the composed stack must serve, along with
// its last-read offset at startup (OffsetNone if never read).
type Input struct {
	SSP            SSP
	LastReadOffset Offset
}

// Compose builds a Selector stack — Bootstrap(Batching(Priority(default)))
// — from cfg, omitting any layer whose inputs are empty, per spec. It
// registers every entry of inputs against the finished stack before
// returning it, so callers can start feeding Update immediately.
func Compose(ctx context.Context, cfg Config, inputs []Input, admin Admin) (Selector, error) {
	factory, ok := lookupFactory(cfg.DefaultSelectorFactory)
	if !ok {
		return nil, apperrors.ConfigurationError("compose",
			"unknown default-selector-factory").
			WithMetadata("factory", cfg.DefaultSelectorFactory)
	}

	priorities := computePriorities(cfg, inputs)

	var stack Selector = factory()

	if len(priorities) > 0 {
		tierInner := make(map[int]Selector)
		for _, tier := range priorities {
			if _, exists := tierInner[tier]; !exists {
				tierInner[tier] = factory()
			}
		}
		stack = NewTieredPriority(streamTierFromPriorities(priorities), tierInner, 0, stack)
	}

	if cfg.BatchSize > 0 {
		stack = NewBatching(stack, cfg.BatchSize)
	}

	if len(cfg.BootstrapStreams) > 0 {
		targets, err := resolveBootstrapTargets(ctx, cfg, inputs, admin)
		if err != nil {
			return nil, err
		}
		if len(targets) > 0 {
			stack = NewBootstrapping(stack, targets)
		}
	}

	stack.Start()
	for _, in := range inputs {
		stack.Register(in.SSP, in.LastReadOffset)
	}

	return stack, nil
}

// computePriorities implements spec step 1: every input stream starts
// at tier 0, bootstrap streams are overlaid at maxTier, then explicit
// Priorities entries win over both.
func computePriorities(cfg Config, inputs []Input) map[string]int {
	priorities := make(map[string]int)

	seen := make(map[string]bool)
	for _, in := range inputs {
		if seen[in.SSP.Stream] {
			continue
		}
		seen[in.SSP.Stream] = true
		priorities[in.SSP.Stream] = 0
	}

	for stream, isBootstrap := range cfg.BootstrapStreams {
		if isBootstrap {
			priorities[stream] = maxTier
		}
	}

	for stream, tier := range cfg.Priorities {
		priorities[stream] = tier
	}

	if len(cfg.Priorities) == 0 && len(cfg.BootstrapStreams) == 0 {
		return nil
	}
	return priorities
}

func streamTierFromPriorities(priorities map[string]int) map[string]int {
	out := make(map[string]int, len(priorities))
	for stream, tier := range priorities {
		out[stream] = tier
	}
	return out
}

// resolveBootstrapTargets queries admin for the current head offset of
// every partition belonging to a bootstrap stream, per spec step 3.
// Any input SSP whose stream is not marked bootstrap is left out of
// the query entirely.
func resolveBootstrapTargets(ctx context.Context, cfg Config, inputs []Input, admin Admin) (map[SSP]Offset, error) {
	query := make(map[SSP]Offset)
	for _, in := range inputs {
		if cfg.BootstrapStreams[in.SSP.Stream] {
			query[in.SSP] = in.LastReadOffset
		}
	}
	if len(query) == 0 {
		return nil, nil
	}
	if admin == nil {
		return nil, apperrors.ConfigurationError("compose",
			"bootstrap streams configured but no admin collaborator supplied").
			WithMetadata("streams", sortedBootstrapStreamNames(cfg))
	}

	targets, err := admin.GetOffsetsAfter(ctx, query)
	if err != nil {
		return nil, apperrors.ConfigurationError("compose",
			"resolving bootstrap target offsets").Wrap(err)
	}
	return targets, nil
}

func sortedBootstrapStreamNames(cfg Config) []string {
	names := make([]string, 0, len(cfg.BootstrapStreams))
	for name, enabled := range cfg.BootstrapStreams {
		if enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
