// Package taskloop drives one task's processing loop: register every
// input SSP with a composed chooser.Selector, then continuously
// interleave Poll (pull envelopes from the consumer) and Update/Choose
// (feed and drain the selector), exactly the register-then-interleave
// contract of spec.md §2 and §5.
//
// Every Update/Choose call against the composed stack happens on the
// loop's single drive goroutine. Register (called before Run),
// SwapSelector and the gauge poller reach the stack from other
// goroutines; the selMu mutex serializes every one of those accesses,
// so the stack is never used by two goroutines at once. Grounded on
// internal/app.App's New/Run/Stop lifecycle shape, trimmed to the one
// loop a task needs instead of a multi-component application.
package taskloop

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/streamrt/chooser/pkg/chooser"
	apperrors "github.com/streamrt/chooser/pkg/errors"
)

// Consumer is the task loop's input collaborator: register interest in
// an SSP, then poll for whatever envelopes are immediately available.
// Poll must not block — the loop calls it on a fixed cadence and falls
// back to idleSleep whenever both Poll and Choose come up empty.
type Consumer interface {
	Register(ssp chooser.SSP, lastReadOffset chooser.Offset) error
	Poll() []chooser.Envelope
	Start()
	Stop() error
}

// Processor handles one chosen envelope. Returning an error does not
// stop the loop; it is logged and the loop continues, matching spec.md
// §7's "nothing in the selector core is retried internally" — retry
// policy belongs to the processor, not the loop.
type Processor interface {
	Process(ctx context.Context, e chooser.Envelope) error
}

// Metrics receives loop-observable counters. Any subset may be nil; the
// loop checks before calling.
type Metrics struct {
	EnvelopesChosen func(ssp chooser.SSP)
	ChooseEmpty     func()
	ProtocolDrop    func(ssp chooser.SSP)

	// TierQueueDepth and LaggingBootstrap are polled on a fixed cadence
	// (see WithGaugePollInterval) rather than called inline from
	// drive/drainChoices, since depth and lagging count are properties
	// of the selector's current state, not events the cycle produces.
	TierQueueDepth   func(tier int, depth int)
	LaggingBootstrap func(count int)
}

// Loop wires a Consumer, a composed chooser.Selector, and a Processor
// into the register/poll/update/choose cycle.
type Loop struct {
	selMu          sync.Mutex
	selector       chooser.Selector
	consumer       Consumer
	processor      Processor
	logger         *logrus.Logger
	metrics        Metrics
	idleSleep      time.Duration
	gaugePollEvery time.Duration

	registered map[chooser.SSP]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Loop at construction time.
type Option func(*Loop)

// WithIdleSleep overrides the pause taken when a Poll/Choose round
// produces nothing, the loop's only suspension point per spec.md §5.
func WithIdleSleep(d time.Duration) Option {
	return func(l *Loop) { l.idleSleep = d }
}

// WithMetrics attaches loop-observable counters.
func WithMetrics(m Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithGaugePollInterval overrides the cadence at which TierQueueDepth
// and LaggingBootstrap are sampled from the live selector stack.
func WithGaugePollInterval(d time.Duration) Option {
	return func(l *Loop) { l.gaugePollEvery = d }
}

// New builds a Loop ready to Register inputs and Run.
func New(selector chooser.Selector, consumer Consumer, processor Processor, logger *logrus.Logger, opts ...Option) *Loop {
	l := &Loop{
		selector:       selector,
		consumer:       consumer,
		processor:      processor,
		logger:         logger,
		idleSleep:      50 * time.Millisecond,
		gaugePollEvery: 2 * time.Second,
		registered:     make(map[chooser.SSP]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register declares ssp to both the consumer and the selector stack,
// per spec.md §2: "a task loop calls register(ssp, lastReadOffset)
// once per input SSP during startup". Must be called before Run.
func (l *Loop) Register(ssp chooser.SSP, lastReadOffset chooser.Offset) error {
	if err := l.consumer.Register(ssp, lastReadOffset); err != nil {
		return apperrors.ConfigurationError("register", "registering ssp with consumer").
			WithMetadata("ssp", ssp.String()).Wrap(err)
	}
	l.selMu.Lock()
	l.selector.Register(ssp, lastReadOffset)
	l.selMu.Unlock()
	l.registered[ssp] = true
	return nil
}

// SwapSelector replaces the live selector stack with one freshly built
// from a reloaded configuration (see internal/chooserreload), per
// spec.md §9: "the composer returns a fresh stack per task" — a reload
// never mutates a selector in place. next is started and every entry of
// inputs is registered into it at the LastReadOffset given there before
// the old stack is swapped out and stopped. Envelopes the old stack
// still holds are discarded by its Stop; they are not carried over to
// next.
func (l *Loop) SwapSelector(next chooser.Selector, inputs []chooser.Input) {
	next.Start()
	for _, in := range inputs {
		next.Register(in.SSP, in.LastReadOffset)
	}

	l.selMu.Lock()
	old := l.selector
	l.selector = next
	l.selMu.Unlock()

	old.Stop()
}

// Run starts the consumer and selector, then blocks — polling,
// updating, and choosing — until ctx is canceled or a SIGINT/SIGTERM
// is received, at which point it stops both collaborators and returns.
func (l *Loop) Run(ctx context.Context) error {
	l.ctx, l.cancel = context.WithCancel(ctx)
	defer l.cancel()

	l.selMu.Lock()
	l.selector.Start()
	l.selMu.Unlock()
	l.consumer.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.drive()
	}()

	if l.metrics.TierQueueDepth != nil || l.metrics.LaggingBootstrap != nil {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.pollGauges()
		}()
	}

	select {
	case <-l.ctx.Done():
	case sig := <-sigChan:
		l.logger.WithField("signal", sig.String()).Info("shutdown signal received")
		l.cancel()
	}

	l.wg.Wait()

	if err := l.consumer.Stop(); err != nil {
		l.logger.WithError(err).Warn("error stopping consumer")
	}
	l.selMu.Lock()
	l.selector.Stop()
	l.selMu.Unlock()

	return nil
}

// drive runs the poll/update/choose cycle until the loop's context is
// canceled.
func (l *Loop) drive() {
	for {
		select {
		case <-l.ctx.Done():
			return
		default:
		}

		envelopes := l.consumer.Poll()
		for _, e := range envelopes {
			if !l.registered[e.SSP] {
				protoErr := apperrors.ProtocolErrorFor("drive", "update for unregistered ssp, dropping").
					WithMetadata("ssp", e.SSP.String())
				l.logger.WithFields(logrus.Fields(protoErr.ToMap())).Warn(protoErr.Message)
				if l.metrics.ProtocolDrop != nil {
					l.metrics.ProtocolDrop(e.SSP)
				}
				continue
			}
			l.selMu.Lock()
			l.selector.Update(e)
			l.selMu.Unlock()
		}

		processedAny := l.drainChoices()

		if len(envelopes) == 0 && !processedAny {
			select {
			case <-l.ctx.Done():
				return
			case <-time.After(l.idleSleep):
			}
		}
	}
}

// pollGauges samples the live selector stack's tier queue depths and
// lagging-bootstrap count on a fixed cadence until the loop's context
// is canceled. Unlike the event-driven counters in drive/drainChoices,
// depth and lagging count describe state, not an event, so polling
// rather than updating inline on every Update/Choose is both simpler
// and cheap enough at this cadence.
func (l *Loop) pollGauges() {
	ticker := time.NewTicker(l.gaugePollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
		}

		l.selMu.Lock()
		sel := l.selector

		if l.metrics.TierQueueDepth != nil {
			if td, ok := chooser.FindTierDepther(sel); ok {
				for tier, depth := range td.QueueDepthByTier() {
					l.metrics.TierQueueDepth(tier, depth)
				}
			}
		}

		if l.metrics.LaggingBootstrap != nil {
			if bl, ok := chooser.FindBootstrapLagger(sel); ok {
				l.metrics.LaggingBootstrap(len(bl.Lagging()))
			}
		}
		l.selMu.Unlock()
	}
}

// drainChoices calls Choose repeatedly until it returns ok == false,
// processing every envelope it yields this round.
func (l *Loop) drainChoices() bool {
	processedAny := false
	for {
		l.selMu.Lock()
		e, ok := l.selector.Choose()
		l.selMu.Unlock()
		if !ok {
			if l.metrics.ChooseEmpty != nil {
				l.metrics.ChooseEmpty()
			}
			return processedAny
		}
		processedAny = true

		if l.metrics.EnvelopesChosen != nil {
			l.metrics.EnvelopesChosen(e.SSP)
		}

		if err := l.processor.Process(l.ctx, e); err != nil {
			l.logger.WithFields(logrus.Fields{
				"ssp":   e.SSP.String(),
				"error": err,
			}).Error("processing chosen envelope failed")
		}
	}
}

// Stop cancels the loop's context, causing Run to return once the
// in-flight poll/choose round finishes.
func (l *Loop) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
}
