package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/IOLinkBridge/internal/sensors"
	"github.com/KevinKickass/IOLinkBridge/internal/state"
	"go.uber.org/zap"
)

// Keys the poller owns besides the sensor measurements
const KeyHostAlive = "isHostAlive"

// Poller runs the poll cycle of one IO-Link master. Cycles never overlap.
type Poller struct {
	cfg       Config
	fetcher   Fetcher
	catalog   *sensors.Catalog
	publisher *state.Publisher
	logger    *zap.Logger

	// interruptible wait, replaced in tests
	sleep func(ctx context.Context, d time.Duration) error

	cycleMu    sync.Mutex
	mu         sync.RWMutex
	phase      Phase
	assignment PortAssignment
	last       *CycleResult
	observers  []CycleObserver

	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

func New(cfg Config, fetcher Fetcher, catalog *sensors.Catalog, publisher *state.Publisher, logger *zap.Logger) (*Poller, error) {
	if cfg.PortCount < 1 {
		return nil, errors.New("poller: port count must be >= 1")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cfg.HostCheckAttempts < 1 {
		return nil, errors.New("poller: host check attempts must be >= 1")
	}
	if fetcher == nil || catalog == nil || publisher == nil {
		return nil, errors.New("poller: fetcher, catalog and publisher required")
	}
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = "Sensors"
	}

	return &Poller{
		cfg:       cfg,
		fetcher:   fetcher,
		catalog:   catalog,
		publisher: publisher,
		logger:    logger,
		sleep:     sleepContext,
		phase:     PhaseStopped,
	}, nil
}

// OnCycle registers fn to be called after every cycle
func (p *Poller) OnCycle(fn CycleObserver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

// Init declares the objects every cycle writes to
func (p *Poller) Init(ctx context.Context) error {
	if err := p.publisher.Declare(ctx, state.ChannelMeta(p.cfg.ChannelPrefix, "Sensors")); err != nil {
		return err
	}
	return p.publisher.Declare(ctx, state.BooleanMeta(KeyHostAlive, KeyHostAlive))
}

// Start startet das zyklische Polling in einer eigenen Goroutine
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	if err := p.Init(ctx); err != nil {
		return fmt.Errorf("failed to declare objects: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.err = nil
	p.running = true

	go func() {
		err := p.Run(runCtx)

		p.mu.Lock()
		p.err = err
		p.running = false
		p.mu.Unlock()

		close(p.done)
	}()

	p.logger.Info("Poller started",
		zap.Int("ports", p.cfg.PortCount),
		zap.Duration("interval", p.cfg.Interval))

	return nil
}

// Stop cancels the loop, interrupting an in-flight request or the sleep, and
// waits for it to return
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	<-done

	p.logger.Info("Poller stopped")
}

// Done is closed when the loop has returned. Nil before Start.
func (p *Poller) Done() <-chan struct{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.done
}

// Err returns why the loop ended; nil after a regular Stop
func (p *Poller) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

// IsRunning gibt an ob der Poller läuft
func (p *Poller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Phase returns the current phase
func (p *Poller) Phase() Phase {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.phase
}

// Assignment returns the last complete port map
func (p *Poller) Assignment() PortAssignment {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append(PortAssignment(nil), p.assignment...)
}

// LastCycle returns the result of the previous cycle, if any
func (p *Poller) LastCycle() (CycleResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return CycleResult{}, false
	}
	return *p.last, true
}

// Run executes cycles until ctx is cancelled. With StopOnFatal a fatal cycle
// ends the loop and its error is returned.
func (p *Poller) Run(ctx context.Context) error {
	defer p.setPhase(PhaseStopped)

	for {
		result := p.RunCycle(ctx)

		if ctx.Err() != nil {
			return nil
		}

		if result.Fatal && p.cfg.StopOnFatal {
			p.logger.Error("Fatal cycle error, stopping poller",
				zap.String("cycle_id", result.ID.String()),
				zap.Error(result.Err))
			return result.Err
		}

		p.setPhase(PhaseSleep)
		p.logger.Info("Going to sleep", zap.Duration("interval", p.cfg.Interval))
		if err := p.sleep(ctx, p.cfg.Interval); err != nil {
			return nil
		}
	}
}

func (p *Poller) setPhase(phase Phase) {
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()
}

func (p *Poller) finishCycle(result CycleResult) {
	p.mu.Lock()
	p.last = &result
	if !result.Failed() && result.Assignment != nil {
		p.assignment = result.Assignment
	}
	observers := append([]CycleObserver(nil), p.observers...)
	p.mu.Unlock()

	for _, fn := range observers {
		fn(result)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
