package bus

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/adamavenir/chatbus/internal/outbox"
	"github.com/adamavenir/chatbus/internal/types"
)

// Source is the read side of the outbox. Only the poller reads from it.
type Source interface {
	ReadFrom(after int64) iter.Seq2[types.EventRecord, error]
	Purge(olderThan time.Duration) (int, error)
	CheckRoot() error
}

// Sink is the write side of the outbox.
type Sink interface {
	Append(rec types.EventRecord) (int64, error)
}

// Outbox is the full store the bus runs on.
type Outbox interface {
	Source
	Sink
	Head() (int64, error)
	Oldest() (int64, error)
}

// CursorStore persists the poller's position.
type CursorStore interface {
	Load() (int64, error)
	Exists() bool
	AdvanceTo(seq int64) error
}

// RecordHandler consumes what the poller reads.
type RecordHandler interface {
	Dispatch(rec types.EventRecord) bool
	Skip(seq int64)
	Resync(gap *outbox.GapError)
}

type pollerState int

const (
	pollerIdle pollerState = iota
	pollerRunning
	pollerStopped
)

// PollerConfig wires a Poller.
type PollerConfig struct {
	Source          Source
	Cursor          CursorStore
	Handler         RecordHandler
	Interval        time.Duration
	MaxReadFailures int
	Retention       time.Duration
	PurgeEvery      int
	Logger          zerolog.Logger
	// OnDegraded is called once, from the poller goroutine, when realtime
	// delivery stops for the rest of the process lifetime.
	OnDegraded func(err error)
}

// Poller scans the outbox on one goroutine and feeds the handler in order.
type Poller struct {
	source     Source
	cursor     CursorStore
	handler    RecordHandler
	interval   time.Duration
	retention  time.Duration
	purgeEvery int
	logger     zerolog.Logger
	onDegraded func(err error)
	breaker    *gobreaker.CircuitBreaker

	mu       sync.Mutex
	state    pollerState
	stopCh   chan struct{}
	done     chan struct{}
	nudge    chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	position     int64
	scans        int
	degradedOnce sync.Once
}

// NewPoller builds a stopped poller.
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().PollInterval
	}
	if cfg.MaxReadFailures <= 0 {
		cfg.MaxReadFailures = DefaultConfig().MaxReadFailures
	}
	maxFailures := uint32(cfg.MaxReadFailures)
	p := &Poller{
		source:     cfg.Source,
		cursor:     cfg.Cursor,
		handler:    cfg.Handler,
		interval:   cfg.Interval,
		retention:  cfg.Retention,
		purgeEvery: cfg.PurgeEvery,
		logger:     cfg.Logger,
		onDegraded: cfg.OnDegraded,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		nudge:      make(chan struct{}, 1),
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "outbox-read",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	})
	return p
}

// Start loads the cursor and launches the poll loop.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case pollerRunning:
		return ErrPollerRunning
	case pollerStopped:
		return ErrPollerStopped
	}

	position, err := p.cursor.Load()
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	p.position = position
	p.state = pollerRunning

	p.wg.Add(1)
	go p.loop(ctx)
	return nil
}

// Stop signals the loop and waits for it to exit, which takes at most one
// scan. It is safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	wasIdle := p.state == pollerIdle
	p.state = pollerStopped
	p.mu.Unlock()

	p.stopOnce.Do(func() { close(p.stopCh) })
	if wasIdle {
		p.closeDone()
		return
	}
	p.wg.Wait()
}

// Done is closed once the loop has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == pollerRunning
}

// Nudge wakes the loop early. It never blocks.
func (p *Poller) Nudge() {
	select {
	case p.nudge <- struct{}{}:
	default:
	}
}

// Position returns the last sequence id the poller advanced to.
func (p *Poller) Position() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()
	defer p.closeDone()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.markStopped()
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
		case <-p.nudge:
		}
		if !p.tick() {
			p.markStopped()
			return
		}
	}
}

// tick runs one scan and reports whether the loop should continue.
func (p *Poller) tick() bool {
	p.scans++
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.scan()
	})
	if err != nil {
		if errors.Is(err, outbox.ErrRootMissing) {
			p.degrade(err)
			return false
		}
		if p.breaker.State() == gobreaker.StateOpen {
			p.degrade(fmt.Errorf("outbox unreadable after repeated failures: %w", err))
			return false
		}
		p.logger.Warn().Err(err).Msg("outbox read failed, retrying next interval")
		return true
	}

	if p.retention > 0 && p.purgeEvery > 0 && p.scans%p.purgeEvery == 0 {
		removed, err := p.source.Purge(p.retention)
		if err != nil {
			p.logger.Warn().Err(err).Msg("outbox purge failed")
		} else if removed > 0 {
			p.logger.Debug().Int("removed", removed).Msg("purged expired records")
		}
	}
	return true
}

// scan reads one batch and advances the cursor past everything seen. The
// cursor moves only after the whole batch has been handed off, so a crash
// mid-batch redelivers the tail instead of skipping it.
func (p *Poller) scan() error {
	from := p.Position()
	highest := from
	dispatched := 0

	for rec, err := range p.source.ReadFrom(from) {
		if err != nil {
			var corrupt *outbox.CorruptRecordError
			var gap *outbox.GapError
			switch {
			case errors.As(err, &corrupt):
				p.logger.Warn().Err(err).Int64("seq", corrupt.Seq).Msg("skipping corrupt record")
				p.handler.Skip(corrupt.Seq)
				highest = max(highest, corrupt.Seq)
			case errors.As(err, &gap):
				p.logger.Warn().Int64("from", gap.From).Int64("to", gap.To).Msg("outbox gap, resyncing")
				p.handler.Resync(gap)
				highest = max(highest, gap.To)
			default:
				if rootErr := p.source.CheckRoot(); errors.Is(rootErr, outbox.ErrRootMissing) {
					return rootErr
				}
				return err
			}
			continue
		}
		if p.handler.Dispatch(rec) {
			dispatched++
		}
		highest = max(highest, rec.Seq)
	}

	if highest > from {
		if err := p.cursor.AdvanceTo(highest); err != nil {
			p.logger.Warn().Err(err).Int64("seq", highest).Msg("cursor advance failed")
		}
		p.mu.Lock()
		p.position = highest
		p.mu.Unlock()
		p.logger.Debug().Int64("from", from).Int64("to", highest).Int("dispatched", dispatched).Msg("batch")
	}
	return nil
}

func (p *Poller) degrade(err error) {
	p.degradedOnce.Do(func() {
		p.logger.Error().Err(err).Msg("realtime updates degraded, poller stopped")
		if p.onDegraded != nil {
			p.onDegraded(err)
		}
	})
}

func (p *Poller) markStopped() {
	p.mu.Lock()
	p.state = pollerStopped
	p.mu.Unlock()
}

func (p *Poller) closeDone() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}
