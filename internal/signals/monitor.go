package signals

import (
	"context"
	"time"

	"github.com/samayp01/polyarb-engine/internal/logger"
	"github.com/samayp01/polyarb-engine/internal/models"
)

// ResolutionSource reports newly observed market resolutions.
type ResolutionSource interface {
	CheckNew(ctx context.Context) ([]models.Resolution, error)
}

// Notifier delivers generated signals to an external channel.
type Notifier interface {
	NotifySignal(signal *models.Signal) error
}

// Monitor drives the live loop: poll for resolutions, run them through the
// signal engine, notify. Cycle errors are logged and retried after a backoff;
// only context cancellation stops the loop.
type Monitor struct {
	tracker      ResolutionSource
	engine       *Engine
	notifier     Notifier
	pollInterval time.Duration
	errorBackoff time.Duration
}

// NewMonitor creates a monitor. The notifier may be nil when notifications
// are disabled.
func NewMonitor(tracker ResolutionSource, engine *Engine, notifier Notifier, pollInterval, errorBackoff time.Duration) *Monitor {
	return &Monitor{
		tracker:      tracker,
		engine:       engine,
		notifier:     notifier,
		pollInterval: pollInterval,
		errorBackoff: errorBackoff,
	}
}

// Run blocks until the context is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	logger.Info("Monitor started, polling every %s", m.pollInterval)

	for {
		delay := m.pollInterval
		if err := m.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				logger.Info("Monitor stopped")
				return ctx.Err()
			}
			logger.Error("Monitor cycle failed: %v", err)
			delay = m.errorBackoff
		}

		select {
		case <-ctx.Done():
			logger.Info("Monitor stopped")
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (m *Monitor) cycle(ctx context.Context) error {
	fresh, err := m.tracker.CheckNew(ctx)
	if err != nil {
		return err
	}
	if len(fresh) == 0 {
		return nil
	}

	logger.Info("Observed %d new resolutions", len(fresh))

	// One market refresh covers every resolution in this cycle
	if err := m.engine.RefreshMarkets(ctx); err != nil {
		return err
	}

	for _, resolution := range fresh {
		emitted, err := m.engine.OnResolution(ctx, resolution.MarketID, resolution.Outcome)
		if err != nil {
			logger.Error("Signal generation for %s failed: %v", resolution.MarketID, err)
			continue
		}

		if m.notifier == nil {
			continue
		}
		for i := range emitted {
			if err := m.notifier.NotifySignal(&emitted[i]); err != nil {
				logger.Warn("Failed to deliver signal %s: %v", emitted[i].ID, err)
			}
		}
	}
	return nil
}
