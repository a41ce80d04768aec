package worker

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper reclaims expired entries and reports how many were dropped.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Pruner periodically sweeps expired cache entries.
type Pruner struct {
	target   Sweeper
	interval time.Duration
	logger   *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(target Sweeper, interval time.Duration, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		target:   target,
		interval: interval,
		logger:   logger,
	}
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.interval <= 0 {
		return // Sweeping disabled, expiry stays lazy
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	removed, err := p.target.Sweep(ctx)
	if err != nil {
		p.logger.Error("[Pruner] sweep failed", "error", err)
		return
	}
	if removed > 0 {
		p.logger.Debug("[Pruner] swept expired entries", "removed", removed)
	}
}
