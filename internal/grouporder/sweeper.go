package grouporder

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmynk/grouporder/internal/apperr"
	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/phase"
)

// SweepConfig controls the background sweep.
type SweepConfig struct {
	Interval            time.Duration
	SelectionStaleAfter time.Duration
	ClosingStaleAfter   time.Duration
	ReapAfter           time.Duration
}

// DefaultSweepConfig returns the sweep defaults.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Interval:            time.Minute,
		SelectionStaleAfter: 6 * time.Hour,
		ClosingStaleAfter:   5 * time.Minute,
		ReapAfter:           7 * 24 * time.Hour,
	}
}

// SweepReport counts what one pass changed.
type SweepReport struct {
	Expired   int
	Cancelled int
	Restored  int
	Settled   int
	Reaped    int
}

func (r SweepReport) empty() bool {
	return r == SweepReport{}
}

// Sweeper periodically applies the time-based transitions that lazy
// checks would otherwise only apply when someone touches the order.
type Sweeper struct {
	engine *Engine
	cfg    SweepConfig
}

// NewSweeper returns a Sweeper over e.
func (e *Engine) NewSweeper(cfg SweepConfig) *Sweeper {
	def := DefaultSweepConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.SelectionStaleAfter <= 0 {
		cfg.SelectionStaleAfter = def.SelectionStaleAfter
	}
	if cfg.ClosingStaleAfter <= 0 {
		cfg.ClosingStaleAfter = def.ClosingStaleAfter
	}
	if cfg.ReapAfter <= 0 {
		cfg.ReapAfter = def.ReapAfter
	}
	return &Sweeper{engine: e, cfg: cfg}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := s.Sweep(ctx)
			if err != nil {
				slog.Error("Sweep failed", "error", err)
			}
			if !report.empty() {
				slog.Info("Sweep completed",
					"expired", report.Expired,
					"cancelled", report.Cancelled,
					"restored", report.Restored,
					"settled", report.Settled,
					"reaped", report.Reaped,
				)
			}
		}
	}
}

// Sweep runs one pass. Orders that move concurrently are skipped; the
// pass stops at the first storage error.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	e := s.engine
	now := e.nowFunc()

	open, err := e.store.ListGroupOrdersByStatus(ctx, models.StatusOpen)
	if err != nil {
		return report, err
	}
	for _, order := range open {
		if !now.After(order.ShareLinkExpiresAt) {
			continue
		}
		ok, err := s.apply(e.phase.Expire(ctx, order.ID))
		if err != nil {
			return report, err
		}
		if ok {
			report.Expired++
			e.metrics.SweepActions.WithLabelValues("expired").Inc()
		}
	}

	selecting, err := e.store.ListGroupOrdersByStatus(ctx, models.StatusSelecting)
	if err != nil {
		return report, err
	}
	for _, order := range selecting {
		if order.SelectionStartedAt == nil || now.Sub(*order.SelectionStartedAt) < s.cfg.SelectionStaleAfter {
			continue
		}
		ok, err := s.apply(e.phase.CancelStalled(ctx, order.ID, s.cfg.SelectionStaleAfter))
		if err != nil {
			return report, err
		}
		if ok {
			report.Cancelled++
			e.metrics.SweepActions.WithLabelValues("cancelled").Inc()
		}
	}

	closing, err := e.store.ListGroupOrdersByStatus(ctx, models.StatusClosing)
	if err != nil {
		return report, err
	}
	for _, order := range closing {
		if order.ClosingSince == nil || now.Sub(*order.ClosingSince) < s.cfg.ClosingStaleAfter {
			continue
		}
		if order.OrderID != "" {
			ok, err := s.apply(e.settle(ctx, order, s.cfg.ClosingStaleAfter))
			if err != nil {
				return report, err
			}
			if ok {
				report.Settled++
				e.metrics.SweepActions.WithLabelValues("settled").Inc()
			}
			continue
		}
		ok, err := s.apply(e.phase.RestoreStuckClosing(ctx, order.ID, s.cfg.ClosingStaleAfter))
		if err != nil {
			return report, err
		}
		if ok {
			report.Restored++
			e.metrics.SweepActions.WithLabelValues("restored").Inc()
			slog.Warn("Restored group order stuck in closing", "group_order_id", order.ID)
		}
	}

	reapable, err := e.store.ListReapable(ctx, now.Add(-s.cfg.ReapAfter))
	if err != nil {
		return report, err
	}
	for _, id := range reapable {
		if err := e.store.PurgeMembership(ctx, id, now); err != nil {
			return report, err
		}
		report.Reaped++
		e.metrics.SweepActions.WithLabelValues("reaped").Inc()
	}

	return report, nil
}

// apply reports whether a sweep transition was applied. Losing the order
// to a concurrent caller is not an error for the sweep.
func (s *Sweeper) apply(res phase.Result, err error) (bool, error) {
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindPhase, apperr.KindConflict, apperr.KindNotFound:
			return false, nil
		}
		return false, err
	}
	return res.Applied, nil
}
