// Package jobs runs the periodic batch processes of the integrity core.
package jobs

import (
	"context"
	"time"

	"github.com/veridata/trialbridge-backend/internal/pkg/logger"
	"github.com/veridata/trialbridge-backend/internal/services"
)

// AnchorWorker triggers an anchor run on a fixed cadence. Mutual exclusion
// across processes is handled inside AnchorService via the run lock; this
// worker only provides the clock.
type AnchorWorker struct {
	log      *logger.Logger
	anchors  services.AnchorService
	interval time.Duration
}

func NewAnchorWorker(baseLog *logger.Logger, anchors services.AnchorService, interval time.Duration) *AnchorWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &AnchorWorker{
		log:      baseLog.With("component", "AnchorWorker"),
		anchors:  anchors,
		interval: interval,
	}
}

func (w *AnchorWorker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		w.log.Info("Anchor worker started", "interval", w.interval)
		for {
			select {
			case <-ctx.Done():
				w.log.Info("Anchor worker stopping")
				return
			case <-ticker.C:
				report, err := w.anchors.Run(ctx)
				if err != nil {
					w.log.Error("Anchor run failed", "error", err)
					continue
				}
				if report.Skipped {
					continue
				}
				if len(report.Failures) > 0 {
					// Pending CREATED anchors need an operator; this
					// is the surfacing point, not a retry loop.
					w.log.Warn("Anchor run left pending anchors",
						"failed_trials", len(report.Failures))
				}
			}
		}
	}()
}
