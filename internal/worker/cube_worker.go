// Package worker runs the asynchronous cube maintenance loop.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"FinSight/internal/cube"
	"FinSight/internal/ledger"
	"FinSight/internal/observability"
)

// CubeWorker drains the delta channel, derives dirty cube targets, and flushes
// them to the regeneration engine. Flushes happen when the dirty set reaches
// batchSize or the flush interval elapses, whichever comes first — the cube is
// eventually consistent, so coalescing many deltas into one recompute per key
// is always safe. Failed targets stay dirty and ride the next flush.
type CubeWorker struct {
	engine        *cube.Engine
	processor     *cube.Processor
	deltaChan     <-chan ledger.Delta
	batchSize     int
	flushInterval time.Duration
	metrics       *observability.Metrics
	log           zerolog.Logger

	dirty map[string]cube.Target
}

func NewCubeWorker(
	engine *cube.Engine,
	deltaChan <-chan ledger.Delta,
	batchSize int,
	flushInterval time.Duration,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *CubeWorker {
	return &CubeWorker{
		engine:        engine,
		processor:     cube.NewProcessor(),
		deltaChan:     deltaChan,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		metrics:       metrics,
		log:           log,
		dirty:         make(map[string]cube.Target),
	}
}

// Run blocks until ctx is cancelled or the delta channel closes. Pending dirty
// targets get one final flush on the way out so an orderly shutdown leaves the
// cube no staler than the last delta received.
func (w *CubeWorker) Run(ctx context.Context) error {
	timer := time.NewTimer(w.flushInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.finalFlush()
			return ctx.Err()

		case d, ok := <-w.deltaChan:
			if !ok {
				w.finalFlush()
				return nil
			}
			w.markDirty(d)

			if len(w.dirty) >= w.batchSize {
				w.flush(ctx)
				timer.Reset(w.flushInterval)
			}

		case <-timer.C:
			if len(w.dirty) > 0 {
				w.flush(ctx)
			}
			timer.Reset(w.flushInterval)
		}
	}
}

func (w *CubeWorker) markDirty(d ledger.Delta) {
	if w.metrics != nil {
		w.metrics.DeltasReceived.WithLabelValues(string(d.Operation)).Inc()
	}

	targets, err := w.processor.ProcessDelta(d)
	if err != nil {
		// A delta that survived parsing should never fail here; log and skip.
		w.log.Warn().Err(err).Str("operation", string(d.Operation)).Msg("delta rejected by processor")
		return
	}
	if len(targets) == 0 {
		if w.metrics != nil {
			w.metrics.DeltaNoops.Inc()
		}
		return
	}

	for _, t := range targets {
		w.dirty[t.Key()] = t
	}
	if w.metrics != nil {
		w.metrics.DirtyTargets.Set(float64(len(w.dirty)))
	}
}

func (w *CubeWorker) flush(ctx context.Context) {
	targets := make([]cube.Target, 0, len(w.dirty))
	for _, t := range w.dirty {
		targets = append(targets, t)
	}
	w.dirty = make(map[string]cube.Target)

	start := time.Now()
	report := w.engine.Regenerate(ctx, targets)

	// Failed targets go back into the dirty set; regeneration is idempotent,
	// so retrying on the next flush converges once storage recovers.
	for _, f := range report.Failed {
		w.dirty[f.Target.Key()] = f.Target
		if w.metrics != nil {
			w.metrics.RegenRetries.Inc()
		}
	}

	if w.metrics != nil {
		w.metrics.FlushBatchSize.Observe(float64(len(targets)))
		w.metrics.FlushDuration.Observe(time.Since(start).Seconds())
		w.metrics.RegenTargets.WithLabelValues("updated").Add(float64(report.Updated))
		w.metrics.RegenTargets.WithLabelValues("failed").Add(float64(len(report.Failed)))
		w.metrics.DirtyTargets.Set(float64(len(w.dirty)))
	}

	w.log.Debug().
		Int("targets", len(targets)).
		Int("updated", report.Updated).
		Int("failed", len(report.Failed)).
		Dur("took", time.Since(start)).
		Msg("cube flush")
}

// finalFlush gives pending targets one last chance with a fresh context; the
// run context is already cancelled during shutdown.
func (w *CubeWorker) finalFlush() {
	if len(w.dirty) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	w.log.Info().Int("targets", len(w.dirty)).Msg("final cube flush")
	w.flush(ctx)
	if len(w.dirty) > 0 {
		w.log.Warn().Int("targets", len(w.dirty)).Msg("targets left stale at shutdown; next rebuild repairs them")
	}
}
