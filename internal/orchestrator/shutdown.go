package orchestrator

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/conductor/errors"
	"github.com/xraph/conductor/internal/graph"
	"github.com/xraph/conductor/internal/shared"
	"github.com/xraph/conductor/logger"
	"github.com/xraph/conductor/observability"
)

// ShutdownAll shuts every running service down, dependents before their
// dependencies. Services that are not running are skipped, so repeated
// calls never invoke a Shutdown hook twice.
func (o *Orchestrator) ShutdownAll(ctx context.Context) (ShutdownReport, error) {
	if err := o.checkDisposed(); err != nil {
		return ShutdownReport{}, err
	}

	o.opMu.Lock()
	defer o.opMu.Unlock()

	if err := o.checkDisposed(); err != nil {
		return ShutdownReport{}, err
	}

	return o.shutdownAll(ctx), nil
}

func (o *Orchestrator) shutdownAll(ctx context.Context) ShutdownReport {
	runID := uuid.NewString()
	start := time.Now()

	ctx, span := o.startSpan(ctx, "shutdown_all", attribute.String("conductor.run_id", runID))

	stages := shutdownStages(o.Graph())

	// services unregistered while running go first; nothing in the graph
	// can depend on them any more
	var orphans []shared.Identity
	for _, e := range o.orphans() {
		if e.current() == StateRunning {
			orphans = append(orphans, e.id)
		}
	}

	if len(orphans) > 0 {
		slices.Sort(orphans)
		stages = append([][]shared.Identity{orphans}, stages...)
	}

	report := ShutdownReport{
		RunID:      runID,
		PerService: make(Outcomes),
		StartedAt:  start,
	}

	var (
		mu    sync.Mutex
		hooks atomic.Int64
	)

	record := func(id shared.Identity, out Outcome) {
		mu.Lock()
		report.PerService[id] = out
		mu.Unlock()
	}

	for _, stage := range stages {
		if ctx.Err() != nil {
			for _, id := range stage {
				record(id, skipped("cancelled before stage started"))
			}

			continue
		}

		grp := o.group()

		for _, id := range stage {
			grp.Go(func() error {
				out, invoked := o.shutdownInStage(ctx, id, runID)
				if invoked {
					hooks.Add(1)
				}

				record(id, out)

				return nil
			})
		}

		_ = grp.Wait()
	}

	report.HookInvocations = int(hooks.Load())
	report.Duration = time.Since(start)
	report.Success = report.PerService.Count(StatusFailed) == 0

	o.logger.Info("shutdown finished",
		logger.RunID(runID),
		logger.Bool("success", report.Success),
		logger.Int("shut_down", report.PerService.Count(StatusShutDown)),
		logger.Int("hooks", report.HookInvocations),
		logger.Duration("duration", report.Duration),
	)

	endSpan(span, report.PerService.Err())

	return report
}

// shutdownStages reverses the initialization stages. On a cyclic graph every
// service gets its own stage, in reverse registration order.
func shutdownStages(g *graph.Graph) [][]shared.Identity {
	stages, err := g.Stages()
	if err == nil {
		slices.Reverse(stages)

		return stages
	}

	order := g.Order()
	out := make([][]shared.Identity, 0, len(order))

	for i := len(order) - 1; i >= 0; i-- {
		out = append(out, []shared.Identity{order[i]})
	}

	return out
}

func (o *Orchestrator) shutdownInStage(ctx context.Context, id shared.Identity, runID string) (Outcome, bool) {
	e, ok := o.lookup(id)
	if !ok {
		return skipped("never initialized"), false
	}

	switch st := e.current(); st {
	case StateRunning:
	case StateShutdown:
		return skipped("already shut down"), false
	default:
		return skipped("service is " + st.String()), false
	}

	if ctx.Err() != nil {
		return skipped("cancelled before shutdown started"), false
	}

	return o.shutdown(ctx, e, runID, true)
}

// shutdown runs the Shutdown hook of a running e. With release the instance
// is dropped from the engine afterwards. It reports whether a hook ran.
func (o *Orchestrator) shutdown(ctx context.Context, e *entry, runID string, release bool) (Outcome, bool) {
	start := time.Now()

	ctx, span := o.startSpan(ctx, "shutdown", serviceAttr(e.id))

	o.transition(e, StateShuttingDown, runID, nil)

	e.mu.Lock()
	instance := e.instance
	e.mu.Unlock()

	var err error

	svc, invoked := instance.(shared.Service)
	if invoked {
		err = o.runHook(ctx, e.id, "shutdown", o.config.ShutdownTimeout, svc.Shutdown)
	}

	elapsed := time.Since(start)

	if err != nil {
		err = errors.ErrShutdownFailure(string(e.id), err)

		e.update(func(e *entry) {
			e.stats.Failures++
			e.stats.LastError = err.Error()
			e.stats.LastShutdownDuration = elapsed
		})
		o.transition(e, StateError, runID, err)
		o.countShutdown(e.id, StatusFailed)

		o.logger.Error("service shutdown failed",
			logger.RunID(runID),
			logger.ServiceID(string(e.id)),
			logger.Error(err),
		)
		endSpan(span, err)

		return failed(err, elapsed), invoked
	}

	e.update(func(e *entry) {
		e.stats.Shutdowns++
		e.stats.LastShutdownDuration = elapsed
	})
	o.transition(e, StateShutdown, runID, nil)
	o.countShutdown(e.id, StatusShutDown)

	if release {
		o.release(e)
	}

	o.logger.Info("service shut down",
		logger.RunID(runID),
		logger.ServiceID(string(e.id)),
		logger.Duration("duration", elapsed),
	)
	endSpan(span, nil)

	return Outcome{Status: StatusShutDown, Duration: elapsed}, invoked
}

func (o *Orchestrator) countShutdown(id shared.Identity, s Status) {
	o.metrics.Counter("service_shutdowns_total",
		observability.L("service", string(id)),
		observability.L("outcome", s.String()),
	).Inc()
}
