package orchestrator

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/conductor/errors"
	"github.com/xraph/conductor/internal/shared"
	"github.com/xraph/conductor/logger"
	"github.com/xraph/conductor/observability"
)

// RestartService shuts id down if it is running, moves it back to
// Uninitialized and initializes it alone. Its required dependencies must
// already be running. No other service is touched, not
// even services that depend on id. The instance bound to id is reused.
func (o *Orchestrator) RestartService(ctx context.Context, id shared.Identity) error {
	if err := o.checkDisposed(); err != nil {
		return err
	}

	o.opMu.Lock()
	defer o.opMu.Unlock()

	if err := o.checkDisposed(); err != nil {
		return err
	}

	return o.restart(ctx, id, uuid.NewString()).Err
}

func (o *Orchestrator) restart(ctx context.Context, id shared.Identity, runID string) Outcome {
	d, ok := o.registry.Get(id)
	if !ok {
		return failed(errors.ErrServiceNotFound(string(id)), 0)
	}

	ctx, span := o.startSpan(ctx, "restart", serviceAttr(id))

	if err := o.checkRequired(d); err != nil {
		o.logger.Warn("restart blocked by dependency",
			logger.ServiceID(string(id)),
			logger.Error(err),
		)
		endSpan(span, err)

		return failed(err, 0)
	}

	e := o.entryFor(id, d.Lifetime)

	if e.current() == StateRunning {
		if out, _ := o.shutdown(ctx, e, runID, false); out.Status == StatusFailed {
			endSpan(span, out.Err)

			return out
		}
	}

	o.reset(e, runID)

	out := o.initialize(ctx, e, d, runID)
	endSpan(span, out.Err)

	return out
}

// reset moves e back to Uninitialized as part of a restart.
func (o *Orchestrator) reset(e *entry, runID string) {
	o.transition(e, StateUninitialized, runID, nil)
	e.update(func(e *entry) {
		e.stats.Restarts++
	})

	o.metrics.Counter("restarts_total", observability.L("service", string(e.id))).Inc()
}

// RestartWithDependents restarts id and every service that transitively
// depends on it. Dependents are shut down before id, then everything is
// initialized again in dependency order. A service whose required
// dependency did not come back is skipped.
func (o *Orchestrator) RestartWithDependents(ctx context.Context, id shared.Identity) (RestartReport, error) {
	if err := o.checkDisposed(); err != nil {
		return RestartReport{}, err
	}

	o.opMu.Lock()
	defer o.opMu.Unlock()

	if err := o.checkDisposed(); err != nil {
		return RestartReport{}, err
	}

	if !o.registry.IsRegistered(id) {
		return RestartReport{}, errors.ErrServiceNotFound(string(id))
	}

	g := o.Graph()

	full, err := g.InitializationOrder()
	if err != nil {
		return RestartReport{}, err
	}

	targets := append([]shared.Identity{id}, g.AllDependents(id)...)
	order := slices.DeleteFunc(full, func(x shared.Identity) bool {
		return !slices.Contains(targets, x)
	})

	runID := uuid.NewString()
	start := time.Now()

	ctx, span := o.startSpan(ctx, "restart_with_dependents", serviceAttr(id))

	report := RestartReport{
		RunID:      runID,
		Order:      order,
		PerService: make(Outcomes, len(order)),
	}

	for i := len(order) - 1; i >= 0; i-- {
		e, ok := o.lookup(order[i])
		if !ok || e.current() != StateRunning {
			continue
		}

		if out, _ := o.shutdown(ctx, e, runID, false); out.Status == StatusFailed {
			report.PerService[order[i]] = out
		}
	}

	for _, target := range order {
		if _, done := report.PerService[target]; done {
			continue
		}

		if ctx.Err() != nil {
			report.PerService[target] = skipped("cancelled before restart")

			continue
		}

		node, _ := g.Node(target)
		d := node.Descriptor
		e := o.entryFor(target, d.Lifetime)

		o.reset(e, runID)

		if err := o.checkRequired(d); err != nil {
			report.PerService[target] = skipped(err.Error())

			continue
		}

		report.PerService[target] = o.initialize(ctx, e, d, runID)
	}

	report.Duration = time.Since(start)
	report.Success = report.PerService.Count(StatusInitialized) == len(order)

	o.logger.Info("cascading restart finished",
		logger.RunID(runID),
		logger.ServiceID(string(id)),
		logger.Strings("order", shared.Identities(order)),
		logger.Bool("success", report.Success),
	)

	endSpan(span, report.PerService.Err())

	return report, nil
}
