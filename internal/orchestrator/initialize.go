package orchestrator

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/conductor/errors"
	"github.com/xraph/conductor/internal/graph"
	"github.com/xraph/conductor/internal/shared"
	"github.com/xraph/conductor/logger"
	"github.com/xraph/conductor/observability"
)

// InitializeAll initializes every registered service in dependency order.
//
// A graph with missing required dependencies or cycles is rejected before
// any hook runs. Otherwise services are grouped into stages by depth; each
// stage runs concurrently and completes before the next one starts.
// Per-service failures are recorded in the report and never returned as
// the error. Services that are already running are not initialized again.
func (o *Orchestrator) InitializeAll(ctx context.Context) (InitializationReport, error) {
	if err := o.checkDisposed(); err != nil {
		return InitializationReport{}, err
	}

	o.opMu.Lock()
	defer o.opMu.Unlock()

	if err := o.checkDisposed(); err != nil {
		return InitializationReport{}, err
	}

	runID := uuid.NewString()
	start := time.Now()

	ctx, span := o.startSpan(ctx, "initialize_all", attribute.String("conductor.run_id", runID))

	g := o.Graph()
	if err := g.Validate(); err != nil {
		o.logger.Error("dependency graph rejected", logger.RunID(runID), logger.Error(err))
		endSpan(span, err)

		return InitializationReport{}, err
	}

	stages, err := g.Stages()
	if err != nil {
		endSpan(span, err)

		return InitializationReport{}, err
	}

	report := InitializationReport{
		RunID:      runID,
		PerService: make(Outcomes, g.Len()),
		Stages:     stages,
		StartedAt:  start,
	}

	var mu sync.Mutex

	record := func(id shared.Identity, out Outcome) {
		mu.Lock()
		report.PerService[id] = out
		mu.Unlock()
	}

	o.logger.Info("initializing services",
		logger.RunID(runID),
		logger.Int("services", g.Len()),
		logger.Int("stages", len(stages)),
	)

	for i, stage := range stages {
		if ctx.Err() != nil {
			for _, id := range stage {
				record(id, skipped("cancelled before stage started"))
			}

			continue
		}

		stageStart := time.Now()
		previous := maps.Clone(report.PerService)
		grp := o.group()

		for _, id := range stage {
			grp.Go(func() error {
				record(id, o.initializeInStage(ctx, g, id, previous, runID))

				return nil
			})
		}

		_ = grp.Wait()

		o.logger.Debug("stage initialized",
			logger.RunID(runID),
			logger.Stage(i),
			logger.Strings("services", shared.Identities(stage)),
			logger.Duration("duration", time.Since(stageStart)),
		)
	}

	report.Duration = time.Since(start)
	report.Success = report.PerService.Count(StatusInitialized) == len(report.PerService)

	o.metrics.Histogram("initialize_all_duration_seconds", observability.DurationBuckets).
		Observe(report.Duration.Seconds())

	o.logger.Info("initialization finished",
		logger.RunID(runID),
		logger.Bool("success", report.Success),
		logger.Int("initialized", report.PerService.Count(StatusInitialized)),
		logger.Int("failed", report.PerService.Count(StatusFailed)),
		logger.Int("skipped", report.PerService.Count(StatusSkipped)),
		logger.Duration("duration", report.Duration),
	)

	endSpan(span, report.PerService.Err())

	return report, nil
}

// initializeInStage decides the outcome of id given the outcomes of earlier
// stages, running its hook only when every required dependency initialized.
func (o *Orchestrator) initializeInStage(ctx context.Context, g *graph.Graph, id shared.Identity, previous Outcomes, runID string) Outcome {
	node, _ := g.Node(id)
	d := node.Descriptor
	e := o.entryFor(id, d.Lifetime)

	switch st := e.current(); st {
	case StateRunning:
		return initialized("already running", 0)
	case StateError:
		return failed(errors.ErrInvalidState(string(id), st.String(), "restart required"), 0)
	case StateShutdown:
		return skipped("service is shut down; restart required")
	}

	for _, dep := range d.Required {
		if shared.IsInfrastructure(dep) {
			continue
		}

		if out := previous[dep]; out.Status != StatusInitialized {
			return skipped("required dependency '" + string(dep) + "' " + out.Status.String())
		}
	}

	if ctx.Err() != nil {
		return skipped("cancelled before initialization started")
	}

	return o.initialize(ctx, e, d, runID)
}

// InitializeService initializes a single uninitialized service whose
// required dependencies are running. It is a no-op for a running service.
func (o *Orchestrator) InitializeService(ctx context.Context, id shared.Identity) error {
	if err := o.checkDisposed(); err != nil {
		return err
	}

	o.opMu.Lock()
	defer o.opMu.Unlock()

	if err := o.checkDisposed(); err != nil {
		return err
	}

	d, ok := o.registry.Get(id)
	if !ok {
		return errors.ErrServiceNotFound(string(id))
	}

	e := o.entryFor(id, d.Lifetime)

	switch st := e.current(); st {
	case StateRunning:
		return nil
	case StateError, StateShutdown:
		return errors.ErrInvalidState(string(id), st.String(), "restart required")
	}

	if err := o.checkRequired(d); err != nil {
		return err
	}

	return o.initialize(ctx, e, d, uuid.NewString()).Err
}

// checkRequired verifies every required dependency of d is running.
func (o *Orchestrator) checkRequired(d shared.Descriptor) error {
	for _, dep := range d.Required {
		if shared.IsInfrastructure(dep) {
			continue
		}

		if !o.registry.IsRegistered(dep) {
			return errors.ErrMissingDependency(string(d.Identity), string(dep))
		}

		if st := o.State(dep); st != StateRunning {
			return errors.ErrInvalidState(string(dep), st.String(), "required by '"+string(d.Identity)+"'")
		}
	}

	return nil
}

// initialize runs the Initialize hook of e and records the result.
func (o *Orchestrator) initialize(ctx context.Context, e *entry, d shared.Descriptor, runID string) Outcome {
	start := time.Now()

	ctx, span := o.startSpan(ctx, "initialize", serviceAttr(e.id))

	o.transition(e, StateInitializing, runID, nil)

	err := o.initHook(ctx, e, d)
	elapsed := time.Since(start)

	o.metrics.Histogram("service_init_duration_seconds", observability.DurationBuckets,
		observability.L("service", string(e.id)),
	).Observe(elapsed.Seconds())

	if err != nil {
		err = errors.ErrInitializationFailure(string(e.id), err)

		e.update(func(e *entry) {
			e.stats.Failures++
			e.stats.LastError = err.Error()
			e.stats.LastInitDuration = elapsed
		})
		o.transition(e, StateError, runID, err)
		o.countInit(e.id, StatusFailed)

		o.logger.Error("service initialization failed",
			logger.RunID(runID),
			logger.ServiceID(string(e.id)),
			logger.Duration("duration", elapsed),
			logger.Error(err),
		)
		endSpan(span, err)

		return failed(err, elapsed)
	}

	e.update(func(e *entry) {
		e.stats.Initializations++
		e.stats.LastInitDuration = elapsed
		e.stats.StartedAt = time.Now()
	})
	o.transition(e, StateRunning, runID, nil)
	o.countInit(e.id, StatusInitialized)

	o.logger.Info("service initialized",
		logger.RunID(runID),
		logger.ServiceID(string(e.id)),
		logger.Lifetime(d.Lifetime),
		logger.Duration("duration", elapsed),
	)
	endSpan(span, nil)

	return initialized("", elapsed)
}

func (o *Orchestrator) initHook(ctx context.Context, e *entry, d shared.Descriptor) error {
	instance, err := o.instanceFor(ctx, e)
	if err != nil {
		return err
	}

	svc, ok := instance.(shared.Service)
	if !ok {
		return nil
	}

	deps := accessor{o: o, d: d}

	return o.runHook(ctx, e.id, "initialize", o.initTimeout(d), func(hctx context.Context) error {
		return svc.Initialize(hctx, deps)
	})
}

func (o *Orchestrator) initTimeout(d shared.Descriptor) time.Duration {
	if d.InitTimeout > 0 {
		return d.InitTimeout
	}

	return o.config.InitTimeout
}

func (o *Orchestrator) countInit(id shared.Identity, s Status) {
	o.metrics.Counter("service_initializations_total",
		observability.L("service", string(id)),
		observability.L("outcome", s.String()),
	).Inc()
}
