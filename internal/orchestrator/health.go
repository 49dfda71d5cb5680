package orchestrator

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/xraph/conductor/errors"
	"github.com/xraph/conductor/internal/shared"
	"github.com/xraph/conductor/logger"
	"github.com/xraph/conductor/observability"
)

// HealthCheckAll checks every registered service concurrently. Only running
// services have their HealthCheck hook invoked; the rest are reported
// unhealthy with their state. Hook errors and panics count as unhealthy and
// are never returned.
func (o *Orchestrator) HealthCheckAll(ctx context.Context) (HealthReport, error) {
	if err := o.checkDisposed(); err != nil {
		return HealthReport{}, err
	}

	start := time.Now()

	ctx, span := o.startSpan(ctx, "health_check_all")

	ids := o.Graph().Order()
	report := HealthReport{
		PerService: make(map[shared.Identity]shared.HealthStatus, len(ids)),
		CheckedAt:  start,
	}

	var mu sync.Mutex

	grp := o.group()

	for _, id := range ids {
		grp.Go(func() error {
			status := o.checkHealth(ctx, id)

			mu.Lock()
			report.PerService[id] = status
			mu.Unlock()

			return nil
		})
	}

	_ = grp.Wait()

	report.Duration = time.Since(start)
	report.Healthy = len(report.Unhealthy()) == 0

	if !report.Healthy {
		o.logger.Warn("services unhealthy",
			logger.Strings("services", shared.Identities(report.Unhealthy())),
		)
	}

	endSpan(span, nil)

	return report, nil
}

// CheckHealth checks one service the way HealthCheckAll does.
func (o *Orchestrator) CheckHealth(ctx context.Context, id shared.Identity) (shared.HealthStatus, error) {
	if err := o.checkDisposed(); err != nil {
		return shared.HealthStatus{}, err
	}

	if !o.registry.IsRegistered(id) {
		return shared.HealthStatus{}, errors.ErrServiceNotFound(string(id))
	}

	return o.checkHealth(ctx, id), nil
}

func (o *Orchestrator) checkHealth(ctx context.Context, id shared.Identity) shared.HealthStatus {
	state := o.State(id)
	if state != StateRunning {
		return shared.Unhealthy("service is " + state.String())
	}

	e, _ := o.lookup(id)

	e.mu.Lock()
	instance := e.instance
	e.stats.HealthChecks++
	e.mu.Unlock()

	svc, ok := instance.(shared.Service)
	if !ok {
		o.countHealth(id, true)

		return shared.Healthy("running")
	}

	var status shared.HealthStatus

	err := o.runHook(ctx, id, "health_check", o.config.HealthCheckTimeout, func(hctx context.Context) error {
		s, err := svc.HealthCheck(hctx)
		status = s

		return err
	})
	if err != nil {
		err = errors.ErrHealthCheckFailed(string(id), err)
		o.countHealth(id, false)

		o.logger.Debug("health check failed", logger.ServiceID(string(id)), logger.Error(err))

		return shared.Unhealthy(err.Error())
	}

	o.countHealth(id, status.Healthy)

	return status
}

func (o *Orchestrator) countHealth(id shared.Identity, healthy bool) {
	o.metrics.Counter("health_checks_total",
		observability.L("service", string(id)),
		observability.L("healthy", strconv.FormatBool(healthy)),
	).Inc()
}
