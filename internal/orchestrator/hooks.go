package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/conductor/errors"
	"github.com/xraph/conductor/internal/shared"
	"github.com/xraph/conductor/logger"
)

// runHook runs fn with an optional timeout. The hook runs in its own
// goroutine so that a hook ignoring its context cannot stall the stage past
// its timeout. Cancellation of ctx is passed to the hook, which still gets to
// finish: its own result is reported unless the timeout fires first. Panics
// are returned as errors.
func (o *Orchestrator) runHook(ctx context.Context, id shared.Identity, op string, timeout time.Duration, fn func(context.Context) error) error {
	hctx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		hctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.LogPanic(o.logger, r, logger.ServiceID(string(id)), logger.String("hook", op))
				done <- fmt.Errorf("panic: %v", r)
			}
		}()

		done <- fn(hctx)
	}()

	var expiry <-chan time.Time

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		expiry = timer.C
	}

	select {
	case err := <-done:
		return hookResult(ctx, hctx, op, timeout, err)
	case <-expiry:
		select {
		case err := <-done:
			return hookResult(ctx, hctx, op, timeout, err)
		default:
			return expired(ctx, op, timeout, context.DeadlineExceeded)
		}
	}
}

// hookResult keeps a hook's own outcome. Only an error returned after the
// hook context ended is attributed to timeout or cancellation.
func hookResult(ctx, hctx context.Context, op string, timeout time.Duration, err error) error {
	if err != nil && hctx.Err() != nil {
		return expired(ctx, op, timeout, err)
	}

	return err
}

func expired(parent context.Context, op string, timeout time.Duration, cause error) error {
	if err := parent.Err(); err != nil {
		return errors.ErrContextCancelled(op, err)
	}

	e := errors.ErrTimeout(op, timeout)
	e.Cause = cause

	return e
}

// group returns an errgroup bounded by MaxConcurrency.
func (o *Orchestrator) group() *errgroup.Group {
	g := &errgroup.Group{}
	if o.config.MaxConcurrency > 0 {
		g.SetLimit(o.config.MaxConcurrency)
	}

	return g
}

func (o *Orchestrator) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.tracer.StartSpan(ctx, "conductor."+name, attrs...)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}

func serviceAttr(id shared.Identity) attribute.KeyValue {
	return attribute.String("conductor.service", string(id))
}
