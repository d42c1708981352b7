package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/quotesync/internal/platform/logging"
)

const tracerName = "github.com/jsamuelsen/quotesync/internal/app"

// Mutations of the quote collection run as five steps:
//
//	validate -> perform -> verify -> archive -> respond
//
// Only archive writes to the store, and it runs after verify has accepted
// the candidate. The first failing step ends the run with a *StepError.

// ExecutionStep names one of the five steps.
type ExecutionStep string

const (
	StepValidate ExecutionStep = "validate"
	StepPerform  ExecutionStep = "perform"
	StepVerify   ExecutionStep = "verify"
	StepArchive  ExecutionStep = "archive"
	StepRespond  ExecutionStep = "respond"
)

// StepError is returned by Execute when a step fails. Cause keeps the
// domain error, so errors.Is and the domain classifiers see through it.
type StepError struct {
	Operation string
	Step      ExecutionStep
	Cause     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s step: %v", e.Operation, e.Step, e.Cause)
}

func (e *StepError) Unwrap() error {
	return e.Cause
}

// FailedStep reports the step err came from, if it came from Execute.
func FailedStep(err error) (ExecutionStep, bool) {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step, true
	}

	return "", false
}

// Executor runs operations with a span per run and debug logs per step.
type Executor struct {
	logger *slog.Logger
	tracer trace.Tracer
}

func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// Operation is one use case split into steps. A nil step passes the zero
// value of its output along.
type Operation[I, P, V, O any] struct {
	Name string

	Validate func(ctx context.Context, input I) error
	Perform  func(ctx context.Context, input I) (P, error)

	// Verify checks the candidate without trusting how Perform built it.
	Verify func(ctx context.Context, input I, performed P) (V, error)

	Archive func(ctx context.Context, input I, verified V) error
	Respond func(ctx context.Context, input I, verified V) (O, error)
}

// run executes one step. Validation failures are the caller's fault and
// log at warn, everything else at error.
func run[T any](ctx context.Context, logger *slog.Logger, op string, step ExecutionStep, fn func() (T, error)) (T, error) {
	logger.DebugContext(ctx, "step started", slog.String("step", string(step)))

	out, err := fn()
	if err != nil {
		level := slog.LevelError
		if step == StepValidate {
			level = slog.LevelWarn
		}

		logger.Log(ctx, level, "step failed", slog.String("step", string(step)), slog.Any("error", err))

		var zero T

		return zero, &StepError{Operation: op, Step: step, Cause: err}
	}

	return out, nil
}

// Execute runs op on input and returns what Respond produced.
func Execute[I, P, V, O any](ctx context.Context, exec *Executor, op Operation[I, P, V, O], input I) (result O, err error) {
	ctx, span := exec.tracer.Start(ctx, "app."+op.Name)
	defer func() {
		if err != nil {
			if step, ok := FailedStep(err); ok {
				span.SetAttributes(attribute.String("app.failed_step", string(step)))
			}

			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()
	}()

	logger := logging.FromContextOr(ctx, exec.logger).With(slog.String("operation", op.Name))
	start := time.Now()

	var zero O

	if op.Validate != nil {
		if _, err = run(ctx, logger, op.Name, StepValidate, func() (struct{}, error) {
			return struct{}{}, op.Validate(ctx, input)
		}); err != nil {
			return zero, err
		}
	}

	var performed P
	if op.Perform != nil {
		if performed, err = run(ctx, logger, op.Name, StepPerform, func() (P, error) {
			return op.Perform(ctx, input)
		}); err != nil {
			return zero, err
		}
	}

	var verified V
	if op.Verify != nil {
		if verified, err = run(ctx, logger, op.Name, StepVerify, func() (V, error) {
			return op.Verify(ctx, input, performed)
		}); err != nil {
			return zero, err
		}
	}

	if op.Archive != nil {
		if _, err = run(ctx, logger, op.Name, StepArchive, func() (struct{}, error) {
			return struct{}{}, op.Archive(ctx, input, verified)
		}); err != nil {
			return zero, err
		}
	}

	if op.Respond != nil {
		if result, err = run(ctx, logger, op.Name, StepRespond, func() (O, error) {
			return op.Respond(ctx, input, verified)
		}); err != nil {
			return zero, err
		}
	}

	logger.InfoContext(ctx, "operation completed", slog.Duration("duration", time.Since(start)))

	return result, nil
}
