// Package telemetry turns sequence events into OpenTelemetry spans.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/chr1sbest/stepper/internal/sequence"
)

const (
	InstrumentationName = "github.com/chr1sbest/stepper"

	RunSpanName   = "stepper.run"
	ProgressEvent = "stepper.progress"
	FlowKey       = "stepper.flow"
	StepsKey      = "stepper.steps"
	StepIndexKey  = "stepper.step.index"
	SucceededKey  = "stepper.succeeded"
	HelperTextKey = "stepper.helper_text"
)

// NewProvider returns a tracer provider that writes finished spans to w as
// JSON. Callers must Shutdown it to flush.
func NewProvider(w io.Writer) (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp)), nil
}

// Tracer records one root span per sequence run and one child span per step.
type Tracer struct {
	tracer trace.Tracer
	parent context.Context
	flow   string

	mu      sync.Mutex
	rootCtx context.Context
	root    trace.Span
	steps   map[int]trace.Span
}

// NewTracer creates a sequence subscriber. Root spans are children of any
// span in ctx.
func NewTracer(ctx context.Context, tp trace.TracerProvider, flow string) *Tracer {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Tracer{
		tracer: tp.Tracer(InstrumentationName),
		parent: ctx,
		flow:   flow,
		steps:  make(map[int]trace.Span),
	}
}

// Handle records one sequence event. It satisfies sequence.Handler.
func (t *Tracer) Handle(ev sequence.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Type {
	case sequence.EventSequenceStarted:
		t.endAll()
		t.rootCtx, t.root = t.tracer.Start(t.parent, RunSpanName,
			trace.WithTimestamp(ev.Time),
			trace.WithAttributes(
				attribute.String(FlowKey, t.flow),
				attribute.Int(StepsKey, len(ev.Snapshot)),
			))

	case sequence.EventStepTransition:
		t.stepTransition(ev)

	case sequence.EventStepProgress:
		if span, ok := t.steps[ev.Index]; ok {
			span.AddEvent(ProgressEvent,
				trace.WithTimestamp(ev.Time),
				trace.WithAttributes(attribute.String(HelperTextKey, ev.Step.HelperText)))
		}

	case sequence.EventSequenceFinished:
		t.endSteps()
		if t.root == nil {
			return
		}
		t.root.SetAttributes(attribute.Int(SucceededKey, ev.Snapshot.Succeeded()))
		endSpan(t.root, ev.Err, ev.Time)
		t.root = nil
		t.rootCtx = nil
	}
}

func (t *Tracer) stepTransition(ev sequence.Event) {
	switch ev.Step.Status {
	case sequence.StatusLoading:
		parent := t.rootCtx
		if parent == nil {
			parent = t.parent
		}
		_, span := t.tracer.Start(parent, ev.Step.Key,
			trace.WithTimestamp(ev.Time),
			trace.WithAttributes(attribute.Int(StepIndexKey, ev.Index)))
		if ev.Step.HelperText != "" {
			span.SetAttributes(attribute.String(HelperTextKey, ev.Step.HelperText))
		}
		t.steps[ev.Index] = span

	case sequence.StatusSuccess, sequence.StatusError:
		span, ok := t.steps[ev.Index]
		if !ok {
			return
		}
		delete(t.steps, ev.Index)
		endSpan(span, ev.Err, ev.Time)
	}
}

// endAll closes spans left open by a run that never finished.
func (t *Tracer) endAll() {
	t.endSteps()
	if t.root != nil {
		t.root.End()
		t.root = nil
	}
}

func (t *Tracer) endSteps() {
	for i, span := range t.steps {
		span.End()
		delete(t.steps, i)
	}
}

func endSpan(span trace.Span, err error, at time.Time) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(at))
}
