package orchestrator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designgov/internal/constitution"
	"github.com/fyrsmithlabs/designgov/internal/governance"
	"github.com/fyrsmithlabs/designgov/internal/logging"
	"github.com/fyrsmithlabs/designgov/internal/session"
	"github.com/fyrsmithlabs/designgov/internal/telemetry"
)

const instrumentationName = "github.com/fyrsmithlabs/designgov/internal/orchestrator"

// Orchestrator drives sessions through the phase graph.
type Orchestrator struct {
	gov       *governance.Middleware
	tools     ToolExecutor
	planner   Planner
	validator Validator
	enforcer  *constitution.Enforcer
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	tracer    trace.Tracer
	runs      metric.Int64Counter
	progress  ProgressCallback
	handlers  map[session.Phase]phaseHandler
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPlanner sets the planning strategy.
func WithPlanner(p Planner) Option {
	return func(o *Orchestrator) { o.planner = p }
}

// WithValidator sets the validation strategy.
func WithValidator(v Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// WithEnforcer verifies every plan against the full constitution after
// classification. Violations are logged and accumulate on the enforcer;
// they do not stop the run.
func WithEnforcer(e *constitution.Enforcer) Option {
	return func(o *Orchestrator) { o.enforcer = e }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTelemetry sets the trace and metric providers. Without it the
// global otel providers are used.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(o *Orchestrator) { o.telemetry = t }
}

// New creates an orchestrator calling gov before every action and tools
// to run them.
func New(gov *governance.Middleware, tools ToolExecutor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gov:    gov,
		tools:  tools,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	var meter metric.Meter
	if o.telemetry != nil {
		o.tracer = o.telemetry.Tracer(instrumentationName)
		meter = o.telemetry.Meter(instrumentationName)
	} else {
		o.tracer = otel.Tracer(instrumentationName)
		meter = otel.Meter(instrumentationName)
	}
	runs, err := meter.Int64Counter("designgov.orchestrator.runs_total",
		metric.WithDescription("Orchestrator runs by terminal phase"))
	if err != nil {
		runs = noop.Int64Counter{}
	}
	o.runs = runs

	o.handlers = map[session.Phase]phaseHandler{
		session.PhasePlan:             o.plan,
		session.PhaseExecute:          o.execute,
		session.PhaseValidate:         o.validate,
		session.PhaseAwaitingApproval: o.awaitApproval,
		session.PhaseCommit:           o.commit,
	}
	return o
}

// OnProgress sets the progress callback.
func (o *Orchestrator) OnProgress(callback ProgressCallback) {
	o.progress = callback
}

// Run drives st until it reaches a terminal phase and returns it.
//
// Configuration errors (unknown tool, unknown phase, illegal transition,
// planner failure) put the session in FAILED and are also returned.
// FAILED and ESCALATED outcomes of a well-formed run are not errors.
func (o *Orchestrator) Run(ctx context.Context, st *session.State) (*session.State, error) {
	ctx = logging.WithSession(ctx, st.ID, st.AgentID, st.BranchID)
	ctx, span := o.tracer.Start(ctx, "orchestrator.Run", trace.WithAttributes(
		attribute.String("session.id", st.ID),
		attribute.String("agent.id", st.AgentID),
		attribute.String("branch.id", st.BranchID),
	))
	defer span.End()

	o.logger.Info(ctx, "run started",
		zap.String("phase", string(st.Phase)),
		zap.Int("planned_actions", len(st.Actions)))

	err := o.drive(ctx, st)

	span.SetAttributes(attribute.String("terminal", string(st.Phase)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	o.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("terminal", string(st.Phase))))
	o.logger.Info(ctx, "run finished",
		zap.String("terminal", string(st.Phase)),
		zap.String("summary", Summary(st)))
	return st, err
}

func (o *Orchestrator) drive(ctx context.Context, st *session.State) error {
	for !st.Phase.IsTerminal() {
		if err := ctx.Err(); err != nil {
			o.abort(ctx, st, err)
			return err
		}

		from := st.Phase
		handler, ok := o.handlers[from]
		if !ok {
			err := fmt.Errorf("%w: %q", ErrUnknownPhase, from)
			o.abort(ctx, st, err)
			return err
		}

		if err := o.runPhase(ctx, st, handler); err != nil {
			err = fmt.Errorf("phase %s: %w", from, err)
			o.abort(ctx, st, err)
			return err
		}
		if st.Phase == from {
			err := fmt.Errorf("phase %s: handler did not advance the session", from)
			o.abort(ctx, st, err)
			return err
		}

		o.logger.Info(ctx, "phase transition",
			zap.String("from", string(from)),
			zap.String("to", string(st.Phase)))
		o.reportProgress(PhaseProgress{
			SessionID: st.ID,
			From:      from,
			To:        st.Phase,
			Message:   fmt.Sprintf("%s -> %s", from, st.Phase),
		})
	}
	return nil
}

func (o *Orchestrator) runPhase(ctx context.Context, st *session.State, handler phaseHandler) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.phase."+string(st.Phase), trace.WithAttributes(
		attribute.String("session.id", st.ID),
		attribute.String("agent.id", st.AgentID),
		attribute.String("phase", string(st.Phase)),
	))
	defer span.End()

	if err := handler(ctx, st); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.String("next_phase", string(st.Phase)))
	return nil
}

// abort moves st to FAILED with err as the failure reason. Sessions stuck
// in a phase outside the graph are forced there.
func (o *Orchestrator) abort(ctx context.Context, st *session.State, err error) {
	o.logger.Error(ctx, "run aborted", zap.String("phase", string(st.Phase)), zap.Error(err))
	if st.Phase.IsTerminal() {
		return
	}
	if failErr := st.Fail(err.Error()); failErr != nil {
		from := st.Phase
		st.Phase = session.PhaseFailed
		st.Record(session.EventPhaseTransition, fmt.Sprintf("%s -> %s", from, session.PhaseFailed))
	}
}

func (o *Orchestrator) reportProgress(p PhaseProgress) {
	if o.progress != nil {
		o.progress(p)
	}
}

// Resume re-drives an escalated session whose approval has since been
// granted. The escalated session stays untouched; a fork of it is run.
func (o *Orchestrator) Resume(ctx context.Context, escalated *session.State) (*session.State, error) {
	if escalated.Phase != session.PhaseEscalated {
		return nil, fmt.Errorf("%w: phase is %s", ErrNotResumable, escalated.Phase)
	}
	if !escalated.ApprovalGranted {
		return nil, fmt.Errorf("%w: approval not granted", ErrNotResumable)
	}

	fork := escalated.Fork()
	o.logger.Info(logging.WithSession(ctx, fork.ID, fork.AgentID, fork.BranchID), "resuming escalated session",
		zap.String("escalated_session", escalated.ID))
	return o.Run(ctx, fork)
}
