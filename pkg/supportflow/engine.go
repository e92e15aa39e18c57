package supportflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/randalmurphal/supportflow/pkg/supportflow/observability"
	"github.com/randalmurphal/supportflow/pkg/supportflow/store"
	"go.opentelemetry.io/otel/trace"
)

// Status is the terminal status of a submission.
type Status string

// Submission statuses.
const (
	// StatusActive means the graph ran to End and the thread accepts
	// further submissions.
	StatusActive Status = "active"

	// StatusPaused means the thread stopped at an interruptible stage
	// and will not run again until an explicit Resume.
	StatusPaused Status = "paused"
)

// SubmitRequest carries one user message into a thread.
type SubmitRequest struct {
	// ThreadID is the caller-supplied opaque conversation id.
	ThreadID string

	// Message is the user's utterance.
	Message string

	// UserID identifies the authenticated session user. It is recorded
	// on the thread at creation and flows to role-scoped tools.
	UserID int64
}

// Result is the outcome of a submission.
type Result struct {
	Status       Status
	Reply        string
	Category     string
	PendingStage string
}

// ThreadStatus reports whether a thread is paused and where.
type ThreadStatus struct {
	Paused       bool
	PendingStage string
}

// Engine executes a compiled stage graph over durable thread state.
//
// Within one submission, stages run strictly sequentially. Across
// threads, submissions run concurrently; the store's optimistic
// versioning serializes writers to the same thread — the losing
// writer's submission fails with store.ErrVersionConflict and nothing
// it did is visible.
type Engine struct {
	graph   *CompiledGraph
	store   store.Store
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	tracing bool
	maxHops int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder. Defaults to no-op.
func WithMetrics(m observability.MetricsRecorder) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTracing enables OTel spans per submission and per stage.
func WithTracing() EngineOption {
	return func(e *Engine) {
		e.spans = observability.NewSpanManager()
		e.tracing = true
	}
}

// WithMaxHops sets the stage-hop ceiling per submission. Default: 8.
//
// The ceiling guards against transition cycles. Exceeding it aborts
// the submission with LoopLimitError; the last committed checkpoint
// is preserved.
func WithMaxHops(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxHops = n
		}
	}
}

// NewEngine creates an engine over a compiled graph and a thread store.
func NewEngine(graph *CompiledGraph, st store.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		graph:   graph,
		store:   st,
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
		maxHops: 8,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit runs one user message through the graph.
//
// Algorithm:
//  1. Load the thread's checkpoint, or initialize a new thread.
//  2. If the thread is paused at an interruptible stage, return
//     StatusPaused immediately: no stage executes, no state changes.
//  3. Append the user message and execute stages from the entry,
//     merging each stage's delta and committing a checkpoint after
//     each stage completes (optimistic version + 1 per commit).
//  4. Stop with StatusPaused after an interruptible stage runs: the
//     stage's reply is delivered and the thread parks on that stage.
//     Otherwise stop with StatusActive at End.
//
// A stage that fails commits nothing: the thread stays at its last
// committed checkpoint and the submission is safe to retry.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (result *Result, submitErr error) {
	if req.ThreadID == "" {
		return nil, &ValidationError{Field: "thread_id", Message: "must not be empty"}
	}
	if req.Message == "" {
		return nil, &ValidationError{Field: "message", Message: "must not be empty"}
	}

	submissionID := uuid.New().String()
	startTime := time.Now()

	observability.LogSubmissionStart(e.logger, req.ThreadID, submissionID)

	var execCtx context.Context = ctx
	var submissionSpan trace.Span
	if e.tracing {
		execCtx, submissionSpan = e.spans.StartSubmissionSpan(ctx, req.ThreadID, submissionID)
		defer func() {
			e.spans.EndSpanWithError(submissionSpan, submitErr)
		}()
	}

	state, version, err := e.loadOrCreate(execCtx, req)
	if err != nil {
		observability.LogSubmissionError(e.logger, req.ThreadID, submissionID, err, msSince(startTime), "")
		return nil, err
	}

	// Interrupt check: a parked thread stays parked until Resume.
	if pending := state.NextStage; pending != "" {
		if s, ok := e.graph.stage(pending); ok && s.Interruptible() {
			observability.LogSubmissionPaused(e.logger, req.ThreadID, submissionID, pending)
			e.metrics.RecordSubmission(execCtx, string(StatusPaused), time.Since(startTime))
			return &Result{
				Status:       StatusPaused,
				Category:     state.Category,
				PendingStage: pending,
			}, nil
		}
	}

	// The user message is merged in memory here and committed together
	// with the first stage's delta.
	state = Delta{Messages: []Message{{Role: RoleUser, Content: req.Message}}}.Apply(state)

	result, stageCount, err := e.run(execCtx, req.ThreadID, submissionID, state, version)

	duration := time.Since(startTime)
	if err != nil {
		lastStage := ""
		var stageErr *StageError
		var loopErr *LoopLimitError
		if errors.As(err, &stageErr) {
			lastStage = stageErr.Stage
		} else if errors.As(err, &loopErr) {
			lastStage = loopErr.LastStage
		}
		observability.LogSubmissionError(e.logger, req.ThreadID, submissionID, err, float64(duration.Milliseconds()), lastStage)
		e.metrics.RecordSubmission(execCtx, "error", duration)
		return nil, err
	}

	if result.Status == StatusPaused {
		observability.LogSubmissionPaused(e.logger, req.ThreadID, submissionID, result.PendingStage)
	}
	observability.LogSubmissionComplete(e.logger, req.ThreadID, submissionID, string(result.Status), float64(duration.Milliseconds()), stageCount)
	e.metrics.RecordSubmission(execCtx, string(result.Status), duration)
	return result, nil
}

// run executes stages from the graph entry until End, a pause, an
// error, or the hop ceiling. Returns the result and the number of
// stages committed.
func (e *Engine) run(ctx context.Context, threadID, submissionID string, state ThreadState, version int64) (*Result, int, error) {
	current := e.graph.Entry()
	hops := 0
	stageCount := 0

	for current != End {
		hops++
		if hops > e.maxHops {
			return nil, stageCount, &LoopLimitError{Max: e.maxHops, LastStage: current}
		}

		select {
		case <-ctx.Done():
			return nil, stageCount, &StageError{Stage: current, Err: ctx.Err()}
		default:
		}

		stageLogger := observability.EnrichLogger(e.logger, threadID, submissionID, current)
		observability.LogStageStart(stageLogger, current)

		stageCtx := ctx
		var stageSpan trace.Span
		if e.tracing {
			stageCtx, stageSpan = e.spans.StartStageSpan(ctx, current)
		}

		stageStart := time.Now()
		delta, stageErr := e.executeStage(stageCtx, current, state)
		stageDuration := time.Since(stageStart)

		e.metrics.RecordStageExecution(stageCtx, current, stageDuration, stageErr)
		if e.tracing {
			e.spans.EndSpanWithError(stageSpan, stageErr)
		}

		if stageErr != nil {
			observability.LogStageError(stageLogger, current, stageErr)
			return nil, stageCount, stageErr
		}
		observability.LogStageComplete(stageLogger, current, float64(stageDuration.Milliseconds()))

		state = delta.Apply(state)

		// An interruptible stage parks the thread on itself after it
		// runs: its reply reaches the caller, and later submissions
		// short-circuit until an operator resumes the thread.
		next := End
		pending := ""
		if s, ok := e.graph.stage(current); ok && s.Interruptible() {
			pending = current
		} else {
			var err error
			next, err = e.graph.next(current, state)
			if err != nil {
				return nil, stageCount, err
			}
		}
		state.NextStage = pending

		newVersion, err := e.commit(ctx, threadID, current, state, version)
		if err != nil {
			return nil, stageCount, err
		}
		version = newVersion
		stageCount++

		if pending != "" {
			return e.result(StatusPaused, state), stageCount, nil
		}
		current = next
	}

	return e.result(StatusActive, state), stageCount, nil
}

// executeStage runs a single stage with panic recovery. A panicking
// stage fails the submission instead of the process.
func (e *Engine) executeStage(ctx context.Context, name string, state ThreadState) (delta Delta, err error) {
	s, ok := e.graph.stage(name)
	if !ok {
		// Unreachable after a successful Compile.
		return Delta{}, &StageError{Stage: name, Err: fmt.Errorf("%w: %s", ErrStageNotFound, name)}
	}

	defer func() {
		if r := recover(); r != nil {
			delta = Delta{}
			err = &StageError{Stage: name, Err: fmt.Errorf("panic: %v\n%s", r, debug.Stack())}
		}
	}()

	delta, err = s.Run(ctx, state)
	if err != nil {
		var capErr *CapabilityError
		if errors.As(err, &capErr) {
			return delta, err
		}
		return delta, &StageError{Stage: name, Err: err}
	}
	return delta, nil
}

// commit persists the merged state as the next checkpoint version.
func (e *Engine) commit(ctx context.Context, threadID, stage string, state ThreadState, expectedVersion int64) (int64, error) {
	snapshot, err := json.Marshal(state)
	if err != nil {
		return 0, &StorageError{Op: "serialize", Err: err}
	}

	newVersion, err := e.store.Save(ctx, threadID, snapshot, state.NextStage, expectedVersion)
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return 0, err
		}
		return 0, &StorageError{Op: "save", Err: err}
	}

	observability.LogCheckpoint(e.logger, threadID, newVersion, len(snapshot))
	e.metrics.RecordCheckpoint(ctx, stage, int64(len(snapshot)))
	return newVersion, nil
}

// result assembles the caller-facing outcome from merged state.
func (e *Engine) result(status Status, state ThreadState) *Result {
	r := &Result{
		Status:       status,
		Category:     state.Category,
		PendingStage: state.NextStage,
	}
	if m := state.LastAssistantMessage(); m != nil {
		r.Reply = m.Content
	}
	return r
}

// loadOrCreate fetches the thread's checkpoint or initializes a fresh
// thread for an unknown id. Returns the state and its stored version
// (0 for a new thread).
func (e *Engine) loadOrCreate(ctx context.Context, req SubmitRequest) (ThreadState, int64, error) {
	cp, err := e.store.Load(ctx, req.ThreadID)
	if errors.Is(err, store.ErrNotFound) {
		state := NewThreadState(req.ThreadID)
		state.UserID = req.UserID
		return state, 0, nil
	}
	if err != nil {
		return ThreadState{}, 0, &StorageError{Op: "load", Err: err}
	}

	var state ThreadState
	if err := json.Unmarshal(cp.Snapshot, &state); err != nil {
		return ThreadState{}, 0, &StorageError{Op: "deserialize", Err: err}
	}
	return state, cp.Version, nil
}

// Status reports whether a thread is paused awaiting resume.
func (e *Engine) Status(ctx context.Context, threadID string) (*ThreadStatus, error) {
	cp, err := e.store.Load(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}

	var state ThreadState
	if err := json.Unmarshal(cp.Snapshot, &state); err != nil {
		return nil, &StorageError{Op: "deserialize", Err: err}
	}
	return &ThreadStatus{
		Paused:       state.NextStage != "",
		PendingStage: state.NextStage,
	}, nil
}

// Resume clears a thread's pause pointer so the next submission runs
// from the graph entry again. This is the explicit out-of-band resume
// signal; there is no automatic timeout-based resume.
func (e *Engine) Resume(ctx context.Context, threadID string) error {
	cp, err := e.store.Load(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	if err != nil {
		return &StorageError{Op: "load", Err: err}
	}

	var state ThreadState
	if err := json.Unmarshal(cp.Snapshot, &state); err != nil {
		return &StorageError{Op: "deserialize", Err: err}
	}
	if state.NextStage == "" {
		return fmt.Errorf("%w: %s", ErrNotPaused, threadID)
	}

	state.NextStage = ""
	snapshot, err := json.Marshal(state)
	if err != nil {
		return &StorageError{Op: "serialize", Err: err}
	}

	if _, err := e.store.Save(ctx, threadID, snapshot, "", cp.Version); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		return &StorageError{Op: "save", Err: err}
	}

	e.logger.Info("thread resumed", slog.String("thread_id", threadID))
	return nil
}

// msSince returns elapsed milliseconds since start.
func msSince(start time.Time) float64 {
	return float64(time.Since(start).Milliseconds())
}
