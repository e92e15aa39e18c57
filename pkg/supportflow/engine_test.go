package supportflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/supportflow/pkg/supportflow/store"
)

// linearGraph builds router -> general -> End with a scriptable
// router decision.
func linearGraph(t *testing.T, escalate bool) *CompiledGraph {
	t.Helper()

	router := &stubStage{
		name: "router",
		kind: KindClassifier,
		run: func(ctx context.Context, state ThreadState) (Delta, error) {
			var d Delta
			d.SetCategory("general")
			d.SetNeedsEscalation(escalate)
			return d, nil
		},
	}

	g := NewGraph().
		AddStage(router, func(state ThreadState) string {
			if state.NeedsEscalation {
				return "human_escalation"
			}
			return "general"
		}).
		AddStage(replyStage("general", "How can I help?"), TransitionTo(End)).
		AddStage(pauseStage("human_escalation", "Awaiting human review."), TransitionTo("human_escalation")).
		SetEntry("router")

	compiled, err := g.Compile()
	require.NoError(t, err)
	return compiled
}

// TestEngine_Submit_ActiveFlow runs a plain greeting end to end.
func TestEngine_Submit_ActiveFlow(t *testing.T) {
	engine := NewEngine(linearGraph(t, false), store.NewMemoryStore())

	result, err := engine.Submit(context.Background(), SubmitRequest{
		ThreadID: "t1", UserID: 42, Message: "Hello",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusActive, result.Status)
	assert.Equal(t, "general", result.Category)
	assert.Equal(t, "How can I help?", result.Reply)
	assert.Empty(t, result.PendingStage)

	status, err := engine.Status(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, status.Paused)
}

// TestEngine_Submit_Validation rejects empty ids and messages.
func TestEngine_Submit_Validation(t *testing.T) {
	engine := NewEngine(linearGraph(t, false), store.NewMemoryStore())

	_, err := engine.Submit(context.Background(), SubmitRequest{Message: "hi"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "thread_id", vErr.Field)

	_, err = engine.Submit(context.Background(), SubmitRequest{ThreadID: "t1"})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "message", vErr.Field)
}

// TestEngine_Submit_AppendsExactlyOneAssistantMessage verifies the
// append-only log grows by one user and one assistant message.
func TestEngine_Submit_AppendsExactlyOneAssistantMessage(t *testing.T) {
	st := store.NewMemoryStore()
	engine := NewEngine(linearGraph(t, false), st)

	_, err := engine.Submit(context.Background(), SubmitRequest{ThreadID: "t1", Message: "Hello"})
	require.NoError(t, err)

	state := loadState(t, st, "t1")
	require.Len(t, state.Messages, 2)
	assert.Equal(t, RoleUser, state.Messages[0].Role)
	assert.Equal(t, RoleAssistant, state.Messages[1].Role)
	assert.Equal(t, 0, state.Messages[0].Seq)
	assert.Equal(t, 1, state.Messages[1].Seq)

	_, err = engine.Submit(context.Background(), SubmitRequest{ThreadID: "t1", Message: "Thanks"})
	require.NoError(t, err)

	state = loadState(t, st, "t1")
	require.Len(t, state.Messages, 4)
	assert.Equal(t, []int{0, 1, 2, 3}, seqs(state))
}

// TestEngine_Submit_Escalation runs the interruptible stage, delivers
// its reply, and parks the thread on it.
func TestEngine_Submit_Escalation(t *testing.T) {
	st := store.NewMemoryStore()
	engine := NewEngine(linearGraph(t, true), st)

	result, err := engine.Submit(context.Background(), SubmitRequest{
		ThreadID: "t1", Message: "My lawyer will hear about this",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPaused, result.Status)
	assert.Equal(t, "human_escalation", result.PendingStage)
	assert.Equal(t, "Awaiting human review.", result.Reply)

	// The paused checkpoint carries the stage's output: the handover
	// summary, the hold notice, and the pause pointer at the stage
	// itself.
	state := loadState(t, st, "t1")
	assert.Equal(t, "human_escalation", state.NextStage)
	assert.True(t, state.NeedsEscalation)
	assert.Equal(t, "summary for human_escalation", state.EscalationSummary)
	last := state.LastMessage()
	require.NotNil(t, last)
	assert.Equal(t, RoleAssistant, last.Role)
	assert.Equal(t, "Awaiting human review.", last.Content)

	status, err := engine.Status(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, status.Paused)
	assert.Equal(t, "human_escalation", status.PendingStage)
}

// TestEngine_Submit_PausedShortCircuit verifies a parked thread
// ignores further submissions without mutating state.
func TestEngine_Submit_PausedShortCircuit(t *testing.T) {
	st := store.NewMemoryStore()
	engine := NewEngine(linearGraph(t, true), st)

	_, err := engine.Submit(context.Background(), SubmitRequest{ThreadID: "t1", Message: "sue you"})
	require.NoError(t, err)
	before := loadState(t, st, "t1")

	result, err := engine.Submit(context.Background(), SubmitRequest{ThreadID: "t1", Message: "hello?"})
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, result.Status)
	assert.Equal(t, "human_escalation", result.PendingStage)

	after := loadState(t, st, "t1")
	assert.Equal(t, before, after) // no stage ran, nothing committed
}

// TestEngine_ResumeAndRerun clears the pause and allows new
// submissions.
func TestEngine_ResumeAndRerun(t *testing.T) {
	st := store.NewMemoryStore()
	paused := NewEngine(linearGraph(t, true), st)

	_, err := paused.Submit(context.Background(), SubmitRequest{ThreadID: "t1", Message: "legal action"})
	require.NoError(t, err)

	require.NoError(t, paused.Resume(context.Background(), "t1"))

	status, err := paused.Status(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, status.Paused)

	// A resumed thread runs from the entry again.
	calm := NewEngine(linearGraph(t, false), st)
	result, err := calm.Submit(context.Background(), SubmitRequest{ThreadID: "t1", Message: "thanks, resolved"})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, result.Status)
}

// TestEngine_Resume_NotPaused rejects resume on an active thread.
func TestEngine_Resume_NotPaused(t *testing.T) {
	engine := NewEngine(linearGraph(t, false), store.NewMemoryStore())

	_, err := engine.Submit(context.Background(), SubmitRequest{ThreadID: "t1", Message: "hi"})
	require.NoError(t, err)

	err = engine.Resume(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrNotPaused)
}

// TestEngine_Resume_UnknownThread reports ErrThreadNotFound.
func TestEngine_Resume_UnknownThread(t *testing.T) {
	engine := NewEngine(linearGraph(t, false), store.NewMemoryStore())
	assert.ErrorIs(t, engine.Resume(context.Background(), "ghost"), ErrThreadNotFound)
	_, err := engine.Status(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrThreadNotFound)
}

// TestEngine_HopCeiling aborts a transition cycle with LoopLimitError
// while keeping the last committed checkpoint.
func TestEngine_HopCeiling(t *testing.T) {
	g := NewGraph().
		AddStage(replyStage("a", "ping"), TransitionTo("b")).
		AddStage(replyStage("b", "pong"), TransitionTo("a")).
		SetEntry("a")
	compiled, err := g.Compile()
	require.NoError(t, err)

	st := store.NewMemoryStore()
	engine := NewEngine(compiled, st, WithMaxHops(4))

	_, err = engine.Submit(context.Background(), SubmitRequest{ThreadID: "t1", Message: "go"})
	assert.ErrorIs(t, err, ErrLoopLimit)

	var loopErr *LoopLimitError
	require.ErrorAs(t, err, &loopErr)
	assert.Equal(t, 4, loopErr.Max)

	// Four stages committed before the ceiling hit.
	state := loadState(t, st, "t1")
	assert.Len(t, state.Messages, 5) // user + four assistant
}

// TestEngine_StageFailure_CommitsNothing verifies a failing stage
// leaves no partial checkpoint.
func TestEngine_StageFailure_CommitsNothing(t *testing.T) {
	boom := &stubStage{
		name: "boom",
		kind: KindToolLoop,
		run: func(ctx context.Context, state ThreadState) (Delta, error) {
			return Delta{}, errors.New("provider unavailable")
		},
	}
	g := NewGraph().AddStage(boom, TransitionTo(End)).SetEntry("boom")
	compiled, err := g.Compile()
	require.NoError(t, err)

	st := store.NewMemoryStore()
	engine := NewEngine(compiled, st)

	_, err = engine.Submit(context.Background(), SubmitRequest{ThreadID: "t1", Message: "hi"})
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "boom", stageErr.Stage)

	_, err = st.Load(context.Background(), "t1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// TestEngine_StagePanic_FailsSubmission verifies panic recovery.
func TestEngine_StagePanic_FailsSubmission(t *testing.T) {
	panicky := &stubStage{
		name: "panicky",
		kind: KindToolLoop,
		run: func(ctx context.Context, state ThreadState) (Delta, error) {
			panic("nil map write")
		},
	}
	g := NewGraph().AddStage(panicky, TransitionTo(End)).SetEntry("panicky")
	compiled, err := g.Compile()
	require.NoError(t, err)

	engine := NewEngine(compiled, store.NewMemoryStore())
	_, err = engine.Submit(context.Background(), SubmitRequest{ThreadID: "t1", Message: "hi"})

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Contains(t, stageErr.Error(), "panic")
}

// TestEngine_ConcurrentSubmissions_SameThread verifies optimistic
// versioning: one of two racing submissions fails VersionConflict.
func TestEngine_ConcurrentSubmissions_SameThread(t *testing.T) {
	gate := make(chan struct{})
	var arrived sync.WaitGroup
	arrived.Add(2)
	slow := &stubStage{
		name: "slow",
		kind: KindToolLoop,
		run: func(ctx context.Context, state ThreadState) (Delta, error) {
			// Both submissions have loaded version 0 once both arrive here.
			arrived.Done()
			<-gate
			var d Delta
			d.AppendMessage(Message{Role: RoleAssistant, Content: "done"})
			return d, nil
		},
	}
	g := NewGraph().AddStage(slow, TransitionTo(End)).SetEntry("slow")
	compiled, err := g.Compile()
	require.NoError(t, err)

	st := store.NewMemoryStore()
	engine := NewEngine(compiled, st)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Submit(context.Background(), SubmitRequest{
				ThreadID: "t1", Message: "race",
			})
		}(i)
	}
	arrived.Wait()
	close(gate)
	wg.Wait()

	conflicts := 0
	for _, err := range errs {
		if errors.Is(err, store.ErrVersionConflict) {
			conflicts++
		} else {
			assert.NoError(t, err)
		}
	}
	assert.Equal(t, 1, conflicts)

	// Exactly one submission applied, never an interleaving.
	state := loadState(t, st, "t1")
	assert.Len(t, state.Messages, 2)
}

// TestEngine_ContextCancellation fails the submission without a
// partial commit.
func TestEngine_ContextCancellation(t *testing.T) {
	engine := NewEngine(linearGraph(t, false), store.NewMemoryStore())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Submit(ctx, SubmitRequest{ThreadID: "t1", Message: "hi"})
	assert.ErrorIs(t, err, context.Canceled)
}

// TestEngine_CapabilityErrorPassthrough keeps CapabilityError typed
// through the engine.
func TestEngine_CapabilityErrorPassthrough(t *testing.T) {
	flaky := &stubStage{
		name: "flaky",
		kind: KindToolLoop,
		run: func(ctx context.Context, state ThreadState) (Delta, error) {
			return Delta{}, &CapabilityError{Stage: "flaky", Err: errors.New("429 rate limited")}
		},
	}
	g := NewGraph().AddStage(flaky, TransitionTo(End)).SetEntry("flaky")
	compiled, err := g.Compile()
	require.NoError(t, err)

	engine := NewEngine(compiled, store.NewMemoryStore())
	_, err = engine.Submit(context.Background(), SubmitRequest{ThreadID: "t1", Message: "hi"})

	var capErr *CapabilityError
	assert.ErrorAs(t, err, &capErr)
}

// loadState unmarshals a thread's latest checkpoint.
func loadState(t *testing.T, st store.Store, threadID string) ThreadState {
	t.Helper()
	cp, err := st.Load(context.Background(), threadID)
	require.NoError(t, err)
	var state ThreadState
	require.NoError(t, json.Unmarshal(cp.Snapshot, &state))
	return state
}

func seqs(state ThreadState) []int {
	out := make([]int, len(state.Messages))
	for i, m := range state.Messages {
		out[i] = m.Seq
	}
	return out
}
