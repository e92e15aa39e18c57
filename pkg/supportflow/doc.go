/*
Package supportflow provides stage-graph orchestration for durable
support conversations.

# Overview

supportflow routes a conversational submission through a small graph of
specialized stages (a classifier, tool-calling specialists, and an
escalation stage), keeps versioned per-thread state across submissions,
and can pause a conversation for external review before resuming it.

Key properties:
  - Append-only, monotonically sequenced message logs per thread
  - A checkpoint commit after every completed stage, never mid-stage
  - Optimistic versioning: concurrent writers to one thread never
    interleave; the loser fails with store.ErrVersionConflict
  - An interrupt protocol: reaching an interruptible stage parks the
    thread until an explicit Resume signal
  - Bounded execution everywhere: a stage-hop ceiling per submission
    and an iteration ceiling inside each specialist's tool loop

# Basic Usage

Build a graph of stages, compile it, and drive it with an Engine:

	graph := supportflow.NewGraph().
	    AddStage(classifierStage, routeByCategory).
	    AddStage(generalStage, supportflow.TransitionTo(supportflow.End)).
	    AddStage(escalationStage, supportflow.TransitionTo("escalation")).
	    SetEntry("classifier")

	compiled, err := graph.Compile()
	if err != nil {
	    log.Fatal(err)
	}

	st, err := store.NewSQLiteStore("./threads.db")
	if err != nil {
	    log.Fatal(err)
	}
	defer st.Close()

	engine := supportflow.NewEngine(compiled, st)
	result, err := engine.Submit(ctx, supportflow.SubmitRequest{
	    ThreadID: "thread-42",
	    UserID:   101,
	    Message:  "Where is my order?",
	})

Result.Status is "active" when the graph reached End and "paused" when
the thread stopped at an interruptible stage. A paused thread answers
every further submission with "paused" until Engine.Resume clears it.

# Stages

Stages implement the Stage interface and return a Delta rather than
mutating state. Deltas merge with explicit per-field policy: messages
append, scalar fields overwrite. Prebuilt stages live in the stage
package; a complete support-desk graph lives in the support package.
*/
package supportflow
