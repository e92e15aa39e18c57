package support

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/supportflow/pkg/supportflow"
	"github.com/randalmurphal/supportflow/pkg/supportflow/capability"
	"github.com/randalmurphal/supportflow/pkg/supportflow/stage"
	"github.com/randalmurphal/supportflow/pkg/supportflow/store"
)

// TestBuildGraph_Shape verifies every department is wired and the
// router is the entry point.
func TestBuildGraph_Shape(t *testing.T) {
	mock := capability.NewMock()
	graph, err := BuildGraph(GraphConfig{
		Classifier: mock,
		Completer:  mock,
		Toolset:    NewToolset(seededDB(t), nil),
	})
	require.NoError(t, err)

	assert.Equal(t, StageRouter, graph.Entry())
	for _, name := range []string{
		StageRouter, StageGeneral, StageBilling, StageTechnical,
		StageOrders, StageSubscription, StageWallet, StageEscalation,
	} {
		assert.True(t, graph.HasStage(name), "missing stage %s", name)
	}
}

// TestSupportDesk_OrdersFlow runs a full submission through the real
// graph: router classifies to orders, the specialist calls a scoped
// database tool, and the reply lands in thread state.
func TestSupportDesk_OrdersFlow(t *testing.T) {
	mock := capability.NewMock().
		QueueClassification(map[string]any{
			"category": "orders", "needs_escalation": false, "summary": "",
		}).
		QueueToolCall("get_orders_filtered", `{"use_today": true}`).
		QueueText("You placed two orders today.")

	graph, err := BuildGraph(GraphConfig{
		Classifier: mock,
		Completer:  mock,
		Toolset:    NewToolset(seededDB(t), nil),
	})
	require.NoError(t, err)

	engine := supportflow.NewEngine(graph, store.NewMemoryStore())
	result, err := engine.Submit(context.Background(), supportflow.SubmitRequest{
		ThreadID: "t-orders",
		Message:  "What did I order today?",
		UserID:   customerID,
	})
	require.NoError(t, err)

	assert.Equal(t, supportflow.StatusActive, result.Status)
	assert.Equal(t, "orders", result.Category)
	assert.Equal(t, "You placed two orders today.", result.Reply)

	// The observation the model saw came from the customer-scoped query.
	var sawRows bool
	for _, m := range mock.LastRequest.Messages {
		if m.Role == "tool" && m.Content != "" && m.Content != noOrdersFound {
			sawRows = true
		}
	}
	assert.True(t, sawRows, "expected a tool observation with row data")
}

// TestSupportDesk_EscalationPauses drives the escalate route through
// the interrupt protocol.
func TestSupportDesk_EscalationPauses(t *testing.T) {
	mock := capability.NewMock().
		QueueClassification(map[string]any{
			"category": "escalate", "needs_escalation": true,
			"summary": "Customer threatens chargeback.",
		}).
		QueueText("Summary for the supervisor.")

	graph, err := BuildGraph(GraphConfig{
		Classifier: mock,
		Completer:  mock,
		Toolset:    NewToolset(seededDB(t), nil),
	})
	require.NoError(t, err)

	st := store.NewMemoryStore()
	engine := supportflow.NewEngine(graph, st)
	result, err := engine.Submit(context.Background(), supportflow.SubmitRequest{
		ThreadID: "t-esc",
		Message:  "I will dispute this charge with my bank.",
		UserID:   customerID,
	})
	require.NoError(t, err)

	assert.Equal(t, supportflow.StatusPaused, result.Status)
	assert.Equal(t, StageEscalation, result.PendingStage)

	// The escalation stage ran before the pause: the summarizer was
	// invoked and the customer got the hold notice.
	assert.Equal(t, 1, mock.CompleteCalls())
	assert.Equal(t, stage.DefaultEscalationNotice, result.Reply)

	cp, err := st.Load(context.Background(), "t-esc")
	require.NoError(t, err)
	assert.Equal(t, StageEscalation, cp.PendingStage)
	var state supportflow.ThreadState
	require.NoError(t, json.Unmarshal(cp.Snapshot, &state))
	assert.Equal(t, "Summary for the supervisor.", state.EscalationSummary)
}

// TestSupportDesk_FAQSearchWired confirms the general department gets
// the search tool when a searcher is supplied.
func TestSupportDesk_FAQSearchWired(t *testing.T) {
	searcher := &capability.MockSearcher{Passages: []capability.Passage{
		{Text: "Refunds are processed within 5 business days.", Score: 0.91},
	}}
	mock := capability.NewMock().
		QueueClassification(map[string]any{
			"category": "general", "needs_escalation": false, "summary": "",
		}).
		QueueToolCall("company_faq_search", `{"query": "refund policy"}`).
		QueueText("Refunds take up to five business days.")

	graph, err := BuildGraph(GraphConfig{
		Classifier: mock,
		Completer:  mock,
		Toolset:    NewToolset(seededDB(t), nil),
		Searcher:   searcher,
	})
	require.NoError(t, err)

	engine := supportflow.NewEngine(graph, store.NewMemoryStore())
	result, err := engine.Submit(context.Background(), supportflow.SubmitRequest{
		ThreadID: "t-faq",
		Message:  "What is your refund policy?",
		UserID:   customerID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Refunds take up to five business days.", result.Reply)

	var sawPolicy bool
	for _, m := range mock.LastRequest.Messages {
		if m.Role == "tool" && m.Content == "Refunds are processed within 5 business days." {
			sawPolicy = true
		}
	}
	assert.True(t, sawPolicy, "expected the searched passage as an observation")
}
