package stage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/supportflow/pkg/supportflow"
	"github.com/randalmurphal/supportflow/pkg/supportflow/capability"
)

func userThread(content string) supportflow.ThreadState {
	state := supportflow.NewThreadState("t1")
	return supportflow.Delta{Messages: []supportflow.Message{
		{Role: supportflow.RoleUser, Content: content},
	}}.Apply(state)
}

// TestClassifier_Run_SetsRoutingScalars decodes the decision into the
// delta's scalar fields without touching the message log.
func TestClassifier_Run_SetsRoutingScalars(t *testing.T) {
	mock := capability.NewMock().QueueClassification(map[string]any{
		"category":         "billing",
		"needs_escalation": false,
		"summary":          "Refund question.",
	})
	c := NewClassifier("router", mock, testCategories())

	delta, err := c.Run(context.Background(), userThread("Where is my refund?"))
	require.NoError(t, err)

	require.NotNil(t, delta.Category)
	assert.Equal(t, "billing", *delta.Category)
	require.NotNil(t, delta.NeedsEscalation)
	assert.False(t, *delta.NeedsEscalation)
	require.NotNil(t, delta.EscalationSummary)
	assert.Equal(t, "Refund question.", *delta.EscalationSummary)
	assert.Empty(t, delta.Messages)
}

// TestClassifier_Run_Escalation surfaces the escalation flag.
func TestClassifier_Run_Escalation(t *testing.T) {
	mock := capability.NewMock().QueueClassification(map[string]any{
		"category":         "general",
		"needs_escalation": true,
		"summary":          "Legal threat.",
	})
	c := NewClassifier("router", mock, testCategories())

	delta, err := c.Run(context.Background(), userThread("My lawyer will be in touch"))
	require.NoError(t, err)
	require.NotNil(t, delta.NeedsEscalation)
	assert.True(t, *delta.NeedsEscalation)
}

// TestClassifier_Run_ClassifiesLatestUserMessage sends only the most
// recent user utterance to the model.
func TestClassifier_Run_ClassifiesLatestUserMessage(t *testing.T) {
	mock := capability.NewMock()
	c := NewClassifier("router", mock, testCategories())

	state := userThread("old question")
	var d supportflow.Delta
	d.AppendMessage(supportflow.Message{Role: supportflow.RoleAssistant, Content: "answered"})
	d.AppendMessage(supportflow.Message{Role: supportflow.RoleUser, Content: "new question"})
	state = d.Apply(state)

	_, err := c.Run(context.Background(), state)
	require.NoError(t, err)
	require.Len(t, mock.LastRequest.Messages, 1)
	assert.Equal(t, "new question", mock.LastRequest.Messages[0].Content)
}

// TestClassifier_Run_NoUserMessage fails without input to classify.
func TestClassifier_Run_NoUserMessage(t *testing.T) {
	c := NewClassifier("router", capability.NewMock(), testCategories())
	_, err := c.Run(context.Background(), supportflow.NewThreadState("t1"))
	assert.Error(t, err)
}

// TestClassifier_Run_MalformedDecision wraps decode failures as
// CapabilityError.
func TestClassifier_Run_MalformedDecision(t *testing.T) {
	mock := capability.NewMock().QueueClassification("not an object")
	c := NewClassifier("router", mock, testCategories())

	_, err := c.Run(context.Background(), userThread("hi"))
	var capErr *supportflow.CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "router", capErr.Stage)
}

// TestRouteByCategory covers escalation priority, known categories,
// and the fallback.
func TestRouteByCategory(t *testing.T) {
	route := RouteByCategory("human_escalation",
		map[string]string{"billing": "billing", "orders": "orders"}, "general")

	state := supportflow.NewThreadState("t1")

	state.Category = "billing"
	assert.Equal(t, "billing", route(state))

	state.Category = "unknown-department"
	assert.Equal(t, "general", route(state))

	// Escalation wins regardless of category.
	state.Category = "orders"
	state.NeedsEscalation = true
	assert.Equal(t, "human_escalation", route(state))
}

// testCategories is the routing vocabulary used in these tests.
func testCategories() []string {
	return []string{"general", "billing", "orders"}
}
