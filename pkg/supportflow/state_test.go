package supportflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDelta_Apply_AppendsMessages verifies messages append in order
// with sequence numbers assigned at merge time.
func TestDelta_Apply_AppendsMessages(t *testing.T) {
	state := NewThreadState("t1")
	state = Delta{Messages: []Message{
		{Role: RoleUser, Content: "hi", Seq: 99},
	}}.Apply(state)

	var d Delta
	d.AppendMessage(Message{Role: RoleAssistant, Content: "hello"})
	d.AppendMessage(Message{Role: RoleTool, Content: "obs"})
	state = d.Apply(state)

	assert.Len(t, state.Messages, 3)
	assert.Equal(t, 0, state.Messages[0].Seq) // stage-supplied Seq ignored
	assert.Equal(t, 1, state.Messages[1].Seq)
	assert.Equal(t, 2, state.Messages[2].Seq)
	assert.Equal(t, "hello", state.Messages[1].Content)
}

// TestDelta_Apply_ScalarOverwrite verifies set scalars overwrite and
// unset scalars are untouched.
func TestDelta_Apply_ScalarOverwrite(t *testing.T) {
	state := NewThreadState("t1")
	state.Category = "general"
	state.NeedsEscalation = false

	var d Delta
	d.SetCategory("billing")
	state = d.Apply(state)

	assert.Equal(t, "billing", state.Category)
	assert.False(t, state.NeedsEscalation)
	assert.Empty(t, state.EscalationSummary)

	var d2 Delta
	d2.SetNeedsEscalation(true)
	d2.SetEscalationSummary("angry customer")
	state = d2.Apply(state)

	assert.Equal(t, "billing", state.Category) // untouched
	assert.True(t, state.NeedsEscalation)
	assert.Equal(t, "angry customer", state.EscalationSummary)
}

// TestDelta_Apply_EmptyDelta verifies an empty delta is a no-op merge.
func TestDelta_Apply_EmptyDelta(t *testing.T) {
	state := NewThreadState("t1")
	state.Category = "orders"
	state = Delta{Messages: []Message{{Role: RoleUser, Content: "q"}}}.Apply(state)

	merged := Delta{}.Apply(state)

	assert.Equal(t, state.Category, merged.Category)
	assert.Len(t, merged.Messages, 1)
}

// TestThreadState_LastAssistantMessage scans backward past tool
// observations.
func TestThreadState_LastAssistantMessage(t *testing.T) {
	state := NewThreadState("t1")
	assert.Nil(t, state.LastAssistantMessage())

	state = Delta{Messages: []Message{
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, Content: "first"},
		{Role: RoleUser, Content: "q2"},
		{Role: RoleAssistant, Content: "final"},
		{Role: RoleTool, Content: "obs"},
	}}.Apply(state)

	m := state.LastAssistantMessage()
	assert.NotNil(t, m)
	assert.Equal(t, "final", m.Content)
}
