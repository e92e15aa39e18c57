package stage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/supportflow/pkg/supportflow"
	"github.com/randalmurphal/supportflow/pkg/supportflow/capability"
)

// TestEscalation_Run_SummarizesAndPauses sets the escalation fields
// and posts the hold notice.
func TestEscalation_Run_SummarizesAndPauses(t *testing.T) {
	mock := capability.NewMock().QueueText("Customer threatens legal action over billing.")
	e := NewEscalation("human_escalation", mock)

	state := userThread("I will sue you!")
	delta, err := e.Run(context.Background(), state)
	require.NoError(t, err)

	require.NotNil(t, delta.NeedsEscalation)
	assert.True(t, *delta.NeedsEscalation)
	require.NotNil(t, delta.EscalationSummary)
	assert.Equal(t, "Customer threatens legal action over billing.", *delta.EscalationSummary)

	require.Len(t, delta.Messages, 1)
	assert.Equal(t, supportflow.RoleAssistant, delta.Messages[0].Role)
	assert.Equal(t, DefaultEscalationNotice, delta.Messages[0].Content)
}

// TestEscalation_Run_SeesFullHistory summarizes the entire log, not a
// trailing window.
func TestEscalation_Run_SeesFullHistory(t *testing.T) {
	mock := capability.NewMock().QueueText("summary")
	e := NewEscalation("human_escalation", mock)

	state := supportflow.NewThreadState("t1")
	var d supportflow.Delta
	for i := 0; i < 12; i++ {
		d.AppendMessage(supportflow.Message{Role: supportflow.RoleUser, Content: "msg"})
	}
	state = d.Apply(state)

	_, err := e.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Len(t, mock.LastRequest.Messages, 12)
}

// TestEscalation_Run_EmptySummaryFallsBack keeps the classifier's
// summary when the model returns nothing.
func TestEscalation_Run_EmptySummaryFallsBack(t *testing.T) {
	mock := capability.NewMock().QueueText("   ")
	e := NewEscalation("human_escalation", mock)

	state := userThread("so angry")
	state.EscalationSummary = "Routing summary from the classifier."

	delta, err := e.Run(context.Background(), state)
	require.NoError(t, err)
	require.NotNil(t, delta.EscalationSummary)
	assert.Equal(t, "Routing summary from the classifier.", *delta.EscalationSummary)
}

// TestEscalation_Run_SummaryNeverEmpty: even with no model text and no
// prior routing summary, the handover record carries something.
func TestEscalation_Run_SummaryNeverEmpty(t *testing.T) {
	mock := capability.NewMock().QueueText("")
	e := NewEscalation("human_escalation", mock)

	delta, err := e.Run(context.Background(), userThread("help"))
	require.NoError(t, err)
	require.NotNil(t, delta.EscalationSummary)
	assert.NotEmpty(t, *delta.EscalationSummary)
}

// TestEscalation_Run_ProviderFailure is fatal for the submission.
func TestEscalation_Run_ProviderFailure(t *testing.T) {
	mock := capability.NewMock().Fail(errors.New("timeout"))
	e := NewEscalation("human_escalation", mock)

	_, err := e.Run(context.Background(), userThread("sue"))
	var capErr *supportflow.CapabilityError
	assert.ErrorAs(t, err, &capErr)
}

// TestEscalation_StageContract verifies the interrupt surface.
func TestEscalation_StageContract(t *testing.T) {
	e := NewEscalation("human_escalation", capability.NewMock(),
		WithEscalationNotice("custom hold"))
	assert.Equal(t, "human_escalation", e.Name())
	assert.Equal(t, supportflow.KindTerminalPause, e.Kind())
	assert.True(t, e.Interruptible())
	assert.Equal(t, "custom hold", e.notice)
}
