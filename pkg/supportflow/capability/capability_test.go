package capability

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMock_CompleteFIFO(t *testing.T) {
	mock := NewMock().
		QueueToolCall("lookup", `{"id": 1}`).
		QueueText("done")

	c, err := mock.Complete(context.Background(), Request{Instructions: "help"})
	require.NoError(t, err)
	require.NotNil(t, c.ToolCall)
	assert.Equal(t, "lookup", c.ToolCall.Name)
	assert.JSONEq(t, `{"id": 1}`, string(c.ToolCall.Arguments))

	c, err = mock.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Nil(t, c.ToolCall)
	assert.Equal(t, "done", c.Text)

	// Drained queue falls back to a canned apology.
	c, err = mock.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.NotEmpty(t, c.Text)

	assert.Equal(t, 3, mock.CompleteCalls())
}

func TestMock_RecordsLastRequest(t *testing.T) {
	mock := NewMock().QueueText("ok")

	req := Request{
		Instructions: "be brief",
		Messages:     []ChatMessage{{Role: "user", Content: "hi"}},
	}
	_, err := mock.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, req, mock.LastRequest)
}

func TestMock_ClassifyFIFO(t *testing.T) {
	mock := NewMock().QueueClassification(map[string]any{
		"category": "billing", "needs_escalation": false, "summary": "",
	})

	raw, err := mock.Classify(context.Background(), Request{}, ToolDefinition{})
	require.NoError(t, err)

	var decision struct {
		Category string `json:"category"`
	}
	require.NoError(t, json.Unmarshal(raw, &decision))
	assert.Equal(t, "billing", decision.Category)

	// Default decision after the queue drains.
	raw, err = mock.Classify(context.Background(), Request{}, ToolDefinition{})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &decision))
	assert.Equal(t, "general", decision.Category)
}

func TestMock_Fail(t *testing.T) {
	boom := errors.New("provider down")
	mock := NewMock().QueueText("never seen").Fail(boom)

	_, err := mock.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, boom)

	_, err = mock.Classify(context.Background(), Request{}, ToolDefinition{})
	assert.ErrorIs(t, err, boom)
}

func TestMock_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock := NewMock().QueueText("unreached")
	_, err := mock.Complete(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, mock.CompleteCalls())
}

func TestMockSearcher(t *testing.T) {
	s := &MockSearcher{Passages: []Passage{
		{Text: "first", Score: 0.9},
		{Text: "second", Score: 0.8},
		{Text: "third", Score: 0.7},
	}}

	got, err := s.Search(context.Background(), "anything", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)

	got, err = s.Search(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	s.Err = errors.New("index offline")
	_, err = s.Search(context.Background(), "anything", 2)
	assert.Error(t, err)
}
