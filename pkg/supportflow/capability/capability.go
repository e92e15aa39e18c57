// Package capability defines the pluggable model and retrieval
// interfaces consumed by stages. The engine never talks to a provider
// directly; callers inject implementations at construction.
package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ChatMessage is the normalized model input message. It is deliberately
// smaller than the persisted thread message: stages map between the two.
type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant", "tool"
	Content string `json:"content"`
}

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a function call requested by the model. Unified across
// vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Completion is the outcome of one model turn. Exactly one of Text or
// ToolCall is meaningful: when ToolCall is non-nil the model asked to
// invoke a tool instead of producing a final message.
type Completion struct {
	Text     string
	ToolCall *ToolCall
}

// Request is the normalized model input.
type Request struct {
	Instructions string
	Messages     []ChatMessage
	Tools        []ToolDefinition
}

// Completer produces assistant turns, optionally requesting tool calls.
// Implementations must honor ctx cancellation per call.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// Classifier produces a structured decision conforming to a JSON
// schema. The raw JSON object is returned for the caller to decode.
type Classifier interface {
	Classify(ctx context.Context, req Request, schema ToolDefinition) (json.RawMessage, error)
}

// Passage is one ranked result from a document-similarity search.
type Passage struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Searcher retrieves ranked passages for a query. Index construction
// is an external batch process.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Passage, error)
}

// Mock is a lightweight in-memory Completer/Classifier for tests and
// examples. Responses are scripted per call in FIFO order.
type Mock struct {
	mu              sync.Mutex
	completions     []*Completion
	classifications []json.RawMessage
	err             error
	completeCalls   int
	classifyCalls   int

	// LastRequest records the most recent request for assertions.
	LastRequest Request
}

// NewMock constructs an empty mock.
func NewMock() *Mock {
	return &Mock{}
}

// QueueCompletion scripts the next Complete result.
func (m *Mock) QueueCompletion(c *Completion) *Mock {
	m.completions = append(m.completions, c)
	return m
}

// QueueText scripts a final text completion.
func (m *Mock) QueueText(text string) *Mock {
	return m.QueueCompletion(&Completion{Text: text})
}

// QueueToolCall scripts a tool-call completion.
func (m *Mock) QueueToolCall(name string, args string) *Mock {
	return m.QueueCompletion(&Completion{ToolCall: &ToolCall{
		ID:        fmt.Sprintf("call-%d", len(m.completions)),
		Name:      name,
		Arguments: json.RawMessage(args),
	}})
}

// QueueClassification scripts the next Classify result.
func (m *Mock) QueueClassification(obj any) *Mock {
	raw, _ := json.Marshal(obj)
	m.classifications = append(m.classifications, raw)
	return m
}

// Fail makes every subsequent call return err.
func (m *Mock) Fail(err error) *Mock {
	m.err = err
	return m
}

// CompleteCalls returns how many times Complete ran.
func (m *Mock) CompleteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completeCalls
}

// Complete implements Completer.
func (m *Mock) Complete(ctx context.Context, req Request) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRequest = req
	m.completeCalls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.completions) == 0 {
		return &Completion{Text: "I'm sorry, I don't have an answer for that."}, nil
	}
	next := m.completions[0]
	m.completions = m.completions[1:]
	return next, nil
}

// Classify implements Classifier.
func (m *Mock) Classify(ctx context.Context, req Request, _ ToolDefinition) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRequest = req
	m.classifyCalls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.classifications) == 0 {
		return json.RawMessage(`{"category":"general","needs_escalation":false,"summary":""}`), nil
	}
	next := m.classifications[0]
	m.classifications = m.classifications[1:]
	return next, nil
}

// MockSearcher is a canned Searcher for tests.
type MockSearcher struct {
	Passages []Passage
	Err      error
}

// Search implements Searcher.
func (m *MockSearcher) Search(ctx context.Context, _ string, limit int) ([]Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if limit > 0 && len(m.Passages) > limit {
		return m.Passages[:limit], nil
	}
	return m.Passages, nil
}
