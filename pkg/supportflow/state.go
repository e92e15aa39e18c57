package supportflow

import "encoding/json"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCallRecord captures one tool invocation attached to a message.
// Result always holds the observation text fed back to the model; on a
// failed or rejected call, Error additionally records the failure.
type ToolCallRecord struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    string          `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Message is one entry in a thread's append-only conversation log.
// Seq is monotonic per thread and assigned when the message is merged
// into the thread state, never by the producer.
type Message struct {
	Role     string          `json:"role"`
	Content  string          `json:"content"`
	ToolCall *ToolCallRecord `json:"tool_call,omitempty"`
	Seq      int             `json:"seq"`
}

// ThreadState is the durable per-conversation state carried across
// submissions. Messages never shrink or reorder. NextStage empty means
// the thread is runnable from the graph entry; non-empty means the
// thread is paused awaiting an explicit resume at that stage.
type ThreadState struct {
	ID                string    `json:"id"`
	UserID            int64     `json:"user_id,omitempty"`
	Messages          []Message `json:"messages"`
	Category          string    `json:"category,omitempty"`
	NeedsEscalation   bool      `json:"needs_escalation"`
	EscalationSummary string    `json:"escalation_summary,omitempty"`
	NextStage         string    `json:"next_stage,omitempty"`
}

// NewThreadState creates an empty thread for a caller-supplied id.
func NewThreadState(id string) ThreadState {
	return ThreadState{ID: id}
}

// LastMessage returns the most recent message, or nil for an empty log.
func (s *ThreadState) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

// LastAssistantMessage returns the most recent assistant message, or nil.
func (s *ThreadState) LastAssistantMessage() *Message {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return &s.Messages[i]
		}
	}
	return nil
}

// Delta is the state change produced by one stage execution.
//
// Merge policy is explicit per field: Messages are appended to the log,
// scalar fields overwrite only when the pointer is non-nil. Stages never
// mutate ThreadState directly; the engine applies deltas between stage
// execution and checkpoint commit.
type Delta struct {
	Messages          []Message
	Category          *string
	NeedsEscalation   *bool
	EscalationSummary *string
}

// AppendMessage adds a message to the delta's append set.
func (d *Delta) AppendMessage(m Message) {
	d.Messages = append(d.Messages, m)
}

// SetCategory marks the category field for overwrite.
func (d *Delta) SetCategory(category string) {
	d.Category = &category
}

// SetNeedsEscalation marks the escalation flag for overwrite.
func (d *Delta) SetNeedsEscalation(v bool) {
	d.NeedsEscalation = &v
}

// SetEscalationSummary marks the summary field for overwrite.
func (d *Delta) SetEscalationSummary(summary string) {
	d.EscalationSummary = &summary
}

// Apply merges the delta into state. Appended messages receive the next
// sequence numbers; sequence numbers supplied by stages are ignored.
func (d Delta) Apply(state ThreadState) ThreadState {
	next := len(state.Messages)
	for _, m := range d.Messages {
		m.Seq = next
		next++
		state.Messages = append(state.Messages, m)
	}
	if d.Category != nil {
		state.Category = *d.Category
	}
	if d.NeedsEscalation != nil {
		state.NeedsEscalation = *d.NeedsEscalation
	}
	if d.EscalationSummary != nil {
		state.EscalationSummary = *d.EscalationSummary
	}
	return state
}
