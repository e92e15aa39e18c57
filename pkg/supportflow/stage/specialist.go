package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/supportflow/pkg/supportflow"
	"github.com/randalmurphal/supportflow/pkg/supportflow/capability"
	"github.com/randalmurphal/supportflow/pkg/supportflow/observability"
	"github.com/randalmurphal/supportflow/pkg/supportflow/tool"
)

const (
	// DefaultRecentWindow is how many trailing conversation messages
	// are sent to the model on each completion call.
	DefaultRecentWindow = 6

	// DefaultMaxIterations bounds the tool-calling loop within one
	// specialist execution.
	DefaultMaxIterations = 5

	// DefaultFallbackReply is returned when the loop exhausts its
	// iteration budget without producing a final answer.
	DefaultFallbackReply = "I was unable to fully resolve your request. Please rephrase your question or contact our support line directly."
)

// Specialist is a department agent: it answers the user with a bounded
// model/tool loop restricted to an allowlisted toolset.
type Specialist struct {
	name          string
	instructions  string
	completer     capability.Completer
	tools         []tool.Tool
	toolIndex     map[string]tool.Tool
	recentWindow  int
	maxIterations int
	fallback      string
	logger        *slog.Logger
	metrics       observability.MetricsRecorder
}

// SpecialistOption configures a Specialist.
type SpecialistOption func(*Specialist)

// WithRecentWindow overrides the size of the model input window.
func WithRecentWindow(n int) SpecialistOption {
	return func(s *Specialist) {
		if n > 0 {
			s.recentWindow = n
		}
	}
}

// WithMaxIterations overrides the tool-loop iteration budget.
func WithMaxIterations(n int) SpecialistOption {
	return func(s *Specialist) {
		if n > 0 {
			s.maxIterations = n
		}
	}
}

// WithFallbackReply overrides the reply used when the loop budget is
// exhausted.
func WithFallbackReply(reply string) SpecialistOption {
	return func(s *Specialist) { s.fallback = reply }
}

// WithSpecialistLogger attaches a structured logger.
func WithSpecialistLogger(logger *slog.Logger) SpecialistOption {
	return func(s *Specialist) { s.logger = logger }
}

// WithSpecialistMetrics attaches a metrics recorder.
func WithSpecialistMetrics(m observability.MetricsRecorder) SpecialistOption {
	return func(s *Specialist) { s.metrics = m }
}

// NewSpecialist creates a department stage. tools is the closed
// allowlist for this department; the model cannot reach anything
// outside it.
func NewSpecialist(name, instructions string, completer capability.Completer, tools []tool.Tool, opts ...SpecialistOption) *Specialist {
	s := &Specialist{
		name:          name,
		instructions:  instructions,
		completer:     completer,
		tools:         tools,
		toolIndex:     make(map[string]tool.Tool, len(tools)),
		recentWindow:  DefaultRecentWindow,
		maxIterations: DefaultMaxIterations,
		fallback:      DefaultFallbackReply,
		logger:        slog.Default(),
		metrics:       observability.NoopMetrics{},
	}
	for _, t := range tools {
		if _, dup := s.toolIndex[t.Name()]; dup {
			panic(fmt.Sprintf("supportflow: duplicate tool %q in specialist %q", t.Name(), name))
		}
		s.toolIndex[t.Name()] = t
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements supportflow.Stage.
func (s *Specialist) Name() string { return s.name }

// Kind implements supportflow.Stage.
func (s *Specialist) Kind() supportflow.StageKind { return supportflow.KindToolLoop }

// Interruptible implements supportflow.Stage.
func (s *Specialist) Interruptible() bool { return false }

// Run executes the bounded tool loop. Tool failures never abort the
// loop: they are fed back to the model as observations. Only provider
// failures are fatal.
func (s *Specialist) Run(ctx context.Context, state supportflow.ThreadState) (supportflow.Delta, error) {
	var delta supportflow.Delta
	transcript := s.buildWindow(state)
	defs := s.toolDefinitions()

	for i := 0; i < s.maxIterations; i++ {
		start := time.Now()
		completion, err := s.completer.Complete(ctx, capability.Request{
			Instructions: s.instructions,
			Messages:     transcript,
			Tools:        defs,
		})
		s.metrics.RecordModelCall(ctx, s.name, time.Since(start), err)
		if err != nil {
			return supportflow.Delta{}, &supportflow.CapabilityError{Stage: s.name, Err: err}
		}

		if completion.ToolCall == nil {
			delta.AppendMessage(supportflow.Message{
				Role:    supportflow.RoleAssistant,
				Content: completion.Text,
			})
			return delta, nil
		}

		observation := s.invoke(ctx, state, completion.ToolCall, &delta)
		transcript = append(transcript, capability.ChatMessage{
			Role:    supportflow.RoleTool,
			Content: observation,
		})
	}

	s.logger.Warn("tool loop budget exhausted",
		slog.String("stage", s.name),
		slog.Int("max_iterations", s.maxIterations),
		slog.String("error", supportflow.ErrToolLoopExceeded.Error()),
	)
	delta.AppendMessage(supportflow.Message{
		Role:    supportflow.RoleAssistant,
		Content: s.fallback,
	})
	return delta, nil
}

// invoke runs one tool call, records it in the delta, and returns the
// observation text fed back to the model.
func (s *Specialist) invoke(ctx context.Context, state supportflow.ThreadState, call *capability.ToolCall, delta *supportflow.Delta) string {
	record := &supportflow.ToolCallRecord{Name: call.Name, Arguments: call.Arguments}

	t, allowed := s.toolIndex[call.Name]
	if !allowed {
		record.Error = "tool not available"
		observation := fmt.Sprintf("Tool %q is not available in this department.", call.Name)
		record.Result = observation
		delta.AppendMessage(supportflow.Message{Role: supportflow.RoleTool, Content: observation, ToolCall: record})
		observability.LogToolCall(s.logger, call.Name, false, 0, nil)
		s.metrics.RecordToolCall(ctx, call.Name, false, nil)
		return observation
	}

	args := map[string]any{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			record.Error = err.Error()
			observation := fmt.Sprintf("Tool %q was called with malformed arguments: %v", call.Name, err)
			record.Result = observation
			delta.AppendMessage(supportflow.Message{Role: supportflow.RoleTool, Content: observation, ToolCall: record})
			return observation
		}
	}

	start := time.Now()
	result, err := t.Call(tool.NewContext(ctx, s.logger, state.ID, state.UserID), args)
	elapsed := time.Since(start)
	observability.LogToolCall(s.logger, call.Name, true, float64(elapsed.Milliseconds()), err)
	s.metrics.RecordToolCall(ctx, call.Name, true, err)

	var observation string
	if err != nil {
		record.Error = err.Error()
		observation = fmt.Sprintf("Tool %q failed: %v", call.Name, err)
	} else {
		observation = renderResult(result)
	}
	record.Result = observation
	delta.AppendMessage(supportflow.Message{Role: supportflow.RoleTool, Content: observation, ToolCall: record})
	return observation
}

// buildWindow maps the trailing conversation messages into the model
// input. The window bounds model context only; the persisted log is
// never truncated.
func (s *Specialist) buildWindow(state supportflow.ThreadState) []capability.ChatMessage {
	msgs := state.Messages
	if len(msgs) > s.recentWindow {
		msgs = msgs[len(msgs)-s.recentWindow:]
	}
	out := make([]capability.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, capability.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func (s *Specialist) toolDefinitions() []capability.ToolDefinition {
	defs := make([]capability.ToolDefinition, 0, len(s.tools))
	for _, t := range s.tools {
		defs = append(defs, capability.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// renderResult serializes a tool result into observation text.
func renderResult(result any) string {
	switch v := result.(type) {
	case string:
		return v
	case nil:
		return "done"
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
