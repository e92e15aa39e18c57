package stage

import (
	"context"
	"strings"

	"github.com/randalmurphal/supportflow/pkg/supportflow"
	"github.com/randalmurphal/supportflow/pkg/supportflow/capability"
)

const (
	// DefaultEscalationNotice is appended to the thread when a ticket
	// is handed to a human.
	DefaultEscalationNotice = "Your ticket has been escalated to a human support agent. Please hold while we review your case."

	defaultEscalationInstructions = `You are a support supervisor. Write a concise handover summary of the
conversation below for the human agent taking over: what the customer
needs, what has been tried, and why automation could not resolve it.`
)

// Escalation is the interrupt stage: it summarizes the thread for a
// human agent and parks the conversation until an operator resumes it.
type Escalation struct {
	name      string
	completer capability.Completer
	notice    string
}

// EscalationOption configures an Escalation stage.
type EscalationOption func(*Escalation)

// WithEscalationNotice overrides the customer-facing hold message.
func WithEscalationNotice(notice string) EscalationOption {
	return func(e *Escalation) { e.notice = notice }
}

// NewEscalation creates the human-handover stage.
func NewEscalation(name string, completer capability.Completer, opts ...EscalationOption) *Escalation {
	e := &Escalation{
		name:      name,
		completer: completer,
		notice:    DefaultEscalationNotice,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements supportflow.Stage.
func (e *Escalation) Name() string { return e.name }

// Kind implements supportflow.Stage.
func (e *Escalation) Kind() supportflow.StageKind { return supportflow.KindTerminalPause }

// Interruptible implements supportflow.Stage. Escalation is the pause
// point of the graph.
func (e *Escalation) Interruptible() bool { return true }

// Run summarizes the full conversation for the human agent, marks the
// thread escalated, and posts the hold notice. Unlike specialists, the
// summary sees the entire log, not a trailing window.
func (e *Escalation) Run(ctx context.Context, state supportflow.ThreadState) (supportflow.Delta, error) {
	completion, err := e.completer.Complete(ctx, capability.Request{
		Instructions: defaultEscalationInstructions,
		Messages:     fullTranscript(state),
	})
	if err != nil {
		return supportflow.Delta{}, &supportflow.CapabilityError{Stage: e.name, Err: err}
	}

	summary := strings.TrimSpace(completion.Text)
	if summary == "" {
		summary = state.EscalationSummary
	}
	if summary == "" {
		summary = "Customer requested escalation; no automated summary available."
	}

	var delta supportflow.Delta
	delta.SetNeedsEscalation(true)
	delta.SetEscalationSummary(summary)
	delta.AppendMessage(supportflow.Message{
		Role:    supportflow.RoleAssistant,
		Content: e.notice,
	})
	return delta, nil
}

func fullTranscript(state supportflow.ThreadState) []capability.ChatMessage {
	out := make([]capability.ChatMessage, 0, len(state.Messages))
	for _, m := range state.Messages {
		out = append(out, capability.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
