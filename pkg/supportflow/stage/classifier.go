// Package stage provides the built-in stage implementations: the
// classifier, the generic tool-calling specialist, and the escalation
// interrupt.
package stage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/randalmurphal/supportflow/pkg/supportflow"
	"github.com/randalmurphal/supportflow/pkg/supportflow/capability"
)

// Classification is the structured routing decision.
type Classification struct {
	Category        string `json:"category"`
	NeedsEscalation bool   `json:"needs_escalation"`
	Summary         string `json:"summary"`
}

// ClassificationSchema is the structured-output contract given to the
// classifier capability.
func ClassificationSchema(categories []string) capability.ToolDefinition {
	return capability.ToolDefinition{
		Name:        "classify_ticket",
		Description: "Route the support ticket to the correct department.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"category": map[string]any{
					"type":        "string",
					"enum":        categories,
					"description": "The category of the issue.",
				},
				"needs_escalation": map[string]any{
					"type":        "boolean",
					"description": "Set to true if the issue requires a human agent immediately.",
				},
				"summary": map[string]any{
					"type":        "string",
					"description": "A brief summary of the customer's problem.",
				},
			},
			"required": []string{"category", "needs_escalation"},
		},
	}
}

// defaultClassifierInstructions is the first-line routing prompt.
const defaultClassifierInstructions = `You are the first-line customer support router.
Analyze the customer's latest message and route it to the correct department.

Rules:
1. If the user mentions a lawyer, legal action, suing, a formal complaint, or demands urgent action, set needs_escalation=true immediately.
2. Pick the single best-fitting category for the issue.
3. If the issue is a simple greeting or unclear, use category "general".
4. Always provide a brief summary of the issue.`

// Classifier is the single-shot structured-decision stage. It never
// uses tools and performs exactly one capability call per execution.
type Classifier struct {
	name         string
	classifier   capability.Classifier
	instructions string
	categories   []string
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithClassifierInstructions overrides the routing prompt.
func WithClassifierInstructions(instructions string) ClassifierOption {
	return func(c *Classifier) { c.instructions = instructions }
}

// NewClassifier creates the routing stage. categories is the closed
// set of routable departments.
func NewClassifier(name string, classifier capability.Classifier, categories []string, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		name:         name,
		classifier:   classifier,
		instructions: defaultClassifierInstructions,
		categories:   categories,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements supportflow.Stage.
func (c *Classifier) Name() string { return c.name }

// Kind implements supportflow.Stage.
func (c *Classifier) Kind() supportflow.StageKind { return supportflow.KindClassifier }

// Interruptible implements supportflow.Stage.
func (c *Classifier) Interruptible() bool { return false }

// Run classifies the latest user message.
func (c *Classifier) Run(ctx context.Context, state supportflow.ThreadState) (supportflow.Delta, error) {
	latest := latestUserMessage(state)
	if latest == "" {
		return supportflow.Delta{}, fmt.Errorf("no user message to classify")
	}

	raw, err := c.classifier.Classify(ctx, capability.Request{
		Instructions: c.instructions,
		Messages:     []capability.ChatMessage{{Role: "user", Content: latest}},
	}, ClassificationSchema(c.categories))
	if err != nil {
		return supportflow.Delta{}, &supportflow.CapabilityError{Stage: c.name, Err: err}
	}

	var decision Classification
	if err := json.Unmarshal(raw, &decision); err != nil {
		return supportflow.Delta{}, &supportflow.CapabilityError{
			Stage: c.name,
			Err:   fmt.Errorf("decode classification: %w", err),
		}
	}

	var delta supportflow.Delta
	delta.SetCategory(decision.Category)
	delta.SetNeedsEscalation(decision.NeedsEscalation)
	if decision.Summary != "" {
		delta.SetEscalationSummary(decision.Summary)
	}
	return delta, nil
}

// latestUserMessage returns the content of the most recent user
// message in the thread.
func latestUserMessage(state supportflow.ThreadState) string {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == supportflow.RoleUser {
			return state.Messages[i].Content
		}
	}
	return ""
}

// RouteByCategory builds the classifier's transition: escalation wins
// regardless of category, a known category routes to its specialist,
// and anything else falls back to the default stage.
func RouteByCategory(escalationStage string, routes map[string]string, fallback string) supportflow.TransitionFunc {
	return func(state supportflow.ThreadState) string {
		if state.NeedsEscalation {
			return escalationStage
		}
		if target, ok := routes[state.Category]; ok {
			return target
		}
		return fallback
	}
}
