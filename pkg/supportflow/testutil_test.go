package supportflow

import "context"

// stubStage is a scriptable stage for engine and graph tests.
type stubStage struct {
	name          string
	kind          StageKind
	interruptible bool
	run           func(ctx context.Context, state ThreadState) (Delta, error)
}

func (s *stubStage) Name() string        { return s.name }
func (s *stubStage) Kind() StageKind     { return s.kind }
func (s *stubStage) Interruptible() bool { return s.interruptible }

func (s *stubStage) Run(ctx context.Context, state ThreadState) (Delta, error) {
	if s.run == nil {
		return Delta{}, nil
	}
	return s.run(ctx, state)
}

// replyStage appends one assistant message and nothing else.
func replyStage(name, reply string) *stubStage {
	return &stubStage{
		name: name,
		kind: KindToolLoop,
		run: func(ctx context.Context, state ThreadState) (Delta, error) {
			var d Delta
			d.AppendMessage(Message{Role: RoleAssistant, Content: reply})
			return d, nil
		},
	}
}

// pauseStage is an interruptible terminal stage.
func pauseStage(name, notice string) *stubStage {
	return &stubStage{
		name:          name,
		kind:          KindTerminalPause,
		interruptible: true,
		run: func(ctx context.Context, state ThreadState) (Delta, error) {
			var d Delta
			d.SetNeedsEscalation(true)
			d.SetEscalationSummary("summary for " + name)
			d.AppendMessage(Message{Role: RoleAssistant, Content: notice})
			return d, nil
		},
	}
}
