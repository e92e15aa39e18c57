package supportflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrNoEntryStage indicates SetEntry() was not called before Compile().
	ErrNoEntryStage = errors.New("entry stage not set")

	// ErrEntryNotFound indicates the entry stage references an unknown stage.
	ErrEntryNotFound = errors.New("entry stage not found")

	// ErrStageNotFound indicates a transition references an unknown stage.
	ErrStageNotFound = errors.New("stage not found")
)

// Sentinel errors for submissions.
var (
	// ErrLoopLimit indicates the stage-hop ceiling was exceeded.
	ErrLoopLimit = errors.New("exceeded stage hop limit")

	// ErrToolLoopExceeded indicates a specialist exhausted its tool loop
	// budget. It is internal: the specialist converts it into a fixed
	// fallback message rather than failing the submission.
	ErrToolLoopExceeded = errors.New("exceeded tool loop iterations")

	// ErrInvalidTransition indicates a transition router returned an
	// empty string or an unknown stage name.
	ErrInvalidTransition = errors.New("transition returned invalid stage")

	// ErrThreadNotFound indicates a status query for an unknown thread.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrNotPaused indicates Resume() was called on a thread that has no
	// outstanding pause.
	ErrNotPaused = errors.New("thread is not paused")
)

// ValidationError reports malformed submission input.
type ValidationError struct {
	// Field names the offending request field.
	Field string
	// Message describes the problem.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// StageError wraps a stage execution failure with stage context.
type StageError struct {
	// Stage is the name of the stage that failed.
	Stage string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StageError) Unwrap() error {
	return e.Err
}

// TransitionError wraps errors from transition routing.
type TransitionError struct {
	// FromStage is the stage whose transition failed.
	FromStage string
	// Returned is the value the router returned.
	Returned string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition from %s returned %q: %v", e.FromStage, e.Returned, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *TransitionError) Unwrap() error {
	return e.Err
}

// LoopLimitError provides context when the hop ceiling is hit. The last
// committed checkpoint is intact; only uncommitted stage work is lost.
type LoopLimitError struct {
	// Max is the configured hop limit.
	Max int
	// LastStage is the stage that would have executed next.
	LastStage string
}

// Error implements the error interface.
func (e *LoopLimitError) Error() string {
	return fmt.Sprintf("exceeded stage hop limit (%d) at stage %s", e.Max, e.LastStage)
}

// Unwrap returns ErrLoopLimit for errors.Is support.
func (e *LoopLimitError) Unwrap() error {
	return ErrLoopLimit
}

// StorageError wraps a store failure. The submission failed before any
// partial state was committed, so retrying is safe.
type StorageError struct {
	// Op is the store operation ("load", "save").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// CapabilityError wraps a model provider failure. Fatal for the current
// submission only; the thread remains at its last committed checkpoint.
type CapabilityError struct {
	// Stage is the stage whose capability call failed.
	Stage string
	// Err is the underlying provider error.
	Err error
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability call in stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CapabilityError) Unwrap() error {
	return e.Err
}
