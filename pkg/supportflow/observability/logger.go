// Package observability provides structured logging, metrics, and
// distributed tracing for supportflow.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import "log/slog"

// EnrichLogger adds submission context to a logger. Returns a new
// logger with thread_id, submission_id, and stage fields.
func EnrichLogger(logger *slog.Logger, threadID, submissionID, stage string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("thread_id", threadID),
		slog.String("submission_id", submissionID),
		slog.String("stage", stage),
	)
}

// LogSubmissionStart logs the start of a submission.
func LogSubmissionStart(logger *slog.Logger, threadID, submissionID string) {
	if logger == nil {
		return
	}
	logger.Info("submission starting",
		slog.String("thread_id", threadID),
		slog.String("submission_id", submissionID),
	)
}

// LogSubmissionComplete logs successful submission completion.
func LogSubmissionComplete(logger *slog.Logger, threadID, submissionID, status string, durationMs float64, stageCount int) {
	if logger == nil {
		return
	}
	logger.Info("submission completed",
		slog.String("thread_id", threadID),
		slog.String("submission_id", submissionID),
		slog.String("status", status),
		slog.Float64("duration_ms", durationMs),
		slog.Int("stages_executed", stageCount),
	)
}

// LogSubmissionError logs submission failure.
func LogSubmissionError(logger *slog.Logger, threadID, submissionID string, err error, durationMs float64, lastStage string) {
	if logger == nil {
		return
	}
	logger.Error("submission failed",
		slog.String("thread_id", threadID),
		slog.String("submission_id", submissionID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_stage", lastStage),
	)
}

// LogSubmissionPaused logs a submission that stopped at an interrupt.
func LogSubmissionPaused(logger *slog.Logger, threadID, submissionID, pendingStage string) {
	if logger == nil {
		return
	}
	logger.Info("submission paused",
		slog.String("thread_id", threadID),
		slog.String("submission_id", submissionID),
		slog.String("pending_stage", pendingStage),
	)
}

// LogStageStart logs stage execution start.
func LogStageStart(logger *slog.Logger, stage string) {
	if logger == nil {
		return
	}
	logger.Debug("stage starting",
		slog.String("stage", stage),
	)
}

// LogStageComplete logs successful stage completion.
func LogStageComplete(logger *slog.Logger, stage string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("stage completed",
		slog.String("stage", stage),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogStageError logs stage execution error.
func LogStageError(logger *slog.Logger, stage string, err error) {
	if logger == nil {
		return
	}
	logger.Error("stage failed",
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
}

// LogCheckpoint logs checkpoint commit.
func LogCheckpoint(logger *slog.Logger, threadID string, version int64, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint committed",
		slog.String("thread_id", threadID),
		slog.Int64("version", version),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogToolCall logs a specialist tool invocation.
func LogToolCall(logger *slog.Logger, tool string, allowed bool, durationMs float64, err error) {
	if logger == nil {
		return
	}
	if !allowed {
		logger.Warn("tool call rejected",
			slog.String("tool", tool),
		)
		return
	}
	if err != nil {
		logger.Warn("tool call failed",
			slog.String("tool", tool),
			slog.Float64("duration_ms", durationMs),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("tool call completed",
		slog.String("tool", tool),
		slog.Float64("duration_ms", durationMs),
	)
}
