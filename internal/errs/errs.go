// Package errs defines the failure taxonomy shared by every pipeline stage.
//
// Components wrap one of the sentinels below so callers can classify a
// failure with errors.Is without depending on the component that raised it.
package errs

import "errors"

var (
	// ErrPlanning indicates malformed or ambiguous routing or plan output.
	ErrPlanning = errors.New("planning error")

	// ErrGeneration indicates query-text generation failed.
	ErrGeneration = errors.New("generation error")

	// ErrValidation indicates the guardrail rejected generated query text.
	// It is never retried and its reason is always surfaced verbatim.
	ErrValidation = errors.New("validation error")

	// ErrExecution indicates a structured-store connectivity, timeout or runtime fault.
	ErrExecution = errors.New("execution error")

	// ErrEmbedding indicates the embedding capability failed.
	ErrEmbedding = errors.New("embedding error")

	// ErrUnexpected is the catch-all for anything not anticipated.
	ErrUnexpected = errors.New("unexpected error")
)

// Kind returns the taxonomy name of err, or "" when err is nil.
// Errors that wrap none of the sentinels are reported as unexpected.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPlanning):
		return "planning_error"
	case errors.Is(err, ErrGeneration):
		return "generation_error"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrExecution):
		return "execution_error"
	case errors.Is(err, ErrEmbedding):
		return "embedding_error"
	default:
		return "unexpected_error"
	}
}
