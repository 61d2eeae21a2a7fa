package chat

import (
	"context"
	"errors"
	"fmt"
	"mindmesh/mindmesh/services/llm"
)

var (
	ErrEmptyMessage         = errors.New("message is empty")
	ErrStreamInProgress     = errors.New("a reply is already streaming")
	ErrPipelineClosed       = errors.New("chat pipeline closed")
	ErrConversationNotFound = errors.New("conversation not found")
)

// PersistenceError reports a failed store write. Op names the step.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Error codes reported to clients.
const (
	CodeRateLimited       = "rate_limited"
	CodeQuotaExhausted    = "quota_exhausted"
	CodeInferenceFailed   = "inference_failed"
	CodePersistenceFailed = "persistence_failed"
	CodeEmptyMessage      = "empty_message"
	CodeStreamInProgress  = "stream_in_progress"
	CodeNotFound          = "not_found"
	CodeCanceled          = "canceled"
	CodeInternal          = "internal"
)

// ErrorCode maps err onto the code a client can branch on.
func ErrorCode(err error) string {
	var persistErr *PersistenceError
	var inferErr *llm.InferenceError
	switch {
	case errors.Is(err, llm.ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, llm.ErrQuotaExhausted):
		return CodeQuotaExhausted
	case errors.As(err, &inferErr):
		return CodeInferenceFailed
	case errors.As(err, &persistErr):
		return CodePersistenceFailed
	case errors.Is(err, ErrEmptyMessage):
		return CodeEmptyMessage
	case errors.Is(err, ErrStreamInProgress):
		return CodeStreamInProgress
	case errors.Is(err, ErrConversationNotFound):
		return CodeNotFound
	case errors.Is(err, ErrPipelineClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	}
	return CodeInternal
}
