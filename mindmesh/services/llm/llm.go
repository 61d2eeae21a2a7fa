package llm

import (
	"errors"
	"fmt"
	"net/http"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model    string    `json:"model,omitempty"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

var (
	// ErrRateLimited is returned for HTTP 429. Nothing retries automatically.
	ErrRateLimited = errors.New("rate limit exceeded, please wait a moment and try again")
	// ErrQuotaExhausted is returned for HTTP 402.
	ErrQuotaExhausted = errors.New("AI credits exhausted, please add funds to continue")
)

// InferenceError covers every other gateway failure: a non-2xx answer or a
// transport error before or during streaming.
type InferenceError struct {
	Status  int
	Message string
	Err     error
}

func (e *InferenceError) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("inference failed (%d): %s", e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("inference failed (%d %s)", e.Status, http.StatusText(e.Status))
	case e.Err != nil:
		return fmt.Sprintf("inference failed: %v", e.Err)
	}
	return "inference failed"
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the caller may try the same request later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
