package llm

import (
	"context"
	"errors"
	"io"
	httputils "mindmesh/mindmesh/utils/http"
	"mindmesh/mindmesh/utils/jsonutils"
	"mindmesh/mindmesh/utils/logging"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type GatewayConfig struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// GatewayClient talks to an OpenAI compatible chat completions endpoint.
type GatewayClient struct {
	url     string
	apiKey  string
	model   string
	timeout time.Duration
	client  *http.Client
}

// NewGatewayClient builds a client whose Timeout bounds the wait for response
// headers. A streamed body may run past it; only the caller's context cuts
// it off. Run applies Timeout to the whole exchange.
func NewGatewayClient(cfg GatewayConfig) *GatewayClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout
	return &GatewayClient{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		client:  &http.Client{Transport: transport},
	}
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Run executes a single non-streaming completion.
func (c *GatewayClient) Run(ctx context.Context, messages []Message) (string, error) {
	defer logging.LogDuration(ctx, "gateway_run")()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := ChatRequest{Model: c.model, Messages: messages, Stream: false}
	var resp completionResponse
	if err := httputils.PostJSONWithAuth(ctx, c.client, c.url, c.apiKey, req, &resp); err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream opens a streamed completion and returns the raw event-stream body.
// The caller decodes the frames and must close the body.
func (c *GatewayClient) Stream(ctx context.Context, messages []Message) (io.ReadCloser, error) {
	defer logging.LogDuration(ctx, "gateway_stream_open")()

	req := ChatRequest{Model: c.model, Messages: messages, Stream: true}
	body, err := httputils.PostStreamWithAuth(ctx, c.client, c.url, c.apiKey, req)
	if err != nil {
		return nil, classify(err)
	}
	return body, nil
}

// classify maps transport and status failures onto the gateway error taxonomy.
func classify(err error) error {
	var statusErr *httputils.StatusError
	if !errors.As(err, &statusErr) {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &InferenceError{Err: err}
	}

	switch statusErr.StatusCode {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusPaymentRequired:
		return ErrQuotaExhausted
	}

	msg := jsonutils.ErrorMessage(statusErr.Body)
	logging.ErrorLogger.Error("gateway request failed",
		zap.Int("status", statusErr.StatusCode),
		zap.String("message", msg))
	return &InferenceError{
		Status:  statusErr.StatusCode,
		Message: msg,
		Err:     statusErr,
	}
}
