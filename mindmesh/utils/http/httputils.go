package httputils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody caps how much of a failed response is kept for the error.
const maxErrorBody = 64 << 10

// StatusError is returned when the server answers with anything but 200.
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status: %s", e.Status)
}

func newRequest(ctx context.Context, url, token string, body interface{}) (*http.Request, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func statusError(r *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(r.Body, maxErrorBody))
	return &StatusError{StatusCode: r.StatusCode, Status: r.Status, Body: b}
}

// PostJSONWithAuth posts body as JSON and decodes a 200 answer into resp.
func PostJSONWithAuth(ctx context.Context, client *http.Client, url, token string, body interface{}, resp interface{}) error {
	req, err := newRequest(ctx, url, token, body)
	if err != nil {
		return err
	}
	r, err := client.Do(req)
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		return statusError(r)
	}
	if resp != nil {
		return json.NewDecoder(r.Body).Decode(resp)
	}
	return nil
}

// PostStreamWithAuth posts body as JSON and hands back the open response body.
// The caller owns the returned body and must close it.
func PostStreamWithAuth(ctx context.Context, client *http.Client, url, token string, body interface{}) (io.ReadCloser, error) {
	req, err := newRequest(ctx, url, token, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	r, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if r.StatusCode != http.StatusOK {
		defer r.Body.Close()
		return nil, statusError(r)
	}
	return r.Body, nil
}
