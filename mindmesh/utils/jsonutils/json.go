package jsonutils

import (
	"encoding/json"
	"strings"
)

// ErrorMessage pulls a human readable message out of an error response body.
//
// Accepted shapes:
//  1. {"error": "text"}
//  2. {"error": {"message": "text"}}
//  3. {"message": "text"}
//
// Anything else falls back to the trimmed body text.
func ErrorMessage(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if len(payload.Error) > 0 {
			var s string
			if err := json.Unmarshal(payload.Error, &s); err == nil && s != "" {
				return s
			}
			var obj struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(payload.Error, &obj); err == nil && obj.Message != "" {
				return obj.Message
			}
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(body))
}

// ToJSON serializes a Go value to a JSON string with indentation.
// Returns an empty string if serialization fails.
func ToJSON(v interface{}) string {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(bytes))
}
