package routes

import (
	"encoding/json"
	"errors"
	"mindmesh/mindmesh/controllers"
	"mindmesh/mindmesh/services/chat"
	"mindmesh/mindmesh/services/llm"
	"mindmesh/mindmesh/utils/logging"
	"net/http"

	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorCode(err error) string {
	if errors.Is(err, controllers.ErrInvalidConversationID) {
		return "invalid_request"
	}
	return chat.ErrorCode(err)
}

// statusFor maps a domain error onto an HTTP status.
func statusFor(err error) int {
	switch errorCode(err) {
	case "invalid_request", chat.CodeEmptyMessage:
		return http.StatusBadRequest
	case chat.CodeNotFound:
		return http.StatusNotFound
	case chat.CodeStreamInProgress:
		return http.StatusConflict
	case chat.CodeRateLimited:
		return http.StatusTooManyRequests
	case chat.CodeQuotaExhausted:
		return http.StatusPaymentRequired
	case chat.CodeInferenceFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.ErrorLogger.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	var ie *llm.InferenceError
	if errors.As(err, &ie) && ie.Message != "" {
		msg = ie.Message
	}
	writeJSON(w, status, map[string]string{"code": errorCode(err), "error": msg})
}
