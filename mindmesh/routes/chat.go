package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mindmesh/mindmesh/config"
	"mindmesh/mindmesh/controllers"
	"mindmesh/mindmesh/middlewares"
	"mindmesh/mindmesh/services/chat"
	"mindmesh/mindmesh/utils/logging"
	"mindmesh/mindmesh/utils/types"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const restTimeout = 30 * time.Second

func ChatRoutes(ctrl *controllers.ChatController, cfg config.Config) chi.Router {
	r := chi.NewRouter()
	r.Group(func(gr chi.Router) {
		gr.Use(middlewares.AuthMiddleware(cfg))

		gr.Group(func(rest chi.Router) {
			rest.Use(middleware.Timeout(restTimeout))

			// GET /chat/conversations : the caller's conversations, most recent first
			rest.Get("/conversations", func(w http.ResponseWriter, r *http.Request) {
				convs, err := ctrl.ListConversations(r.Context(), middlewares.OwnerID(r.Context()))
				if err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, convs)
			})

			rest.Post("/conversations", func(w http.ResponseWriter, r *http.Request) {
				var req types.ConversationRequest
				if r.ContentLength != 0 {
					if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
						http.Error(w, err.Error(), http.StatusBadRequest)
						return
					}
				}
				conv, err := ctrl.CreateConversation(r.Context(), middlewares.OwnerID(r.Context()), req)
				if err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusCreated, conv)
			})

			rest.Put("/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
				var req types.ConversationRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				conv, err := ctrl.RenameConversation(r.Context(), middlewares.OwnerID(r.Context()), chi.URLParam(r, "id"), req)
				if err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, conv)
			})

			rest.Delete("/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
				err := ctrl.DeleteConversation(r.Context(), middlewares.OwnerID(r.Context()), chi.URLParam(r, "id"))
				if err != nil {
					writeError(w, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})

			rest.Get("/conversations/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
				msgs, err := ctrl.ListMessages(r.Context(), middlewares.OwnerID(r.Context()), chi.URLParam(r, "id"))
				if err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, msgs)
			})
		})

		// POST /chat/stream : send a message and stream the reply as server-sent events
		gr.Post("/stream", func(w http.ResponseWriter, r *http.Request) {
			var req types.ChatRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			ctx := r.Context()
			prepared, err := ctrl.PrepareSend(ctx, middlewares.OwnerID(ctx), req)
			if err != nil {
				writeError(w, err)
				return
			}

			sse, ok := newEventWriter(w)
			if !ok {
				ctrl.Discard(prepared)
				http.Error(w, "streaming unsupported", http.StatusInternalServerError)
				return
			}
			onDelta := func(delta string) {
				sse.send("delta", types.StreamEvent{Content: delta})
			}
			relay(ctx, ctrl, prepared, onDelta, func(ev types.StreamEvent) {
				sse.send(ev.Type, ev)
			})
		})
	})

	// GET /chat/ws : the first text message carries the token and the request
	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusInternalError, "internal error")

		ctx := r.Context()
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			conn.Close(websocket.StatusUnsupportedData, "unsupported data")
			return
		}
		var input struct {
			Token       string            `json:"token"`
			ChatRequest types.ChatRequest `json:"chat_request"`
		}
		if err := json.Unmarshal(data, &input); err != nil {
			writeFrame(ctx, conn, types.StreamEvent{Type: "error", Code: "invalid_request", Error: "invalid json"})
			conn.Close(websocket.StatusUnsupportedData, "invalid json")
			return
		}

		id, err := middlewares.ParseOwner(cfg.JWTSecret, input.Token)
		if err != nil {
			writeFrame(ctx, conn, types.StreamEvent{Type: "error", Code: "unauthorized", Error: err.Error()})
			conn.Close(websocket.StatusPolicyViolation, "invalid token")
			return
		}

		prepared, err := ctrl.PrepareSend(ctx, id.OwnerID, input.ChatRequest)
		if err != nil {
			writeFrame(ctx, conn, types.StreamEvent{Type: "error", Code: errorCode(err), Error: err.Error()})
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}

		// A client that goes away cancels the send.
		ctx = conn.CloseRead(ctx)
		onDelta := func(delta string) {
			writeFrame(ctx, conn, types.StreamEvent{Type: "delta", Content: delta})
		}
		relay(ctx, ctrl, prepared, onDelta, func(ev types.StreamEvent) {
			writeFrame(ctx, conn, ev)
		})
		conn.Close(websocket.StatusNormalClosure, "")
	})
	return r
}

// relay runs a prepared send and reports its outcome through emit: a
// complete event when the reply finished, then an error event if anything
// failed.
func relay(ctx context.Context, ctrl *controllers.ChatController, ps *controllers.PreparedSend, onDelta func(string), emit func(types.StreamEvent)) {
	completed := false
	var full string
	res, err := ctrl.Send(ctx, ps, onDelta, func(content string) {
		completed = true
		full = content
	})

	var convID string
	if res != nil {
		convID = res.ConversationID.String()
	}
	if completed {
		ev := types.StreamEvent{Type: "complete", ConversationID: convID, Content: full}
		if res.AssistantMessage != nil {
			ev.MessageID = res.AssistantMessage.ID.String()
		}
		emit(ev)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logging.ErrorLogger.Error("chat send failed",
			zap.String("conversation_id", convID),
			zap.String("code", chat.ErrorCode(err)),
			zap.Error(err))
		emit(types.StreamEvent{Type: "error", ConversationID: convID, Code: chat.ErrorCode(err), Error: err.Error()})
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, ev types.StreamEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	conn.Write(ctx, websocket.MessageText, data)
}

// eventWriter writes server-sent events, flushing after each one.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newEventWriter(w http.ResponseWriter) (*eventWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &eventWriter{w: w, flusher: flusher}, true
}

func (e *eventWriter) send(event string, ev types.StreamEvent) {
	ev.Type = ""
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data)
	e.flusher.Flush()
}
