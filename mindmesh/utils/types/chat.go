// mindmesh/utils/types/chat.go
package types

// ChatRequest sends Content to ConversationID, or to a new conversation when
// ConversationID is empty.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content"`
}

type ConversationRequest struct {
	Title string `json:"title"`
}

// StreamEvent is one frame of a streamed reply. Type is delta, complete or
// error.
type StreamEvent struct {
	Type           string `json:"type,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Code           string `json:"code,omitempty"`
	Error          string `json:"error,omitempty"`
}
