// Package chat sends user messages to the inference gateway, relays the
// streamed reply and records both turns of the exchange.
package chat

import (
	"context"
	"errors"
	"io"
	"mindmesh/mindmesh/services/llm"
	"mindmesh/mindmesh/services/stream"
	"mindmesh/mindmesh/sources/psql/dao"
	"mindmesh/mindmesh/sources/psql/models"
	"mindmesh/mindmesh/utils/logging"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const readChunkSize = 4096

// Store is the persistence the pipeline needs. dao.ChatDAO implements it.
type Store interface {
	InsertConversation(ctx context.Context, ownerID, title string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	InsertMessage(ctx context.Context, conversationID uuid.UUID, ownerID string, role models.Role, content string) (*models.Message, error)
	UpdateConversation(ctx context.Context, id uuid.UUID, update models.ConversationUpdate) error
	DeleteConversation(ctx context.Context, id uuid.UUID) error
	ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error)
}

// Gateway opens a streamed completion. llm.GatewayClient implements it.
type Gateway interface {
	Stream(ctx context.Context, messages []llm.Message) (io.ReadCloser, error)
}

// SendResult describes what a send left behind. AssistantMessage is nil when
// no reply was stored.
type SendResult struct {
	ConversationID   uuid.UUID
	UserMessage      *models.Message
	AssistantMessage *models.Message
	Content          string
}

type Option func(*Pipeline)

// WithMaxFrameBytes bounds a single event-stream frame.
func WithMaxFrameBytes(n int) Option {
	return func(p *Pipeline) { p.maxFrameBytes = n }
}

// WithClock replaces time.Now for conversation timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline serves one owner. At most one send is in flight per instance;
// separate instances share nothing.
type Pipeline struct {
	store         Store
	gateway       Gateway
	ownerID       string
	maxFrameBytes int
	now           func() time.Time

	mu        sync.Mutex
	streaming bool
	closed    bool
	cancel    context.CancelFunc

	// emitMu is held while a callback runs.
	emitMu sync.Mutex
}

func NewPipeline(store Store, gateway Gateway, ownerID string, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:         store,
		gateway:       gateway,
		ownerID:       ownerID,
		maxFrameBytes: stream.DefaultMaxFrameBytes,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsStreaming reports whether a send is in flight.
func (p *Pipeline) IsStreaming() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streaming
}

// Close aborts any in-flight send. Later sends fail with ErrPipelineClosed.
// It waits for a callback already running; none starts after Close returns.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	p.emitMu.Lock()
	p.emitMu.Unlock()
}

// emit runs fn unless ctx is already done.
func (p *Pipeline) emit(ctx context.Context, fn func()) bool {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	fn()
	return true
}

func (p *Pipeline) begin(ctx context.Context) (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPipelineClosed
	}
	if p.streaming {
		return nil, ErrStreamInProgress
	}
	streamCtx, cancel := context.WithCancel(ctx)
	p.streaming = true
	p.cancel = cancel
	return streamCtx, nil
}

func (p *Pipeline) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.streaming = false
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// abortErr is the error returned once the stream context is done.
func (p *Pipeline) abortErr(ctx context.Context) error {
	if p.isClosed() {
		return ErrPipelineClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return context.Canceled
}

// SendMessage records text as a user turn of conversationID (uuid.Nil starts
// a new conversation), streams the reply through onDelta and hands the full
// reply to onComplete. prior is the conversation's history, oldest first.
//
// The returned result is non-nil whenever the conversation was resolved,
// including alongside an error. The callbacks must not call Close.
func (p *Pipeline) SendMessage(
	ctx context.Context,
	conversationID uuid.UUID,
	text string,
	prior []models.Message,
	onDelta func(string),
	onComplete func(string),
) (*SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	streamCtx, err := p.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer p.end()
	defer logging.LogDuration(ctx, "chat_send")()

	conv, err := p.resolveConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	result := &SendResult{ConversationID: conv.ID}

	userMsg, err := p.store.InsertMessage(ctx, conv.ID, p.ownerID, models.RoleUser, text)
	if err != nil {
		return result, &PersistenceError{Op: "insert user message", Err: err}
	}
	result.UserMessage = userMsg

	history := make([]llm.Message, 0, len(prior)+1)
	for _, m := range prior {
		history = append(history, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	history = append(history, llm.Message{Role: string(models.RoleUser), Content: text})

	logging.AppLogger.Info("chat send",
		zap.String("owner_id", p.ownerID),
		zap.String("conversation_id", conv.ID.String()),
		zap.Int("history", len(history)))

	body, err := p.gateway.Stream(streamCtx, history)
	if err != nil {
		if streamCtx.Err() != nil {
			return result, p.abortErr(ctx)
		}
		p.touch(ctx, conv.ID)
		return result, err
	}
	stop := context.AfterFunc(streamCtx, func() { body.Close() })
	defer func() {
		if stop() {
			body.Close()
		}
	}()

	content, err := p.decode(streamCtx, body, onDelta)
	result.Content = content
	if streamCtx.Err() != nil {
		logging.AppLogger.Info("chat send aborted",
			zap.String("conversation_id", conv.ID.String()),
			zap.Int("streamed_bytes", len(content)))
		return result, p.abortErr(ctx)
	}
	if err != nil {
		logging.ErrorLogger.Error("chat stream interrupted",
			zap.String("conversation_id", conv.ID.String()),
			zap.Error(err))
		p.touch(ctx, conv.ID)
		return result, &llm.InferenceError{Err: err}
	}

	var persistErr error
	if content != "" {
		assistantMsg, err := p.store.InsertMessage(ctx, conv.ID, p.ownerID, models.RoleAssistant, content)
		if err != nil {
			logging.ErrorLogger.Error("failed to store assistant message",
				zap.String("conversation_id", conv.ID.String()),
				zap.Error(err))
			persistErr = &PersistenceError{Op: "insert assistant message", Err: err}
		}
		result.AssistantMessage = assistantMsg
	}

	update := models.ConversationUpdate{UpdatedAt: p.now()}
	if len(prior) == 0 {
		title := DeriveTitle(text)
		update.Title = &title
	}
	if err := p.store.UpdateConversation(ctx, conv.ID, update); err != nil && persistErr == nil {
		persistErr = &PersistenceError{Op: "update conversation", Err: err}
	}

	completed := p.emit(streamCtx, func() {
		if onComplete != nil {
			onComplete(content)
		}
	})
	if !completed {
		return result, p.abortErr(ctx)
	}
	return result, persistErr
}

func (p *Pipeline) resolveConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	if id == uuid.Nil {
		conv, err := p.store.InsertConversation(ctx, p.ownerID, models.DefaultConversationTitle)
		if err != nil {
			return nil, &PersistenceError{Op: "insert conversation", Err: err}
		}
		return conv, nil
	}
	return p.owned(ctx, id)
}

// owned loads a conversation and hides other owners' conversations.
func (p *Pipeline) owned(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv, err := p.store.GetConversation(ctx, id)
	if errors.Is(err, dao.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get conversation", Err: err}
	}
	if conv.UserID != p.ownerID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// decode reads body chunk by chunk and returns the accumulated reply. It
// stops at the [DONE] sentinel, at end of input, or once ctx is done.
func (p *Pipeline) decode(ctx context.Context, body io.Reader, onDelta func(string)) (string, error) {
	dec := stream.NewDecoder(p.maxFrameBytes)
	var sb strings.Builder
	buf := make([]byte, readChunkSize)

	defer func() {
		if n := dec.Dropped(); n > 0 {
			logging.AppLogger.Warn("dropped malformed stream frames", zap.Int("count", n))
		}
	}()

	for !dec.Done() {
		if ctx.Err() != nil {
			return sb.String(), ctx.Err()
		}
		n, readErr := body.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
		}
		if readErr == io.EOF {
			dec.Finish()
		}
		for {
			delta, ok := dec.Next()
			if !ok {
				break
			}
			sent := p.emit(ctx, func() {
				if onDelta != nil {
					onDelta(delta)
				}
			})
			if !sent {
				return sb.String(), ctx.Err()
			}
			sb.WriteString(delta)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return sb.String(), readErr
		}
	}
	return sb.String(), nil
}

// touch bumps updated-at after a failed attempt. Failures are only logged.
func (p *Pipeline) touch(ctx context.Context, id uuid.UUID) {
	err := p.store.UpdateConversation(ctx, id, models.ConversationUpdate{UpdatedAt: p.now()})
	if err != nil {
		logging.ErrorLogger.Error("failed to bump conversation",
			zap.String("conversation_id", id.String()),
			zap.Error(err))
	}
}

// CreateConversation starts an empty conversation. An empty title gets the
// default placeholder.
func (p *Pipeline) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = models.DefaultConversationTitle
	}
	conv, err := p.store.InsertConversation(ctx, p.ownerID, title)
	if err != nil {
		return nil, &PersistenceError{Op: "insert conversation", Err: err}
	}
	return conv, nil
}

func (p *Pipeline) RenameConversation(ctx context.Context, id uuid.UUID, title string) (*models.Conversation, error) {
	conv, err := p.owned(ctx, id)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = models.DefaultConversationTitle
	}
	update := models.ConversationUpdate{Title: &title, UpdatedAt: p.now()}
	if err := p.store.UpdateConversation(ctx, id, update); err != nil {
		return nil, &PersistenceError{Op: "update conversation", Err: err}
	}
	conv.Title = title
	conv.UpdatedAt = update.UpdatedAt
	return conv, nil
}

// DeleteConversation removes the conversation with its messages. Callers
// holding id as their active conversation must drop it.
func (p *Pipeline) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	if _, err := p.owned(ctx, id); err != nil {
		return err
	}
	if err := p.store.DeleteConversation(ctx, id); err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return ErrConversationNotFound
		}
		return &PersistenceError{Op: "delete conversation", Err: err}
	}
	return nil
}

// ListConversations returns the owner's conversations, most recent first.
func (p *Pipeline) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	return p.store.ListConversations(ctx, p.ownerID)
}

// ListMessages returns a conversation's messages, oldest first.
func (p *Pipeline) ListMessages(ctx context.Context, id uuid.UUID) ([]models.Message, error) {
	if _, err := p.owned(ctx, id); err != nil {
		return nil, err
	}
	return p.store.ListMessages(ctx, id)
}
