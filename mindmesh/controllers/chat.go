// mindmesh/controllers/chat.go
package controllers

import (
	"context"
	"errors"
	"mindmesh/mindmesh/services/chat"
	"mindmesh/mindmesh/sources/psql/models"
	"mindmesh/mindmesh/utils/types"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var ErrInvalidConversationID = errors.New("invalid conversation id")

// ChatController keeps one pipeline per owner so a user has at most one
// reply streaming at a time. A pipeline lives only while a request holds it.
type ChatController struct {
	store   chat.Store
	gateway chat.Gateway
	opts    []chat.Option

	mu        sync.Mutex
	pipelines map[string]*ownerPipeline
}

type ownerPipeline struct {
	pipeline *chat.Pipeline
	refs     int
}

func NewChatController(store chat.Store, gateway chat.Gateway, opts ...chat.Option) *ChatController {
	return &ChatController{
		store:     store,
		gateway:   gateway,
		opts:      opts,
		pipelines: make(map[string]*ownerPipeline),
	}
}

// acquire returns the owner's pipeline. Every acquire needs a release.
func (c *ChatController) acquire(ownerID string) *chat.Pipeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.pipelines[ownerID]
	if !ok {
		e = &ownerPipeline{pipeline: chat.NewPipeline(c.store, c.gateway, ownerID, c.opts...)}
		c.pipelines[ownerID] = e
	}
	e.refs++
	return e.pipeline
}

func (c *ChatController) release(ownerID string, p *chat.Pipeline) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.pipelines[ownerID]
	if !ok || e.pipeline != p {
		return
	}
	e.refs--
	if e.refs <= 0 && !e.pipeline.IsStreaming() {
		delete(c.pipelines, ownerID)
	}
}

// active reports how many owners currently hold a pipeline.
func (c *ChatController) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pipelines)
}

// Close aborts every in-flight stream.
func (c *ChatController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for owner, e := range c.pipelines {
		e.pipeline.Close()
		delete(c.pipelines, owner)
	}
}

func parseConversationID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrInvalidConversationID
	}
	return id, nil
}

func (c *ChatController) ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	p := c.acquire(ownerID)
	defer c.release(ownerID, p)
	return p.ListConversations(ctx)
}

func (c *ChatController) CreateConversation(ctx context.Context, ownerID string, req types.ConversationRequest) (*models.Conversation, error) {
	p := c.acquire(ownerID)
	defer c.release(ownerID, p)
	return p.CreateConversation(ctx, req.Title)
}

func (c *ChatController) RenameConversation(ctx context.Context, ownerID, rawID string, req types.ConversationRequest) (*models.Conversation, error) {
	id, err := parseConversationID(rawID)
	if err != nil || id == uuid.Nil {
		return nil, ErrInvalidConversationID
	}
	p := c.acquire(ownerID)
	defer c.release(ownerID, p)
	return p.RenameConversation(ctx, id, req.Title)
}

func (c *ChatController) DeleteConversation(ctx context.Context, ownerID, rawID string) error {
	id, err := parseConversationID(rawID)
	if err != nil || id == uuid.Nil {
		return ErrInvalidConversationID
	}
	p := c.acquire(ownerID)
	defer c.release(ownerID, p)
	return p.DeleteConversation(ctx, id)
}

func (c *ChatController) ListMessages(ctx context.Context, ownerID, rawID string) ([]models.Message, error) {
	id, err := parseConversationID(rawID)
	if err != nil || id == uuid.Nil {
		return nil, ErrInvalidConversationID
	}
	p := c.acquire(ownerID)
	defer c.release(ownerID, p)
	return p.ListMessages(ctx, id)
}

// PreparedSend is a validated send whose history has been loaded. It holds
// the owner's pipeline until Send or Discard.
type PreparedSend struct {
	ownerID        string
	pipeline       *chat.Pipeline
	conversationID uuid.UUID
	text           string
	prior          []models.Message
	released       bool
}

// PrepareSend runs every check that can fail before a reply starts
// streaming, so callers can still answer with a plain status.
func (c *ChatController) PrepareSend(ctx context.Context, ownerID string, req types.ChatRequest) (*PreparedSend, error) {
	text := strings.TrimSpace(req.Content)
	if text == "" {
		return nil, chat.ErrEmptyMessage
	}
	id, err := parseConversationID(req.ConversationID)
	if err != nil {
		return nil, err
	}
	p := c.acquire(ownerID)
	if p.IsStreaming() {
		c.release(ownerID, p)
		return nil, chat.ErrStreamInProgress
	}

	var prior []models.Message
	if id != uuid.Nil {
		if prior, err = p.ListMessages(ctx, id); err != nil {
			c.release(ownerID, p)
			return nil, err
		}
	}
	return &PreparedSend{ownerID: ownerID, pipeline: p, conversationID: id, text: text, prior: prior}, nil
}

// Send streams the reply for a prepared send and releases it.
func (c *ChatController) Send(ctx context.Context, ps *PreparedSend, onDelta, onComplete func(string)) (*chat.SendResult, error) {
	defer c.Discard(ps)
	return ps.pipeline.SendMessage(ctx, ps.conversationID, ps.text, ps.prior, onDelta, onComplete)
}

// Discard releases a prepared send that will not be sent. It is safe to call
// more than once.
func (c *ChatController) Discard(ps *PreparedSend) {
	if ps.released {
		return
	}
	ps.released = true
	c.release(ps.ownerID, ps.pipeline)
}
