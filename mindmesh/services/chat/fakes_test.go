package chat

import (
	"context"
	"io"
	"mindmesh/mindmesh/services/llm"
	"mindmesh/mindmesh/sources/psql/dao"
	"mindmesh/mindmesh/sources/psql/models"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store with failure injection.
type memStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*models.Conversation
	messages      []models.Message
	calls         int
	tick          time.Time

	failInsert map[models.Role]error
	failUpdate error
}

func newMemStore() *memStore {
	return &memStore{
		conversations: map[uuid.UUID]*models.Conversation{},
		failInsert:    map[models.Role]error{},
		tick:          time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) next() time.Time {
	s.tick = s.tick.Add(time.Second)
	return s.tick
}

func (s *memStore) InsertConversation(ctx context.Context, ownerID, title string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	at := s.next()
	conv := &models.Conversation{ID: uuid.New(), UserID: ownerID, Title: title, CreatedAt: at, UpdatedAt: at}
	s.conversations[conv.ID] = conv
	copied := *conv
	return &copied, nil
}

func (s *memStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	conv, ok := s.conversations[id]
	if !ok {
		return nil, dao.ErrNotFound
	}
	copied := *conv
	return &copied, nil
}

func (s *memStore) InsertMessage(ctx context.Context, conversationID uuid.UUID, ownerID string, role models.Role, content string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.failInsert[role]; err != nil {
		return nil, err
	}
	msg := models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		UserID:         ownerID,
		Role:           role,
		Content:        content,
		CreatedAt:      s.next(),
	}
	s.messages = append(s.messages, msg)
	return &msg, nil
}

func (s *memStore) UpdateConversation(ctx context.Context, id uuid.UUID, update models.ConversationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failUpdate != nil {
		return s.failUpdate
	}
	conv, ok := s.conversations[id]
	if !ok {
		return dao.ErrNotFound
	}
	if update.Title != nil {
		conv.Title = *update.Title
	}
	conv.UpdatedAt = update.UpdatedAt
	return nil
}

func (s *memStore) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if _, ok := s.conversations[id]; !ok {
		return dao.ErrNotFound
	}
	delete(s.conversations, id)
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ConversationID != id {
			kept = append(kept, m)
		}
	}
	s.messages = kept
	return nil
}

func (s *memStore) ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	var out []models.Conversation
	for _, c := range s.conversations {
		if c.UserID == ownerID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *memStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	var out []models.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) messagesWithRole(role models.Role) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

func (s *memStore) conversation(id uuid.UUID) models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.conversations[id]
}

func (s *memStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// chunkedBody hands out one chunk per Read, then fails with err or io.EOF.
type chunkedBody struct {
	chunks []string
	err    error
	closed bool
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	if len(b.chunks) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	if n < len(b.chunks[0]) {
		b.chunks[0] = b.chunks[0][n:]
	} else {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *chunkedBody) Close() error {
	b.closed = true
	return nil
}

// blockingBody delivers first, then blocks until closed.
type blockingBody struct {
	first   string
	sent    bool
	closed  chan struct{}
	once    sync.Once
	reached chan struct{}
	waiting sync.Once
}

func newBlockingBody(first string) *blockingBody {
	return &blockingBody{first: first, closed: make(chan struct{}), reached: make(chan struct{})}
}

func (b *blockingBody) Read(p []byte) (int, error) {
	if !b.sent {
		b.sent = true
		return copy(p, b.first), nil
	}
	b.waiting.Do(func() { close(b.reached) })
	<-b.closed
	return 0, io.ErrClosedPipe
}

func (b *blockingBody) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

type fakeGateway struct {
	mu      sync.Mutex
	body    io.ReadCloser
	err     error
	calls   int
	history []llm.Message
}

func (g *fakeGateway) Stream(ctx context.Context, messages []llm.Message) (io.ReadCloser, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.history = append([]llm.Message(nil), messages...)
	if g.err != nil {
		return nil, g.err
	}
	return g.body, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type recorder struct {
	deltas    []string
	completed []string
}

func (r *recorder) onDelta(d string)    { r.deltas = append(r.deltas, d) }
func (r *recorder) onComplete(s string) { r.completed = append(r.completed, s) }
