// Package chat keeps the client's view of conversations and messages in sync
// with the backend, including the optimistic send/reconcile cycle.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/imunoz/finsight/internal/api"
)

// Sentinel errors returned by SendMessage.
var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrSendInFlight = errors.New("a send is already in flight")
)

// Fallback messages when the server response carries no detail field.
const (
	fallbackLoadConversations = "could not load conversations"
	fallbackLoadConversation  = "could not load conversation"
	fallbackSend              = "could not send message"
)

// Message is a chat message as the client renders it. Pending marks an
// optimistic entry that has not been confirmed by the server yet; pending
// entries carry negative ids so they can never collide with server ids.
type Message struct {
	api.Message
	Pending bool
}

// Gateway is the slice of the API client the synchronizer needs.
type Gateway interface {
	SendMessage(ctx context.Context, message string, conversationID int) (api.ChatResponse, error)
	Conversations(ctx context.Context) ([]api.Conversation, error)
	Conversation(ctx context.Context, id int) (api.ConversationDetail, error)
	CreateConversation(ctx context.Context, title string) (api.Conversation, error)
}

// Archiver receives confirmed state for local archival. Implementations must
// tolerate being called from multiple goroutines; errors are logged, never
// surfaced — the archive is a cache, not a source of truth.
type Archiver interface {
	ArchiveConversations(convs []api.Conversation) error
	ArchiveMessages(msgs []api.Message) error
}

// Synchronizer owns the chat state for one logical session: the conversation
// list, the current conversation's messages and the in-flight send flag.
// Construct with NewSynchronizer; all methods are safe for concurrent use.
type Synchronizer struct {
	mu            sync.Mutex
	conversations []api.Conversation
	messages      []Message
	currentID     int // 0 = no conversation selected
	sending       bool
	errMsg        string
	nextTempID    int // decreasing, always negative

	gw      Gateway
	archive Archiver
	log     *zap.Logger
}

// NewSynchronizer creates an empty synchronizer. archive may be nil.
func NewSynchronizer(gw Gateway, archive Archiver, log *zap.Logger) *Synchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synchronizer{gw: gw, archive: archive, log: log}
}

// LoadConversations replaces the conversation list with the server's. On
// failure the list is left unchanged and the error message is set.
func (s *Synchronizer) LoadConversations(ctx context.Context) error {
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()

	convs, err := s.gw.Conversations(ctx)

	s.mu.Lock()
	if err != nil {
		s.errMsg = api.Detail(err, fallbackLoadConversations)
		s.mu.Unlock()
		return err
	}
	s.conversations = convs
	s.mu.Unlock()
	s.archiveConversations(convs)
	return nil
}

// LoadConversation selects id immediately and then fetches its history. On
// success the message list is replaced; on failure stale messages stay in
// place and the error message is set.
func (s *Synchronizer) LoadConversation(ctx context.Context, id int) error {
	s.mu.Lock()
	s.currentID = id
	s.errMsg = ""
	s.mu.Unlock()

	detail, err := s.gw.Conversation(ctx, id)

	s.mu.Lock()
	if err != nil {
		s.errMsg = api.Detail(err, fallbackLoadConversation)
		s.mu.Unlock()
		return err
	}
	msgs := make([]Message, len(detail.Messages))
	for i, m := range detail.Messages {
		msgs[i] = Message{Message: m}
	}
	s.messages = msgs
	s.mu.Unlock()
	s.archiveMessages(detail.Messages)
	return nil
}

// SendMessage appends an optimistic user message, posts it, and reconciles
// the list with the server's confirmed pair. On failure the optimistic entry
// is rolled back by its temporary id, so the list returns to its pre-send
// shape. At most one send runs per synchronizer; concurrent calls get
// ErrSendInFlight. A successful send also refreshes the conversation list;
// that refresh failing does not mask the send's success.
func (s *Synchronizer) SendMessage(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.sending {
		s.mu.Unlock()
		return ErrSendInFlight
	}
	s.sending = true
	s.errMsg = ""
	s.nextTempID--
	tempID := s.nextTempID
	convID := s.currentID
	s.messages = append(s.messages, Message{
		Message: api.Message{
			ID:             tempID,
			ConversationID: convID,
			Role:           api.RoleUser,
			Content:        content,
			CreatedAt:      time.Now().UTC().Format(time.RFC3339),
		},
		Pending: true,
	})
	s.mu.Unlock()

	resp, err := s.gw.SendMessage(ctx, content, convID)

	s.mu.Lock()
	// Rollback/replacement matches on the temporary id, never on position:
	// a concurrent LoadConversation may have replaced the slice meanwhile.
	s.removeByID(tempID)
	if err != nil {
		s.errMsg = api.Detail(err, fallbackSend)
		s.sending = false
		s.mu.Unlock()
		s.log.Debug("send failed, optimistic message rolled back", zap.Int("temp_id", tempID))
		return err
	}
	s.messages = append(s.messages, Message{Message: resp.UserMessage}, Message{Message: resp.AssistantMessage})
	s.currentID = resp.ConversationID
	s.sending = false
	s.mu.Unlock()

	s.archiveMessages([]api.Message{resp.UserMessage, resp.AssistantMessage})

	if err := s.LoadConversations(ctx); err != nil {
		s.log.Warn("conversation list refresh after send failed", zap.Error(err))
		s.mu.Lock()
		s.errMsg = ""
		s.mu.Unlock()
	}
	return nil
}

// removeByID must be called with mu held.
func (s *Synchronizer) removeByID(id int) {
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	s.messages = kept
}

// SetCurrentConversation clears the message list and, for a non-zero id,
// loads that conversation's history. A zero id means "start fresh": no
// network call, the next SendMessage creates the conversation server-side.
func (s *Synchronizer) SetCurrentConversation(ctx context.Context, id int) error {
	s.mu.Lock()
	s.currentID = id
	s.messages = nil
	s.mu.Unlock()
	if id == 0 {
		return nil
	}
	return s.LoadConversation(ctx, id)
}

// NewConversation clears the selection and messages without touching the
// network.
func (s *Synchronizer) NewConversation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentID = 0
	s.messages = nil
}

// CreateConversation explicitly creates an empty conversation server-side
// and selects it.
func (s *Synchronizer) CreateConversation(ctx context.Context, title string) (api.Conversation, error) {
	conv, err := s.gw.CreateConversation(ctx, title)
	if err != nil {
		s.mu.Lock()
		s.errMsg = api.Detail(err, fallbackLoadConversation)
		s.mu.Unlock()
		return api.Conversation{}, err
	}
	s.mu.Lock()
	s.currentID = conv.ID
	s.messages = nil
	s.mu.Unlock()
	return conv, nil
}

func (s *Synchronizer) archiveConversations(convs []api.Conversation) {
	if s.archive == nil {
		return
	}
	if err := s.archive.ArchiveConversations(convs); err != nil {
		s.log.Warn("archiving conversations failed", zap.Error(err))
	}
}

func (s *Synchronizer) archiveMessages(msgs []api.Message) {
	if s.archive == nil {
		return
	}
	if err := s.archive.ArchiveMessages(msgs); err != nil {
		s.log.Warn("archiving messages failed", zap.Error(err))
	}
}

// Conversations returns a copy of the conversation list.
func (s *Synchronizer) Conversations() []api.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Messages returns a copy of the current message list in render order.
func (s *Synchronizer) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// CurrentConversation returns the selected conversation id, 0 when none.
func (s *Synchronizer) CurrentConversation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// Sending reports whether a send is in flight.
func (s *Synchronizer) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// Err returns the current user-facing error message, empty when none.
func (s *Synchronizer) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// ClearError drops the error message.
func (s *Synchronizer) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = ""
}
