package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/devroad/mentorchat/internal/models"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
)

// API is the part of the chat API the inbox needs.
type API interface {
	ListConversations(ctx context.Context) ([]*models.ConversationSummary, error)
	Messages(ctx context.Context, conversationID, cursor string, limit int) (*models.MessagePage, error)
	Send(ctx context.Context, conversationID string, d models.Draft) (*models.Message, error)
}

// SendState gates the send action of the open conversation. Messages are
// only shown once the server returns them.
type SendState int

const (
	SendIdle SendState = iota
	SendSending
	SendAppended
	SendFailed
)

func (s SendState) String() string {
	switch s {
	case SendIdle:
		return "idle"
	case SendSending:
		return "sending"
	case SendAppended:
		return "appended"
	case SendFailed:
		return "failed"
	}
	return fmt.Sprintf("SendState(%d)", int(s))
}

// Inbox keeps the conversation list ordered by recency and the open
// conversation's messages in chronological order.
type Inbox struct {
	api      API
	pageSize int

	mu            sync.Mutex
	conversations []*models.ConversationSummary
	openID        string
	messages      []*models.Message
	nextCursor    *string
	// generation changes whenever another conversation is opened so that
	// responses for the previous one can be recognised and dropped
	generation   uint64
	loadingOlder bool
	sendState    SendState
	sendErr      error
	replyTo      *models.Message
}

// NewInbox creates an inbox. pageSize <= 0 leaves the page size to the
// server.
func NewInbox(api API, pageSize int) *Inbox {
	return &Inbox{api: api, pageSize: pageSize}
}

// Refresh reloads the conversation list.
func (b *Inbox) Refresh(ctx context.Context) error {
	list, err := b.api.ListConversations(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations = list
	return nil
}

// Open switches to a conversation and loads its newest page. When another
// conversation is opened before the page arrives, the page is dropped.
func (b *Inbox) Open(ctx context.Context, conversationID string) error {
	b.mu.Lock()
	b.generation++
	gen := b.generation
	b.openID = conversationID
	b.messages = nil
	b.nextCursor = nil
	b.loadingOlder = false
	b.sendState = SendIdle
	b.sendErr = nil
	b.replyTo = nil
	b.mu.Unlock()

	page, err := b.api.Messages(ctx, conversationID, "", b.pageSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.generation {
		return nil
	}
	if err != nil {
		return err
	}
	b.messages = mergeTail(page.Messages, b.messages)
	b.nextCursor = page.NextCursor
	return nil
}

// LoadOlder prepends the page before the oldest loaded message and returns
// how many messages were added. It does nothing once the start of the
// conversation is loaded or while another load is running.
func (b *Inbox) LoadOlder(ctx context.Context) (int, error) {
	b.mu.Lock()
	if b.openID == "" {
		b.mu.Unlock()
		return 0, apperrors.ErrNoOpenConversation
	}
	if b.nextCursor == nil || b.loadingOlder {
		b.mu.Unlock()
		return 0, nil
	}
	gen, conversationID, cursor := b.generation, b.openID, *b.nextCursor
	b.loadingOlder = true
	b.mu.Unlock()

	page, err := b.api.Messages(ctx, conversationID, cursor, b.pageSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.generation {
		return 0, nil
	}
	b.loadingOlder = false
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(b.messages))
	for _, m := range b.messages {
		seen[m.ID] = struct{}{}
	}
	older := make([]*models.Message, 0, len(page.Messages))
	for _, m := range page.Messages {
		if _, ok := seen[m.ID]; !ok {
			older = append(older, m)
		}
	}
	b.messages = append(older, b.messages...)
	b.nextCursor = page.NextCursor
	return len(older), nil
}

// Send posts d to the open conversation. Only one send may be in flight.
// The confirmed message is appended to the open conversation and its
// summary moves to the head of the list. A pending reply is attached to d
// when d names none, and cleared on success.
func (b *Inbox) Send(ctx context.Context, d models.Draft) (*models.Message, error) {
	b.mu.Lock()
	if b.openID == "" {
		b.mu.Unlock()
		return nil, apperrors.ErrNoOpenConversation
	}
	if b.sendState == SendSending {
		b.mu.Unlock()
		return nil, apperrors.ErrSendInFlight
	}
	if d.ReplyToID == nil && b.replyTo != nil {
		id := b.replyTo.ID
		d.ReplyToID = &id
	}
	gen, conversationID := b.generation, b.openID
	b.sendState = SendSending
	b.sendErr = nil
	b.mu.Unlock()

	msg, err := b.api.Send(ctx, conversationID, d)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		if gen == b.generation {
			b.sendState = SendFailed
			b.sendErr = err
		}
		return nil, err
	}

	if gen == b.generation {
		b.sendState = SendAppended
		b.replyTo = nil
		b.appendMessage(msg)
	}
	b.touchSummary(msg)
	return msg, nil
}

// Ingest applies a message pushed by the server, for example over the
// websocket. Messages already present are ignored.
func (b *Inbox) Ingest(msg *models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if msg.ConversationID == b.openID {
		b.appendMessage(msg)
	}
	b.touchSummary(msg)
}

// Reply marks msg as the message the next send answers.
func (b *Inbox) Reply(msg *models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replyTo = msg
}

func (b *Inbox) CancelReply() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replyTo = nil
}

func (b *Inbox) ReplyingTo() *models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.replyTo
}

func (b *Inbox) OpenID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openID
}

// Conversations returns a snapshot of the conversation list.
func (b *Inbox) Conversations() []*models.ConversationSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*models.ConversationSummary(nil), b.conversations...)
}

// Messages returns a snapshot of the open conversation.
func (b *Inbox) Messages() []*models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*models.Message(nil), b.messages...)
}

func (b *Inbox) HasOlder() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextCursor != nil
}

func (b *Inbox) SendState() (SendState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sendState, b.sendErr
}

// appendMessage adds msg to the tail unless it is already loaded. Callers
// hold mu.
func (b *Inbox) appendMessage(msg *models.Message) {
	for i := len(b.messages) - 1; i >= 0; i-- {
		if b.messages[i].ID == msg.ID {
			return
		}
	}
	b.messages = append(b.messages, msg)
}

// touchSummary moves the summary of msg's conversation to the head of the
// list with msg as its last message. Callers hold mu.
func (b *Inbox) touchSummary(msg *models.Message) {
	idx := -1
	for i, s := range b.conversations {
		if s.ID == msg.ConversationID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	updated := *b.conversations[idx]
	updated.LastMessage = msg
	if msg.CreatedAt.After(updated.LastActivityAt) {
		updated.LastActivityAt = msg.CreatedAt
	}

	list := make([]*models.ConversationSummary, 0, len(b.conversations))
	list = append(list, &updated)
	list = append(list, b.conversations[:idx]...)
	list = append(list, b.conversations[idx+1:]...)
	b.conversations = list
}

// mergeTail returns page followed by the messages of tail that page does not
// contain. tail holds messages ingested while the page was loading.
func mergeTail(page, tail []*models.Message) []*models.Message {
	out := append([]*models.Message(nil), page...)
	seen := make(map[string]struct{}, len(page))
	for _, m := range page {
		seen[m.ID] = struct{}{}
	}
	for _, m := range tail {
		if _, ok := seen[m.ID]; !ok {
			out = append(out, m)
		}
	}
	return out
}
