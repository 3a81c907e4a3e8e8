package chat

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/devroad/mentorchat/internal/metrics"
	"github.com/devroad/mentorchat/internal/models"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100

	// MediaPlaceholder is stored as the body of media messages sent without
	// a caption so clients can always render body.
	MediaPlaceholder = "رسانه"
)

// MessageStore is the append-only message log of every conversation.
type MessageStore struct {
	db      *sql.DB
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewMessageStore(db *sql.DB, m *metrics.Metrics) *MessageStore {
	return &MessageStore{db: db, metrics: m, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (s *MessageStore) WithClock(now func() time.Time) *MessageStore {
	s.now = now
	return s
}

// normalize validates a draft and returns the body and media reference to
// store.
func normalize(d models.Draft) (body string, mediaRef *string, err error) {
	if !d.Kind.Valid() {
		return "", nil, apperrors.ErrInvalidKind
	}
	body = strings.TrimSpace(d.Body)
	if d.MediaURL != nil {
		if ref := strings.TrimSpace(*d.MediaURL); ref != "" {
			mediaRef = &ref
		}
	}

	if d.Kind == models.KindText {
		if body == "" {
			return "", nil, apperrors.ErrEmptyText
		}
		if mediaRef != nil {
			return "", nil, apperrors.ErrMediaOnText
		}
		return body, nil, nil
	}

	if mediaRef == nil {
		return "", nil, apperrors.ErrMediaRequired
	}
	if body == "" {
		body = MediaPlaceholder
	}
	return body, mediaRef, nil
}

// Append validates the draft, records it in the conversation and bumps the
// conversation's last activity time. Both writes share one transaction.
func (s *MessageStore) Append(ctx context.Context, conversationID string, senderID int, d models.Draft) (*models.Message, error) {
	body, mediaRef, err := normalize(d)
	if err != nil {
		return nil, err
	}
	var replyToID *string
	if d.ReplyToID != nil && strings.TrimSpace(*d.ReplyToID) != "" {
		id := strings.TrimSpace(*d.ReplyToID)
		replyToID = &id
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "messageStore.Append.NewID")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "messageStore.Append.Begin")
	}
	defer tx.Rollback()

	var learnerID, mentorID int
	err = tx.QueryRowContext(ctx,
		"SELECT learner_id, mentor_id FROM conversations WHERE id = ?", conversationID,
	).Scan(&learnerID, &mentorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, pkgerrors.Wrap(err, "messageStore.Append.Authorize")
	}
	if senderID != learnerID && senderID != mentorID {
		return nil, apperrors.ErrNotParticipant
	}

	if replyToID != nil {
		var owner string
		err := tx.QueryRowContext(ctx,
			"SELECT conversation_id FROM messages WHERE id = ?", *replyToID,
		).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != conversationID) {
			return nil, apperrors.ErrReplyNotFound
		}
		if err != nil {
			return nil, pkgerrors.Wrap(err, "messageStore.Append.ResolveReply")
		}
	}

	now := s.now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, kind, body, media_ref, reply_to_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id.String(), conversationID, senderID, string(d.Kind), body, mediaRef, replyToID, now); err != nil {
		return nil, pkgerrors.Wrap(err, "messageStore.Append.Insert")
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE conversations SET last_activity_at = ? WHERE id = ?", now, conversationID,
	); err != nil {
		return nil, pkgerrors.Wrap(err, "messageStore.Append.TouchConversation")
	}

	msg, err := scanMessage(tx.QueryRowContext(ctx, messageSelect+" WHERE m.id = ?", id.String()))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "messageStore.Append.Reload")
	}

	if err := tx.Commit(); err != nil {
		return nil, pkgerrors.Wrap(err, "messageStore.Append.Commit")
	}

	s.metrics.MessageAppended(string(msg.Kind))
	return msg, nil
}

// ClampLimit bounds a requested page size to [1, MaxPageSize]; zero or
// negative values select DefaultPageSize.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// Page returns up to limit messages strictly older than the message named by
// cursor, or the newest ones when cursor is empty, in chronological order.
// NextCursor is set to the oldest returned id while older messages remain.
func (s *MessageStore) Page(ctx context.Context, conversationID, cursor string, limit int) (*models.MessagePage, error) {
	limit = ClampLimit(limit)

	query := messageSelect + " WHERE m.conversation_id = ?"
	args := []any{conversationID}
	if cursor != "" {
		var owner string
		err := s.db.QueryRowContext(ctx,
			"SELECT conversation_id FROM messages WHERE id = ?", cursor,
		).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != conversationID) {
			return nil, apperrors.ErrInvalidCursor
		}
		if err != nil {
			return nil, pkgerrors.Wrap(err, "messageStore.Page.ResolveCursor")
		}
		query += " AND (m.created_at, m.id) < (SELECT created_at, id FROM messages WHERE id = ?)"
		args = append(args, cursor)
	}
	// one extra row tells whether older messages remain
	query += " ORDER BY m.created_at DESC, m.id DESC LIMIT ?"
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "messageStore.Page.Query")
	}
	defer rows.Close()

	messages := make([]*models.Message, 0, limit+1)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "messageStore.Page.Scan")
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "messageStore.Page.Rows")
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	page := &models.MessagePage{Messages: messages}
	if hasMore {
		oldest := messages[0].ID
		page.NextCursor = &oldest
	}
	return page, nil
}

// Count returns the number of messages in a conversation.
func (s *MessageStore) Count(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID,
	).Scan(&n)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "messageStore.Count")
	}
	return n, nil
}
