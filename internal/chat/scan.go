package chat

import (
	"database/sql"

	"github.com/devroad/mentorchat/internal/models"
)

type userColumns struct {
	id          sql.NullInt64
	username    sql.NullString
	displayName sql.NullString
	role        sql.NullString
}

func (u userColumns) participant() models.Participant {
	p := models.Participant{
		ID:          int(u.id.Int64),
		Username:    u.username.String,
		DisplayName: u.username.String,
		Role:        models.Role(u.role.String),
	}
	if u.displayName.Valid && u.displayName.String != "" {
		p.DisplayName = u.displayName.String
	}
	return p
}

// lastMessageColumns scans a LEFT JOINed message that may be absent.
type lastMessageColumns struct {
	id        sql.NullString
	senderID  sql.NullInt64
	kind      sql.NullString
	body      sql.NullString
	mediaRef  sql.NullString
	replyToID sql.NullString
	createdAt sql.NullTime
	sender    userColumns
}

func (c lastMessageColumns) message(conversationID string) *models.Message {
	if !c.id.Valid {
		return nil
	}
	c.sender.id = c.senderID
	return &models.Message{
		ID:             c.id.String,
		ConversationID: conversationID,
		SenderID:       int(c.senderID.Int64),
		Kind:           models.MessageKind(c.kind.String),
		Body:           c.body.String,
		MediaURL:       nullableString(c.mediaRef),
		ReplyToID:      nullableString(c.replyToID),
		CreatedAt:      c.createdAt.Time,
		Sender:         c.sender.participant(),
	}
}

// messageSelect reads a message with its sender and reply projections.
const messageSelect = `
	SELECT m.id, m.conversation_id, m.sender_id, m.kind, m.body, m.media_ref, m.reply_to_id, m.created_at,
		s.username, s.display_name, s.role,
		r.id, r.kind, r.body, r.sender_id, rs.username, rs.display_name
	FROM messages m
	JOIN users s ON s.id = m.sender_id
	LEFT JOIN messages r ON r.id = m.reply_to_id
	LEFT JOIN users rs ON rs.id = r.sender_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var kind string
	var mediaRef, replyToID sql.NullString
	var sender userColumns
	var replyID, replyKind, replyBody sql.NullString
	var replySender userColumns

	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &kind, &msg.Body, &mediaRef, &replyToID, &msg.CreatedAt,
		&sender.username, &sender.displayName, &sender.role,
		&replyID, &replyKind, &replyBody, &replySender.id, &replySender.username, &replySender.displayName,
	)
	if err != nil {
		return nil, err
	}

	msg.Kind = models.MessageKind(kind)
	msg.MediaURL = nullableString(mediaRef)
	msg.ReplyToID = nullableString(replyToID)
	sender.id = sql.NullInt64{Int64: int64(msg.SenderID), Valid: true}
	msg.Sender = sender.participant()

	if replyID.Valid {
		msg.ReplyTo = &models.ReplyPreview{
			ID:         replyID.String,
			Kind:       models.MessageKind(replyKind.String),
			Body:       replyBody.String,
			SenderID:   int(replySender.id.Int64),
			SenderName: replySender.participant().DisplayName,
		}
	}
	return &msg, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
