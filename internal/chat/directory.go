// Package chat holds the mentor-learner conversation directory and the
// per-conversation message log.
package chat

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/devroad/mentorchat/internal/metrics"
	"github.com/devroad/mentorchat/internal/models"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	pkgerrors "github.com/pkg/errors"
)

// Directory maps a (learner, mentor) pair to its single conversation.
type Directory struct {
	db      *sql.DB
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewDirectory(db *sql.DB, m *metrics.Metrics) *Directory {
	return &Directory{db: db, metrics: m, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (d *Directory) WithClock(now func() time.Time) *Directory {
	d.now = now
	return d
}

const conversationColumns = "id, learner_id, mentor_id, created_at, last_activity_at"

// GetOrCreate returns the conversation between learnerID and mentorID,
// creating it on first contact. The mentor must hold a role that may mentor.
// Concurrent first contacts for the same pair all receive the same row.
func (d *Directory) GetOrCreate(ctx context.Context, learnerID, mentorID int) (*models.Conversation, error) {
	if learnerID == mentorID {
		return nil, apperrors.ErrSelfConversation
	}

	var role string
	err := d.db.QueryRowContext(ctx, "SELECT role FROM users WHERE id = ?", mentorID).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrMentorNotFound
		}
		return nil, pkgerrors.Wrap(err, "directory.GetOrCreate.LookupMentor")
	}
	if !models.Role(role).CanMentor() {
		return nil, apperrors.ErrMentorNotFound
	}

	conv, err := d.findPair(ctx, learnerID, mentorID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.Wrap(err, "directory.GetOrCreate.FindPair")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "directory.GetOrCreate.NewID")
	}
	now := d.now().UTC()
	_, err = d.db.ExecContext(ctx,
		"INSERT INTO conversations ("+conversationColumns+") VALUES (?, ?, ?, ?, ?)",
		id.String(), learnerID, mentorID, now, now,
	)
	if err != nil {
		if !isUniqueViolation(err) {
			return nil, pkgerrors.Wrap(err, "directory.GetOrCreate.Insert")
		}
		// lost the race: the pair constraint kept the other insert
		conv, err := d.findPair(ctx, learnerID, mentorID)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "directory.GetOrCreate.ReadWinner")
		}
		return conv, nil
	}

	d.metrics.ConversationCreated()
	return &models.Conversation{
		ID:             id.String(),
		LearnerID:      learnerID,
		MentorID:       mentorID,
		CreatedAt:      now,
		LastActivityAt: now,
	}, nil
}

// Authorize returns the conversation when userID is one of its two
// participants. Unknown conversations yield ErrConversationNotFound and
// non-participants ErrNotParticipant.
func (d *Directory) Authorize(ctx context.Context, conversationID string, userID int) (*models.Conversation, error) {
	conv, err := d.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, apperrors.ErrNotParticipant
	}
	return conv, nil
}

func (d *Directory) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	conv, err := scanConversation(d.db.QueryRowContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE id = ?", conversationID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, pkgerrors.Wrap(err, "directory.Get.Scan")
	}
	return conv, nil
}

// Detail resolves both parties of a conversation.
func (d *Directory) Detail(ctx context.Context, conv *models.Conversation) (*models.ConversationDetail, error) {
	learner, err := d.participant(ctx, conv.LearnerID)
	if err != nil {
		return nil, err
	}
	mentor, err := d.participant(ctx, conv.MentorID)
	if err != nil {
		return nil, err
	}
	return &models.ConversationDetail{
		ID:             conv.ID,
		LearnerID:      conv.LearnerID,
		MentorID:       conv.MentorID,
		Learner:        learner,
		Mentor:         mentor,
		CreatedAt:      conv.CreatedAt,
		LastActivityAt: conv.LastActivityAt,
	}, nil
}

// ListForParticipant returns every conversation userID takes part in, most
// recently active first, each with the other party and the newest message.
func (d *Directory) ListForParticipant(ctx context.Context, userID int) ([]*models.ConversationSummary, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT c.id, c.learner_id, c.mentor_id, c.last_activity_at,
			o.id, o.username, o.display_name, o.role,
			m.id, m.sender_id, m.kind, m.body, m.media_ref, m.reply_to_id, m.created_at,
			s.username, s.display_name, s.role
		FROM conversations c
		JOIN users o ON o.id = CASE WHEN c.learner_id = ? THEN c.mentor_id ELSE c.learner_id END
		LEFT JOIN messages m ON m.id = (
			SELECT id FROM messages
			WHERE conversation_id = c.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
		LEFT JOIN users s ON s.id = m.sender_id
		WHERE c.learner_id = ? OR c.mentor_id = ?
		ORDER BY c.last_activity_at DESC, c.id DESC
	`, userID, userID, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "directory.ListForParticipant.Query")
	}
	defer rows.Close()

	summaries := []*models.ConversationSummary{}
	for rows.Next() {
		var sum models.ConversationSummary
		var other userColumns
		var last lastMessageColumns
		if err := rows.Scan(
			&sum.ID, &sum.LearnerID, &sum.MentorID, &sum.LastActivityAt,
			&other.id, &other.username, &other.displayName, &other.role,
			&last.id, &last.senderID, &last.kind, &last.body, &last.mediaRef, &last.replyToID, &last.createdAt,
			&last.sender.username, &last.sender.displayName, &last.sender.role,
		); err != nil {
			return nil, pkgerrors.Wrap(err, "directory.ListForParticipant.Scan")
		}
		sum.OtherParticipant = other.participant()
		sum.LastMessage = last.message(sum.ID)
		summaries = append(summaries, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "directory.ListForParticipant.Rows")
	}
	return summaries, nil
}

// ListAll returns every conversation with both parties, for admins.
func (d *Directory) ListAll(ctx context.Context) ([]*models.ConversationDetail, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT c.id, c.learner_id, c.mentor_id, c.created_at, c.last_activity_at,
			l.id, l.username, l.display_name, l.role,
			t.id, t.username, t.display_name, t.role,
			(SELECT COUNT(*) FROM messages WHERE conversation_id = c.id),
			m.id, m.sender_id, m.kind, m.body, m.media_ref, m.reply_to_id, m.created_at,
			s.username, s.display_name, s.role
		FROM conversations c
		JOIN users l ON l.id = c.learner_id
		JOIN users t ON t.id = c.mentor_id
		LEFT JOIN messages m ON m.id = (
			SELECT id FROM messages
			WHERE conversation_id = c.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
		LEFT JOIN users s ON s.id = m.sender_id
		ORDER BY c.last_activity_at DESC, c.id DESC
	`)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "directory.ListAll.Query")
	}
	defer rows.Close()

	list := []*models.ConversationDetail{}
	for rows.Next() {
		var det models.ConversationDetail
		var learner, mentor userColumns
		var last lastMessageColumns
		if err := rows.Scan(
			&det.ID, &det.LearnerID, &det.MentorID, &det.CreatedAt, &det.LastActivityAt,
			&learner.id, &learner.username, &learner.displayName, &learner.role,
			&mentor.id, &mentor.username, &mentor.displayName, &mentor.role,
			&det.MessageCount,
			&last.id, &last.senderID, &last.kind, &last.body, &last.mediaRef, &last.replyToID, &last.createdAt,
			&last.sender.username, &last.sender.displayName, &last.sender.role,
		); err != nil {
			return nil, pkgerrors.Wrap(err, "directory.ListAll.Scan")
		}
		det.Learner = learner.participant()
		det.Mentor = mentor.participant()
		det.LastMessage = last.message(det.ID)
		list = append(list, &det)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "directory.ListAll.Rows")
	}
	return list, nil
}

// ListMentors returns users who can be contacted as mentors, excluding
// excludeID.
func (d *Directory) ListMentors(ctx context.Context, excludeID int) ([]models.Participant, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, username, display_name, role
		FROM users
		WHERE role IN (?, ?) AND id != ?
		ORDER BY COALESCE(display_name, username) ASC, id ASC
	`, string(models.RoleMentor), string(models.RoleAdmin), excludeID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "directory.ListMentors.Query")
	}
	defer rows.Close()

	mentors := []models.Participant{}
	for rows.Next() {
		var u userColumns
		if err := rows.Scan(&u.id, &u.username, &u.displayName, &u.role); err != nil {
			return nil, pkgerrors.Wrap(err, "directory.ListMentors.Scan")
		}
		mentors = append(mentors, u.participant())
	}
	return mentors, rows.Err()
}

func (d *Directory) findPair(ctx context.Context, learnerID, mentorID int) (*models.Conversation, error) {
	return scanConversation(d.db.QueryRowContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE learner_id = ? AND mentor_id = ?",
		learnerID, mentorID,
	))
}

func (d *Directory) participant(ctx context.Context, userID int) (models.Participant, error) {
	var u userColumns
	err := d.db.QueryRowContext(ctx,
		"SELECT id, username, display_name, role FROM users WHERE id = ?", userID,
	).Scan(&u.id, &u.username, &u.displayName, &u.role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Participant{}, apperrors.ErrUserNotFound
		}
		return models.Participant{}, pkgerrors.Wrap(err, "directory.participant.Scan")
	}
	return u.participant(), nil
}

func scanConversation(row *sql.Row) (*models.Conversation, error) {
	var conv models.Conversation
	if err := row.Scan(&conv.ID, &conv.LearnerID, &conv.MentorID, &conv.CreatedAt, &conv.LastActivityAt); err != nil {
		return nil, err
	}
	return &conv, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
