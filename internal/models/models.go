package models

import "time"

type Role string

const (
	RoleLearner Role = "learner"
	RoleMentor  Role = "mentor"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleLearner, RoleMentor, RoleAdmin:
		return true
	}
	return false
}

// CanMentor reports whether a user with this role may be the mentor side of
// a conversation.
func (r Role) CanMentor() bool {
	return r == RoleMentor || r == RoleAdmin
}

type User struct {
	ID          int       `json:"id"`
	Username    string    `json:"username"`
	DisplayName *string   `json:"display_name,omitempty"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

func (u User) Name() string {
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	return u.Username
}

// Participant is the public profile of a conversation party.
type Participant struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role,omitempty"`
}

func ParticipantOf(u User) Participant {
	return Participant{ID: u.ID, Username: u.Username, DisplayName: u.Name(), Role: u.Role}
}

type Conversation struct {
	ID             string    `json:"id"`
	LearnerID      int       `json:"learner_id"`
	MentorID       int       `json:"mentor_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

func (c Conversation) HasParticipant(userID int) bool {
	return c.LearnerID == userID || c.MentorID == userID
}

// OtherParticipant returns the id of the party that is not userID.
func (c Conversation) OtherParticipant(userID int) int {
	if c.LearnerID == userID {
		return c.MentorID
	}
	return c.LearnerID
}

type MessageKind string

const (
	KindText  MessageKind = "TEXT"
	KindImage MessageKind = "IMAGE"
	KindVoice MessageKind = "VOICE"
	KindVideo MessageKind = "VIDEO"
)

func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindVoice, KindVideo:
		return true
	}
	return false
}

// ReplyPreview is the denormalized snippet of a replied-to message.
type ReplyPreview struct {
	ID         string      `json:"id"`
	Kind       MessageKind `json:"kind"`
	Body       string      `json:"body"`
	SenderID   int         `json:"sender_id"`
	SenderName string      `json:"sender_name"`
}

type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       int           `json:"sender_id"`
	Kind           MessageKind   `json:"kind"`
	Body           string        `json:"body"`
	MediaURL       *string       `json:"media_url,omitempty"`
	ReplyToID      *string       `json:"reply_to_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	Sender         Participant   `json:"sender"`
	ReplyTo        *ReplyPreview `json:"reply_to,omitempty"`
}

// Draft is a message as submitted by a participant.
type Draft struct {
	Kind      MessageKind `json:"kind"`
	Body      string      `json:"body"`
	MediaURL  *string     `json:"media_url,omitempty"`
	ReplyToID *string     `json:"reply_to_id,omitempty"`
}

type ConversationSummary struct {
	ID               string      `json:"id"`
	LearnerID        int         `json:"learner_id"`
	MentorID         int         `json:"mentor_id"`
	OtherParticipant Participant `json:"other_participant"`
	LastMessage      *Message    `json:"last_message"`
	LastActivityAt   time.Time   `json:"last_activity_at"`
}

// ConversationDetail is a conversation with both parties resolved. Returned
// when a conversation is opened and by the admin listing.
type ConversationDetail struct {
	ID             string      `json:"id"`
	LearnerID      int         `json:"learner_id"`
	MentorID       int         `json:"mentor_id"`
	Learner        Participant `json:"learner"`
	Mentor         Participant `json:"mentor"`
	LastMessage    *Message    `json:"last_message,omitempty"`
	MessageCount   int         `json:"message_count,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
}

type MessagePage struct {
	Messages   []*Message `json:"messages"`
	NextCursor *string    `json:"next_cursor"`
}

type PushSubscription struct {
	Endpoint  string `json:"endpoint" binding:"required"`
	KeyP256dh string `json:"p256dh" binding:"required"`
	KeyAuth   string `json:"auth" binding:"required"`
}
