package models

import "time"

// MemberSnapshot is a denormalized copy of a participant's display
// fields, cached on the thread for list rendering. It is a cache, not a
// source of truth: staleness is acceptable and not auto-repaired.
type MemberSnapshot struct {
	DisplayName string  `json:"display_name"`
	PhotoURL    *string `json:"photo_url,omitempty"`
}

// LastMessage is the thread's most-recent-message preview. Updated by a
// separate write after the message append, so it can briefly lag the
// true last message.
type LastMessage struct {
	Text      string    `json:"text"`
	SenderID  string    `json:"sender_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatThread is the 1:1 conversation container, keyed by the canonical
// pair id. Created at most once per pair.
type ChatThread struct {
	ID          string          `json:"id" gorm:"primaryKey;size:80"`
	UserA       string          `json:"user_a" gorm:"not null;size:36;index"`
	UserB       string          `json:"user_b" gorm:"not null;size:36;index"`
	MemberA     *MemberSnapshot `json:"member_a,omitempty" gorm:"serializer:json"`
	MemberB     *MemberSnapshot `json:"member_b,omitempty" gorm:"serializer:json"`
	LastMessage *LastMessage    `json:"last_message,omitempty" gorm:"serializer:json"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"index:idx_thread_updated,sort:desc"`
}

const MessageTypeText = "text"

// Message belongs to exactly one thread and is immutable once created.
type Message struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	ThreadID  string    `json:"thread_id" gorm:"not null;size:80;index:idx_msg_thread_created,priority:1"`
	SenderID  string    `json:"sender_id" gorm:"not null;size:36"`
	Text      string    `json:"text" gorm:"not null"`
	Type      string    `json:"type" gorm:"not null;default:text;size:16"`
	IsRead    bool      `json:"is_read" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_msg_thread_created,priority:2,sort:desc"`
}

// Peer returns the other participant's uid, or "" when uid is not a
// participant.
func (t *ChatThread) Peer(uid string) string {
	switch uid {
	case t.UserA:
		return t.UserB
	case t.UserB:
		return t.UserA
	}
	return ""
}

// Member returns the denormalized snapshot for the given participant.
func (t *ChatThread) Member(uid string) *MemberSnapshot {
	switch uid {
	case t.UserA:
		return t.MemberA
	case t.UserB:
		return t.MemberB
	}
	return nil
}
