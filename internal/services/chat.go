package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/HuynhDucPhu2502/Flickr/internal/live"
	"github.com/HuynhDucPhu2502/Flickr/internal/logger"
	"github.com/HuynhDucPhu2502/Flickr/internal/models"
)

var (
	ErrThreadNotFound  = errors.New("thread not found")
	ErrNotParticipant  = errors.New("not a participant of this thread")
	ErrEmptyMessage    = errors.New("message text is empty")
	ErrProfileNotFound = errors.New("profile not found")
)

// ThreadSummary is one row of a user's conversation list.
type ThreadSummary struct {
	ID          string                 `json:"id"`
	PeerUID     string                 `json:"peer_uid"`
	Peer        *models.MemberSnapshot `json:"peer,omitempty"`
	LastMessage *models.LastMessage    `json:"last_message,omitempty"`
	UnreadCount int64                  `json:"unread_count"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// ChatService manages 1:1 threads and their messages.
type ChatService struct {
	db  *gorm.DB
	bus *live.Bus
	log interface {
		Warnf(format string, args ...interface{})
	}
}

func NewChatService(db *gorm.DB, bus *live.Bus) *ChatService {
	return &ChatService{db: db, bus: bus, log: logger.Component("chat")}
}

func threadsTopic(uid string) string       { return "threads:" + uid }
func messagesTopic(threadID string) string { return "messages:" + threadID }

// EnsureThread guarantees the thread for the pair exists and returns
// its id. Runs as a transaction: if the thread is absent, both
// participants' display snapshots are read and the thread created with
// them. Idempotent under concurrent callers; whoever loses the insert
// race still returns the same id.
func (s *ChatService) EnsureThread(ctx context.Context, uidA, uidB string) (string, error) {
	if uidA == "" || uidB == "" {
		return "", ErrMissingUID
	}
	threadID := models.PairID(uidA, uidB)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPair(tx, threadID); err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.ChatThread{}).Where("id = ?", threadID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		a, b := uidA, uidB
		if b < a {
			a, b = b, a
		}
		thread := models.ChatThread{
			ID:      threadID,
			UserA:   a,
			UserB:   b,
			MemberA: s.memberSnapshot(tx, a),
			MemberB: s.memberSnapshot(tx, b),
		}
		return tx.Create(&thread).Error
	})
	if err != nil {
		return "", err
	}

	s.bus.Notify(ctx, threadsTopic(uidA))
	s.bus.Notify(ctx, threadsTopic(uidB))
	return threadID, nil
}

func (s *ChatService) memberSnapshot(tx *gorm.DB, uid string) *models.MemberSnapshot {
	var profile models.UserProfile
	if err := tx.Where("uid = ?", uid).First(&profile).Error; err != nil {
		// A missing profile degrades to the placeholder the thread
		// list falls back to, it does not block thread creation.
		return &models.MemberSnapshot{DisplayName: "User"}
	}
	name := profile.DisplayName
	if name == "" {
		name = "User"
	}
	return &models.MemberSnapshot{DisplayName: name, PhotoURL: profile.PhotoURL}
}

// SendMessage appends a text message and then refreshes the thread's
// last-message preview. The preview update is a separate write: the
// preview is a best-effort cache and may briefly lag the appended
// message if the second write loses a race or fails.
func (s *ChatService) SendMessage(ctx context.Context, threadID, senderID, text string) (*models.Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyMessage
	}

	thread, err := s.Thread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread.Peer(senderID) == "" {
		return nil, ErrNotParticipant
	}

	msg := models.Message{
		ID:       uuid.NewString(),
		ThreadID: threadID,
		SenderID: senderID,
		Text:     trimmed,
		Type:     models.MessageTypeText,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	preview := models.LastMessage{Text: trimmed, SenderID: senderID, CreatedAt: msg.CreatedAt}
	err = s.db.WithContext(ctx).Model(&models.ChatThread{}).
		Where("id = ?", threadID).
		Updates(map[string]interface{}{
			"last_message": &preview,
			"updated_at":   time.Now(),
		}).Error
	if err != nil {
		s.log.Warnf("last-message preview update failed for %s: %v", threadID, err)
	}

	s.bus.Notify(ctx, messagesTopic(threadID))
	s.bus.Notify(ctx, threadsTopic(thread.UserA))
	s.bus.Notify(ctx, threadsTopic(thread.UserB))
	return &msg, nil
}

// Thread fetches one thread by id.
func (s *ChatService) Thread(ctx context.Context, threadID string) (*models.ChatThread, error) {
	var thread models.ChatThread
	if err := s.db.WithContext(ctx).Where("id = ?", threadID).First(&thread).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	return &thread, nil
}

// ListThreads returns the user's threads ordered by update time
// descending. Threads with no last message yet ("new matches") and
// threads with messages are one list; the caller partitions them for
// display.
func (s *ChatService) ListThreads(ctx context.Context, uid string) ([]ThreadSummary, error) {
	if uid == "" {
		return nil, ErrMissingUID
	}

	var threads []models.ChatThread
	err := s.db.WithContext(ctx).
		Where("user_a = ? OR user_b = ?", uid, uid).
		Order("updated_at DESC").
		Find(&threads).Error
	if err != nil {
		return nil, err
	}

	out := make([]ThreadSummary, 0, len(threads))
	for i := range threads {
		t := &threads[i]
		peerUID := t.Peer(uid)
		peer := t.Member(peerUID)
		if peer == nil {
			// Threads created before the snapshot existed: fall back
			// to reading the peer's profile directly.
			var profile models.UserProfile
			if err := s.db.WithContext(ctx).Where("uid = ?", peerUID).First(&profile).Error; err == nil {
				peer = &models.MemberSnapshot{DisplayName: profile.DisplayName, PhotoURL: profile.PhotoURL}
			} else {
				peer = &models.MemberSnapshot{DisplayName: "Unknown"}
			}
		}

		var unread int64
		s.db.WithContext(ctx).Model(&models.Message{}).
			Where("thread_id = ? AND sender_id != ? AND is_read = ?", t.ID, uid, false).
			Count(&unread)

		out = append(out, ThreadSummary{
			ID:          t.ID,
			PeerUID:     peerUID,
			Peer:        peer,
			LastMessage: t.LastMessage,
			UnreadCount: unread,
			UpdatedAt:   t.UpdatedAt,
		})
	}
	return out, nil
}

// SubscribeThreads streams the user's thread list. Each change to any
// of the user's threads pushes a fresh ordered snapshot. Caller must
// Cancel.
func (s *ChatService) SubscribeThreads(ctx context.Context, uid string) *live.Subscription[[]ThreadSummary] {
	return live.Subscribe(ctx, s.bus, threadsTopic(uid), func(ctx context.Context) ([]ThreadSummary, error) {
		return s.ListThreads(ctx, uid)
	})
}

// ListMessages returns the newest limit messages of a thread,
// newest-first.
func (s *ChatService) ListMessages(ctx context.Context, threadID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// SubscribeMessages streams the newest limit messages of a thread,
// newest-first, re-emitting on every append. Caller must Cancel.
func (s *ChatService) SubscribeMessages(ctx context.Context, threadID string, limit int) *live.Subscription[[]models.Message] {
	return live.Subscribe(ctx, s.bus, messagesTopic(threadID), func(ctx context.Context) ([]models.Message, error) {
		return s.ListMessages(ctx, threadID, limit)
	})
}

// MarkRead marks every message sent to uid in the thread as read.
// Read-state is display metadata, best-effort like the preview.
func (s *ChatService) MarkRead(ctx context.Context, threadID, uid string) error {
	thread, err := s.Thread(ctx, threadID)
	if err != nil {
		return err
	}
	if thread.Peer(uid) == "" {
		return ErrNotParticipant
	}
	err = s.db.WithContext(ctx).Model(&models.Message{}).
		Where("thread_id = ? AND sender_id != ? AND is_read = ?", threadID, uid, false).
		Update("is_read", true).Error
	if err != nil {
		return err
	}
	s.bus.Notify(ctx, threadsTopic(uid))
	return nil
}
