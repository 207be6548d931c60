package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/HuynhDucPhu2502/Flickr/internal/live"
	"github.com/HuynhDucPhu2502/Flickr/internal/models"
)

var (
	ErrNoOffer    = errors.New("no incoming offer")
	ErrCallActive = errors.New("a call is already active on this thread")
)

// CallService is the signaling store: one CallSession per thread plus
// two append-only candidate lists. It moves connection-setup metadata
// between the two sides; the media itself never touches it.
type CallService struct {
	db         *gorm.DB
	bus        *live.Bus
	staleAfter time.Duration
}

func NewCallService(db *gorm.DB, bus *live.Bus, staleAfter time.Duration) *CallService {
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	return &CallService{db: db, bus: bus, staleAfter: staleAfter}
}

func sessionTopic(threadID string) string { return "call:" + threadID }
func candidatesTopic(threadID, side string) string {
	return "call:" + threadID + ":candidates:" + side
}

// PlaceOffer starts a call attempt by writing the session singleton.
// An unanswered, unended offer younger than staleAfter blocks the
// attempt with ErrCallActive; anything else (ended, answered, stale,
// absent) is overwritten together with its leftover candidates.
func (s *CallService) PlaceOffer(ctx context.Context, threadID string, offer models.SessionDesc) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.CallSession
		err := tx.Where("thread_id = ?", threadID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		default:
			active := existing.EndedAt == nil &&
				existing.Offer != nil &&
				time.Since(existing.CreatedAt) < s.staleAfter
			if active {
				return ErrCallActive
			}
		}

		if err := tx.Where("thread_id = ?", threadID).Delete(&models.CallCandidate{}).Error; err != nil {
			return err
		}

		session := models.CallSession{
			ThreadID:  threadID,
			Offer:     &offer,
			CreatedAt: time.Now(),
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "thread_id"}},
			UpdateAll: true,
		}).Create(&session).Error
	})
	if err != nil {
		return err
	}

	s.bus.Notify(ctx, sessionTopic(threadID))
	return nil
}

// Answer records the answering side's description on the existing
// session. Updates the answer fields only; the offer is left in place.
func (s *CallService) Answer(ctx context.Context, threadID string, answer models.SessionDesc) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.CallSession
		if err := tx.Where("thread_id = ?", threadID).First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoOffer
			}
			return err
		}
		if session.Offer == nil {
			return ErrNoOffer
		}
		now := time.Now()
		return tx.Model(&models.CallSession{}).
			Where("thread_id = ?", threadID).
			Updates(map[string]interface{}{
				"answer":      &answer,
				"answered_at": &now,
			}).Error
	})
	if err != nil {
		return err
	}

	s.bus.Notify(ctx, sessionTopic(threadID))
	return nil
}

// Session fetches the current signaling record, nil when none exists.
func (s *CallService) Session(ctx context.Context, threadID string) (*models.CallSession, error) {
	var session models.CallSession
	err := s.db.WithContext(ctx).Where("thread_id = ?", threadID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// AddCandidate appends one ICE candidate for the given side. Appends
// are single-writer and need no transaction, only at-least-once
// delivery.
func (s *CallService) AddCandidate(ctx context.Context, threadID, side string, init models.ICECandidate) error {
	cand := models.CallCandidate{
		ThreadID: threadID,
		Side:     side,
		Init:     init,
	}
	if err := s.db.WithContext(ctx).Create(&cand).Error; err != nil {
		return err
	}
	s.bus.Notify(ctx, candidatesTopic(threadID, side))
	return nil
}

// Candidates lists a side's candidates in submission order.
func (s *CallService) Candidates(ctx context.Context, threadID, side string) ([]models.CallCandidate, error) {
	var candidates []models.CallCandidate
	err := s.db.WithContext(ctx).
		Where("thread_id = ? AND side = ?", threadID, side).
		Order("id ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// End marks the session ended. Best-effort by contract: ending a
// session that does not exist is not an error.
func (s *CallService) End(ctx context.Context, threadID string) error {
	now := time.Now()
	err := s.db.WithContext(ctx).Model(&models.CallSession{}).
		Where("thread_id = ?", threadID).
		Update("ended_at", &now).Error
	if err != nil {
		return err
	}
	s.bus.Notify(ctx, sessionTopic(threadID))
	return nil
}

// SubscribeSession streams the session record on every change. Caller
// must Cancel.
func (s *CallService) SubscribeSession(ctx context.Context, threadID string) *live.Subscription[*models.CallSession] {
	return live.Subscribe(ctx, s.bus, sessionTopic(threadID), func(ctx context.Context) (*models.CallSession, error) {
		return s.Session(ctx, threadID)
	})
}

// SubscribeCandidates streams a side's full candidate list on every
// append. Consumers apply additively and track what they have already
// seen. Caller must Cancel.
func (s *CallService) SubscribeCandidates(ctx context.Context, threadID, side string) *live.Subscription[[]models.CallCandidate] {
	return live.Subscribe(ctx, s.bus, candidatesTopic(threadID, side), func(ctx context.Context) ([]models.CallCandidate, error) {
		return s.Candidates(ctx, threadID, side)
	})
}
