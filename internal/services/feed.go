package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/HuynhDucPhu2502/Flickr/internal/models"
)

var ErrMissingUID = errors.New("uid is required")

// Candidate is the trimmed profile shown on the swipe feed.
type Candidate struct {
	UID         string             `json:"uid"`
	DisplayName string             `json:"display_name"`
	PhotoURL    *string            `json:"photo_url,omitempty"`
	Birthday    *string            `json:"birthday,omitempty"`
	Age         int                `json:"age,omitempty"`
	Bio         *string            `json:"bio,omitempty"`
	Gender      *string            `json:"gender,omitempty"`
	Occupation  *models.Occupation `json:"occupation,omitempty"`
}

// FeedService produces swipe candidates for a user.
type FeedService struct {
	db     *gorm.DB
	window int
	limit  int
}

func NewFeedService(db *gorm.DB, window, limit int) *FeedService {
	if window <= 0 {
		window = 80
	}
	if limit <= 0 {
		limit = 25
	}
	return &FeedService{db: db, window: window, limit: limit}
}

// Candidates returns up to take onboarded profiles ordered by most
// recently updated, excluding the requester and every profile the
// requester has already decided on.
//
// The store cannot exclude by a dynamic id set server-side, so a larger
// window is fetched and the exclusion applied here before truncating.
// An empty result means the feed is exhausted, not that anything
// failed.
func (s *FeedService) Candidates(ctx context.Context, uid string, take int) ([]Candidate, error) {
	if uid == "" {
		return nil, ErrMissingUID
	}
	if take <= 0 || take > s.limit {
		take = s.limit
	}

	var profiles []models.UserProfile
	err := s.db.WithContext(ctx).
		Where("onboarded = ?", true).
		Order("updated_at DESC").
		Limit(s.window).
		Find(&profiles).Error
	if err != nil {
		return nil, err
	}

	decided, err := s.decidedTargets(ctx, uid)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]Candidate, 0, take)
	for _, p := range profiles {
		if p.UID == uid {
			continue
		}
		if _, ok := decided[p.UID]; ok {
			continue
		}
		out = append(out, Candidate{
			UID:         p.UID,
			DisplayName: p.DisplayName,
			PhotoURL:    p.PhotoURL,
			Birthday:    p.Birthday,
			Age:         models.Age(p.Birthday, now),
			Bio:         p.Bio,
			Gender:      p.Gender,
			Occupation:  p.Occupation,
		})
		if len(out) == take {
			break
		}
	}
	return out, nil
}

// decidedTargets returns every uid the requester has an outgoing
// decision toward, like and pass alike.
func (s *FeedService) decidedTargets(ctx context.Context, uid string) (map[string]struct{}, error) {
	var targets []string
	err := s.db.WithContext(ctx).
		Model(&models.SwipeDecision{}).
		Where("from_uid = ?", uid).
		Pluck("to_uid", &targets).Error
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		set[t] = struct{}{}
	}
	return set, nil
}
