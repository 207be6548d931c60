package services

import (
	"context"
	"errors"
	"hash/fnv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/HuynhDucPhu2502/Flickr/internal/logger"
	"github.com/HuynhDucPhu2502/Flickr/internal/models"
)

var ErrSelfSwipe = errors.New("cannot swipe on yourself")

// SwipeResult reports whether a like completed a mutual pair.
type SwipeResult struct {
	Matched bool   `json:"matched"`
	MatchID string `json:"match_id,omitempty"`
}

// SwipeEngine records swipe decisions and detects mutual likes. Match
// creation is exactly-once per pair regardless of how the two sides'
// likes interleave.
type SwipeEngine struct {
	db *gorm.DB
}

func NewSwipeEngine(db *gorm.DB) *SwipeEngine {
	return &SwipeEngine{db: db}
}

// RecordPass writes a pass decision. Idempotent: an existing decision
// for the pair is left untouched.
func (e *SwipeEngine) RecordPass(ctx context.Context, fromUID, toUID string) error {
	if fromUID == "" || toUID == "" {
		return ErrMissingUID
	}
	if fromUID == toUID {
		return ErrSelfSwipe
	}
	decision := models.SwipeDecision{
		FromUID:   fromUID,
		ToUID:     toUID,
		Direction: models.SwipePass,
	}
	return e.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&decision).Error
}

// RecordLike writes a like decision and creates the Match when the
// reverse like already exists. A prior decision from the caller is
// immutable: if it was a pass, the like is not written and no match can
// form in either order of operations.
//
// The read-check-write sequence runs in one transaction, all reads
// before any write. On postgres the transaction first takes a
// pair-scoped advisory lock: under READ COMMITTED two in-flight
// transactions would otherwise each miss the other's uncommitted like
// and neither would create the match. The match PK plus a do-nothing
// insert keeps creation exactly-once even if callers retry.
func (e *SwipeEngine) RecordLike(ctx context.Context, fromUID, toUID string) (SwipeResult, error) {
	if fromUID == "" || toUID == "" {
		return SwipeResult{}, ErrMissingUID
	}
	if fromUID == toUID {
		return SwipeResult{}, ErrSelfSwipe
	}

	pairID := models.PairID(fromUID, toUID)
	var result SwipeResult

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPair(tx, pairID); err != nil {
			return err
		}

		var mine models.SwipeDecision
		haveMine := true
		if err := tx.Where("from_uid = ? AND to_uid = ?", fromUID, toUID).First(&mine).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			haveMine = false
		}
		if haveMine && mine.Direction != models.SwipeLike {
			// The caller's earlier pass stands (first write wins), so
			// mutuality cannot hold: no like is written, no match.
			return nil
		}

		var theirs, matches int64
		if err := tx.Model(&models.SwipeDecision{}).
			Where("from_uid = ? AND to_uid = ? AND direction = ?", toUID, fromUID, models.SwipeLike).
			Count(&theirs).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Match{}).
			Where("pair_id = ?", pairID).
			Count(&matches).Error; err != nil {
			return err
		}

		if !haveMine {
			decision := models.SwipeDecision{
				FromUID:   fromUID,
				ToUID:     toUID,
				Direction: models.SwipeLike,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&decision).Error; err != nil {
				return err
			}
		}

		if theirs > 0 && matches == 0 {
			a, b := fromUID, toUID
			if b < a {
				a, b = b, a
			}
			match := models.Match{PairID: pairID, UserA: a, UserB: b}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&match)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				result = SwipeResult{Matched: true, MatchID: pairID}
			}
		}
		return nil
	})
	if err != nil {
		return SwipeResult{}, err
	}

	if result.Matched {
		logger.Component("swipe").WithField("match_id", result.MatchID).Info("mutual like, match created")
	}
	return result, nil
}

// lockPair serializes the two sides of one pair for the duration of the
// transaction. Postgres only; sqlite (tests) has a single writer and
// needs no lock.
func lockPair(tx *gorm.DB, pairID string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	h := fnv.New64a()
	h.Write([]byte(pairID))
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", int64(h.Sum64())).Error
}
