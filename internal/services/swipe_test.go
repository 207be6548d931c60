package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HuynhDucPhu2502/Flickr/internal/models"
)

func TestRecordLikeNoReverseLike(t *testing.T) {
	db := newTestDB(t)
	engine := NewSwipeEngine(db)
	ctx := context.Background()

	result, err := engine.RecordLike(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, result.Matched)

	var decisions int64
	db.Model(&models.SwipeDecision{}).Count(&decisions)
	assert.EqualValues(t, 1, decisions)

	var matches int64
	db.Model(&models.Match{}).Count(&matches)
	assert.EqualValues(t, 0, matches)
}

func TestMutualLikeCreatesMatchOnce(t *testing.T) {
	db := newTestDB(t)
	engine := NewSwipeEngine(db)
	ctx := context.Background()

	first, err := engine.RecordLike(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, first.Matched)

	second, err := engine.RecordLike(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.True(t, second.Matched)
	assert.Equal(t, models.PairID("alice", "bob"), second.MatchID)

	// Re-issuing either like must not report a second match.
	again, err := engine.RecordLike(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, again.Matched)

	again, err = engine.RecordLike(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, again.Matched)

	var matches []models.Match
	require.NoError(t, db.Find(&matches).Error)
	require.Len(t, matches, 1)
	assert.Equal(t, "alice", matches[0].UserA)
	assert.Equal(t, "bob", matches[0].UserB)
}

func TestConcurrentMutualLikes(t *testing.T) {
	db := newTestDB(t)
	engine := NewSwipeEngine(db)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]SwipeResult, 2)
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], errs[0] = engine.RecordLike(ctx, "alice", "bob")
	}()
	go func() {
		defer wg.Done()
		results[1], errs[1] = engine.RecordLike(ctx, "bob", "alice")
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	var matches int64
	db.Model(&models.Match{}).Count(&matches)
	assert.EqualValues(t, 1, matches, "exactly one match row")

	matched := 0
	for _, r := range results {
		if r.Matched {
			matched++
		}
	}
	assert.Equal(t, 1, matched, "exactly one side observes the match creation")
}

func TestDecisionImmutable(t *testing.T) {
	db := newTestDB(t)
	engine := NewSwipeEngine(db)
	ctx := context.Background()

	require.NoError(t, engine.RecordPass(ctx, "alice", "bob"))

	// A later like from the same side does not overwrite the pass.
	result, err := engine.RecordLike(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, result.Matched)

	var decision models.SwipeDecision
	require.NoError(t, db.Where("from_uid = ? AND to_uid = ?", "alice", "bob").First(&decision).Error)
	assert.Equal(t, models.SwipePass, decision.Direction)

	// The other side liking back finds a pass, not a like: no match.
	result, err = engine.RecordLike(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, result.Matched)

	var matches int64
	db.Model(&models.Match{}).Count(&matches)
	assert.EqualValues(t, 0, matches)
}

func TestPassThenIncomingLikeNeverMatches(t *testing.T) {
	db := newTestDB(t)
	engine := NewSwipeEngine(db)
	ctx := context.Background()

	require.NoError(t, engine.RecordPass(ctx, "alice", "bob"))

	result, err := engine.RecordLike(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, result.Matched)

	// Alice liking after her own pass must not manufacture mutuality:
	// her pass stands and Bob's like alone does not make a pair.
	result, err = engine.RecordLike(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, result.Matched)

	var matches int64
	db.Model(&models.Match{}).Count(&matches)
	assert.EqualValues(t, 0, matches)

	var decision models.SwipeDecision
	require.NoError(t, db.Where("from_uid = ? AND to_uid = ?", "alice", "bob").First(&decision).Error)
	assert.Equal(t, models.SwipePass, decision.Direction)
}

func TestRecordPassIdempotent(t *testing.T) {
	db := newTestDB(t)
	engine := NewSwipeEngine(db)
	ctx := context.Background()

	require.NoError(t, engine.RecordPass(ctx, "alice", "bob"))
	require.NoError(t, engine.RecordPass(ctx, "alice", "bob"))

	var decisions int64
	db.Model(&models.SwipeDecision{}).Count(&decisions)
	assert.EqualValues(t, 1, decisions)
}

func TestSwipeValidation(t *testing.T) {
	db := newTestDB(t)
	engine := NewSwipeEngine(db)
	ctx := context.Background()

	_, err := engine.RecordLike(ctx, "alice", "alice")
	assert.ErrorIs(t, err, ErrSelfSwipe)

	err = engine.RecordPass(ctx, "alice", "alice")
	assert.ErrorIs(t, err, ErrSelfSwipe)

	_, err = engine.RecordLike(ctx, "", "bob")
	assert.ErrorIs(t, err, ErrMissingUID)
}

func TestOppositeDirectionsAreIndependentDecisions(t *testing.T) {
	db := newTestDB(t)
	engine := NewSwipeEngine(db)
	ctx := context.Background()

	_, err := engine.RecordLike(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, engine.RecordPass(ctx, "bob", "alice"))

	var decisions []models.SwipeDecision
	require.NoError(t, db.Order("from_uid").Find(&decisions).Error)
	require.Len(t, decisions, 2)
	assert.Equal(t, models.SwipeLike, decisions[0].Direction)
	assert.Equal(t, models.SwipePass, decisions[1].Direction)
}
