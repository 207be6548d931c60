package services

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/HuynhDucPhu2502/Flickr/internal/database"
	"github.com/HuynhDucPhu2502/Flickr/internal/live"
	"github.com/HuynhDucPhu2502/Flickr/internal/models"
	"github.com/HuynhDucPhu2502/Flickr/internal/redis"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// One connection; a second one would see a different in-memory db.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func newTestBus(t *testing.T) *live.Bus {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewFromAddr(mr.Addr())
	t.Cleanup(func() { client.Close() })
	return live.NewBus(client)
}

func seedProfile(t *testing.T, db *gorm.DB, uid, displayName string, onboarded bool) {
	t.Helper()
	profile := models.UserProfile{
		UID:         uid,
		Email:       uid + "@example.com",
		DisplayName: displayName,
		Onboarded:   onboarded,
	}
	require.NoError(t, db.Create(&profile).Error)
}
