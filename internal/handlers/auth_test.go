package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/HuynhDucPhu2502/Flickr/internal/config"
	"github.com/HuynhDucPhu2502/Flickr/internal/database"
	"github.com/HuynhDucPhu2502/Flickr/internal/middleware"
	"github.com/HuynhDucPhu2502/Flickr/internal/models"
	"github.com/HuynhDucPhu2502/Flickr/internal/utils"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB, *config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	cfg := &config.Config{
		JWTSecret: "test-secret",
		JWTExpiry: time.Hour,
	}

	router := gin.New()
	authHandler := NewAuthHandler(db, cfg)
	router.POST("/register", authHandler.Register)
	router.POST("/login", authHandler.Login)
	return router, db, cfg
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegisterAndLogin(t *testing.T) {
	router, db, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/register", RegisterRequest{
		Email:       "Alice@Example.com",
		Password:    "hunter22",
		DisplayName: "Alice",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Token   string             `json:"token"`
		Profile models.UserProfile `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Token)
	assert.Equal(t, "alice@example.com", created.Profile.Email)
	assert.False(t, created.Profile.Onboarded)

	// Password hash never leaves the server.
	assert.NotContains(t, w.Body.String(), "password")

	// Email is stored normalized; login is case-insensitive too.
	w = doJSON(t, router, http.MethodPost, "/login", LoginRequest{
		Email:    "ALICE@example.com",
		Password: "hunter22",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/login", LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var count int64
	db.Model(&models.UserProfile{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := RegisterRequest{Email: "dup@example.com", Password: "hunter22", DisplayName: "Dup"}
	w := doJSON(t, router, http.MethodPost, "/register", req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, "/register", req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegisterWithUsername(t *testing.T) {
	router, db, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/register", RegisterRequest{
		Email:       "bob@example.com",
		Password:    "hunter22",
		DisplayName: "Bob",
		Username:    "Bob_99",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var claim models.UsernameClaim
	require.NoError(t, db.Where("username = ?", "bob_99").First(&claim).Error)

	var profile models.UserProfile
	require.NoError(t, db.Where("uid = ?", claim.UID).First(&profile).Error)
	require.NotNil(t, profile.Username)
	assert.Equal(t, "bob_99", *profile.Username)
}

func TestAuthMiddleware(t *testing.T) {
	_, db, cfg := newTestRouter(t)
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/me", middleware.AuthRequired(cfg.JWTSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"uid": middleware.UID(c)})
	})
	_ = db

	token, err := utils.GenerateToken("user-1", cfg.JWTSecret, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-1")

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Websocket clients pass the token as a query parameter instead.
	req = httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestClaimUsernameConflict(t *testing.T) {
	_, db, _ := newTestRouter(t)

	for _, uid := range []string{"u1", "u2"} {
		require.NoError(t, db.Create(&models.UserProfile{
			UID:         uid,
			Email:       uid + "@example.com",
			DisplayName: uid,
		}).Error)
	}

	require.NoError(t, claimUsername(db, "u1", "taken"))
	assert.ErrorIs(t, claimUsername(db, "u2", "taken"), ErrUsernameTaken)

	// Re-claiming your own name is fine; renaming frees the old one.
	require.NoError(t, claimUsername(db, "u1", "taken"))
	require.NoError(t, claimUsername(db, "u1", "renamed"))
	require.NoError(t, claimUsername(db, "u2", "taken"))

	assert.Error(t, claimUsername(db, "u1", "Bad Name!"))
}
