package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/HuynhDucPhu2502/Flickr/internal/config"
	"github.com/HuynhDucPhu2502/Flickr/internal/middleware"
	"github.com/HuynhDucPhu2502/Flickr/internal/models"
	"github.com/HuynhDucPhu2502/Flickr/internal/services"
)

type ProfileHandler struct {
	db      *gorm.DB
	cfg     *config.Config
	storage *services.StorageService
}

type UpdateProfileRequest struct {
	DisplayName *string             `json:"display_name,omitempty"`
	Birthday    *string             `json:"birthday,omitempty"`
	Gender      *string             `json:"gender,omitempty"`
	Bio         *string             `json:"bio,omitempty"`
	Interests   *[]string           `json:"interests,omitempty"`
	Languages   *[]string           `json:"languages,omitempty"`
	Occupation  *models.Occupation  `json:"occupation,omitempty"`
	Education   *models.Education   `json:"education,omitempty"`
	Location    *models.Location    `json:"location,omitempty"`
	Preferences *models.Preferences `json:"preferences,omitempty"`
	Onboarded   *bool               `json:"onboarded,omitempty"`
}

type ClaimUsernameRequest struct {
	Username string `json:"username" binding:"required"`
}

func NewProfileHandler(db *gorm.DB, cfg *config.Config, storage *services.StorageService) *ProfileHandler {
	return &ProfileHandler{db: db, cfg: cfg, storage: storage}
}

func (h *ProfileHandler) GetMe(c *gin.Context) {
	uid := middleware.UID(c)

	var profile models.UserProfile
	if err := h.db.Where("uid = ?", uid).First(&profile).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

func (h *ProfileHandler) GetProfile(c *gin.Context) {
	uid := c.Param("uid")

	var profile models.UserProfile
	if err := h.db.Where("uid = ?", uid).First(&profile).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"profile": gin.H{
		"uid":          profile.UID,
		"username":     profile.Username,
		"display_name": profile.DisplayName,
		"photo_url":    profile.PhotoURL,
		"age":          models.Age(profile.Birthday, time.Now()),
		"gender":       profile.Gender,
		"bio":          profile.Bio,
		"interests":    profile.Interests,
		"languages":    profile.Languages,
		"occupation":   profile.Occupation,
		"location":     profile.Location,
	}})
}

func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	uid := middleware.UID(c)

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var profile models.UserProfile
	if err := h.db.Where("uid = ?", uid).First(&profile).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
		return
	}

	if req.DisplayName != nil {
		profile.DisplayName = strings.TrimSpace(*req.DisplayName)
	}
	if req.Birthday != nil {
		profile.Birthday = req.Birthday
	}
	if req.Gender != nil {
		profile.Gender = req.Gender
	}
	if req.Bio != nil {
		profile.Bio = req.Bio
	}
	if req.Interests != nil {
		profile.Interests = *req.Interests
	}
	if req.Languages != nil {
		profile.Languages = *req.Languages
	}
	if req.Occupation != nil {
		profile.Occupation = req.Occupation
	}
	if req.Education != nil {
		profile.Education = req.Education
	}
	if req.Location != nil {
		profile.Location = req.Location
	}
	if req.Preferences != nil {
		profile.Preferences = *req.Preferences
	}
	if req.Onboarded != nil {
		profile.Onboarded = *req.Onboarded
	}

	if err := h.db.Save(&profile).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

var usernameRe = regexp.MustCompile(`^[a-z0-9_]{3,20}$`)

// ErrUsernameTaken is returned when another account already holds the
// requested username.
var ErrUsernameTaken = errors.New("username is already taken")

// claimUsername reserves a normalized username for uid and records it on
// the profile. The claim row's primary key makes concurrent claims of
// the same name resolve to a single winner.
func claimUsername(db *gorm.DB, uid, username string) error {
	normalized := strings.ToLower(strings.TrimSpace(username))
	if !usernameRe.MatchString(normalized) {
		return errors.New("username must be 3-20 characters: lowercase letters, digits, underscore")
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var existing models.UsernameClaim
		err := tx.Where("username = ?", normalized).First(&existing).Error
		if err == nil {
			if existing.UID == uid {
				return nil
			}
			return ErrUsernameTaken
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// Release the previous claim if the user is renaming.
		if err := tx.Where("uid = ?", uid).Delete(&models.UsernameClaim{}).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.UsernameClaim{Username: normalized, UID: uid}).Error; err != nil {
			return err
		}
		return tx.Model(&models.UserProfile{}).
			Where("uid = ?", uid).
			Update("username", normalized).Error
	})
}

func (h *ProfileHandler) ClaimUsername(c *gin.Context) {
	uid := middleware.UID(c)

	var req ClaimUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := claimUsername(h.db, uid, req.Username); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrUsernameTaken) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Username claimed"})
}

func (h *ProfileHandler) CheckUsername(c *gin.Context) {
	normalized := strings.ToLower(strings.TrimSpace(c.Query("username")))
	if !usernameRe.MatchString(normalized) {
		c.JSON(http.StatusOK, gin.H{"available": false, "reason": "invalid format"})
		return
	}

	var claim models.UsernameClaim
	err := h.db.Where("username = ?", normalized).First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusOK, gin.H{"available": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": false})
}

func (h *ProfileHandler) UploadPhoto(c *gin.Context) {
	uid := middleware.UID(c)

	file, header, err := c.Request.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No photo file provided"})
		return
	}
	defer file.Close()

	if header.Size > h.cfg.MaxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("File too large (max %d bytes)", h.cfg.MaxFileSize),
		})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if !h.cfg.IsAllowedImageType(contentType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported image type"})
		return
	}

	filename := services.GenerateUniqueFilename(header.Filename)
	url, err := h.storage.UploadFile(c.Request.Context(), file, header.Size, filename, contentType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload photo"})
		return
	}

	isPrimary := c.PostForm("primary") == "true"
	photo := models.ProfilePhoto{
		ID:        uuid.NewString(),
		UserUID:   uid,
		URL:       url,
		IsPrimary: isPrimary,
	}
	if err := h.db.Create(&photo).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save photo"})
		return
	}

	if isPrimary {
		h.db.Model(&models.UserProfile{}).Where("uid = ?", uid).Update("photo_url", url)
	}

	c.JSON(http.StatusCreated, gin.H{"photo": photo})
}

func (h *ProfileHandler) DeletePhoto(c *gin.Context) {
	uid := middleware.UID(c)
	photoID := c.Param("id")

	var photo models.ProfilePhoto
	if err := h.db.Where("id = ? AND user_uid = ?", photoID, uid).First(&photo).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Photo not found"})
		return
	}

	if err := h.storage.DeleteFile(c.Request.Context(), photo.URL); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete photo"})
		return
	}
	if err := h.db.Delete(&photo).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete photo record"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Photo deleted"})
}

func (h *ProfileHandler) ListPhotos(c *gin.Context) {
	uid := middleware.UID(c)

	var photos []models.ProfilePhoto
	if err := h.db.Where("user_uid = ?", uid).Order("created_at DESC").Find(&photos).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list photos"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"photos": photos})
}
