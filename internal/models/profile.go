package models

import (
	"regexp"
	"time"
)

type Occupation struct {
	Title   string `json:"title,omitempty"`
	Company string `json:"company,omitempty"`
}

type Education struct {
	Level  string `json:"level,omitempty"` // high_school, bachelor, master, phd, other
	School string `json:"school,omitempty"`
}

type Location struct {
	City   string `json:"city,omitempty"`
	Region string `json:"region,omitempty"`
}

type Preferences struct {
	Genders []string `json:"genders,omitempty"`
	AgeMin  int      `json:"age_min,omitempty"`
	AgeMax  int      `json:"age_max,omitempty"`
}

// UserProfile is owned by one user and mutated only by that user's edit
// actions. Profiles are never deleted; soft fields may be cleared.
type UserProfile struct {
	UID          string  `json:"uid" gorm:"primaryKey;size:36"`
	Email        string  `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string  `json:"-" gorm:"not null"`
	Username     *string `json:"username,omitempty" gorm:"uniqueIndex"`
	DisplayName  string  `json:"display_name"`
	PhotoURL     *string `json:"photo_url,omitempty"`
	Birthday     *string `json:"birthday,omitempty"` // YYYY-MM-DD
	Gender       *string `json:"gender,omitempty"`   // male, female, nonbinary, prefer_not_to_say, custom
	Bio          *string `json:"bio,omitempty"`

	Interests   []string    `json:"interests" gorm:"serializer:json"`
	Languages   []string    `json:"languages" gorm:"serializer:json"`
	Occupation  *Occupation `json:"occupation,omitempty" gorm:"serializer:json"`
	Education   *Education  `json:"education,omitempty" gorm:"serializer:json"`
	Location    *Location   `json:"location,omitempty" gorm:"serializer:json"`
	Preferences Preferences `json:"preferences" gorm:"serializer:json"`

	Onboarded   bool       `json:"onboarded" gorm:"default:false;index:idx_onboarded_updated,priority:1"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"index:idx_onboarded_updated,priority:2,sort:desc"`
}

type ProfilePhoto struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	UserUID   string    `json:"user_uid" gorm:"not null;index"`
	URL       string    `json:"url" gorm:"not null"`
	IsPrimary bool      `json:"is_primary" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
}

// UsernameClaim reserves a username for one uid. The row id is the
// normalized username, which makes the uniqueness check a point read.
type UsernameClaim struct {
	Username  string    `json:"username" gorm:"primaryKey;size:20"`
	UID       string    `json:"uid" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

var birthdayRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)

// Age derives the user's age from a YYYY-MM-DD birthday. Returns 0 when
// the birthday is missing or malformed.
func Age(birthday *string, now time.Time) int {
	if birthday == nil {
		return 0
	}
	m := birthdayRe.FindStringSubmatch(*birthday)
	if m == nil {
		return 0
	}
	dob, err := time.Parse("2006-01-02", *birthday)
	if err != nil {
		return 0
	}
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}
