package models

import "time"

const (
	SwipeLike = "like"
	SwipePass = "pass"
)

// SwipeDecision is a directed edge from the acting user to the target.
//
// Composite PK (FromUID, ToUID) guarantees at most one decision per
// ordered pair. A decision is immutable once written; re-issues are
// no-ops regardless of direction (first write wins).
type SwipeDecision struct {
	FromUID   string    `json:"from_uid" gorm:"primaryKey;size:36"`
	ToUID     string    `json:"to_uid" gorm:"primaryKey;size:36"`
	Direction string    `json:"direction" gorm:"not null;size:8"` // like, pass
	CreatedAt time.Time `json:"created_at"`
}

// Match is the undirected mutual-like record. Keyed by the canonical
// pair id so both sides compute the same row independently; the PK is
// what makes match creation exactly-once.
type Match struct {
	PairID        string     `json:"pair_id" gorm:"primaryKey;size:80"`
	UserA         string     `json:"user_a" gorm:"not null;size:36;index"`
	UserB         string     `json:"user_b" gorm:"not null;size:36;index"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// PairID returns the canonical identifier for an unordered uid pair:
// the two uids sorted lexicographically and joined with "_". Both
// participants compute the same id without a lookup.
func PairID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}
