package models

import "time"

const (
	CandidateSideOffer  = "offer"
	CandidateSideAnswer = "answer"
)

// SessionDesc carries one side's session description plus the
// participants it travels between.
type SessionDesc struct {
	Type string `json:"type"` // offer, answer
	SDP  string `json:"sdp"`
	From string `json:"from"`
	To   string `json:"to"`
}

// CallSession is the signaling record for a thread's voice call.
// Singleton per thread: a new call attempt overwrites the prior record,
// so overlapping calls on one thread are not supported.
type CallSession struct {
	ThreadID   string       `json:"thread_id" gorm:"primaryKey;size:80"`
	Offer      *SessionDesc `json:"offer,omitempty" gorm:"serializer:json"`
	Answer     *SessionDesc `json:"answer,omitempty" gorm:"serializer:json"`
	CreatedAt  time.Time    `json:"created_at"`
	AnsweredAt *time.Time   `json:"answered_at,omitempty"`
	EndedAt    *time.Time   `json:"ended_at,omitempty"`
}

// ICECandidate is one candidate fragment as exchanged on the wire.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// CallCandidate is an append-only ICE candidate row, tagged by the
// submitting side. The auto-increment id preserves submission order.
type CallCandidate struct {
	ID        uint         `json:"id" gorm:"primaryKey;autoIncrement"`
	ThreadID  string       `json:"thread_id" gorm:"not null;size:80;index:idx_cand_thread_side,priority:1"`
	Side      string       `json:"side" gorm:"not null;size:8;index:idx_cand_thread_side,priority:2"`
	Init      ICECandidate `json:"init" gorm:"serializer:json"`
	CreatedAt time.Time    `json:"created_at"`
}
