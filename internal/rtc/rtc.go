// Package rtc abstracts the peer-connection and audio-capture
// primitives the call engine drives. The production implementation is
// backed by pion; tests substitute fakes.
package rtc

import "github.com/HuynhDucPhu2502/Flickr/internal/models"

// Config carries the ICE server settings a peer connection is built
// with. Credentials are supplied externally via app config.
type Config struct {
	STUNURL        string
	TURNURL        string
	TURNUsername   string
	TURNCredential string
}

// SessionDescription is the local/remote description payload.
type SessionDescription struct {
	Type string // "offer" or "answer"
	SDP  string
}

// PeerConnection is the consumed surface of the media transport.
// Callbacks registered through On* fire on the transport's goroutines;
// implementations deliver each local candidate exactly once.
type PeerConnection interface {
	AddAudio(capture AudioCapture) error
	CreateOffer() (SessionDescription, error)
	CreateAnswer() (SessionDescription, error)
	SetLocalDescription(desc SessionDescription) error
	SetRemoteDescription(desc SessionDescription) error
	// RemoteDescriptionSet reports whether a remote description has
	// been applied, guarding against double-apply.
	RemoteDescriptionSet() bool
	AddICECandidate(init models.ICECandidate) error
	OnICECandidate(fn func(models.ICECandidate))
	OnTrack(fn func())
	Close() error
}

// AudioCapture is an acquired microphone stream.
type AudioCapture interface {
	SetMuted(muted bool)
	Muted() bool
	Stop()
}

// Media acquires local capture devices.
type Media interface {
	AcquireAudio() (AudioCapture, error)
}

// PeerFactory builds a peer connection for one call attempt.
type PeerFactory func(cfg Config) (PeerConnection, error)
