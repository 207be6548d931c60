package rtc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/HuynhDucPhu2502/Flickr/internal/models"
)

// pionPeer adapts *webrtc.PeerConnection to the PeerConnection surface.
type pionPeer struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	onCand  func(models.ICECandidate)
	onTrack func()
}

// NewPionPeer is the production PeerFactory.
func NewPionPeer(cfg Config) (PeerConnection, error) {
	servers := []webrtc.ICEServer{}
	if cfg.STUNURL != "" {
		servers = append(servers, webrtc.ICEServer{URLs: []string{cfg.STUNURL}})
	}
	if cfg.TURNURL != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{cfg.TURNURL},
			Username:   cfg.TURNUsername,
			Credential: cfg.TURNCredential,
		})
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &pionPeer{pc: pc}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // end-of-candidates marker
		}
		p.mu.Lock()
		fn := p.onCand
		p.mu.Unlock()
		if fn == nil {
			return
		}
		init := c.ToJSON()
		fn(models.ICECandidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		p.mu.Lock()
		fn := p.onTrack
		p.mu.Unlock()
		if fn != nil {
			fn()
		}
	})

	return p, nil
}

func (p *pionPeer) AddAudio(capture AudioCapture) error {
	pc, ok := capture.(*pionAudioCapture)
	if !ok {
		return fmt.Errorf("unsupported audio capture %T", capture)
	}
	_, err := p.pc.AddTrack(pc.track)
	return err
}

func (p *pionPeer) CreateOffer() (SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return SessionDescription{}, err
	}
	return SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (p *pionPeer) CreateAnswer() (SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return SessionDescription{}, err
	}
	return SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (p *pionPeer) SetLocalDescription(desc SessionDescription) error {
	return p.pc.SetLocalDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}

func (p *pionPeer) SetRemoteDescription(desc SessionDescription) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}

func (p *pionPeer) RemoteDescriptionSet() bool {
	return p.pc.RemoteDescription() != nil
}

func (p *pionPeer) AddICECandidate(init models.ICECandidate) error {
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	})
}

func (p *pionPeer) OnICECandidate(fn func(models.ICECandidate)) {
	p.mu.Lock()
	p.onCand = fn
	p.mu.Unlock()
}

func (p *pionPeer) OnTrack(fn func()) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}

// pionAudioCapture wraps a local opus track. Mute withholds samples;
// the feeding side checks Muted before writing.
type pionAudioCapture struct {
	track *webrtc.TrackLocalStaticSample
	muted atomic.Bool
}

func (a *pionAudioCapture) SetMuted(muted bool) { a.muted.Store(muted) }
func (a *pionAudioCapture) Muted() bool         { return a.muted.Load() }
func (a *pionAudioCapture) Stop()               {}

// Track exposes the underlying sample track for the capture pipeline.
func (a *pionAudioCapture) Track() *webrtc.TrackLocalStaticSample { return a.track }

type pionMedia struct{}

// NewPionMedia is the production Media implementation.
func NewPionMedia() Media { return pionMedia{} }

func (pionMedia) AcquireAudio() (AudioCapture, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "flickr-mic",
	)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	return &pionAudioCapture{track: track}, nil
}
