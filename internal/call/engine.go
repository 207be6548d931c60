// Package call implements the per-call signaling state machine on top
// of the signaling store and a peer connection. The calling side moves
// Idle → Offering → AwaitingAnswer → Connected → Ended; the answering
// side mirrors with Idle → Answering → Connected → Ended. Hangup from
// any state lands back at Idle.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/HuynhDucPhu2502/Flickr/internal/live"
	"github.com/HuynhDucPhu2502/Flickr/internal/logger"
	"github.com/HuynhDucPhu2502/Flickr/internal/models"
	"github.com/HuynhDucPhu2502/Flickr/internal/rtc"
	"github.com/HuynhDucPhu2502/Flickr/internal/services"
)

type State string

const (
	StateIdle           State = "idle"
	StateOffering       State = "offering"
	StateAwaitingAnswer State = "awaiting_answer"
	StateAnswering      State = "answering"
	StateConnected      State = "connected"
	StateEnded          State = "ended"
)

var (
	ErrBusy         = errors.New("a call is already in progress")
	ErrMissingParam = errors.New("thread id and uids are required")
)

// SignalStore is the slice of the signaling service the engine needs.
type SignalStore interface {
	PlaceOffer(ctx context.Context, threadID string, offer models.SessionDesc) error
	Answer(ctx context.Context, threadID string, answer models.SessionDesc) error
	Session(ctx context.Context, threadID string) (*models.CallSession, error)
	AddCandidate(ctx context.Context, threadID, side string, init models.ICECandidate) error
	End(ctx context.Context, threadID string) error
	SubscribeSession(ctx context.Context, threadID string) *live.Subscription[*models.CallSession]
	SubscribeCandidates(ctx context.Context, threadID, side string) *live.Subscription[[]models.CallCandidate]
}

type canceller interface{ Cancel() }

// Engine drives one voice call at a time for one local user.
type Engine struct {
	store         SignalStore
	media         rtc.Media
	newPeer       rtc.PeerFactory
	iceCfg        rtc.Config
	answerTimeout time.Duration
	log           *logrus.Entry

	mu       sync.Mutex
	state    State
	threadID string
	pc       rtc.PeerConnection
	audio    rtc.AudioCapture
	subs     []canceller
	applied  map[uint]struct{}
	timer    *time.Timer
}

type Option func(*Engine)

// WithAnswerTimeout bounds how long the calling side waits in
// AwaitingAnswer before hanging up.
func WithAnswerTimeout(d time.Duration) Option {
	return func(e *Engine) { e.answerTimeout = d }
}

func NewEngine(store SignalStore, media rtc.Media, newPeer rtc.PeerFactory, iceCfg rtc.Config, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		media:         media,
		newPeer:       newPeer,
		iceCfg:        iceCfg,
		answerTimeout: 60 * time.Second,
		log:           logger.Component("call"),
		state:         StateIdle,
		applied:       map[uint]struct{}{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// StartCall runs the offering side: acquire audio, persist an offer on
// the thread's call session, then wait for the answer and drain the
// answering side's candidates. Returns once the offer is placed; the
// rest happens on the subscription goroutines.
func (e *Engine) StartCall(ctx context.Context, threadID, localUID, peerUID string) error {
	if threadID == "" || localUID == "" || peerUID == "" {
		return ErrMissingParam
	}

	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return ErrBusy
	}
	e.state = StateOffering
	e.threadID = threadID
	e.mu.Unlock()

	pc, err := e.setupPeer(models.CandidateSideOffer, threadID)
	if err != nil {
		e.Hangup(ctx)
		return err
	}

	offer, err := pc.CreateOffer()
	if err != nil {
		e.Hangup(ctx)
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		e.Hangup(ctx)
		return fmt.Errorf("set local offer: %w", err)
	}

	desc := models.SessionDesc{Type: offer.Type, SDP: offer.SDP, From: localUID, To: peerUID}
	if err := e.store.PlaceOffer(ctx, threadID, desc); err != nil {
		e.Hangup(ctx)
		return err
	}

	e.mu.Lock()
	if e.state != StateOffering {
		// Hung up while the offer write was in flight.
		e.mu.Unlock()
		return nil
	}
	e.state = StateAwaitingAnswer

	sessionSub := e.store.SubscribeSession(ctx, threadID)
	candSub := e.store.SubscribeCandidates(ctx, threadID, models.CandidateSideAnswer)
	e.subs = append(e.subs, sessionSub, candSub)

	e.timer = time.AfterFunc(e.answerTimeout, func() {
		e.mu.Lock()
		timedOut := e.state == StateAwaitingAnswer
		e.mu.Unlock()
		if timedOut {
			e.log.WithField("thread", threadID).Warn("no answer before timeout, hanging up")
			e.Hangup(context.Background())
		}
	})
	e.mu.Unlock()

	go e.watchSession(sessionSub, pc)
	go e.drainCandidates(candSub, pc)
	return nil
}

// AnswerCall runs the answering side against the current offer.
func (e *Engine) AnswerCall(ctx context.Context, threadID, localUID string) error {
	if threadID == "" || localUID == "" {
		return ErrMissingParam
	}

	session, err := e.store.Session(ctx, threadID)
	if err != nil {
		return err
	}
	if session == nil || session.Offer == nil {
		return services.ErrNoOffer
	}

	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return ErrBusy
	}
	e.state = StateAnswering
	e.threadID = threadID
	e.mu.Unlock()

	pc, err := e.setupPeer(models.CandidateSideAnswer, threadID)
	if err != nil {
		e.Hangup(ctx)
		return err
	}

	remote := rtc.SessionDescription{Type: session.Offer.Type, SDP: session.Offer.SDP}
	if err := pc.SetRemoteDescription(remote); err != nil {
		e.Hangup(ctx)
		return fmt.Errorf("set remote offer: %w", err)
	}

	answer, err := pc.CreateAnswer()
	if err != nil {
		e.Hangup(ctx)
		return fmt.Errorf("create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		e.Hangup(ctx)
		return fmt.Errorf("set local answer: %w", err)
	}

	desc := models.SessionDesc{Type: answer.Type, SDP: answer.SDP, From: localUID, To: session.Offer.From}
	if err := e.store.Answer(ctx, threadID, desc); err != nil {
		e.Hangup(ctx)
		return err
	}

	e.mu.Lock()
	if e.state != StateAnswering {
		e.mu.Unlock()
		return nil
	}
	// Stays Answering until the remote track arrives; OnTrack moves to
	// Connected.

	sessionSub := e.store.SubscribeSession(ctx, threadID)
	candSub := e.store.SubscribeCandidates(ctx, threadID, models.CandidateSideOffer)
	e.subs = append(e.subs, sessionSub, candSub)
	e.mu.Unlock()

	go e.watchSession(sessionSub, pc)
	go e.drainCandidates(candSub, pc)
	return nil
}

// SetMuted toggles the local microphone.
func (e *Engine) SetMuted(muted bool) {
	e.mu.Lock()
	audio := e.audio
	e.mu.Unlock()
	if audio != nil {
		audio.SetMuted(muted)
	}
}

// Hangup ends the call: best-effort end marker, cancel every live
// subscription, release media, close the peer connection, state back to
// Idle. Safe to call repeatedly and from any state, including before a
// call ever started.
func (e *Engine) Hangup(ctx context.Context) {
	e.mu.Lock()
	threadID := e.threadID
	pc := e.pc
	audio := e.audio
	subs := e.subs
	timer := e.timer
	alreadyIdle := e.state == StateIdle && pc == nil && len(subs) == 0

	e.state = StateIdle
	e.threadID = ""
	e.pc = nil
	e.audio = nil
	e.subs = nil
	e.timer = nil
	e.applied = map[uint]struct{}{}
	e.mu.Unlock()

	if alreadyIdle {
		return
	}

	if threadID != "" {
		if err := e.store.End(ctx, threadID); err != nil {
			e.log.WithError(err).Warn("end marker failed")
		}
	}
	if timer != nil {
		timer.Stop()
	}
	for _, sub := range subs {
		sub.Cancel()
	}
	if audio != nil {
		audio.Stop()
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			e.log.WithError(err).Warn("peer connection close failed")
		}
	}
}

// setupPeer acquires audio and builds the peer connection for one side,
// wiring local candidates into the store and the remote-track event
// into the Connected transition.
func (e *Engine) setupPeer(side, threadID string) (rtc.PeerConnection, error) {
	audio, err := e.media.AcquireAudio()
	if err != nil {
		return nil, fmt.Errorf("acquire audio: %w", err)
	}

	pc, err := e.newPeer(e.iceCfg)
	if err != nil {
		audio.Stop()
		return nil, fmt.Errorf("create peer: %w", err)
	}
	if err := pc.AddAudio(audio); err != nil {
		audio.Stop()
		pc.Close()
		return nil, fmt.Errorf("add audio track: %w", err)
	}

	pc.OnICECandidate(func(init models.ICECandidate) {
		if err := e.store.AddCandidate(context.Background(), threadID, side, init); err != nil {
			e.log.WithError(err).Warn("persist local candidate failed")
		}
	})
	pc.OnTrack(func() {
		e.mu.Lock()
		if e.state == StateAwaitingAnswer || e.state == StateAnswering || e.state == StateOffering {
			e.state = StateConnected
		}
		e.mu.Unlock()
	})

	e.mu.Lock()
	e.pc = pc
	e.audio = audio
	e.mu.Unlock()
	return pc, nil
}

// watchSession applies the answer at most once and tears down when the
// remote side sets the end marker.
func (e *Engine) watchSession(sub *live.Subscription[*models.CallSession], pc rtc.PeerConnection) {
	for session := range sub.C() {
		if session == nil {
			continue
		}
		if session.EndedAt != nil {
			e.mu.Lock()
			remoteEnded := e.state != StateIdle
			e.mu.Unlock()
			if remoteEnded {
				e.log.Info("remote end marker observed")
				e.Hangup(context.Background())
			}
			return
		}
		if session.Answer != nil && !pc.RemoteDescriptionSet() {
			desc := rtc.SessionDescription{Type: session.Answer.Type, SDP: session.Answer.SDP}
			if err := pc.SetRemoteDescription(desc); err != nil {
				e.log.WithError(err).Warn("apply answer failed")
				continue
			}
			e.mu.Lock()
			if e.state == StateAwaitingAnswer {
				e.state = StateConnected
			}
			if e.timer != nil {
				e.timer.Stop()
				e.timer = nil
			}
			e.mu.Unlock()
		}
	}
}

// drainCandidates applies the remote side's candidates additively. A
// candidate that fails to apply is logged and skipped, never fatal.
func (e *Engine) drainCandidates(sub *live.Subscription[[]models.CallCandidate], pc rtc.PeerConnection) {
	for batch := range sub.C() {
		for _, cand := range batch {
			e.mu.Lock()
			_, seen := e.applied[cand.ID]
			if !seen {
				e.applied[cand.ID] = struct{}{}
			}
			e.mu.Unlock()
			if seen {
				continue
			}
			if err := pc.AddICECandidate(cand.Init); err != nil {
				e.log.WithError(err).WithField("candidate", cand.ID).Warn("apply candidate failed, skipping")
			}
		}
	}
}
