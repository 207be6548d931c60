package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/HuynhDucPhu2502/Flickr/internal/database"
	"github.com/HuynhDucPhu2502/Flickr/internal/live"
	"github.com/HuynhDucPhu2502/Flickr/internal/models"
	"github.com/HuynhDucPhu2502/Flickr/internal/redis"
	"github.com/HuynhDucPhu2502/Flickr/internal/rtc"
	"github.com/HuynhDucPhu2502/Flickr/internal/services"
)

type fakeAudio struct {
	mu      sync.Mutex
	muted   bool
	stopped bool
}

func (a *fakeAudio) SetMuted(m bool) { a.mu.Lock(); a.muted = m; a.mu.Unlock() }
func (a *fakeAudio) Muted() bool     { a.mu.Lock(); defer a.mu.Unlock(); return a.muted }
func (a *fakeAudio) Stop()           { a.mu.Lock(); a.stopped = true; a.mu.Unlock() }

func (a *fakeAudio) Stopped() bool { a.mu.Lock(); defer a.mu.Unlock(); return a.stopped }

type fakeMedia struct {
	mu   sync.Mutex
	last *fakeAudio
}

func (m *fakeMedia) AcquireAudio() (rtc.AudioCapture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = &fakeAudio{}
	return m.last, nil
}

type fakePeer struct {
	mu      sync.Mutex
	local   *rtc.SessionDescription
	remote  *rtc.SessionDescription
	added   []models.ICECandidate
	onCand  func(models.ICECandidate)
	onTrack func()
	closed  bool
}

func (p *fakePeer) AddAudio(rtc.AudioCapture) error { return nil }

func (p *fakePeer) CreateOffer() (rtc.SessionDescription, error) {
	return rtc.SessionDescription{Type: "offer", SDP: "fake-offer-sdp"}, nil
}

func (p *fakePeer) CreateAnswer() (rtc.SessionDescription, error) {
	return rtc.SessionDescription{Type: "answer", SDP: "fake-answer-sdp"}, nil
}

func (p *fakePeer) SetLocalDescription(d rtc.SessionDescription) error {
	p.mu.Lock()
	p.local = &d
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) SetRemoteDescription(d rtc.SessionDescription) error {
	p.mu.Lock()
	p.remote = &d
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) RemoteDescriptionSet() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote != nil
}

func (p *fakePeer) AddICECandidate(init models.ICECandidate) error {
	p.mu.Lock()
	p.added = append(p.added, init)
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) OnICECandidate(fn func(models.ICECandidate)) {
	p.mu.Lock()
	p.onCand = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnTrack(fn func()) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) fireTrack() {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *fakePeer) emitCandidate(c models.ICECandidate) {
	p.mu.Lock()
	fn := p.onCand
	p.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (p *fakePeer) remoteSDP() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return ""
	}
	return p.remote.SDP
}

func (p *fakePeer) addedCandidates() []models.ICECandidate {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.ICECandidate, len(p.added))
	copy(out, p.added)
	return out
}

func (p *fakePeer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func newTestStore(t *testing.T) *services.CallService {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	mr := miniredis.RunT(t)
	client := redis.NewFromAddr(mr.Addr())
	t.Cleanup(func() { client.Close() })

	return services.NewCallService(db, live.NewBus(client), 0)
}

func newTestEngine(store *services.CallService, media *fakeMedia, opts ...Option) (*Engine, *fakePeer) {
	peer := &fakePeer{}
	factory := func(rtc.Config) (rtc.PeerConnection, error) { return peer, nil }
	return NewEngine(store, media, factory, rtc.Config{}, opts...), peer
}

func TestStartCallPlacesOffer(t *testing.T) {
	store := newTestStore(t)
	media := &fakeMedia{}
	engine, peer := newTestEngine(store, media)
	ctx := context.Background()

	require.NoError(t, engine.StartCall(ctx, "alice_bob", "alice", "bob"))
	defer engine.Hangup(ctx)

	assert.Equal(t, StateAwaitingAnswer, engine.State())

	session, err := store.Session(ctx, "alice_bob")
	require.NoError(t, err)
	require.NotNil(t, session)
	require.NotNil(t, session.Offer)
	assert.Equal(t, "alice", session.Offer.From)
	assert.Equal(t, "bob", session.Offer.To)
	assert.Equal(t, "fake-offer-sdp", session.Offer.SDP)

	// Local candidates flow into the store under the offer side.
	peer.emitCandidate(models.ICECandidate{Candidate: "local-1"})
	cands, err := store.Candidates(ctx, "alice_bob", models.CandidateSideOffer)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "local-1", cands[0].Init.Candidate)
}

func TestStartCallWhileBusy(t *testing.T) {
	store := newTestStore(t)
	engine, _ := newTestEngine(store, &fakeMedia{})
	ctx := context.Background()

	require.NoError(t, engine.StartCall(ctx, "alice_bob", "alice", "bob"))
	defer engine.Hangup(ctx)

	assert.ErrorIs(t, engine.StartCall(ctx, "alice_carol", "alice", "carol"), ErrBusy)
	assert.ErrorIs(t, engine.AnswerCall(ctx, "alice_bob", "alice"), ErrBusy)
}

func TestAnswerCallWithoutOffer(t *testing.T) {
	store := newTestStore(t)
	engine, _ := newTestEngine(store, &fakeMedia{})

	err := engine.AnswerCall(context.Background(), "alice_bob", "bob")
	assert.ErrorIs(t, err, services.ErrNoOffer)
	assert.Equal(t, StateIdle, engine.State())
}

func TestOfferAnswerFlow(t *testing.T) {
	store := newTestStore(t)
	caller, callerPeer := newTestEngine(store, &fakeMedia{})
	callee, calleePeer := newTestEngine(store, &fakeMedia{})
	ctx := context.Background()

	require.NoError(t, caller.StartCall(ctx, "alice_bob", "alice", "bob"))
	defer caller.Hangup(ctx)

	require.NoError(t, callee.AnswerCall(ctx, "alice_bob", "bob"))
	defer callee.Hangup(ctx)

	// Answering alone is not Connected; the remote track event is.
	assert.Equal(t, StateAnswering, callee.State())
	assert.Equal(t, "fake-offer-sdp", calleePeer.remoteSDP())

	calleePeer.fireTrack()
	assert.Equal(t, StateConnected, callee.State())

	session, err := store.Session(ctx, "alice_bob")
	require.NoError(t, err)
	require.NotNil(t, session.Answer)
	assert.Equal(t, "bob", session.Answer.From)
	assert.Equal(t, "alice", session.Answer.To)

	// The caller picks the answer up off the session stream.
	require.Eventually(t, func() bool {
		return caller.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "fake-answer-sdp", callerPeer.remoteSDP())

	// Candidates cross: callee's reach the caller and vice versa.
	calleePeer.emitCandidate(models.ICECandidate{Candidate: "from-callee"})
	require.Eventually(t, func() bool {
		for _, c := range callerPeer.addedCandidates() {
			if c.Candidate == "from-callee" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	callerPeer.emitCandidate(models.ICECandidate{Candidate: "from-caller"})
	require.Eventually(t, func() bool {
		for _, c := range calleePeer.addedCandidates() {
			if c.Candidate == "from-caller" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRemoteHangupTearsDown(t *testing.T) {
	store := newTestStore(t)
	caller, callerPeer := newTestEngine(store, &fakeMedia{})
	callee, _ := newTestEngine(store, &fakeMedia{})
	ctx := context.Background()

	require.NoError(t, caller.StartCall(ctx, "alice_bob", "alice", "bob"))
	require.NoError(t, callee.AnswerCall(ctx, "alice_bob", "bob"))

	require.Eventually(t, func() bool {
		return caller.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	callee.Hangup(ctx)

	require.Eventually(t, func() bool {
		return caller.State() == StateIdle
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, callerPeer.Closed())

	session, err := store.Session(ctx, "alice_bob")
	require.NoError(t, err)
	require.NotNil(t, session.EndedAt)
}

func TestHangupReleasesEverything(t *testing.T) {
	store := newTestStore(t)
	media := &fakeMedia{}
	engine, peer := newTestEngine(store, media)
	ctx := context.Background()

	require.NoError(t, engine.StartCall(ctx, "alice_bob", "alice", "bob"))
	engine.Hangup(ctx)

	assert.Equal(t, StateIdle, engine.State())
	assert.True(t, peer.Closed())
	assert.True(t, media.last.Stopped())

	session, err := store.Session(ctx, "alice_bob")
	require.NoError(t, err)
	require.NotNil(t, session.EndedAt)

	// A second hangup, and one that never saw a call, are no-ops.
	engine.Hangup(ctx)
	assert.Equal(t, StateIdle, engine.State())

	fresh, _ := newTestEngine(store, &fakeMedia{})
	fresh.Hangup(ctx)
	assert.Equal(t, StateIdle, fresh.State())
}

func TestAnswerTimeoutHangsUp(t *testing.T) {
	store := newTestStore(t)
	engine, peer := newTestEngine(store, &fakeMedia{}, WithAnswerTimeout(30*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, engine.StartCall(ctx, "alice_bob", "alice", "bob"))

	require.Eventually(t, func() bool {
		return engine.State() == StateIdle
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, peer.Closed())

	session, err := store.Session(ctx, "alice_bob")
	require.NoError(t, err)
	require.NotNil(t, session.EndedAt)
}

func TestMuteTogglesAudio(t *testing.T) {
	store := newTestStore(t)
	media := &fakeMedia{}
	engine, _ := newTestEngine(store, media)
	ctx := context.Background()

	// Mute before any call is a no-op.
	engine.SetMuted(true)

	require.NoError(t, engine.StartCall(ctx, "alice_bob", "alice", "bob"))
	defer engine.Hangup(ctx)

	engine.SetMuted(true)
	assert.True(t, media.last.Muted())
	engine.SetMuted(false)
	assert.False(t, media.last.Muted())
}
