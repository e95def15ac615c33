package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/darkchair/maestro/internal/utils"
)

const (
	DefaultVolume      = 0.8
	MaxVolume          = 2.0
	defaultIdleTimeout = 30 * time.Second
)

// Session is the playback state machine for one guild. All mutation goes
// through its mutex; blocking work (stream acquisition, transport stop)
// happens outside the lock with a generation check before state commits.
type Session struct {
	GuildID string

	mu           sync.Mutex
	pending      []*Track
	current      *Track
	history      []*Track
	playing      bool
	paused       bool
	repeat       RepeatMode
	shuffle      bool
	volume       float64
	playlistName string
	startedAt    time.Time
	durationMS   int
	thumbnail    string
	lastReq      *Track
	forceAdvance bool
	destroyed    bool
	gen          uint64
	idleTimer    *time.Timer
	idleTimeout  time.Duration
	panel        *Panel

	transport Transport
	source    MediaSource
	store     SettingsStore
	onDestroy func(*Session)
}

func newSession(guildID string, source MediaSource, store SettingsStore, idleTimeout time.Duration, onDestroy func(*Session)) *Session {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	s := &Session{
		GuildID:     guildID,
		volume:      DefaultVolume,
		idleTimeout: idleTimeout,
		source:      source,
		store:       store,
		onDestroy:   onDestroy,
	}
	if store != nil {
		if set, err := store.Load(context.Background(), guildID); err == nil {
			s.volume = clampVolume(set.Volume)
			s.repeat = set.Repeat
			s.shuffle = set.Shuffle
			s.playlistName = set.CurrentPlaylist
		}
		if t, err := store.LoadLastTrack(context.Background(), guildID); err == nil && t != nil {
			s.lastReq = t
		}
	}
	return s
}

// AttachTransport hands the session its voice transport. If tracks are
// already waiting, playback starts.
func (s *Session) AttachTransport(tr Transport) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		tr.Close()
		return
	}
	old := s.transport
	s.transport = tr
	shouldPlay := !s.playing && !s.paused && s.current == nil && len(s.pending) > 0
	s.mu.Unlock()

	if old != nil && old != tr {
		old.Stop()
		old.Close()
	}
	if shouldPlay {
		go s.Advance(context.Background())
	}
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport != nil
}

// Enqueue appends tracks to pending, remembers the first as the guild's
// last requested track, and starts playback if the session is idle.
func (s *Session) Enqueue(ctx context.Context, tracks ...*Track) int {
	if len(tracks) == 0 {
		return 0
	}
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return 0
	}
	s.pending = append(s.pending, tracks...)
	if s.shuffle && len(tracks) > 1 {
		utils.ShuffleSlice(s.pending)
	}
	s.lastReq = tracks[0]
	s.cancelIdleTeardownLocked()
	shouldPlay := !s.playing && !s.paused && s.transport != nil
	store := s.store
	s.mu.Unlock()

	if store != nil {
		if err := store.SaveLastTrack(ctx, s.GuildID, tracks[0]); err != nil {
			slog.Warn("failed to persist last requested track", "guildID", s.GuildID, "err", err)
		}
	}
	if shouldPlay {
		go s.Advance(context.Background())
	}
	return len(tracks)
}

// Advance is the playNext step: it decides the next track, acquires its
// stream and hands it to the transport. It re-invokes itself through the
// transport's finish callback and loops internally to skip broken tracks.
func (s *Session) Advance(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.destroyed || s.transport == nil {
			s.mu.Unlock()
			return
		}
		forced := s.forceAdvance
		s.forceAdvance = false

		var next *Track
		if s.repeat == RepeatOne && s.current != nil && !forced {
			// replay the same track; history untouched
			next = s.current
		} else {
			next = s.popPendingLocked()
			if s.current != nil && next != s.current {
				s.history = append(s.history, s.current)
			}
			if next == nil && s.repeat == RepeatAll && len(s.history) > 0 {
				// rebuild in original play order; history already ends
				// with the track that just finished
				s.pending = s.history
				s.history = nil
				next = s.popPendingLocked()
			}
		}
		s.current = next

		if next == nil {
			s.playing = false
			s.paused = false
			s.startedAt = time.Time{}
			s.durationMS = 0
			s.thumbnail = ""
			s.scheduleIdleTeardownLocked()
			s.mu.Unlock()
			return
		}

		s.gen++
		gen := s.gen
		s.cancelIdleTeardownLocked()
		s.mu.Unlock()

		stream, err := s.source.OpenStream(ctx, next.URL)
		if err != nil {
			slog.Warn("stream acquisition failed, skipping track",
				"guildID", s.GuildID, "title", next.Title, "err", err)
			s.mu.Lock()
			if s.destroyed || s.gen != gen {
				s.mu.Unlock()
				return
			}
			// the broken track must not be replayed by repeat-one
			s.forceAdvance = true
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		if s.destroyed || s.gen != gen || s.current != next {
			s.mu.Unlock()
			_ = stream.Close()
			return
		}
		s.playing = true
		s.paused = false
		s.startedAt = time.Now()
		s.durationMS = next.DurationMS
		s.thumbnail = next.Thumbnail
		vol := s.volume
		tr := s.transport
		s.mu.Unlock()

		if err := tr.Play(stream, vol, func() { s.Advance(context.Background()) }); err != nil {
			slog.Error("transport play failed, skipping track",
				"guildID", s.GuildID, "title", next.Title, "err", err)
			_ = stream.Close()
			s.mu.Lock()
			if s.destroyed || s.gen != gen {
				s.mu.Unlock()
				return
			}
			s.playing = false
			s.forceAdvance = true
			s.mu.Unlock()
			continue
		}

		slog.Info("playback started", "guildID", s.GuildID, "title", next.Title)
		go s.refreshMetadata(ctx, next, gen)
		return
	}
}

// refreshMetadata fetches duration/thumbnail for the playing track.
// Failures default the fields to unknown and never interrupt playback.
func (s *Session) refreshMetadata(ctx context.Context, t *Track, gen uint64) {
	if s.source == nil {
		return
	}
	info, err := s.source.GetInfo(ctx, t.URL)
	if err != nil || info == nil {
		slog.Debug("metadata lookup failed", "guildID", s.GuildID, "url", t.URL, "err", err)
		return
	}
	s.mu.Lock()
	if !s.destroyed && s.gen == gen && s.current == t {
		if info.DurationMS > 0 {
			s.durationMS = info.DurationMS
		}
		if info.Thumbnail != "" {
			s.thumbnail = info.Thumbnail
		}
	}
	s.mu.Unlock()
}

func (s *Session) popPendingLocked() *Track {
	if len(s.pending) == 0 {
		return nil
	}
	t := s.pending[0]
	s.pending = s.pending[1:]
	return t
}

// Skip stops the current track and advances, overriding repeat-one.
func (s *Session) Skip() error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	if s.current == nil && len(s.pending) == 0 {
		s.mu.Unlock()
		return ErrNothingPlaying
	}
	s.forceAdvance = true
	active := s.playing || s.paused
	tr := s.transport
	s.mu.Unlock()

	s.stopOrAdvance(tr, active)
	s.persistSettings()
	return nil
}

// Previous re-queues the most recent history entry at the front of pending
// and forces an advance onto it.
func (s *Session) Previous() error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	if len(s.history) == 0 {
		s.mu.Unlock()
		return ErrNoHistory
	}
	last := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	s.pending = append([]*Track{last}, s.pending...)
	s.forceAdvance = true
	active := s.playing || s.paused
	tr := s.transport
	s.mu.Unlock()

	s.stopOrAdvance(tr, active)
	return nil
}

// stopOrAdvance triggers the advance step: through the transport's finish
// callback when a play cycle is active, directly otherwise.
func (s *Session) stopOrAdvance(tr Transport, active bool) {
	if active && tr != nil {
		tr.Stop()
		return
	}
	go s.Advance(context.Background())
}

func (s *Session) Pause() error {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return ErrNothingPlaying
	}
	s.playing = false
	s.paused = true
	tr := s.transport
	s.mu.Unlock()

	if tr != nil {
		return tr.Pause()
	}
	return nil
}

func (s *Session) Resume() error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	if s.playing {
		s.mu.Unlock()
		return nil
	}
	if s.paused && s.current != nil {
		s.playing = true
		s.paused = false
		tr := s.transport
		s.mu.Unlock()
		if tr != nil {
			return tr.Resume()
		}
		return nil
	}
	if s.current == nil && len(s.pending) == 0 {
		s.mu.Unlock()
		return ErrQueueEmpty
	}
	s.mu.Unlock()
	go s.Advance(context.Background())
	return nil
}

// Stop clears the queue and destroys the session; it is idempotent.
func (s *Session) Stop() {
	s.Destroy()
}

// Destroy tears down the session: the destroyed flag is set synchronously
// before any asynchronous kill completes, timers are cancelled, and the
// transport (voice connection plus audio process) is released exactly once.
func (s *Session) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.gen++
	s.pending = nil
	s.current = nil
	s.history = nil
	s.playing = false
	s.paused = false
	s.cancelIdleTeardownLocked()
	panel := s.panel
	s.panel = nil
	tr := s.transport
	s.transport = nil
	onDestroy := s.onDestroy
	s.mu.Unlock()

	if panel != nil {
		panel.Stop()
	}
	if tr != nil {
		tr.Stop()
		tr.Close()
	}
	if onDestroy != nil {
		onDestroy(s)
	}
	slog.Info("session destroyed", "guildID", s.GuildID)
}

func (s *Session) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// ClearQueue drops all upcoming tracks; the current track keeps playing.
func (s *Session) ClearQueue() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

// SetVolume clamps v into [0, 2], applies it to the live transport and
// persists it.
func (s *Session) SetVolume(v float64) float64 {
	v = clampVolume(v)
	s.mu.Lock()
	s.volume = v
	tr := s.transport
	s.mu.Unlock()

	if tr != nil {
		tr.SetVolume(v)
	}
	s.persistSettings()
	return v
}

func (s *Session) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// ToggleShuffle flips the shuffle flag. Turning it on permutes pending
// only; current and history are never reordered.
func (s *Session) ToggleShuffle() bool {
	s.mu.Lock()
	s.shuffle = !s.shuffle
	on := s.shuffle
	if on {
		utils.ShuffleSlice(s.pending)
	}
	s.mu.Unlock()

	s.persistSettings()
	return on
}

func (s *Session) CycleRepeat() RepeatMode {
	s.mu.Lock()
	s.repeat = s.repeat.Next()
	m := s.repeat
	s.mu.Unlock()

	s.persistSettings()
	return m
}

func (s *Session) SetCurrentPlaylist(name string) {
	s.mu.Lock()
	s.playlistName = name
	s.mu.Unlock()
	s.persistSettings()
}

func (s *Session) LastRequested() *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReq
}

func (s *Session) persistSettings() {
	s.mu.Lock()
	set := Settings{
		Volume:          s.volume,
		Repeat:          s.repeat,
		Shuffle:         s.shuffle,
		CurrentPlaylist: s.playlistName,
	}
	store := s.store
	s.mu.Unlock()

	if store == nil {
		return
	}
	if err := store.Save(context.Background(), s.GuildID, set); err != nil {
		slog.Warn("failed to persist settings", "guildID", s.GuildID, "err", err)
	}
}

func (s *Session) scheduleIdleTeardownLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(s.idleTimeout, func() {
		s.mu.Lock()
		idle := !s.destroyed && s.current == nil && len(s.pending) == 0 && !s.playing
		s.mu.Unlock()
		if idle {
			slog.Info("idle timeout, tearing down session", "guildID", s.GuildID)
			s.Destroy()
		}
	})
}

func (s *Session) cancelIdleTeardownLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > MaxVolume {
		return MaxVolume
	}
	return v
}
