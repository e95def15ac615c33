package queue

import (
	"context"
	"errors"
	"io"
)

// AudioStream is a raw audio byte stream plus the handle that terminates
// the process producing it. Close must be safe to call more than once but
// kills the producer at most once.
type AudioStream interface {
	io.Reader
	Close() error
}

// TrackInfo is the best-effort metadata a media source can report for a
// playable URL. Zero values mean unknown.
type TrackInfo struct {
	Title      string
	Uploader   string
	DurationMS int
	Thumbnail  string
	Format     string
	BitrateKbs int
	IsLive     bool
}

// MediaSource acquires audio byte streams and metadata for source URLs.
type MediaSource interface {
	OpenStream(ctx context.Context, url string) (AudioStream, error)
	GetInfo(ctx context.Context, url string) (*TrackInfo, error)
}

// Transport is the voice-output collaborator for one guild.
//
// Play takes ownership of stream and closes it exactly once when the play
// cycle ends, whether by natural completion, error or Stop; onFinish fires
// exactly once at that point. A cycle superseded by a new Play call ends
// silently: its stream is closed but its onFinish never fires. If Play
// returns an error the stream is NOT owned and the caller must close it.
// Stop on an idle transport is a no-op and must not fire a stale onFinish.
type Transport interface {
	Play(stream AudioStream, volume float64, onFinish func()) error
	Stop()
	Pause() error
	Resume() error
	SetVolume(v float64)
	Close()
}

// Settings is the per-guild persisted preference set.
type Settings struct {
	Volume          float64
	Repeat          RepeatMode
	Shuffle         bool
	CurrentPlaylist string
}

// SettingsStore loads settings at session creation and saves them on each
// mutation. Implementations must tolerate unknown guilds on Load.
type SettingsStore interface {
	Load(ctx context.Context, guildID string) (Settings, error)
	Save(ctx context.Context, guildID string, s Settings) error
	SaveLastTrack(ctx context.Context, guildID string, t *Track) error
	LoadLastTrack(ctx context.Context, guildID string) (*Track, error)
}

var (
	ErrNoSession      = errors.New("no active queue")
	ErrNothingPlaying = errors.New("nothing is playing")
	ErrNoHistory      = errors.New("nothing to go back to")
	ErrQueueEmpty     = errors.New("queue is empty")
	ErrNotConnected   = errors.New("not connected to voice")
	ErrDestroyed      = errors.New("session destroyed")
)
