package queue

import "time"

// Snapshot is a consistent copy of the observable session state, used by
// the panel renderer, chat commands and the HTTP status endpoint.
type Snapshot struct {
	GuildID         string
	Current         *Track
	Pending         []*Track
	HistoryLen      int
	Playing         bool
	Paused          bool
	Repeat          RepeatMode
	Shuffle         bool
	Volume          float64
	StartedAt       time.Time
	DurationMS      int
	Thumbnail       string
	CurrentPlaylist string
	LastRequested   *Track
	Connected       bool
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]*Track, len(s.pending))
	copy(pending, s.pending)

	return Snapshot{
		GuildID:         s.GuildID,
		Current:         s.current,
		Pending:         pending,
		HistoryLen:      len(s.history),
		Playing:         s.playing,
		Paused:          s.paused,
		Repeat:          s.repeat,
		Shuffle:         s.shuffle,
		Volume:          s.volume,
		StartedAt:       s.startedAt,
		DurationMS:      s.durationMS,
		Thumbnail:       s.thumbnail,
		CurrentPlaylist: s.playlistName,
		LastRequested:   s.lastReq,
		Connected:       s.transport != nil,
	}
}

// Elapsed reports the playback position of the current track.
func (sn Snapshot) Elapsed() time.Duration {
	if sn.Current == nil || sn.StartedAt.IsZero() {
		return 0
	}
	return time.Since(sn.StartedAt)
}

// QueuePosition is the 1-based place of the current track among the
// tracks still to be played: current plus pending, history excluded.
func (sn Snapshot) QueuePosition() (pos, total int) {
	if sn.Current == nil {
		return 0, len(sn.Pending)
	}
	return 1, 1 + len(sn.Pending)
}
