package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/darkchair/maestro/internal/queue"
)

// SettingsBridge adapts the sqlite repo to the queue's settings-store port.
type SettingsBridge struct {
	repo *Repo
}

func NewSettingsBridge(repo *Repo) *SettingsBridge {
	return &SettingsBridge{repo: repo}
}

func (b *SettingsBridge) Load(ctx context.Context, guildID string) (queue.Settings, error) {
	s, err := b.repo.UpsertSettings(ctx, guildID)
	if err != nil {
		return queue.Settings{Volume: queue.DefaultVolume}, err
	}
	return queue.Settings{
		Volume:          s.Volume,
		Repeat:          queue.ParseRepeatMode(s.RepeatMode),
		Shuffle:         s.Shuffle,
		CurrentPlaylist: s.CurrentPlaylist,
	}, nil
}

func (b *SettingsBridge) Save(ctx context.Context, guildID string, s queue.Settings) error {
	return b.repo.UpdateSettings(ctx, &Settings{
		GuildID:         guildID,
		Volume:          s.Volume,
		RepeatMode:      s.Repeat.String(),
		Shuffle:         s.Shuffle,
		CurrentPlaylist: s.CurrentPlaylist,
	})
}

func (b *SettingsBridge) SaveLastTrack(ctx context.Context, guildID string, t *queue.Track) error {
	if t == nil {
		return nil
	}
	return b.repo.SaveLastTrack(ctx, &LastTrack{
		GuildID:     guildID,
		Title:       t.Title,
		URL:         t.URL,
		RequestedBy: t.RequestedBy,
	})
}

func (b *SettingsBridge) LoadLastTrack(ctx context.Context, guildID string) (*queue.Track, error) {
	lt, err := b.repo.GetLastTrack(ctx, guildID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &queue.Track{Title: lt.Title, URL: lt.URL, RequestedBy: lt.RequestedBy}, nil
}
