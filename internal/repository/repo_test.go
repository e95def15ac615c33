package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/darkchair/maestro/internal/config"
	"github.com/darkchair/maestro/internal/queue"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := OpenDB(&config.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewRepo(db)
}

func TestUpsertSettingsDefaults(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	s, err := repo.UpsertSettings(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if s.Volume != 0.8 {
		t.Errorf("default volume = %v, want 0.8", s.Volume)
	}
	if s.RepeatMode != "off" || s.Shuffle {
		t.Errorf("defaults = %+v", s)
	}
}

func TestUpdateSettingsRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.UpdateSettings(ctx, &Settings{
		GuildID:         "g1",
		Volume:          1.4,
		RepeatMode:      "all",
		Shuffle:         true,
		CurrentPlaylist: "mix",
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetSettings(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Volume != 1.4 || got.RepeatMode != "all" || !got.Shuffle || got.CurrentPlaylist != "mix" {
		t.Errorf("settings = %+v", got)
	}
}

func TestLastTrackRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetLastTrack(ctx, "g1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetLastTrack unknown guild = %v, want ErrNoRows", err)
	}

	save := &LastTrack{GuildID: "g1", Title: "a song", URL: "https://example.com", RequestedBy: "u1"}
	if err := repo.SaveLastTrack(ctx, save); err != nil {
		t.Fatal(err)
	}
	// second save replaces the first
	save.Title = "another song"
	if err := repo.SaveLastTrack(ctx, save); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetLastTrack(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "another song" {
		t.Errorf("last track = %+v", got)
	}
}

func TestWebSessionLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ws := &WebSession{Token: "tok", GuildID: "g1", Admin: true, ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.CreateWebSession(ctx, ws); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetWebSession(ctx, "tok")
	if err != nil {
		t.Fatal(err)
	}
	if got.GuildID != "g1" || !got.Admin {
		t.Errorf("session = %+v", got)
	}

	if _, err := repo.GetWebSession(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("unknown token = %v, want ErrNoRows", err)
	}
}

func TestWebSessionExpiry(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	expired := &WebSession{Token: "old", GuildID: "g1", ExpiresAt: time.Now().Add(-time.Minute)}
	if err := repo.CreateWebSession(ctx, expired); err != nil {
		t.Fatal(err)
	}

	if _, err := repo.GetWebSession(ctx, "old"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expired token = %v, want ErrNoRows", err)
	}

	if err := repo.PruneWebSessions(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestSettingsBridge(t *testing.T) {
	repo := newTestRepo(t)
	bridge := NewSettingsBridge(repo)
	ctx := context.Background()

	set, err := bridge.Load(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if set.Volume != queue.DefaultVolume || set.Repeat != queue.RepeatOff {
		t.Errorf("fresh settings = %+v", set)
	}

	set.Volume = 1.2
	set.Repeat = queue.RepeatAll
	set.Shuffle = true
	if err := bridge.Save(ctx, "g1", set); err != nil {
		t.Fatal(err)
	}

	again, err := bridge.Load(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if again.Volume != 1.2 || again.Repeat != queue.RepeatAll || !again.Shuffle {
		t.Errorf("reloaded = %+v", again)
	}

	if lt, err := bridge.LoadLastTrack(ctx, "g1"); err != nil || lt != nil {
		t.Errorf("LoadLastTrack fresh guild = %v, %v; want nil, nil", lt, err)
	}
	track := &queue.Track{Title: "t", URL: "https://example.com", RequestedBy: "u1"}
	if err := bridge.SaveLastTrack(ctx, "g1", track); err != nil {
		t.Fatal(err)
	}
	lt, err := bridge.LoadLastTrack(ctx, "g1")
	if err != nil || lt == nil || lt.Title != "t" {
		t.Errorf("LoadLastTrack = %v, %v", lt, err)
	}
}
