package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

// UpsertSettings ensures a settings row exists for the guild and returns it.
func (r *Repo) UpsertSettings(ctx context.Context, guild string) (*Settings, error) {
	_, _ = r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings(guild_id) VALUES (?)`, guild,
	)
	return r.GetSettings(ctx, guild)
}

func (r *Repo) GetSettings(ctx context.Context, guild string) (*Settings, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT guild_id, volume, repeat_mode, shuffle, current_playlist
	FROM settings WHERE guild_id = ?`, guild)

	var s Settings
	var shuffle int
	if err := row.Scan(&s.GuildID, &s.Volume, &s.RepeatMode, &shuffle, &s.CurrentPlaylist); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	s.Shuffle = shuffle != 0
	return &s, nil
}

func (r *Repo) UpdateSettings(ctx context.Context, s *Settings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings(guild_id, volume, repeat_mode, shuffle, current_playlist)
		VALUES (?,?,?,?,?)
		ON CONFLICT(guild_id) DO UPDATE SET
		  volume=excluded.volume,
		  repeat_mode=excluded.repeat_mode,
		  shuffle=excluded.shuffle,
		  current_playlist=excluded.current_playlist`,
		s.GuildID, s.Volume, s.RepeatMode, boolToInt(s.Shuffle), s.CurrentPlaylist,
	)
	return err
}

func (r *Repo) GetLastTrack(ctx context.Context, guild string) (*LastTrack, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT guild_id, title, url, requested_by FROM last_tracks WHERE guild_id = ?`, guild)
	var t LastTrack
	if err := row.Scan(&t.GuildID, &t.Title, &t.URL, &t.RequestedBy); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repo) SaveLastTrack(ctx context.Context, t *LastTrack) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO last_tracks(guild_id, title, url, requested_by) VALUES (?,?,?,?)
		ON CONFLICT(guild_id) DO UPDATE SET
		  title=excluded.title, url=excluded.url, requested_by=excluded.requested_by`,
		t.GuildID, t.Title, t.URL, t.RequestedBy,
	)
	return err
}

func (r *Repo) CreateWebSession(ctx context.Context, ws *WebSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO web_sessions(token, guild_id, admin, expires_at) VALUES (?,?,?,?)`,
		ws.Token, ws.GuildID, boolToInt(ws.Admin), ws.ExpiresAt.Unix(),
	)
	return err
}

// GetWebSession returns the session for token, or sql.ErrNoRows when the
// token is unknown or already expired.
func (r *Repo) GetWebSession(ctx context.Context, token string) (*WebSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT token, guild_id, admin, expires_at FROM web_sessions WHERE token = ?`, token)
	var ws WebSession
	var admin int
	var exp int64
	if err := row.Scan(&ws.Token, &ws.GuildID, &admin, &exp); err != nil {
		return nil, err
	}
	ws.Admin = admin != 0
	ws.ExpiresAt = time.Unix(exp, 0)
	if time.Now().After(ws.ExpiresAt) {
		_, _ = r.db.ExecContext(ctx, `DELETE FROM web_sessions WHERE token = ?`, token)
		return nil, sql.ErrNoRows
	}
	return &ws, nil
}

func (r *Repo) PruneWebSessions(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM web_sessions WHERE expires_at < ?`, time.Now().Unix())
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
