package repository

import (
	"database/sql"
	"time"
)

type Repo struct {
	db *sql.DB
}

type Settings struct {
	GuildID         string
	Volume          float64
	RepeatMode      string // off/one/all
	Shuffle         bool
	CurrentPlaylist string
}

type LastTrack struct {
	GuildID     string
	Title       string
	URL         string
	RequestedBy string
}

type WebSession struct {
	Token     string
	GuildID   string
	Admin     bool
	ExpiresAt time.Time
}
