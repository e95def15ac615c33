package config

type Config struct {
	DiscordToken        string
	SpotifyClientID     string
	SpotifyClientSecret string
	DataDir             string
	PlaylistDir         string
	WebPort             int
	WebSecret           string
	WebBaseURL          string
	BotStatus           string // online/dnd/idle
	LoginTimeoutSec     int
}
