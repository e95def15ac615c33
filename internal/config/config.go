package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getenv("DATA_DIR", "./data")

	cfg := &Config{
		DiscordToken:        getenv("BOT_TOKEN", getenv("DISCORD_TOKEN", os.Getenv("TOKEN"))),
		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		DataDir:             dataDir,
		PlaylistDir:         filepath.Join(dataDir, "playlists"),
		WebPort:             getenvInt("WEB_PORT", 3000),
		WebSecret:           os.Getenv("WEB_SECRET"),
		WebBaseURL:          getenv("WEB_BASE_URL", "http://localhost:3000"),
		BotStatus:           getenv("BOT_STATUS", "online"),
		LoginTimeoutSec:     getenvInt("CLIENT_LOGIN_TIMEOUT_SEC", 30),
	}

	if cfg.DiscordToken == "" {
		return nil, ErrConfig("BOT_TOKEN required")
	}
	_ = os.MkdirAll(cfg.DataDir, 0o755)
	_ = os.MkdirAll(cfg.PlaylistDir, 0o755)
	return cfg, nil
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
