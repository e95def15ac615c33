package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/darkchair/maestro/internal/config"
	"github.com/darkchair/maestro/internal/handlers"
	"github.com/darkchair/maestro/internal/media"
	"github.com/darkchair/maestro/internal/playlist"
	"github.com/darkchair/maestro/internal/queue"
	"github.com/darkchair/maestro/internal/repository"
	"github.com/darkchair/maestro/internal/spotify"
	"github.com/darkchair/maestro/internal/web"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	db, err := repository.OpenDB(cfg)
	if err != nil {
		log.Fatal(err)
	}
	repo := repository.NewRepo(db)

	playlists, err := playlist.NewStore(cfg.PlaylistDir)
	if err != nil {
		log.Fatal(err)
	}

	var sp *spotify.Client
	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		sp, err = spotify.NewClientCredentials(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
		if err != nil {
			slog.Warn("spotify client init failed, spotify links disabled", "err", err)
		}
	}
	source := media.NewSource(sp)

	registry := queue.NewRegistry(source, repository.NewSettingsBridge(repo), 30*time.Second)

	bot, err := handlers.NewBot(cfg, registry, source, playlists, repo)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := web.NewServer(cfg, registry, repo, playlists, bot.Discord())
	go func() {
		if err := srv.Start(ctx); err != nil {
			slog.Error("web server exited", "err", err)
			cancel()
		}
	}()

	if err := bot.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
