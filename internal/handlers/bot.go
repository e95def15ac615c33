package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/darkchair/maestro/internal/config"
	"github.com/darkchair/maestro/internal/media"
	"github.com/darkchair/maestro/internal/playlist"
	"github.com/darkchair/maestro/internal/queue"
	"github.com/darkchair/maestro/internal/repository"
)

// Bot wires the chat gateway to the per-guild playback sessions.
type Bot struct {
	cfg       *config.Config
	registry  *queue.Registry
	source    *media.Source
	playlists *playlist.Store
	repo      *repository.Repo
	dg        *discordgo.Session
}

func NewBot(cfg *config.Config, registry *queue.Registry, source *media.Source, playlists *playlist.Store, repo *repository.Repo) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	b := &Bot{
		cfg:       cfg,
		registry:  registry,
		source:    source,
		playlists: playlists,
		repo:      repo,
		dg:        dg,
	}

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("connected", "user", s.State.User.Username)
		if cfg.BotStatus != "" {
			_ = s.UpdateStatusComplex(discordgo.UpdateStatusData{Status: cfg.BotStatus})
		}
	})
	dg.AddHandler(b.onMessageCreate)
	dg.AddHandler(b.onInteractionCreate)
	dg.AddHandler(b.onVoiceStateUpdate)

	return b, nil
}

// Discord exposes the underlying gateway session, used by the web layer
// for guild and channel lookups.
func (b *Bot) Discord() *discordgo.Session {
	return b.dg
}

func (b *Bot) Run(ctx context.Context) error {
	timeout := time.Duration(b.cfg.LoginTimeoutSec) * time.Second
	if err := openWithTimeout(ctx, b.dg.Open, timeout); err != nil {
		return err
	}
	defer b.dg.Close()

	<-ctx.Done()
	b.registry.Shutdown()
	return nil
}

// openWithTimeout bounds the gateway login. A hung handshake otherwise
// blocks startup forever with no error surfaced.
func openWithTimeout(ctx context.Context, open func() error, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- open() }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("discord login: %w", err)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("discord login timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onVoiceStateUpdate tears the session down when the bot itself is kicked
// or moved out of voice.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if s.State.User == nil || vs.UserID != s.State.User.ID {
		return
	}
	if vs.ChannelID != "" {
		return
	}
	if sess := b.registry.Get(vs.GuildID); sess != nil {
		slog.Info("voice connection dropped, destroying session", "guildID", vs.GuildID)
		sess.Destroy()
	}
}
