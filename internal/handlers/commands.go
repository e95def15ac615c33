package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/darkchair/maestro/internal/queue"
	"github.com/darkchair/maestro/internal/repository"
	"github.com/darkchair/maestro/internal/utils"
	"github.com/darkchair/maestro/internal/voice"
)

const (
	replyTTL        = 10 * time.Second
	webSessionTTL   = 12 * time.Hour
	resolveDeadline = 2 * time.Minute
)

// parseCommand splits a chat message into verb and argument. The prefix
// ("!" or "/") is optional.
func parseCommand(content string) (verb, args string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ""
	}
	if content[0] == '!' || content[0] == '/' {
		content = content[1:]
	}
	parts := strings.SplitN(content, " ", 2)
	verb = strings.ToLower(parts[0])
	if len(parts) == 2 {
		args = strings.TrimSpace(parts[1])
	}
	return verb, args
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	verb, args := parseCommand(m.Content)

	switch verb {
	case "play", "p":
		b.cmdPlay(s, m, args)
	case "skip":
		b.cmdSkip(s, m)
	case "stop":
		b.cmdStop(s, m)
	case "queue", "q":
		b.cmdQueue(s, m)
	case "np":
		b.cmdNowPlaying(s, m)
	case "replay", "r":
		b.cmdReplay(s, m)
	case "controls", "c":
		b.cmdControls(s, m)
	case "playplaylist", "pp":
		b.cmdPlayPlaylist(s, m, args)
	case "playlast", "pllast":
		b.cmdPlayLast(s, m)
	case "listplaylists", "lpl":
		b.cmdListPlaylists(s, m)
	case "help":
		b.cmdHelp(s, m)
	case "web":
		b.cmdWeb(s, m)
	}
	// anything else is ordinary chatter
}

// replyAndDelete posts a short-lived confirmation that cleans itself up.
func (b *Bot) replyAndDelete(s *discordgo.Session, channelID, content string) {
	msg, err := s.ChannelMessageSend(channelID, content)
	if err != nil {
		slog.Debug("reply failed", "channelID", channelID, "err", err)
		return
	}
	time.AfterFunc(replyTTL, func() {
		_ = s.ChannelMessageDelete(channelID, msg.ID)
	})
}

// ensureVoice joins the invoking user's voice channel and attaches the
// transport to the guild session. Reuses the existing connection when
// already in the right channel.
func (b *Bot) ensureVoice(s *discordgo.Session, guildID, userID string) (*queue.Session, error) {
	channelID := userVoiceChannel(s, guildID, userID)
	if channelID == "" {
		return nil, fmt.Errorf("join a voice channel first")
	}

	sess := b.registry.GetOrCreate(context.Background(), guildID)
	if sess.Connected() {
		return sess, nil
	}

	tr, err := voice.Join(s, guildID, channelID)
	if err != nil {
		return nil, fmt.Errorf("could not join voice: %w", err)
	}
	sess.AttachTransport(tr)
	return sess, nil
}

func userVoiceChannel(s *discordgo.Session, guildID, userID string) string {
	g, err := s.State.Guild(guildID)
	if err != nil || g == nil {
		return ""
	}
	for _, vs := range g.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}

func (b *Bot) cmdPlay(s *discordgo.Session, m *discordgo.MessageCreate, query string) {
	if query == "" {
		b.replyAndDelete(s, m.ChannelID, "Usage: `play <url or search terms>`")
		return
	}
	sess, err := b.ensureVoice(s, m.GuildID, m.Author.ID)
	if err != nil {
		b.replyAndDelete(s, m.ChannelID, err.Error())
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), resolveDeadline)
		defer cancel()

		tracks, err := b.source.Resolve(ctx, query, m.Author.ID)
		if err != nil {
			slog.Warn("resolve failed", "guildID", m.GuildID, "query", query, "err", err)
			b.replyAndDelete(s, m.ChannelID, "Couldn't find anything for that.")
			return
		}
		n := sess.Enqueue(ctx, tracks...)
		if n == 1 {
			b.replyAndDelete(s, m.ChannelID, fmt.Sprintf("Queued **%s**", utils.EscapeMd(tracks[0].Title)))
		} else {
			b.replyAndDelete(s, m.ChannelID, fmt.Sprintf("Queued **%d** tracks", n))
		}
	}()
}

func (b *Bot) cmdSkip(s *discordgo.Session, m *discordgo.MessageCreate) {
	sess := b.registry.Get(m.GuildID)
	if sess == nil {
		b.replyAndDelete(s, m.ChannelID, "Nothing is playing.")
		return
	}
	if err := sess.Skip(); err != nil {
		b.replyAndDelete(s, m.ChannelID, err.Error())
		return
	}
	b.replyAndDelete(s, m.ChannelID, "Skipped.")
}

func (b *Bot) cmdStop(s *discordgo.Session, m *discordgo.MessageCreate) {
	sess := b.registry.Get(m.GuildID)
	if sess == nil {
		b.replyAndDelete(s, m.ChannelID, "Nothing is playing.")
		return
	}
	sess.Stop()
	b.replyAndDelete(s, m.ChannelID, "Stopped and left the channel.")
}

func (b *Bot) cmdQueue(s *discordgo.Session, m *discordgo.MessageCreate) {
	sess := b.registry.Get(m.GuildID)
	if sess == nil {
		b.replyAndDelete(s, m.ChannelID, "The queue is empty.")
		return
	}
	embed := buildQueueEmbed(sess.Snapshot())
	if _, err := s.ChannelMessageSendEmbed(m.ChannelID, embed); err != nil {
		slog.Debug("queue embed send failed", "guildID", m.GuildID, "err", err)
	}
}

func (b *Bot) cmdNowPlaying(s *discordgo.Session, m *discordgo.MessageCreate) {
	sess := b.registry.Get(m.GuildID)
	if sess == nil {
		b.replyAndDelete(s, m.ChannelID, "Nothing is playing.")
		return
	}
	embed := buildPlayingEmbed(sess.Snapshot())
	if _, err := s.ChannelMessageSendEmbed(m.ChannelID, embed); err != nil {
		slog.Debug("np embed send failed", "guildID", m.GuildID, "err", err)
	}
}

func (b *Bot) cmdReplay(s *discordgo.Session, m *discordgo.MessageCreate) {
	sess := b.registry.Get(m.GuildID)
	if sess == nil {
		b.replyAndDelete(s, m.ChannelID, "Nothing to go back to.")
		return
	}
	if err := sess.Previous(); err != nil {
		b.replyAndDelete(s, m.ChannelID, err.Error())
		return
	}
	b.replyAndDelete(s, m.ChannelID, "Playing the previous track.")
}

func (b *Bot) cmdPlayPlaylist(s *discordgo.Session, m *discordgo.MessageCreate, name string) {
	if name == "" {
		b.replyAndDelete(s, m.ChannelID, "Usage: `playplaylist <name>`")
		return
	}
	items, err := b.playlists.Load(m.GuildID, name)
	if err != nil {
		b.replyAndDelete(s, m.ChannelID, "Playlist not found.")
		return
	}
	if len(items) == 0 {
		b.replyAndDelete(s, m.ChannelID, "That playlist is empty.")
		return
	}
	sess, err := b.ensureVoice(s, m.GuildID, m.Author.ID)
	if err != nil {
		b.replyAndDelete(s, m.ChannelID, err.Error())
		return
	}

	tracks := make([]*queue.Track, 0, len(items))
	for i, it := range items {
		if it.URL == "" {
			continue
		}
		tracks = append(tracks, &queue.Track{
			Title:         it.Title,
			URL:           it.URL,
			RequestedBy:   m.Author.ID,
			Playlist:      name,
			PlaylistIndex: i,
		})
	}
	n := sess.Enqueue(context.Background(), tracks...)
	sess.SetCurrentPlaylist(name)
	b.replyAndDelete(s, m.ChannelID, fmt.Sprintf("Queued **%d** tracks from **%s**", n, utils.EscapeMd(name)))
}

func (b *Bot) cmdPlayLast(s *discordgo.Session, m *discordgo.MessageCreate) {
	sess, err := b.ensureVoice(s, m.GuildID, m.Author.ID)
	if err != nil {
		b.replyAndDelete(s, m.ChannelID, err.Error())
		return
	}
	last := sess.LastRequested()
	if last == nil {
		b.replyAndDelete(s, m.ChannelID, "No previously requested track.")
		return
	}
	sess.Enqueue(context.Background(), &queue.Track{
		Title:       last.Title,
		URL:         last.URL,
		RequestedBy: m.Author.ID,
	})
	b.replyAndDelete(s, m.ChannelID, fmt.Sprintf("Queued **%s**", utils.EscapeMd(last.Title)))
}

func (b *Bot) cmdListPlaylists(s *discordgo.Session, m *discordgo.MessageCreate) {
	names, err := b.playlists.List(m.GuildID)
	if err != nil || len(names) == 0 {
		b.replyAndDelete(s, m.ChannelID, "No saved playlists.")
		return
	}
	var sb strings.Builder
	sb.WriteString("**Saved playlists:**\n")
	for _, n := range names {
		sb.WriteString("• " + utils.EscapeMd(strings.TrimSuffix(n, ".json")) + "\n")
	}
	b.replyAndDelete(s, m.ChannelID, sb.String())
}

func (b *Bot) cmdHelp(s *discordgo.Session, m *discordgo.MessageCreate) {
	help := strings.Join([]string{
		"**Commands** (prefix `!` or `/` optional):",
		"`play|p <url or search>` queue a track, playlist or Spotify link",
		"`skip` next track   `replay|r` previous track   `stop` disconnect",
		"`queue|q` show the queue   `np` now playing",
		"`controls|c` show the control panel",
		"`playplaylist|pp <name>` queue a saved playlist",
		"`playlast|pllast` queue the last requested track",
		"`listplaylists|lpl` list saved playlists",
		"`web` get a dashboard link for this server",
	}, "\n")
	b.replyAndDelete(s, m.ChannelID, help)
}

// cmdWeb issues a guild-scoped dashboard token and DMs the link so the
// token never lands in a public channel.
func (b *Bot) cmdWeb(s *discordgo.Session, m *discordgo.MessageCreate) {
	token := uuid.NewString()
	err := b.repo.CreateWebSession(context.Background(), &repository.WebSession{
		Token:     token,
		GuildID:   m.GuildID,
		Admin:     false,
		ExpiresAt: time.Now().Add(webSessionTTL),
	})
	if err != nil {
		slog.Error("web session create failed", "guildID", m.GuildID, "err", err)
		b.replyAndDelete(s, m.ChannelID, "Couldn't create a web session.")
		return
	}

	link := fmt.Sprintf("%s/?token=%s&guild=%s", strings.TrimRight(b.cfg.WebBaseURL, "/"), token, m.GuildID)
	dm, err := s.UserChannelCreate(m.Author.ID)
	if err == nil {
		if _, err = s.ChannelMessageSend(dm.ID, "Dashboard link (valid 12h): "+link); err == nil {
			b.replyAndDelete(s, m.ChannelID, "Sent you a DM with the dashboard link.")
			return
		}
	}
	slog.Debug("dm failed, falling back to channel", "userID", m.Author.ID, "err", err)
	b.replyAndDelete(s, m.ChannelID, "Couldn't DM you; enable DMs from server members and retry.")
}
