package handlers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/darkchair/maestro/internal/queue"
)

const volumeStep = 0.1

// cmdControls posts the interactive control panel and attaches it to the
// session so it keeps refreshing.
func (b *Bot) cmdControls(s *discordgo.Session, m *discordgo.MessageCreate) {
	sess := b.registry.GetOrCreate(context.Background(), m.GuildID)

	components := b.controlComponents(m.GuildID)
	msg, err := s.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
		Embed:      buildPlayingEmbed(sess.Snapshot()),
		Components: components,
	})
	if err != nil {
		slog.Warn("controls send failed", "guildID", m.GuildID, "err", err)
		return
	}

	sess.ShowPanel(&panelSurface{
		s:          s,
		channelID:  m.ChannelID,
		messageID:  msg.ID,
		components: components,
	}, 0)
}

func (b *Bot) controlComponents(guildID string) []discordgo.MessageComponent {
	rows := []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{CustomID: "panel_prev", Style: discordgo.SecondaryButton, Emoji: &discordgo.ComponentEmoji{Name: "⏮️"}},
			discordgo.Button{CustomID: "panel_playpause", Style: discordgo.PrimaryButton, Emoji: &discordgo.ComponentEmoji{Name: "⏯️"}},
			discordgo.Button{CustomID: "panel_next", Style: discordgo.SecondaryButton, Emoji: &discordgo.ComponentEmoji{Name: "⏭️"}},
			discordgo.Button{CustomID: "panel_stop", Style: discordgo.DangerButton, Emoji: &discordgo.ComponentEmoji{Name: "⏹️"}},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{CustomID: "panel_voldown", Style: discordgo.SecondaryButton, Emoji: &discordgo.ComponentEmoji{Name: "🔉"}},
			discordgo.Button{CustomID: "panel_volup", Style: discordgo.SecondaryButton, Emoji: &discordgo.ComponentEmoji{Name: "🔊"}},
			discordgo.Button{CustomID: "panel_repeat", Style: discordgo.SecondaryButton, Emoji: &discordgo.ComponentEmoji{Name: "🔁"}},
			discordgo.Button{CustomID: "panel_shuffle", Style: discordgo.SecondaryButton, Emoji: &discordgo.ComponentEmoji{Name: "🔀"}},
		}},
	}

	names, err := b.playlists.List(guildID)
	if err != nil || len(names) == 0 {
		return rows
	}
	if len(names) > 25 {
		names = names[:25]
	}
	opts := make([]discordgo.SelectMenuOption, 0, len(names))
	for _, n := range names {
		label := strings.TrimSuffix(n, ".json")
		opts = append(opts, discordgo.SelectMenuOption{Label: label, Value: label})
	}
	rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.SelectMenu{
			CustomID:    "panel_playlist",
			Placeholder: "Queue a saved playlist…",
			Options:     opts,
		},
	}})
	return rows
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent || i.GuildID == "" {
		return
	}
	data := i.MessageComponentData()
	if !strings.HasPrefix(data.CustomID, "panel_") {
		return
	}

	// ack first, the work happens after
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		slog.Debug("component ack failed", "guildID", i.GuildID, "err", err)
	}

	go b.applyControl(s, i, data)
}

func (b *Bot) applyControl(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.MessageComponentInteractionData) {
	sess := b.registry.Get(i.GuildID)
	if sess == nil && data.CustomID != "panel_playlist" {
		b.ephemeral(s, i, "Nothing is playing.")
		return
	}

	var err error
	switch data.CustomID {
	case "panel_prev":
		err = sess.Previous()
	case "panel_playpause":
		if sess.Snapshot().Paused {
			err = sess.Resume()
		} else {
			err = sess.Pause()
		}
	case "panel_next":
		err = sess.Skip()
	case "panel_stop":
		sess.Stop()
		return
	case "panel_voldown":
		sess.SetVolume(sess.Volume() - volumeStep)
	case "panel_volup":
		sess.SetVolume(sess.Volume() + volumeStep)
	case "panel_repeat":
		sess.CycleRepeat()
	case "panel_shuffle":
		sess.ToggleShuffle()
	case "panel_playlist":
		if len(data.Values) == 1 {
			err = b.queuePlaylistFromPanel(s, i, data.Values[0])
		}
	}

	if err != nil {
		b.ephemeral(s, i, err.Error())
		return
	}
	if sess != nil {
		sess.RefreshPanel()
	}
}

func (b *Bot) queuePlaylistFromPanel(s *discordgo.Session, i *discordgo.InteractionCreate, name string) error {
	userID := ""
	if i.Member != nil && i.Member.User != nil {
		userID = i.Member.User.ID
	}
	items, err := b.playlists.Load(i.GuildID, name)
	if err != nil {
		return err
	}
	sess, err := b.ensureVoice(s, i.GuildID, userID)
	if err != nil {
		return err
	}
	tracks := make([]*queue.Track, 0, len(items))
	for idx, it := range items {
		if it.URL == "" {
			continue
		}
		tracks = append(tracks, &queue.Track{
			Title:         it.Title,
			URL:           it.URL,
			RequestedBy:   userID,
			Playlist:      name,
			PlaylistIndex: idx,
		})
	}
	sess.Enqueue(context.Background(), tracks...)
	sess.SetCurrentPlaylist(name)
	return nil
}

func (b *Bot) ephemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	}); err != nil {
		slog.Debug("ephemeral followup failed", "guildID", i.GuildID, "err", err)
	}
}
