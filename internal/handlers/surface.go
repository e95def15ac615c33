package handlers

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/darkchair/maestro/internal/queue"
	"github.com/darkchair/maestro/internal/utils"
)

// panelSurface renders the session panel onto one chat message, editing it
// in place on every push and deleting it when the panel stops.
type panelSurface struct {
	s          *discordgo.Session
	channelID  string
	messageID  string
	components []discordgo.MessageComponent
}

func (p *panelSurface) Push(view queue.PanelView) error {
	embed := buildPanelEmbed(view)
	_, err := p.s.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    p.channelID,
		ID:         p.messageID,
		Embeds:     &[]*discordgo.MessageEmbed{embed},
		Components: &p.components,
	})
	return err
}

func (p *panelSurface) Remove() error {
	return p.s.ChannelMessageDelete(p.channelID, p.messageID)
}

func buildPanelEmbed(v queue.PanelView) *discordgo.MessageEmbed {
	if v.Title == "" {
		return &discordgo.MessageEmbed{
			Title:       "Nothing Playing",
			Description: "Queue something with `play`",
			Color:       0x992222,
		}
	}

	button := "⏹️"
	if v.Paused {
		button = "▶️"
	}
	progress := 0.0
	if v.Duration > 0 {
		progress = float64(v.Elapsed) / float64(v.Duration)
	}
	elapsed := "live"
	if v.Duration > 0 {
		elapsed = fmt.Sprintf("%s/%s",
			utils.PrettyTime(int(v.Elapsed/time.Second)),
			utils.PrettyTime(int(v.Duration/time.Second)))
	}
	marks := repeatEmoji(v.Repeat)
	if v.Shuffle {
		marks += "🔀"
	}

	desc := fmt.Sprintf("**[%s](%s)**\nRequested by: <@%s>\n\n%s %s `[ %s ]` %s",
		utils.EscapeMd(v.Title), v.URL, v.RequestedBy,
		button, progressBar(10, progress), elapsed, marks)

	title := "Now Playing"
	color := 0x006400
	if v.Paused {
		title = "Paused"
		color = 0x8B0000
	}

	footer := fmt.Sprintf("Volume: %d%%", int(v.Volume*100))
	if v.QueueTotal > 0 {
		footer += fmt.Sprintf(" • Track %d of %d", v.QueuePos, v.QueueTotal)
	}
	if v.Playlist != "" {
		footer += " • Playlist: " + v.Playlist
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: desc,
		Color:       color,
		Footer:      &discordgo.MessageEmbedFooter{Text: footer},
	}
	if v.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: v.Thumbnail}
	}
	return embed
}
