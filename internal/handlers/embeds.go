package handlers

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/darkchair/maestro/internal/queue"
	"github.com/darkchair/maestro/internal/utils"
)

const maxQueueLines = 10

func progressBar(width int, progress float64) string {
	if width <= 0 {
		return ""
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	dot := int(float64(width) * progress)
	if dot >= width {
		dot = width - 1
	}
	out := make([]rune, 0, width*2)
	for i := 0; i < width; i++ {
		if i == dot {
			out = append(out, '🔘')
		} else {
			out = append(out, '▬')
		}
	}
	return string(out)
}

func trackLink(t *queue.Track) string {
	return fmt.Sprintf("[%s](%s)", utils.EscapeMd(t.Title), t.URL)
}

func repeatEmoji(m queue.RepeatMode) string {
	switch m {
	case queue.RepeatOne:
		return "🔂"
	case queue.RepeatAll:
		return "🔁"
	default:
		return ""
	}
}

func playingStatusLine(sn queue.Snapshot) string {
	button := "⏹️"
	if sn.Paused {
		button = "▶️"
	}
	progress := 0.0
	elapsedSec := int(sn.Elapsed().Seconds())
	totalSec := sn.DurationMS / 1000
	if totalSec > 0 {
		progress = float64(elapsedSec) / float64(totalSec)
	}
	elapsed := "live"
	if totalSec > 0 {
		elapsed = fmt.Sprintf("%s/%s", utils.PrettyTime(elapsedSec), utils.PrettyTime(totalSec))
	}
	marks := repeatEmoji(sn.Repeat)
	if sn.Shuffle {
		marks += "🔀"
	}
	return fmt.Sprintf("%s %s `[ %s ]` %s", button, progressBar(10, progress), elapsed, marks)
}

func buildPlayingEmbed(sn queue.Snapshot) *discordgo.MessageEmbed {
	if sn.Current == nil {
		return &discordgo.MessageEmbed{
			Title:       "Nothing Playing",
			Description: "The queue is empty",
			Color:       0x992222,
		}
	}

	desc := fmt.Sprintf("**%s**\nRequested by: <@%s>\n\n%s",
		trackLink(sn.Current), sn.Current.RequestedBy, playingStatusLine(sn))

	title := "Now Playing"
	color := 0x006400
	if sn.Paused {
		title = "Paused"
		color = 0x8B0000
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: desc,
		Color:       color,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Volume: %d%%", int(sn.Volume*100)),
		},
	}
	if sn.CurrentPlaylist != "" {
		embed.Footer.Text += " • Playlist: " + sn.CurrentPlaylist
	}
	if sn.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: sn.Thumbnail}
	}
	return embed
}

func buildQueueEmbed(sn queue.Snapshot) *discordgo.MessageEmbed {
	if sn.Current == nil && len(sn.Pending) == 0 {
		return &discordgo.MessageEmbed{
			Title:       "Queue",
			Description: "The queue is empty",
			Color:       0x992222,
		}
	}

	var sb strings.Builder
	if sn.Current != nil {
		sb.WriteString(fmt.Sprintf("**%s**\nRequested by: <@%s>\n\n%s\n\n",
			trackLink(sn.Current), sn.Current.RequestedBy, playingStatusLine(sn)))
	}

	if len(sn.Pending) > 0 {
		sb.WriteString("**Up next:**\n")
		for i, t := range sn.Pending {
			if i >= maxQueueLines {
				sb.WriteString(fmt.Sprintf("…and %d more\n", len(sn.Pending)-i))
				break
			}
			dur := ""
			if t.DurationMS > 0 {
				dur = fmt.Sprintf(" `[ %s ]`", utils.PrettyTime(t.DurationMS/1000))
			}
			sb.WriteString(fmt.Sprintf("`%d.` %s%s\n", i+1, trackLink(t), dur))
		}
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Queue",
		Description: sb.String(),
		Color:       0x006400,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "In queue", Value: queueCount(len(sn.Pending)), Inline: true},
			{Name: "Repeat", Value: sn.Repeat.String(), Inline: true},
			{Name: "Shuffle", Value: onOff(sn.Shuffle), Inline: true},
		},
	}
	if sn.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: sn.Thumbnail}
	}
	return embed
}

func queueCount(n int) string {
	if n == 0 {
		return "-"
	}
	if n == 1 {
		return "1 song"
	}
	return fmt.Sprintf("%d songs", n)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
