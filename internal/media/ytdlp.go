package media

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ytdlp "github.com/lrstanley/go-ytdlp"
)

type ytInfo struct {
	ID         string
	Title      string
	Uploader   string
	DurationMS int
	IsLive     bool
	WebpageURL string
	Thumbnail  string
	MediaURL   string
}

type ytEntry struct {
	ID         string
	Title      string
	Uploader   string
	DurationMS int
}

var installOnce sync.Once

// helpers to safely read pointer fields with defaults
func sv(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func fv(ptr *float64) float64 {
	if ptr == nil {
		return 0
	}
	return *ptr
}

func bv(ptr *bool) bool {
	if ptr == nil {
		return false
	}
	return *ptr
}

// ytdlpGetInfo runs yt-dlp with JSON dump for a single URL.
func ytdlpGetInfo(ctx context.Context, url string) (*ytInfo, error) {
	installOnce.Do(func() {
		ytdlp.MustInstall(ctx, nil)
	})

	cmd := ytdlp.New().
		Format("ba[acodec^=opus]/ba[ext=m4a]/bestaudio/best").
		NoCheckCertificates().
		DumpJSON()

	res, err := cmd.Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp run: %w", err)
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("parse yt-dlp json: %w", err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, fmt.Errorf("parse yt-dlp json: no info returned")
	}
	ext := infos[0]

	out := &ytInfo{
		ID:         ext.ID,
		Title:      sv(ext.Title),
		Uploader:   sv(ext.Uploader),
		DurationMS: int(fv(ext.Duration) * 1000),
		IsLive:     bv(ext.IsLive),
		WebpageURL: sv(ext.WebpageURL),
	}
	for _, t := range ext.Thumbnails {
		if t != nil && t.URL != "" {
			out.Thumbnail = t.URL
		}
	}

	// best playable URL: requested formats first, then top-level, then formats
	for _, rf := range ext.RequestedFormats {
		if rf != nil && strings.HasPrefix(rf.URL, "http") {
			out.MediaURL = rf.URL
			break
		}
	}
	if out.MediaURL == "" && strings.HasPrefix(sv(ext.URL), "http") {
		out.MediaURL = sv(ext.URL)
	}
	if out.MediaURL == "" {
		for _, f := range ext.Formats {
			if f != nil && strings.HasPrefix(f.URL, "http") {
				out.MediaURL = f.URL
				break
			}
		}
	}
	return out, nil
}

// ytdlpPlaylist expands a playlist URL without resolving media URLs.
func ytdlpPlaylist(ctx context.Context, url string) ([]ytEntry, error) {
	installOnce.Do(func() {
		ytdlp.MustInstall(ctx, nil)
	})

	cmd := ytdlp.New().
		FlatPlaylist().
		DumpJSON()

	res, err := cmd.Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp playlist fetch failed for %s: %w", url, err)
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("parse yt-dlp playlist json for %s: %w", url, err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, fmt.Errorf("yt-dlp returned empty playlist info for %s", url)
	}

	pl := infos[0]
	out := make([]ytEntry, 0, len(pl.Entries))
	for _, e := range pl.Entries {
		if e == nil {
			continue
		}
		out = append(out, ytEntry{
			ID:         e.ID,
			Title:      sv(e.Title),
			Uploader:   sv(e.Uploader),
			DurationMS: int(fv(e.Duration) * 1000),
		})
	}
	return out, nil
}
