package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/darkchair/maestro/internal/queue"
	"github.com/darkchair/maestro/internal/spotify"
)

const (
	resolveTimeout  = 60 * time.Second
	playlistMaxSize = 500
)

// Source resolves user input into tracks and opens audio streams for them.
// It implements the queue's media-source port.
type Source struct {
	spotify *spotify.Client
}

// NewSource builds a Source. sp may be nil, in which case Spotify links are
// rejected with a user-facing error.
func NewSource(sp *spotify.Client) *Source {
	return &Source{spotify: sp}
}

// OpenStream acquires a raw PCM stream for a track URL. YouTube and other
// extractor-backed pages are resolved to a direct media URL first; anything
// else is handed to the decoder as-is.
func (s *Source) OpenStream(ctx context.Context, trackURL string) (queue.AudioStream, error) {
	input := trackURL
	if needsExtraction(trackURL) {
		rctx, cancel := context.WithTimeout(ctx, resolveTimeout)
		info, err := ytdlpGetInfo(rctx, trackURL)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", trackURL, err)
		}
		if info.MediaURL == "" {
			return nil, fmt.Errorf("resolve %s: no playable format", trackURL)
		}
		input = info.MediaURL
	}
	return StartPCMStream(ctx, input)
}

// GetInfo fetches best-effort metadata for a track URL.
func (s *Source) GetInfo(ctx context.Context, trackURL string) (*queue.TrackInfo, error) {
	if !needsExtraction(trackURL) {
		return &queue.TrackInfo{Title: trackURL}, nil
	}
	info, err := ytdlpGetInfo(ctx, trackURL)
	if err != nil {
		return nil, err
	}
	return &queue.TrackInfo{
		Title:      info.Title,
		Uploader:   info.Uploader,
		DurationMS: info.DurationMS,
		Thumbnail:  info.Thumbnail,
		IsLive:     info.IsLive,
	}, nil
}

// Resolve turns a user query into one or more tracks. Supported inputs:
// direct URLs, YouTube playlist URLs, Spotify track/album/playlist links
// and free-text search.
func (s *Source) Resolve(ctx context.Context, query, requestedBy string) ([]*queue.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	if spotify.IsSpotify(query) {
		return s.resolveSpotify(ctx, query, requestedBy)
	}

	if isURL(query) {
		if isYouTubePlaylist(query) {
			return s.resolveYouTubePlaylist(ctx, query, requestedBy)
		}
		return []*queue.Track{{Title: query, URL: query, RequestedBy: requestedBy}}, nil
	}

	videoID, title, err := searchYouTube(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return []*queue.Track{{
		Title:       title,
		URL:         "https://www.youtube.com/watch?v=" + videoID,
		RequestedBy: requestedBy,
	}}, nil
}

func (s *Source) resolveYouTubePlaylist(ctx context.Context, listURL, requestedBy string) ([]*queue.Track, error) {
	entries, err := ytdlpPlaylist(ctx, listURL)
	if err != nil {
		return nil, err
	}
	if len(entries) > playlistMaxSize {
		entries = entries[:playlistMaxSize]
	}
	out := make([]*queue.Track, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		title := e.Title
		if title == "" {
			title = e.ID
		}
		out = append(out, &queue.Track{
			Title:       title,
			URL:         "https://www.youtube.com/watch?v=" + e.ID,
			RequestedBy: requestedBy,
			DurationMS:  e.DurationMS,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("playlist %s has no playable entries", listURL)
	}
	return out, nil
}

// resolveSpotify expands a Spotify link into YouTube searches, one per
// Spotify track. Tracks that fail to match are skipped with a log line.
func (s *Source) resolveSpotify(ctx context.Context, link, requestedBy string) ([]*queue.Track, error) {
	if s.spotify == nil {
		return nil, fmt.Errorf("spotify links are not enabled")
	}
	typ, id, err := spotify.ParseID(link)
	if err != nil {
		return nil, err
	}

	var items []spotify.Track
	switch typ {
	case "track":
		t, err := s.spotify.GetTrack(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("spotify track: %w", err)
		}
		items = []spotify.Track{t}
	case "album":
		items, _, err = s.spotify.GetAlbum(ctx, id, playlistMaxSize)
		if err != nil {
			return nil, fmt.Errorf("spotify album: %w", err)
		}
	case "playlist":
		items, _, err = s.spotify.GetPlaylist(ctx, id, playlistMaxSize)
		if err != nil {
			return nil, fmt.Errorf("spotify playlist: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported spotify link type %q", typ)
	}

	out := make([]*queue.Track, 0, len(items))
	for _, it := range items {
		q := it.Name
		if it.Artist != "" {
			q = it.Artist + " " + it.Name
		}
		videoID, title, err := searchYouTube(ctx, q)
		if err != nil {
			slog.Warn("no match for spotify track", "query", q, "err", err)
			continue
		}
		out = append(out, &queue.Track{
			Title:       title,
			URL:         "https://www.youtube.com/watch?v=" + videoID,
			RequestedBy: requestedBy,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no playable tracks found for %s", link)
	}
	return out, nil
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isYouTubePlaylist(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(u.Host, "www.")
	if host != "youtube.com" && host != "music.youtube.com" && host != "youtu.be" {
		return false
	}
	return u.Query().Get("list") != "" && u.Query().Get("v") == ""
}

// needsExtraction reports whether a URL must go through yt-dlp before it
// can be decoded. Direct media (e.g. .m3u8 radio streams, plain audio
// files) skips extraction and feeds the decoder directly.
func needsExtraction(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	p := strings.ToLower(u.Path)
	for _, ext := range []string{".m3u8", ".mp3", ".ogg", ".opus", ".aac", ".flac", ".wav", ".m4a"} {
		if strings.HasSuffix(p, ext) {
			return false
		}
	}
	return true
}
