package media

import (
	"context"
	"fmt"

	"github.com/ppalone/ytsearch"
)

// searchYouTube returns the first video hit for a free-text query.
func searchYouTube(ctx context.Context, query string) (videoID, title string, err error) {
	c := ytsearch.NewClient(nil)
	r, err := c.Search(ctx, query)
	if err != nil {
		return "", "", fmt.Errorf("youtube search: %w", err)
	}
	if len(r.Results) == 0 {
		return "", "", fmt.Errorf("no results for %q", query)
	}
	first := r.Results[0]
	return first.VideoID, first.Title, nil
}
