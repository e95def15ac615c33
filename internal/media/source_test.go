package media

import "testing"

func TestIsURL(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"https://www.youtube.com/watch?v=abc", true},
		{"http://radio.example/stream.m3u8", true},
		{"never gonna give you up", false},
		{"ftp://example.com/file", false},
		{"https://", false},
	}
	for _, c := range cases {
		if got := isURL(c.in); got != c.want {
			t.Errorf("isURL(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestIsYouTubePlaylist(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"https://www.youtube.com/playlist?list=PL123", true},
		{"https://music.youtube.com/playlist?list=PL123", true},
		// watch link with a list param plays the single video
		{"https://www.youtube.com/watch?v=abc&list=PL123", false},
		{"https://www.youtube.com/watch?v=abc", false},
		{"https://vimeo.com/playlist?list=x", false},
	}
	for _, c := range cases {
		if got := isYouTubePlaylist(c.in); got != c.want {
			t.Errorf("isYouTubePlaylist(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestNeedsExtraction(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"https://www.youtube.com/watch?v=abc", true},
		{"https://radio.example/stream.m3u8", false},
		{"https://cdn.example/song.MP3", false},
		{"https://cdn.example/song.opus", false},
		{"https://example.com/page", true},
	}
	for _, c := range cases {
		if got := needsExtraction(c.in); got != c.want {
			t.Errorf("needsExtraction(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestPointerHelpers(t *testing.T) {
	s := "x"
	f := 2.5
	b := true
	if sv(&s) != "x" || sv(nil) != "" {
		t.Error("sv")
	}
	if fv(&f) != 2.5 || fv(nil) != 0 {
		t.Error("fv")
	}
	if !bv(&b) || bv(nil) {
		t.Error("bv")
	}
}
