package queue

// Track describes one queued song request. Tracks are immutable once
// created; identity within a session is by pointer.
type Track struct {
	Title         string
	URL           string
	RequestedBy   string
	Playlist      string // saved-playlist filename this track came from, if any
	PlaylistIndex int
	DurationMS    int
	Thumbnail     string
}

type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatOne
	RepeatAll
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "off"
	}
}

// Next cycles off -> one -> all -> off.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatOne
	case RepeatOne:
		return RepeatAll
	default:
		return RepeatOff
	}
}

func ParseRepeatMode(s string) RepeatMode {
	switch s {
	case "one":
		return RepeatOne
	case "all":
		return RepeatAll
	default:
		return RepeatOff
	}
}
