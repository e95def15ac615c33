package queue

import (
	"log/slog"
	"sync"
	"time"
)

const defaultPanelInterval = 5 * time.Second

// PanelView is the rendered now-playing state pushed to a control surface.
type PanelView struct {
	Title       string
	URL         string
	RequestedBy string
	Thumbnail   string
	Elapsed     time.Duration
	Duration    time.Duration
	Volume      float64
	Repeat      RepeatMode
	Shuffle     bool
	Playing     bool
	Paused      bool
	QueuePos    int
	QueueTotal  int
	Playlist    string
}

// PanelSurface is the outward message/connection a panel renders to.
// Push failures are transient: the panel logs and keeps polling.
type PanelSurface interface {
	Push(view PanelView) error
	Remove() error
}

// Panel periodically re-renders session state onto a surface. It is lossy
// by design: a failed push is skipped, only Stop ends the loop.
type Panel struct {
	session  *Session
	surface  PanelSurface
	interval time.Duration
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newPanel(s *Session, surface PanelSurface, interval time.Duration) *Panel {
	if interval <= 0 {
		interval = defaultPanelInterval
	}
	return &Panel{
		session:  s,
		surface:  surface,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (p *Panel) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.push()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.push()
		}
	}
}

func (p *Panel) push() {
	view := BuildPanelView(p.session.Snapshot())
	if err := p.surface.Push(view); err != nil {
		slog.Debug("panel push failed", "guildID", p.session.GuildID, "err", err)
	}
}

// Stop ends the refresh loop and removes the underlying surface.
func (p *Panel) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
	if err := p.surface.Remove(); err != nil {
		slog.Debug("panel remove failed", "guildID", p.session.GuildID, "err", err)
	}
}

// BuildPanelView projects a snapshot into the view the surfaces render.
func BuildPanelView(sn Snapshot) PanelView {
	v := PanelView{
		Volume:   sn.Volume,
		Repeat:   sn.Repeat,
		Shuffle:  sn.Shuffle,
		Playing:  sn.Playing,
		Paused:   sn.Paused,
		Playlist: sn.CurrentPlaylist,
	}
	v.QueuePos, v.QueueTotal = sn.QueuePosition()
	if sn.Current != nil {
		v.Title = sn.Current.Title
		v.URL = sn.Current.URL
		v.RequestedBy = sn.Current.RequestedBy
		v.Thumbnail = sn.Thumbnail
		v.Elapsed = sn.Elapsed()
		v.Duration = time.Duration(sn.DurationMS) * time.Millisecond
	}
	return v
}

// ShowPanel attaches a control surface to the session, replacing any
// previous one. The panel refreshes until the session is destroyed or a
// new surface replaces it.
func (s *Session) ShowPanel(surface PanelSurface, interval time.Duration) {
	p := newPanel(s, surface, interval)

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		_ = surface.Remove()
		return
	}
	old := s.panel
	s.panel = p
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	go p.run()
}

// HidePanel detaches and removes the active control surface, if any.
func (s *Session) HidePanel() {
	s.mu.Lock()
	p := s.panel
	s.panel = nil
	s.mu.Unlock()
	if p != nil {
		p.Stop()
	}
}

// RefreshPanel pushes an immediate update outside the poll interval.
// Control operations call it after mutating state.
func (s *Session) RefreshPanel() {
	s.mu.Lock()
	p := s.panel
	s.mu.Unlock()
	if p != nil {
		p.push()
	}
}
