package web

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/darkchair/maestro/internal/playlist"
	"github.com/darkchair/maestro/internal/queue"
	"github.com/darkchair/maestro/internal/repository"
)

const webSessionTTL = 12 * time.Hour

func (s *Server) registerRoutes(router *gin.Engine) {
	api := router.Group("/api", s.authRequired())

	api.GET("/guilds", adminOnly(), s.handleGuilds)
	api.POST("/websession", adminOnly(), s.handleWebSessionIssue)
	api.GET("/websession/:token", s.handleWebSessionInspect)

	g := api.Group("/guild/:gid", guildScoped())
	g.GET("/status", s.handleStatus)
	g.POST("/skip", s.sessionAction(func(sess *queue.Session) error { return sess.Skip() }))
	g.POST("/pause", s.sessionAction(func(sess *queue.Session) error { return sess.Pause() }))
	g.POST("/resume", s.sessionAction(func(sess *queue.Session) error { return sess.Resume() }))
	g.POST("/stop", s.sessionAction(func(sess *queue.Session) error { sess.Stop(); return nil }))
	g.POST("/clearQueue", s.sessionAction(func(sess *queue.Session) error { sess.ClearQueue(); return nil }))
	g.POST("/toggleShuffle", s.handleToggleShuffle)
	g.POST("/toggleRepeat", s.handleToggleRepeat)
	g.POST("/volume", s.handleVolume)

	g.GET("/channels", s.handleChannels)
	g.POST("/send", s.handleSend)

	g.GET("/playlists", s.handlePlaylistList)
	g.POST("/playlists", s.handlePlaylistCreate)
	g.GET("/playlists/trash", s.handleTrashList)
	g.POST("/playlists/trash/restore", s.handleTrashRestore)
	g.DELETE("/playlists/trash/:name", s.handleTrashDelete)
	g.GET("/playlists/:name", s.handlePlaylistGet)
	g.POST("/playlists/:name", s.handlePlaylistSave)
	g.POST("/playlists/:name/rename", s.handlePlaylistRename)
	g.DELETE("/playlists/:name", s.handlePlaylistDelete)

	g.POST("/playplaylist", s.handlePlayPlaylist)
	g.POST("/currentPlaylist", s.handleCurrentPlaylist)
}

func (s *Server) handleGuilds(c *gin.Context) {
	type guildInfo struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	out := []guildInfo{}
	for _, g := range s.discord.State.Guilds {
		out = append(out, guildInfo{ID: g.ID, Name: g.Name})
	}
	c.JSON(http.StatusOK, out)
}

type trackJSON struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	RequestedBy string `json:"requestedBy"`
}

func toTrackJSON(t *queue.Track) *trackJSON {
	if t == nil {
		return nil
	}
	return &trackJSON{Title: t.Title, URL: t.URL, RequestedBy: t.RequestedBy}
}

func (s *Server) handleStatus(c *gin.Context) {
	gid := c.Param("gid")

	resp := gin.H{
		"volume":          queue.DefaultVolume,
		"repeatMode":      "off",
		"shuffle":         false,
		"playing":         false,
		"paused":          false,
		"connected":       false,
		"historyLength":   0,
		"currentDuration": 0,
		"startedAt":       0,
		"queue":           []trackJSON{},
	}
	if g, err := s.discord.State.Guild(gid); err == nil {
		resp["guild"] = gin.H{"id": g.ID, "name": g.Name}
	}

	if sess := s.registry.Get(gid); sess != nil {
		sn := sess.Snapshot()
		pending := make([]trackJSON, 0, len(sn.Pending))
		for _, t := range sn.Pending {
			pending = append(pending, *toTrackJSON(t))
		}
		resp["current"] = toTrackJSON(sn.Current)
		resp["queue"] = pending
		resp["volume"] = sn.Volume
		resp["repeatMode"] = sn.Repeat.String()
		resp["shuffle"] = sn.Shuffle
		resp["playing"] = sn.Playing
		resp["paused"] = sn.Paused
		resp["connected"] = sn.Connected
		resp["historyLength"] = sn.HistoryLen
		resp["currentDuration"] = sn.DurationMS
		if !sn.StartedAt.IsZero() {
			resp["startedAt"] = sn.StartedAt.UnixMilli()
		}
		resp["currentPlaylist"] = sn.CurrentPlaylist
		resp["lastRequested"] = toTrackJSON(sn.LastRequested)
		c.JSON(http.StatusOK, resp)
		return
	}

	// no live session, report persisted preferences
	if set, err := s.repo.GetSettings(c.Request.Context(), gid); err == nil {
		resp["volume"] = set.Volume
		resp["repeatMode"] = set.RepeatMode
		resp["shuffle"] = set.Shuffle
		resp["currentPlaylist"] = set.CurrentPlaylist
	}
	if lt, err := s.repo.GetLastTrack(c.Request.Context(), gid); err == nil {
		resp["lastRequested"] = &trackJSON{Title: lt.Title, URL: lt.URL, RequestedBy: lt.RequestedBy}
	}
	c.JSON(http.StatusOK, resp)
}

// sessionAction adapts a session operation to a handler. Operations on a
// guild with no live session report 404.
func (s *Server) sessionAction(fn func(*queue.Session) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := s.registry.Get(c.Param("gid"))
		if sess == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
			return
		}
		if err := fn(sess); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func (s *Server) handleToggleShuffle(c *gin.Context) {
	sess := s.registry.Get(c.Param("gid"))
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "shuffle": sess.ToggleShuffle()})
}

func (s *Server) handleToggleRepeat(c *gin.Context) {
	sess := s.registry.Get(c.Param("gid"))
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "repeatMode": sess.CycleRepeat().String()})
}

func (s *Server) handleVolume(c *gin.Context) {
	var body struct {
		Volume *float64 `json:"volume"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Volume == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "volume is required"})
		return
	}
	v := *body.Volume
	if v < 0 || v > queue.MaxVolume {
		c.JSON(http.StatusBadRequest, gin.H{"error": "volume must be between 0 and 2"})
		return
	}

	gid := c.Param("gid")
	if sess := s.registry.Get(gid); sess != nil {
		c.JSON(http.StatusOK, gin.H{"ok": true, "volume": sess.SetVolume(v)})
		return
	}

	// persist for the next session
	set, err := s.repo.UpsertSettings(c.Request.Context(), gid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	set.Volume = v
	if err := s.repo.UpdateSettings(c.Request.Context(), set); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "volume": v})
}

func (s *Server) handleChannels(c *gin.Context) {
	channels, err := s.discord.GuildChannels(c.Param("gid"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	type chJSON struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	out := []chJSON{}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText {
			out = append(out, chJSON{ID: ch.ID, Name: ch.Name})
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleSend(c *gin.Context) {
	var body struct {
		ChannelID string `json:"channelId"`
		Content   string `json:"content"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.ChannelID == "" || strings.TrimSpace(body.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channelId and content are required"})
		return
	}
	if _, err := s.discord.ChannelMessageSend(body.ChannelID, body.Content); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handlePlaylistList(c *gin.Context) {
	names, err := s.playlists.List(c.Param("gid"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, names)
}

func (s *Server) handlePlaylistCreate(c *gin.Context) {
	var body struct {
		Name  string          `json:"name"`
		Items []playlist.Item `json:"items"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	filename, err := s.playlists.Create(c.Param("gid"), body.Name, body.Items)
	if err != nil {
		c.JSON(playlistErrStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "filename": filename})
}

func (s *Server) handlePlaylistGet(c *gin.Context) {
	items, err := s.playlists.Load(c.Param("gid"), c.Param("name"))
	if err != nil {
		c.JSON(playlistErrStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) handlePlaylistSave(c *gin.Context) {
	var body struct {
		Items []playlist.Item `json:"items"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := s.playlists.Save(c.Param("gid"), c.Param("name"), body.Items); err != nil {
		c.JSON(playlistErrStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handlePlaylistRename(c *gin.Context) {
	var body struct {
		NewName string `json:"newName"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.NewName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "newName is required"})
		return
	}
	filename, err := s.playlists.Rename(c.Param("gid"), c.Param("name"), body.NewName)
	if err != nil {
		c.JSON(playlistErrStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "filename": filename})
}

func (s *Server) handlePlaylistDelete(c *gin.Context) {
	if err := s.playlists.SoftDelete(c.Param("gid"), c.Param("name")); err != nil {
		c.JSON(playlistErrStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleTrashList(c *gin.Context) {
	names, err := s.playlists.ListTrash(c.Param("gid"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, names)
}

func (s *Server) handleTrashRestore(c *gin.Context) {
	var body struct {
		Filename string `json:"filename"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename is required"})
		return
	}
	filename, err := s.playlists.Restore(c.Param("gid"), body.Filename)
	if err != nil {
		c.JSON(playlistErrStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "filename": filename})
}

func (s *Server) handleTrashDelete(c *gin.Context) {
	if err := s.playlists.PermanentDelete(c.Param("gid"), c.Param("name")); err != nil {
		c.JSON(playlistErrStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handlePlayPlaylist queues a saved playlist. The tracks start playing
// once the bot is in a voice channel; queueing itself needs no voice.
func (s *Server) handlePlayPlaylist(c *gin.Context) {
	var body struct {
		Filename string `json:"filename"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename is required"})
		return
	}
	gid := c.Param("gid")
	items, err := s.playlists.Load(gid, body.Filename)
	if err != nil {
		c.JSON(playlistErrStatus(err), gin.H{"error": err.Error()})
		return
	}

	name := strings.TrimSuffix(body.Filename, ".json")
	tracks := make([]*queue.Track, 0, len(items))
	for i, it := range items {
		if it.URL == "" {
			continue
		}
		tracks = append(tracks, &queue.Track{
			Title:         it.Title,
			URL:           it.URL,
			RequestedBy:   "web",
			Playlist:      name,
			PlaylistIndex: i,
		})
	}
	sess := s.registry.GetOrCreate(c.Request.Context(), gid)
	n := sess.Enqueue(context.Background(), tracks...)
	sess.SetCurrentPlaylist(name)
	c.JSON(http.StatusOK, gin.H{"ok": true, "queued": n})
}

func (s *Server) handleCurrentPlaylist(c *gin.Context) {
	var body struct {
		Filename string `json:"filename"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename is required"})
		return
	}
	gid := c.Param("gid")
	name := strings.TrimSuffix(body.Filename, ".json")

	if sess := s.registry.Get(gid); sess != nil {
		sess.SetCurrentPlaylist(name)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	set, err := s.repo.UpsertSettings(c.Request.Context(), gid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	set.CurrentPlaylist = name
	if err := s.repo.UpdateSettings(c.Request.Context(), set); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleWebSessionIssue(c *gin.Context) {
	var body struct {
		GuildID string `json:"guild"`
		Admin   bool   `json:"admin"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.GuildID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guild is required"})
		return
	}
	token := uuid.NewString()
	err := s.repo.CreateWebSession(c.Request.Context(), &repository.WebSession{
		Token:     token,
		GuildID:   body.GuildID,
		Admin:     body.Admin,
		ExpiresAt: time.Now().Add(webSessionTTL),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "token": token})
}

func (s *Server) handleWebSessionInspect(c *gin.Context) {
	ws, err := s.repo.GetWebSession(c.Request.Context(), c.Param("token"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown or expired token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"guild":     ws.GuildID,
		"admin":     ws.Admin,
		"expiresAt": ws.ExpiresAt.Unix(),
	})
}

func playlistErrStatus(err error) int {
	if errors.Is(err, playlist.ErrBadName) {
		return http.StatusBadRequest
	}
	if errors.Is(err, fs.ErrNotExist) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
