package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"

	"github.com/darkchair/maestro/internal/config"
	"github.com/darkchair/maestro/internal/playlist"
	"github.com/darkchair/maestro/internal/queue"
	"github.com/darkchair/maestro/internal/repository"
)

const testSecret = "test-secret"

type stubSource struct{}

func (stubSource) OpenStream(ctx context.Context, url string) (queue.AudioStream, error) {
	return nil, errors.New("no media in tests")
}

func (stubSource) GetInfo(ctx context.Context, url string) (*queue.TrackInfo, error) {
	return &queue.TrackInfo{}, nil
}

func newTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()
	cfg := &config.Config{WebSecret: testSecret, WebPort: 0}

	db, err := repository.OpenDB(&config.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := repository.NewRepo(db)

	playlists, err := playlist.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	registry := queue.NewRegistry(stubSource{}, repository.NewSettingsBridge(repo), time.Hour)

	dg, err := discordgo.New("Bot test")
	if err != nil {
		t.Fatal(err)
	}
	_ = dg.State.GuildAdd(&discordgo.Guild{ID: "g1", Name: "Test Guild"})

	srv := NewServer(cfg, registry, repo, playlists, dg)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	srv.registerRoutes(router)
	return srv, router
}

func doReq(t *testing.T, router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func admin() map[string]string {
	return map[string]string{"x-web-secret": testSecret}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestAuthRequired(t *testing.T) {
	_, router := newTestServer(t)

	if w := doReq(t, router, "GET", "/api/guilds", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no auth = %d, want 401", w.Code)
	}
	bad := map[string]string{"x-web-secret": "wrong"}
	if w := doReq(t, router, "GET", "/api/guilds", nil, bad); w.Code != http.StatusUnauthorized {
		t.Errorf("bad secret = %d, want 401", w.Code)
	}
	if w := doReq(t, router, "GET", "/api/guilds", nil, admin()); w.Code != http.StatusOK {
		t.Errorf("good secret = %d, want 200", w.Code)
	}
}

func TestGuildsList(t *testing.T) {
	_, router := newTestServer(t)
	w := doReq(t, router, "GET", "/api/guilds", nil, admin())

	var guilds []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	decode(t, w, &guilds)
	if len(guilds) != 1 || guilds[0].ID != "g1" || guilds[0].Name != "Test Guild" {
		t.Errorf("guilds = %+v", guilds)
	}
}

func TestWebSessionTokenScoping(t *testing.T) {
	_, router := newTestServer(t)

	w := doReq(t, router, "POST", "/api/websession", gin.H{"guild": "g1"}, admin())
	if w.Code != http.StatusOK {
		t.Fatalf("issue = %d: %s", w.Code, w.Body.String())
	}
	var issued struct {
		Token string `json:"token"`
	}
	decode(t, w, &issued)
	if issued.Token == "" {
		t.Fatal("no token issued")
	}
	tok := map[string]string{"x-web-token": issued.Token}

	if w := doReq(t, router, "GET", "/api/guild/g1/status", nil, tok); w.Code != http.StatusOK {
		t.Errorf("own guild = %d, want 200", w.Code)
	}
	if w := doReq(t, router, "GET", "/api/guild/g2/status", nil, tok); w.Code != http.StatusUnauthorized {
		t.Errorf("other guild = %d, want 401", w.Code)
	}
	if w := doReq(t, router, "GET", "/api/guilds", nil, tok); w.Code != http.StatusUnauthorized {
		t.Errorf("admin route with guild token = %d, want 401", w.Code)
	}

	w = doReq(t, router, "GET", "/api/websession/"+issued.Token, nil, tok)
	if w.Code != http.StatusOK {
		t.Fatalf("inspect = %d", w.Code)
	}
	var info struct {
		Guild string `json:"guild"`
		Admin bool   `json:"admin"`
	}
	decode(t, w, &info)
	if info.Guild != "g1" || info.Admin {
		t.Errorf("inspect = %+v", info)
	}
}

func TestStatusWithoutSession(t *testing.T) {
	_, router := newTestServer(t)

	w := doReq(t, router, "GET", "/api/guild/g1/status", nil, admin())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var status struct {
		Guild   *struct{ Name string } `json:"guild"`
		Volume  float64                `json:"volume"`
		Playing bool                   `json:"playing"`
	}
	decode(t, w, &status)
	if status.Volume != queue.DefaultVolume || status.Playing {
		t.Errorf("status = %+v", status)
	}
	if status.Guild == nil || status.Guild.Name != "Test Guild" {
		t.Errorf("guild info = %+v", status.Guild)
	}

	var raw map[string]json.RawMessage
	decode(t, w, &raw)
	for _, key := range []string{"connected", "historyLength", "currentDuration", "startedAt", "repeatMode", "shuffle", "paused", "queue"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("status response missing %q", key)
		}
	}
	if _, ok := raw["repeat"]; ok {
		t.Error("status response should use repeatMode, not repeat")
	}
}

func TestStatusWithSessionFields(t *testing.T) {
	srv, router := newTestServer(t)

	items := []gin.H{{"title": "a", "url": "https://example.com/a"}}
	doReq(t, router, "POST", "/api/guild/g1/playlists", gin.H{"name": "mix", "items": items}, admin())
	doReq(t, router, "POST", "/api/guild/g1/playplaylist", gin.H{"filename": "mix.json"}, admin())

	if srv.registry.Get("g1") == nil {
		t.Fatal("session should exist")
	}
	w := doReq(t, router, "GET", "/api/guild/g1/status", nil, admin())
	var status struct {
		Connected       bool   `json:"connected"`
		HistoryLength   int    `json:"historyLength"`
		CurrentDuration int    `json:"currentDuration"`
		StartedAt       int64  `json:"startedAt"`
		RepeatMode      string `json:"repeatMode"`
	}
	decode(t, w, &status)
	// no transport attached and nothing has played yet
	if status.Connected || status.HistoryLength != 0 || status.StartedAt != 0 {
		t.Errorf("status = %+v", status)
	}
	if status.RepeatMode != "off" {
		t.Errorf("repeatMode = %q, want off", status.RepeatMode)
	}
}

func TestControlsWithoutSession(t *testing.T) {
	_, router := newTestServer(t)

	for _, act := range []string{"skip", "pause", "resume", "stop", "clearQueue", "toggleShuffle", "toggleRepeat"} {
		if w := doReq(t, router, "POST", "/api/guild/g1/"+act, nil, admin()); w.Code != http.StatusNotFound {
			t.Errorf("%s without session = %d, want 404", act, w.Code)
		}
	}
}

func TestVolumeValidation(t *testing.T) {
	_, router := newTestServer(t)

	if w := doReq(t, router, "POST", "/api/guild/g1/volume", gin.H{}, admin()); w.Code != http.StatusBadRequest {
		t.Errorf("missing volume = %d, want 400", w.Code)
	}
	if w := doReq(t, router, "POST", "/api/guild/g1/volume", gin.H{"volume": 2.5}, admin()); w.Code != http.StatusBadRequest {
		t.Errorf("volume 2.5 = %d, want 400", w.Code)
	}
	if w := doReq(t, router, "POST", "/api/guild/g1/volume", gin.H{"volume": -0.1}, admin()); w.Code != http.StatusBadRequest {
		t.Errorf("volume -0.1 = %d, want 400", w.Code)
	}

	// no live session: persisted for the next one
	if w := doReq(t, router, "POST", "/api/guild/g1/volume", gin.H{"volume": 1.5}, admin()); w.Code != http.StatusOK {
		t.Fatalf("volume 1.5 = %d", w.Code)
	}
	w := doReq(t, router, "GET", "/api/guild/g1/status", nil, admin())
	var status struct {
		Volume float64 `json:"volume"`
	}
	decode(t, w, &status)
	if status.Volume != 1.5 {
		t.Errorf("persisted volume = %v, want 1.5", status.Volume)
	}
}

func TestPlaylistCRUD(t *testing.T) {
	_, router := newTestServer(t)
	items := []gin.H{{"title": "a", "url": "https://example.com/a"}}

	w := doReq(t, router, "POST", "/api/guild/g1/playlists", gin.H{"name": "mix", "items": items}, admin())
	if w.Code != http.StatusOK {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Filename string `json:"filename"`
	}
	decode(t, w, &created)
	if created.Filename != "mix.json" {
		t.Errorf("filename = %q", created.Filename)
	}

	w = doReq(t, router, "GET", "/api/guild/g1/playlists", nil, admin())
	var names []string
	decode(t, w, &names)
	if len(names) != 1 || names[0] != "mix.json" {
		t.Errorf("list = %v", names)
	}

	w = doReq(t, router, "GET", "/api/guild/g1/playlists/mix.json", nil, admin())
	var loaded struct {
		Items []playlist.Item `json:"items"`
	}
	decode(t, w, &loaded)
	if len(loaded.Items) != 1 || loaded.Items[0].Title != "a" {
		t.Errorf("items = %+v", loaded.Items)
	}

	w = doReq(t, router, "POST", "/api/guild/g1/playlists/mix.json/rename", gin.H{"newName": "party"}, admin())
	if w.Code != http.StatusOK {
		t.Fatalf("rename = %d: %s", w.Code, w.Body.String())
	}

	if w := doReq(t, router, "DELETE", "/api/guild/g1/playlists/party.json", nil, admin()); w.Code != http.StatusOK {
		t.Fatalf("delete = %d", w.Code)
	}

	w = doReq(t, router, "GET", "/api/guild/g1/playlists/trash", nil, admin())
	var trash []string
	decode(t, w, &trash)
	if len(trash) != 1 || trash[0] != "party.json" {
		t.Errorf("trash = %v", trash)
	}

	w = doReq(t, router, "POST", "/api/guild/g1/playlists/trash/restore", gin.H{"filename": "party.json"}, admin())
	if w.Code != http.StatusOK {
		t.Fatalf("restore = %d: %s", w.Code, w.Body.String())
	}

	_ = doReq(t, router, "DELETE", "/api/guild/g1/playlists/party.json", nil, admin())
	if w := doReq(t, router, "DELETE", "/api/guild/g1/playlists/trash/party.json", nil, admin()); w.Code != http.StatusOK {
		t.Fatalf("permanent delete = %d", w.Code)
	}

	if w := doReq(t, router, "GET", "/api/guild/g1/playlists/party.json", nil, admin()); w.Code != http.StatusNotFound {
		t.Errorf("load deleted = %d, want 404", w.Code)
	}
}

func TestPlaylistBadName(t *testing.T) {
	_, router := newTestServer(t)
	w := doReq(t, router, "POST", "/api/guild/g1/playlists", gin.H{"name": "../escape"}, admin())
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad name = %d, want 400", w.Code)
	}
}

func TestPlayPlaylistQueuesTracks(t *testing.T) {
	srv, router := newTestServer(t)

	items := []gin.H{
		{"title": "a", "url": "https://example.com/a"},
		{"title": "b", "url": "https://example.com/b"},
	}
	doReq(t, router, "POST", "/api/guild/g1/playlists", gin.H{"name": "mix", "items": items}, admin())

	w := doReq(t, router, "POST", "/api/guild/g1/playplaylist", gin.H{"filename": "mix.json"}, admin())
	if w.Code != http.StatusOK {
		t.Fatalf("playplaylist = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Queued int `json:"queued"`
	}
	decode(t, w, &resp)
	if resp.Queued != 2 {
		t.Errorf("queued = %d, want 2", resp.Queued)
	}

	sess := srv.registry.Get("g1")
	if sess == nil {
		t.Fatal("session should exist after playplaylist")
	}
	sn := sess.Snapshot()
	if len(sn.Pending) != 2 || sn.CurrentPlaylist != "mix" {
		t.Errorf("pending=%d currentPlaylist=%q", len(sn.Pending), sn.CurrentPlaylist)
	}
}

func TestCurrentPlaylistPersisted(t *testing.T) {
	_, router := newTestServer(t)

	w := doReq(t, router, "POST", "/api/guild/g1/currentPlaylist", gin.H{"filename": "mix.json"}, admin())
	if w.Code != http.StatusOK {
		t.Fatalf("currentPlaylist = %d", w.Code)
	}

	w = doReq(t, router, "GET", "/api/guild/g1/status", nil, admin())
	var status struct {
		CurrentPlaylist string `json:"currentPlaylist"`
	}
	decode(t, w, &status)
	if status.CurrentPlaylist != "mix" {
		t.Errorf("currentPlaylist = %q, want mix", status.CurrentPlaylist)
	}
}
