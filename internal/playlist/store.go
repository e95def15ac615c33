package playlist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

const trashDirName = "trash"

// Item is one saved playlist entry.
type Item struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

var (
	validName  = regexp.MustCompile(`^[\w\- .]+$`)
	numSuffix  = regexp.MustCompile(`_(\d+)$`)
	ErrBadName = fmt.Errorf("invalid playlist name")
)

// Store keeps per-guild playlists as JSON files on disk, with a trash
// directory for soft deletes and an append-only action log.
//
// Layout: <root>/<guildID>/<name>.json, <root>/<guildID>/trash/<name>.json,
// <root>/playlist_actions.log (one JSON object per line).
type Store struct {
	root string

	mu sync.Mutex // serializes renames and log appends
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create playlist root: %w", err)
	}
	return &Store{root: root}, nil
}

// Sanitize validates a user-supplied playlist name and normalizes it to a
// bare filename (no extension, no path parts).
func Sanitize(name string) (string, error) {
	name = strings.TrimSpace(strings.TrimSuffix(name, ".json"))
	if name == "" || name == trashDirName {
		return "", ErrBadName
	}
	if !validName.MatchString(name) || strings.Contains(name, "..") {
		return "", ErrBadName
	}
	return name, nil
}

func (st *Store) guildDir(guildID string) string {
	return filepath.Join(st.root, guildID)
}

func (st *Store) trashDir(guildID string) string {
	return filepath.Join(st.root, guildID, trashDirName)
}

func (st *Store) path(guildID, name string) string {
	return filepath.Join(st.guildDir(guildID), name+".json")
}

// List returns the playlist filenames for a guild, sorted.
func (st *Store) List(guildID string) ([]string, error) {
	return listJSON(st.guildDir(guildID))
}

// ListTrash returns soft-deleted playlist filenames for a guild, sorted.
func (st *Store) ListTrash(guildID string) ([]string, error) {
	return listJSON(st.trashDir(guildID))
}

func listJSON(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// Load reads a playlist by filename (with or without .json).
func (st *Store) Load(guildID, name string) ([]Item, error) {
	name, err := Sanitize(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(st.path(guildID, name))
	if err != nil {
		return nil, err
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse playlist %s: %w", name, err)
	}
	return items, nil
}

// Save overwrites a playlist's items. The file is created if missing.
func (st *Store) Save(guildID, name string, items []Item) error {
	name, err := Sanitize(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(st.guildDir(guildID), 0o755); err != nil {
		return err
	}
	if items == nil {
		items = []Item{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(st.path(guildID, name), data, 0o644); err != nil {
		return err
	}
	st.logAction("save", guildID, name, "")
	return nil
}

// Create makes a new playlist, resolving name collisions with a numeric
// suffix. It returns the filename actually created.
func (st *Store) Create(guildID, name string, items []Item) (string, error) {
	name, err := Sanitize(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(st.guildDir(guildID), 0o755); err != nil {
		return "", err
	}

	st.mu.Lock()
	final := st.freeNameLocked(st.guildDir(guildID), name)
	st.mu.Unlock()

	if items == nil {
		items = []Item{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(st.path(guildID, final), data, 0o644); err != nil {
		return "", err
	}
	st.logAction("create", guildID, final, "")
	return final + ".json", nil
}

// Rename moves a playlist to a new name, suffixing on collision. It
// returns the filename actually used.
func (st *Store) Rename(guildID, oldName, newName string) (string, error) {
	oldName, err := Sanitize(oldName)
	if err != nil {
		return "", err
	}
	newName, err = Sanitize(newName)
	if err != nil {
		return "", err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	src := st.path(guildID, oldName)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}
	final := st.freeNameLocked(st.guildDir(guildID), newName)
	if err := os.Rename(src, st.path(guildID, final)); err != nil {
		return "", err
	}
	st.logActionLocked("rename", guildID, oldName, final)
	return final + ".json", nil
}

// SoftDelete moves a playlist into the guild's trash directory.
func (st *Store) SoftDelete(guildID, name string) error {
	name, err := Sanitize(name)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	src := st.path(guildID, name)
	if _, err := os.Stat(src); err != nil {
		return err
	}
	if err := os.MkdirAll(st.trashDir(guildID), 0o755); err != nil {
		return err
	}
	final := st.freeNameLocked(st.trashDir(guildID), name)
	if err := os.Rename(src, filepath.Join(st.trashDir(guildID), final+".json")); err != nil {
		return err
	}
	st.logActionLocked("soft_delete", guildID, name, final)
	return nil
}

// Restore moves a playlist out of the trash back into the guild directory.
func (st *Store) Restore(guildID, name string) (string, error) {
	name, err := Sanitize(name)
	if err != nil {
		return "", err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	src := filepath.Join(st.trashDir(guildID), name+".json")
	if _, err := os.Stat(src); err != nil {
		return "", err
	}
	final := st.freeNameLocked(st.guildDir(guildID), name)
	if err := os.Rename(src, st.path(guildID, final)); err != nil {
		return "", err
	}
	st.logActionLocked("restore", guildID, name, final)
	return final + ".json", nil
}

// PermanentDelete removes a playlist from the trash for good.
func (st *Store) PermanentDelete(guildID, name string) error {
	name, err := Sanitize(name)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(st.trashDir(guildID), name+".json")); err != nil {
		return err
	}
	st.logAction("permanent_delete", guildID, name, "")
	return nil
}

// freeNameLocked finds a free filename in dir, appending _1, _2, ... to
// base until no file with that name exists. Caller holds the mutex.
func (st *Store) freeNameLocked(dir, base string) string {
	candidate := base
	n := 0
	for {
		if _, err := os.Stat(filepath.Join(dir, candidate+".json")); os.IsNotExist(err) {
			return candidate
		}
		n++
		// strip any previous suffix so retries don't stack
		root := numSuffix.ReplaceAllString(base, "")
		candidate = fmt.Sprintf("%s_%d", root, n)
	}
}

type actionRecord struct {
	TS     string `json:"ts"`
	Action string `json:"action"`
	Guild  string `json:"guild"`
	Name   string `json:"name"`
	To     string `json:"to,omitempty"`
}

func (st *Store) logAction(action, guildID, name, to string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.logActionLocked(action, guildID, name, to)
}

func (st *Store) logActionLocked(action, guildID, name, to string) {
	rec := actionRecord{
		TS:     time.Now().UTC().Format(time.RFC3339),
		Action: action,
		Guild:  guildID,
		Name:   name,
		To:     to,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	f, err := os.OpenFile(filepath.Join(st.root, "playlist_actions.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(append(line, '\n'))
}
