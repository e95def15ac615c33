package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"

	"github.com/darkchair/maestro/internal/config"
	"github.com/darkchair/maestro/internal/playlist"
	"github.com/darkchair/maestro/internal/queue"
	"github.com/darkchair/maestro/internal/repository"
)

//go:embed static
var staticFS embed.FS

// Server is the HTTP control surface: a small JSON API over the per-guild
// sessions plus the embedded dashboard.
type Server struct {
	cfg       *config.Config
	registry  *queue.Registry
	repo      *repository.Repo
	playlists *playlist.Store
	discord   *discordgo.Session
}

func NewServer(cfg *config.Config, registry *queue.Registry, repo *repository.Repo, playlists *playlist.Store, discord *discordgo.Session) *Server {
	return &Server{
		cfg:       cfg,
		registry:  registry,
		repo:      repo,
		playlists: playlists,
		discord:   discord,
	}
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	static, _ := fs.Sub(staticFS, "static")
	router.StaticFS("/app", http.FS(static))
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/app/")
	})

	s.registerRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.WebPort),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	// expired tokens accumulate otherwise
	go s.pruneLoop(ctx)

	slog.Info("web server listening", "port", s.cfg.WebPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (s *Server) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.repo.PruneWebSessions(ctx); err != nil {
				slog.Debug("web session prune failed", "err", err)
			}
		}
	}
}
