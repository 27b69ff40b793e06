package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/curatorhq/curator/internal/config"
	"github.com/curatorhq/curator/internal/ingest"
	"github.com/curatorhq/curator/internal/models"
	"github.com/curatorhq/curator/internal/service"
	"github.com/curatorhq/curator/internal/source"
	"github.com/curatorhq/curator/internal/store"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Store     *store.GormStore
	Curation  *service.CurationService
	Pipeline  *service.Pipeline
	Scheduler *service.Scheduler
	Auth      *service.AuthService
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	st := store.NewGormStore(db)
	if err := seedFeeds(context.Background(), st, cfg.Feeds, logger); err != nil {
		return nil, fmt.Errorf("failed to seed feeds: %w", err)
	}

	// Initialize services
	processor := service.NewWebhookProcessor(db, logger)
	curation := service.NewCurationService(&cfg.Curation, st, processor, logger)

	registry := source.NewRegistry(logger)
	for _, srcCfg := range cfg.Sources {
		if err := registry.Register(source.NewHTTPSource(srcCfg), srcCfg); err != nil {
			return nil, fmt.Errorf("failed to register source %s: %w", srcCfg.Name, err)
		}
	}

	classifier := ingest.NewClassifier(cfg.Curation.BotUsername)
	resolver := ingest.NewResolver(logger)
	pipeline := service.NewPipeline(registry, classifier, resolver, curation, logger)
	scheduler := service.NewScheduler(&cfg.Scheduler, logger, pipeline)
	auth := service.NewAuthService(logger, cfg.Auth.TOTPSecret)

	// Create router
	router := gin.New()

	// Create server
	srv := &Server{
		Config:    cfg,
		DB:        db,
		Router:    router,
		Logger:    logger,
		Store:     st,
		Curation:  curation,
		Pipeline:  pipeline,
		Scheduler: scheduler,
		Auth:      auth,
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

// seedFeeds applies the configured feed definitions when the feeds table is
// empty, so a fresh deployment starts with its moderation config in place.
func seedFeeds(ctx context.Context, st store.Store, seeds []config.FeedSeed, logger *zap.Logger) error {
	existing, err := st.ListFeeds(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 || len(seeds) == 0 {
		return nil
	}

	for _, seed := range seeds {
		feed := &models.Feed{
			ID:          seed.ID,
			DisplayName: seed.DisplayName,
			Approvers:   models.PlatformUserList(seed.Approvers),
			Blacklist:   models.PlatformUserList(seed.Blacklist),
			Stream: models.StreamOutput{
				Enabled:    seed.Stream.Enabled,
				WebhookURL: seed.Stream.WebhookURL,
				Channel:    seed.Stream.Channel,
			},
		}
		if err := st.SaveFeed(ctx, feed); err != nil {
			return err
		}
		logger.Info("Seeded feed", zap.String("feed_id", seed.ID))
	}
	return nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Auth-Code")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// API routes
	api := s.Router.Group("/api/v1")
	{
		feeds := api.Group("/feeds")
		{
			feeds.GET("", s.handleListFeeds)
			feeds.GET("/:id/queue", s.handleFeedQueue)
			feeds.GET("/:id/moderation-log", s.handleModerationLog)
		}

		api.GET("/submissions/:external_id", s.handleGetSubmission)
		api.POST("/ingest/run", s.handleRunIngest)

		admin := api.Group("/admin", s.Auth.AuthMiddleware())
		{
			admin.PUT("/feeds/:id", s.handleSaveFeed)
		}
	}
}

func (s *Server) handleListFeeds(c *gin.Context) {
	feeds, err := s.Store.ListFeeds(c.Request.Context())
	if err != nil {
		s.Logger.Error("Failed to list feeds", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list feeds"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"feeds": feeds})
}

func (s *Server) handleFeedQueue(c *gin.Context) {
	status := c.DefaultQuery("status", models.StatusPending)
	links, err := s.Store.ListFeedLinks(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		s.Logger.Error("Failed to list feed queue", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list queue"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"links": links})
}

func (s *Server) handleModerationLog(c *gin.Context) {
	entries, err := s.Store.ListModerationEntries(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.Logger.Error("Failed to list moderation log", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list moderation log"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleGetSubmission(c *gin.Context) {
	sub, err := s.Store.GetSubmission(c.Request.Context(), c.Param("external_id"))
	if err != nil {
		s.Logger.Error("Failed to get submission", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get submission"})
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"submission": sub})
}

func (s *Server) handleRunIngest(c *gin.Context) {
	go s.Pipeline.RunCycle(context.Background())
	c.JSON(http.StatusAccepted, gin.H{"message": "Ingest cycle started"})
}

func (s *Server) handleSaveFeed(c *gin.Context) {
	var feed models.Feed
	if err := c.ShouldBindJSON(&feed); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid feed payload"})
		return
	}
	feed.ID = c.Param("id")

	if err := s.Store.SaveFeed(c.Request.Context(), &feed); err != nil {
		s.Logger.Error("Failed to save feed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save feed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"feed": feed})
}

func (s *Server) Start(ctx context.Context) error {
	// Start scheduler
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop scheduler first
	s.Scheduler.Stop()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
