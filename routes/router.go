package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cppla/circlefeed/config"
	"github.com/cppla/circlefeed/controllers"
	"github.com/cppla/circlefeed/metrics"
	"github.com/cppla/circlefeed/middleware"
	"github.com/cppla/circlefeed/services"
	"github.com/cppla/circlefeed/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, svc *services.FeedService, cache *utils.JSONCache) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log goes to its own rolling file; without one, reuse the app logger.
	access := utils.Logger
	if cfg.GinPath != "" {
		access = utils.NewRollingFileLogger(cfg.GinPath, cfg)
	}
	r.Use(ginzap.Ginzap(access, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(access, true))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	feed := controllers.NewFeedController(svc, cache, cfg.PageMonths)
	graph := controllers.NewGraphController(svc)

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(cfg.JWTSecret, svc), middleware.RateLimit(cfg.RateLimitPerMinute))

	api.POST("/posts", feed.CreatePost)
	api.GET("/posts/:id", feed.GetPost)
	api.POST("/posts/:id/comments", feed.AddComment)
	api.GET("/feed", feed.Feed)
	api.GET("/users/me/incoming", feed.Incoming)
	api.GET("/users/:id/wall", feed.Wall)

	api.POST("/circles/:name/members", graph.AddMembers)
	api.DELETE("/circles/:name/members/:userId", graph.RemoveMember)
	api.POST("/blocks", graph.Block)
	api.DELETE("/blocks/:userId", graph.Unblock)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}
