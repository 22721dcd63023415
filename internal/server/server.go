package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/qa-forum/backend/internal/config"
	"github.com/emilythestrangee/qa-forum/backend/internal/database"
	"github.com/emilythestrangee/qa-forum/backend/internal/handlers"
	"github.com/emilythestrangee/qa-forum/backend/internal/middleware"
)

type Server struct {
	cfg     config.Config
	db      database.Service
	handler *handlers.Handler
}

// NewServer creates and configures a new server
func NewServer(cfg config.Config, db database.Service, handler *handlers.Handler) *http.Server {
	newServer := &Server{
		cfg:     cfg,
		db:      db,
		handler: handler,
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		Handler:      newServer.RegisterRoutes(),
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	slog.Info("server configured", "addr", server.Addr)
	return server
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	r := gin.Default()
	r.Use(middleware.RequestID())

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.HTTP.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * 3600,
	}))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		stats := s.db.Health()
		status := http.StatusOK
		if stats["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, stats)
	})

	secret := []byte(s.cfg.JWT.Secret)

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public)
		api.POST("/register", s.handler.Auth.Register)
		api.POST("/login", s.handler.Auth.Login)

		// Public reads; a token, when present, personalises my_vote
		public := api.Group("")
		public.Use(middleware.OptionalAuth(secret))
		{
			public.GET("/questions", s.handler.Question.GetQuestions)
			public.GET("/questions/:id", s.handler.Question.GetQuestion)
			public.GET("/questions/:id/comments", s.handler.Comment.GetQuestionComments)
			public.GET("/answers/:answerId/comments", s.handler.Comment.GetAnswerComments)
			public.GET("/users", s.handler.User.GetUsers)
			public.GET("/users/:id", s.handler.User.GetUserProfile)
			public.GET("/users/:id/activity", s.handler.User.GetUserActivity)
		}

		// Protected routes (authentication required)
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(secret))
		{
			protected.GET("/me", s.handler.Auth.GetMe)

			// Question protected routes
			protected.POST("/questions", s.handler.Question.CreateQuestion)
			protected.PUT("/questions/:id", s.handler.Question.UpdateQuestion)
			protected.DELETE("/questions/:id", s.handler.Question.DeleteQuestion)

			// Answer protected routes
			protected.POST("/questions/:id/answers", s.handler.Answer.CreateAnswer)
			protected.PUT("/answers/:answerId", s.handler.Answer.UpdateAnswer)
			protected.DELETE("/answers/:answerId", s.handler.Answer.DeleteAnswer)

			// Ledger routes
			protected.POST("/votes", s.handler.Vote.Vote)
			protected.POST("/questions/:id/answers/:answerId/accept", s.handler.Vote.AcceptAnswer)
			protected.DELETE("/questions/:id/answers/:answerId/accept", s.handler.Vote.UnacceptAnswer)

			// Comment protected routes
			protected.POST("/questions/:id/comments", s.handler.Comment.CreateQuestionComment)
			protected.POST("/answers/:answerId/comments", s.handler.Comment.CreateAnswerComment)
			protected.PUT("/comments/:commentId", s.handler.Comment.UpdateComment)
			protected.DELETE("/comments/:commentId", s.handler.Comment.DeleteComment)

			// User protected routes
			protected.PUT("/users/:id", s.handler.User.UpdateUserProfile)
			protected.POST("/users/:id/reputation/recompute", s.handler.User.RecomputeReputation)

			// Notifications
			protected.GET("/notifications", s.handler.Notification.GetNotifications)
			protected.PUT("/notifications/read", s.handler.Notification.MarkAllRead)
			protected.PUT("/notifications/:id/read", s.handler.Notification.MarkRead)
		}
	}

	return r
}
