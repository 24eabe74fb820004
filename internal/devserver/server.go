// Package devserver is a self-contained stand-in for the hosted backend. It
// serves the same REST surface and realtime change feed the client data layer
// talks to, backed by a local database, so the full stack runs without any
// external service.
package devserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"quad/internal/config"
	"quad/internal/database"
	"quad/internal/middleware"
	"quad/internal/repository"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"gorm.io/gorm"
)

// Server holds the dev backend's dependencies and handlers.
type Server struct {
	config *config.Config
	db     *gorm.DB
	app    *fiber.App
	prom   *fiberprometheus.FiberPrometheus
	hub    *FeedHub
	logger *slog.Logger

	users    repository.UserRepository
	posts    repository.PostRepository
	comments repository.CommentRepository
	votes    repository.VoteRepository
	chats    repository.ChatRepository
}

// NewServer connects the database per cfg and builds a ready-to-run server.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return NewServerWithDB(cfg, db), nil
}

// NewServerWithDB builds a server on an already-open database. Tests use this
// with an in-memory database.
func NewServerWithDB(cfg *config.Config, db *gorm.DB) *Server {
	middleware.InitAuth(cfg.JWTSecret)

	s := &Server{
		config:   cfg,
		db:       db,
		prom:     middleware.InitMetrics("quad-dev-api"),
		hub:      NewFeedHub(middleware.Logger),
		logger:   middleware.Logger,
		users:    repository.NewUserRepository(db),
		posts:    repository.NewPostRepository(db),
		comments: repository.NewCommentRepository(db),
		votes:    repository.NewVoteRepository(db),
		chats:    repository.NewChatRepository(db),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "quad-dev-api",
		DisableStartupMessage: true,
	})
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub exposes the change feed hub, mainly for seeding tools and tests.
func (s *Server) Hub() *FeedHub {
	return s.hub
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(middleware.ContextMiddleware())
	s.app.Use(middleware.TracingMiddleware())
	s.app.Use(s.prom.Middleware)
	s.app.Use(helmet.New())
	s.app.Use(middleware.StructuredLogger())

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection",
		AllowCredentials: true,
	}))
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.HealthCheck)
	s.prom.RegisterAt(s.app, "/metrics")

	api := s.app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", s.Register)
	auth.Post("/login", s.Login)

	// Realtime change feed. Auth rides the query string because browsers
	// cannot set headers on websocket upgrades.
	api.Get("/ws", middleware.WebSocketAuthRequired, s.FeedSocket())

	protected := api.Group("", middleware.AuthRequired)

	votes := protected.Group("/votes")
	votes.Get("/", s.GetVotes)
	votes.Post("/", s.CreateVote)
	votes.Put("/:id", s.UpdateVote)
	votes.Delete("/:id", s.DeleteVote)

	chats := protected.Group("/chats")
	chats.Get("/", s.GetChats)
	chats.Post("/", s.CreateChat)
	chats.Get("/:id/messages", s.GetMessages)
	chats.Post("/:id/messages", s.SendMessage)
	chats.Patch("/:id/activity", s.UpdateChatActivity)
	chats.Post("/:id/read", s.MarkChatRead)

	posts := protected.Group("/posts")
	posts.Get("/", s.GetPosts)
	posts.Post("/", s.CreatePost)
	posts.Get("/:id/comments", s.GetComments)
	posts.Post("/:id/comments", s.CreateComment)
}

// HealthCheck reports database liveness.
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	status := "healthy"
	code := fiber.StatusOK
	if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(c.Context()) != nil {
		status = "unhealthy"
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{"status": status})
}

// Start listens on the configured port until the app is shut down.
func (s *Server) Start() error {
	return s.app.Listen(":" + s.config.Port)
}

// Serve accepts connections on ln. Tests use this with an ephemeral port.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown drains in-flight requests and closes feed connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// userID returns the authenticated user id placed in locals by the auth
// middleware.
func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("userID").(string)
	return id
}
