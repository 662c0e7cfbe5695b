// Package server contains the HTTP handlers and routing for the API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"inkwell/internal/cache"
	"inkwell/internal/config"
	"inkwell/internal/database"
	"inkwell/internal/middleware"
	"inkwell/internal/models"
	"inkwell/internal/repository"
	"inkwell/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers.
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	log            *slog.Logger
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	userRepo       repository.UserRepository
	groupRepo      repository.GroupRepository
	postRepo       repository.PostRepository
	commentRepo    repository.CommentRepository
	userService    *service.UserService
	postService    *service.PostService
	commentService *service.CommentService
}

// NewServer creates a server instance, establishing its own database and
// Redis connections.
func NewServer(cfg *config.Config, log *slog.Logger) (*Server, error) {
	db, err := database.Connect(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)

	return NewServerWithDeps(cfg, db, cache.GetClient(), log), nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Used by tests and by bootstrap layers that manage DB/Redis themselves.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, log *slog.Logger) *Server {
	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		log:            log,
		promMiddleware: middleware.InitMetrics("inkwell-api"),
		userRepo:       repository.NewUserRepository(db),
		groupRepo:      repository.NewGroupRepository(db),
		postRepo:       repository.NewPostRepository(db),
		commentRepo:    repository.NewCommentRepository(db),
	}
	s.userService = service.NewUserService(s.userRepo, s.groupRepo, s.isAdminByUserID)
	s.postService = service.NewPostService(s.postRepo, s.userRepo, s.isAdminByUserID)
	s.commentService = service.NewCommentService(s.commentRepo, s.postRepo, s.userRepo, s.isAdminByUserID)
	return s
}

// SetupMiddleware configures middleware for the Fiber app.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger(s.log))

	// CORS runs before middlewares that can short-circuit (e.g. limiter) so
	// browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP).
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application.
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	users := app.Group("/users")
	users.Post("/", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "register"), s.Register)
	users.Post("/create-and-assign-group/", s.AdminBootstrapGate(), s.RegisterAdmin)
	users.Post("/login/", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login)
	users.Post("/refresh/", s.Refresh)
	users.Post("/logout/", s.AuthRequired(), s.Logout)
	users.Get("/", s.ListUsers)
	users.Get("/:id", s.GetUser)
	users.Put("/:id", s.AuthRequired(), s.UpdateUser)
	users.Delete("/:id", s.AuthRequired(), s.DeleteUser)

	posts := app.Group("/posts")
	posts.Get("/", s.ListPosts)
	posts.Post("/", s.AuthRequired(), s.CreatePost)
	// Specific /:id/:resource routes before the generic /:id route.
	posts.Post("/:id/like", s.AuthRequired(), s.ToggleLike)
	posts.Get("/:id/comments", s.ListPostComments)
	posts.Get("/:id", s.GetPost)
	posts.Put("/:id", s.AuthRequired(), s.UpdatePost)
	posts.Delete("/:id", s.AuthRequired(), s.DeletePost)

	comments := app.Group("/comments")
	comments.Get("/", s.ListComments)
	comments.Post("/", s.AuthRequired(), s.CreateComment)
	comments.Get("/:id", s.GetComment)
	comments.Put("/:id", s.AuthRequired(), s.UpdateComment)
	comments.Delete("/:id", s.AuthRequired(), s.DeleteComment)
}

// LivenessCheck handles liveness probe requests.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// The API degrades without Redis (no cache, no revocation), so a
		// missing client is reported but does not fail readiness.
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// authenticate validates the request's access token and stores the user ID,
// token ID, and expiry in request locals. The returned error, if any, is an
// AppError that has not been written to the response.
func (s *Server) authenticate(c *fiber.Ctx) error {
	tokenString := bearerToken(c)
	if tokenString == "" {
		middleware.AuthFailures.WithLabelValues("missing").Inc()
		return models.NewUnauthorizedError("Authorization required")
	}

	claims, err := s.parseToken(tokenString)
	if err != nil {
		middleware.AuthFailures.WithLabelValues("invalid").Inc()
		return models.NewUnauthorizedError("Invalid or expired token")
	}

	// Refresh tokens never grant access to resources.
	if typ, _ := claims["typ"].(string); typ == refreshTokenType {
		middleware.AuthFailures.WithLabelValues("invalid").Inc()
		return models.NewUnauthorizedError("Invalid or expired token")
	}

	userID, jti, err := subjectAndJTI(claims)
	if err != nil {
		middleware.AuthFailures.WithLabelValues("invalid").Inc()
		return models.NewUnauthorizedError("Invalid token claims")
	}

	if s.isRevoked(c.Context(), userID, jti) {
		middleware.AuthFailures.WithLabelValues("revoked").Inc()
		return models.NewUnauthorizedError("Token has been revoked")
	}

	c.Locals("userID", userID)
	c.Locals("jti", jti)
	if exp, expErr := claims.GetExpirationTime(); expErr == nil && exp != nil {
		c.Locals("exp", exp.Time)
	}
	ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, userID)
	c.SetUserContext(ctx)

	return nil
}

// AuthRequired returns middleware that rejects requests without a valid
// access token.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := s.authenticate(c); err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}
		return c.Next()
	}
}

// AdminBootstrapGate guards admin-creating registration. While no admin
// account exists the route is open so the first admin can be bootstrapped;
// afterwards it requires an authenticated admin.
func (s *Server) AdminBootstrapGate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		bootstrapped, err := s.userService.HasAdmins(c.Context())
		if err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		}
		if !bootstrapped {
			return c.Next()
		}

		if authErr := s.authenticate(c); authErr != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, authErr)
		}

		userID := c.Locals("userID").(uint)
		admin, err := s.isAdminByUserID(c.Context(), userID)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		}
		if !admin {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Admin access required"))
		}
		return c.Next()
	}
}

// optionalUserID extracts the user ID from an Authorization header when one
// is present and valid. Anonymous requests get (0, false).
func (s *Server) optionalUserID(c *fiber.Ctx) (uint, bool) {
	tokenString := bearerToken(c)
	if tokenString == "" {
		return 0, false
	}

	claims, err := s.parseToken(tokenString)
	if err != nil {
		return 0, false
	}
	if typ, _ := claims["typ"].(string); typ == refreshTokenType {
		return 0, false
	}

	userID, jti, err := subjectAndJTI(claims)
	if err != nil {
		return 0, false
	}
	if s.isRevoked(c.Context(), userID, jti) {
		return 0, false
	}
	return userID, true
}

// bearerToken extracts the token from an "Authorization: Bearer ..." header.
func bearerToken(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// parseToken verifies the signature, expiry, issuer, and audience of a token
// and returns its claims.
func (s *Server) parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
		}
		return []byte(s.config.JWTSecret), nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", token.Claims)
	}
	return claims, nil
}

// subjectAndJTI extracts the user ID and token ID claims.
func subjectAndJTI(claims jwt.MapClaims) (uint, string, error) {
	sub, ok := claims["sub"].(string)
	if !ok {
		return 0, "", fmt.Errorf("missing subject claim")
	}
	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil {
		return 0, "", fmt.Errorf("invalid subject claim: %w", err)
	}
	jti, _ := claims["jti"].(string)
	return uint(userID), jti, nil
}

// isRevoked reports whether the token's jti is denylisted or the user's
// sessions were revoked wholesale. Without Redis nothing can be revoked.
func (s *Server) isRevoked(ctx context.Context, userID uint, jti string) bool {
	if s.redis == nil {
		return false
	}
	if jti != "" {
		if n, err := s.redis.Exists(ctx, cache.TokenDenyKey(jti)).Result(); err == nil && n > 0 {
			return true
		}
	}
	if n, err := s.redis.Exists(ctx, cache.UserRevokedKey(userID)).Result(); err == nil && n > 0 {
		return true
	}
	return false
}

// Start starts the server and blocks until it exits.
func (s *Server) Start() error {
	app := fiber.New(fiber.Config{
		AppName: "Inkwell API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			s.log.Error("unhandled error", "error", err, "path", c.Path())
			return models.RespondWithError(c, models.HTTPStatus(err), err)
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	s.log.Info("server starting", "port", s.config.Port, "env", s.config.Env)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server and closes its connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			s.log.Error("error shutting down HTTP server", "error", err)
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			s.log.Error("error closing sql DB", "error", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			s.log.Error("error closing redis", "error", rerr)
		}
	}

	s.log.Info("server shutdown complete")
	return nil
}
