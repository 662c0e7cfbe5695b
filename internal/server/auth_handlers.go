package server

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"inkwell/internal/cache"
	"inkwell/internal/models"
	"inkwell/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer      = "inkwell-api"
	tokenAudience    = "inkwell-client"
	refreshTokenType = "refresh"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// registeredUser is the public shape of a freshly created account.
func registeredUser(user *models.User) fiber.Map {
	return fiber.Map{
		"username": user.Username,
		"email":    user.Email,
	}
}

// Register handles POST /users/
func (s *Server) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	user, err := s.userService.Register(c.Context(), service.RegisterUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User created successfully",
		"user":    registeredUser(user),
	})
}

// RegisterAdmin handles POST /users/create-and-assign-group/
// The route is guarded by AdminBootstrapGate.
func (s *Server) RegisterAdmin(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	user, err := s.userService.RegisterAdmin(c.Context(), service.RegisterUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User created and assigned to group successfully",
		"user":    registeredUser(user),
	})
}

// Login handles POST /users/login/
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	user, err := s.userService.Authenticate(c.Context(), req.Username, req.Password)
	if err != nil {
		return respondServiceError(c, err)
	}

	access, refresh, err := s.generateTokenPair(user.ID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"access":  access,
		"refresh": refresh,
	})
}

// Refresh handles POST /users/refresh/
// It exchanges a valid refresh token for a fresh pair, denylisting the used
// refresh token so each one is single-use.
func (s *Server) Refresh(c *fiber.Ctx) error {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := c.BodyParser(&req); err != nil || req.Refresh == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Refresh token is required"))
	}

	claims, err := s.parseToken(req.Refresh)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Invalid or expired refresh token"))
	}
	if typ, _ := claims["typ"].(string); typ != refreshTokenType {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Invalid or expired refresh token"))
	}

	userID, jti, err := subjectAndJTI(claims)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Invalid or expired refresh token"))
	}
	if s.isRevoked(c.Context(), userID, jti) {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Token has been revoked"))
	}

	// The account may have been deleted since the token was issued.
	if _, err := s.userRepo.GetByID(c.Context(), userID); err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Token has been revoked"))
	}

	access, refresh, err := s.generateTokenPair(userID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	if exp, expErr := claims.GetExpirationTime(); expErr == nil && exp != nil {
		s.denylistJTI(c, jti, exp.Time)
	}

	return c.JSON(fiber.Map{
		"access":  access,
		"refresh": refresh,
	})
}

// Logout handles POST /users/logout/
// The presented access token's jti is denylisted until its natural expiry; a
// refresh token supplied in the body is denylisted alongside it.
func (s *Server) Logout(c *fiber.Ctx) error {
	jti, _ := c.Locals("jti").(string)
	exp, _ := c.Locals("exp").(time.Time)
	if jti != "" && !exp.IsZero() {
		s.denylistJTI(c, jti, exp)
	}

	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := c.BodyParser(&req); err == nil && req.Refresh != "" {
		if claims, parseErr := s.parseToken(req.Refresh); parseErr == nil {
			if _, refreshJTI, idErr := subjectAndJTI(claims); idErr == nil && refreshJTI != "" {
				if refreshExp, expErr := claims.GetExpirationTime(); expErr == nil && refreshExp != nil {
					s.denylistJTI(c, refreshJTI, refreshExp.Time)
				}
			}
		}
	}

	return c.JSON(fiber.Map{
		"message": "Logged out successfully",
	})
}

// denylistJTI marks a token ID revoked until the token would have expired
// anyway. Best effort: without Redis there is nothing to write to.
func (s *Server) denylistJTI(c *fiber.Ctx, jti string, exp time.Time) {
	if s.redis == nil {
		return
	}
	ttl := time.Until(exp)
	if ttl <= 0 {
		return
	}
	if err := s.redis.Set(c.Context(), cache.TokenDenyKey(jti), "1", ttl).Err(); err != nil {
		s.log.Warn("failed to denylist token", "error", err)
	}
}

// revokeUserSessions invalidates every outstanding token for the user by
// writing a tombstone that outlives the longest-lived refresh token.
func (s *Server) revokeUserSessions(ctx context.Context, userID uint) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Set(ctx, cache.UserRevokedKey(userID), "1", s.config.RefreshTokenTTL).Err()
}

// generateTokenPair creates a short-lived access token and a long-lived
// refresh token for the user.
func (s *Server) generateTokenPair(userID uint) (access, refresh string, err error) {
	access, err = s.signToken(userID, s.config.AccessTokenTTL, "")
	if err != nil {
		return "", "", err
	}
	refresh, err = s.signToken(userID, s.config.RefreshTokenTTL, refreshTokenType)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (s *Server) signToken(userID uint, ttl time.Duration, typ string) (string, error) {
	if s.config.JWTSecret == "" {
		return "", fmt.Errorf("JWT secret not configured")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(userID), 10),
		"iss": tokenIssuer,
		"aud": tokenAudience,
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"jti": uuid.NewString(),
	}
	if typ != "" {
		claims["typ"] = typ
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}
