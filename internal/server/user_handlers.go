package server

import (
	"inkwell/internal/models"
	"inkwell/internal/service"

	"github.com/gofiber/fiber/v2"
)

// publicUser is the shape users are listed and read as. Email stays visible
// (it is part of the public profile here), password never leaves the model
// thanks to its json:"-" tag.
func publicUser(user *models.User) fiber.Map {
	return fiber.Map{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	}
}

// ListUsers handles GET /users/
func (s *Server) ListUsers(c *fiber.Ctx) error {
	p := parsePagination(c, 20)

	users, err := s.userService.ListUsers(c.Context(), p.Limit, p.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}

	out := make([]fiber.Map, 0, len(users))
	for i := range users {
		out = append(out, publicUser(&users[i]))
	}
	return c.JSON(out)
}

// GetUser handles GET /users/:id
func (s *Server) GetUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	user, err := s.userService.GetUser(c.Context(), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(publicUser(user))
}

// UpdateUser handles PUT /users/:id
func (s *Server) UpdateUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	user, err := s.userService.UpdateUser(c.Context(), service.UpdateUserInput{
		RequesterID: currentUserID(c),
		UserID:      id,
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "User updated successfully",
		"user":    publicUser(user),
	})
}

// DeleteUser handles DELETE /users/:id
func (s *Server) DeleteUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	err = s.userService.DeleteUser(c.Context(), currentUserID(c), id, s.revokeUserSessions)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
