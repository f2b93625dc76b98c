package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"groupchat-api/internal/service"
)

type AuthHandler struct {
	svc *service.AuthService
	log *zap.SugaredLogger
}

func NewAuthHandler(svc *service.AuthService, log *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{svc: svc, log: log}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	user, session, err := h.svc.Register(c.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusCreated, fiber.Map{"user": user, "session": session})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	user, session, err := h.svc.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"user": user, "session": session})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if err := h.svc.Logout(c.Context(), uid); err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"message": "logged out"})
}
