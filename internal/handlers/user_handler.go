package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"groupchat-api/internal/apperrors"
	"groupchat-api/internal/models"
	"groupchat-api/internal/service"
)

type UserHandler struct {
	svc *service.UserService
	log *zap.SugaredLogger
}

func NewUserHandler(svc *service.UserService, log *zap.SugaredLogger) *UserHandler {
	return &UserHandler{svc: svc, log: log}
}

func (h *UserHandler) Me(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	user, err := h.svc.Get(c.Context(), uid)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, user)
}

type updateProfileRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=2,max=100"`
	Email *string `json:"email" validate:"omitempty,email"`
}

func (h *UserHandler) UpdateMe(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req updateProfileRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	user, err := h.svc.UpdateProfile(c.Context(), uid, service.UpdateProfileInput{Name: req.Name, Email: req.Email})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

func (h *UserHandler) ChangePassword(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req changePasswordRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	if err := h.svc.ChangePassword(c.Context(), uid, req.CurrentPassword, req.NewPassword); err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"message": "password updated"})
}

func (h *UserHandler) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", service.DefaultPageLimit)
	users, total, err := h.svc.List(c.Context(), page, limit)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"users": users, "total": total, "page": page, "limit": limit})
}

type createUserRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required,oneof=super_admin admin user"`
}

func (h *UserHandler) Create(c *fiber.Ctx) error {
	var req createUserRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	user, err := h.svc.Create(c.Context(), service.CreateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     models.Role(req.Role),
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusCreated, user)
}

type adminUpdateUserRequest struct {
	Name    *string `json:"name" validate:"omitempty,min=2,max=100"`
	Email   *string `json:"email" validate:"omitempty,email"`
	Role    *string `json:"role" validate:"omitempty,oneof=super_admin admin user"`
	GroupID *string `json:"group_id"`
}

func (h *UserHandler) Update(c *fiber.Ctx) error {
	targetID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req adminUpdateUserRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	in := service.UpdateUserInput{Name: req.Name, Email: req.Email}
	if req.Role != nil {
		role := models.Role(*req.Role)
		in.Role = &role
	}
	if req.GroupID != nil {
		gid, err := primitive.ObjectIDFromHex(*req.GroupID)
		if err != nil {
			return respondError(c, h.log, apperrors.InvalidArgument("invalid id").
				WithFields(map[string]string{"group_id": "must be a valid object id"}))
		}
		in.GroupID = &gid
	}

	user, err := h.svc.Update(c.Context(), targetID, in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, user)
}

func (h *UserHandler) Delete(c *fiber.Ctx) error {
	targetID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	if err := h.svc.Delete(c.Context(), targetID); err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"message": "user deleted"})
}
