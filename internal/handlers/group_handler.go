package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"groupchat-api/internal/models"
	"groupchat-api/internal/service"
)

type GroupHandler struct {
	svc *service.GroupService
	log *zap.SugaredLogger
}

func NewGroupHandler(svc *service.GroupService, log *zap.SugaredLogger) *GroupHandler {
	return &GroupHandler{svc: svc, log: log}
}

type createGroupRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"max=500"`
	IsPrivate   bool   `json:"is_private"`
	MaxMembers  int    `json:"max_members"`
}

func (h *GroupHandler) Create(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req createGroupRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	group, err := h.svc.Create(c.Context(), uid, service.GroupInput{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
		MaxMembers:  req.MaxMembers,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusCreated, group)
}

func (h *GroupHandler) List(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	groups, err := h.svc.List(c.Context(), uid)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, groups)
}

func (h *GroupHandler) Get(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	groupID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	group, err := h.svc.Get(c.Context(), uid, groupID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, group)
}

type updateGroupRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	IsPrivate   *bool   `json:"is_private"`
	MaxMembers  *int    `json:"max_members"`
}

func (h *GroupHandler) Update(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	groupID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req updateGroupRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	group, err := h.svc.Update(c.Context(), uid, groupID, service.UpdateGroupInput{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
		MaxMembers:  req.MaxMembers,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, group)
}

func (h *GroupHandler) Delete(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	groupID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	if err := h.svc.Delete(c.Context(), uid, groupID); err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"message": "group deleted"})
}

func (h *GroupHandler) Members(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	groupID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	members, err := h.svc.Members(c.Context(), uid, groupID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, members)
}

func (h *GroupHandler) Join(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	groupID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	if err := h.svc.Join(c.Context(), uid, groupID); err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"message": "joined group"})
}

func (h *GroupHandler) Leave(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	groupID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	if err := h.svc.Leave(c.Context(), uid, groupID); err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"message": "left group"})
}

func (h *GroupHandler) RemoveMember(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	groupID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	targetID, err := paramID(c, "userId")
	if err != nil {
		return respondError(c, h.log, err)
	}
	if err := h.svc.RemoveMember(c.Context(), uid, groupID, targetID); err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"message": "member removed"})
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *GroupHandler) ChangeMemberRole(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	groupID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	targetID, err := paramID(c, "userId")
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req changeRoleRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	if err := h.svc.ChangeMemberRole(c.Context(), uid, groupID, targetID, models.GroupRole(req.Role)); err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"message": "role updated"})
}

// MainChat finds or creates the default group and seats the caller in it.
func (h *GroupHandler) MainChat(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	group, err := h.svc.MainChat(c.Context(), uid)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, group)
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *GroupHandler) Invite(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	groupID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req inviteRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	inv, err := h.svc.Invite(c.Context(), uid, groupID, req.Email)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusCreated, inv)
}

func (h *GroupHandler) AcceptInvitation(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	groupID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	if err := h.svc.AcceptInvitation(c.Context(), uid, groupID); err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"message": "invitation accepted"})
}

func (h *GroupHandler) DeclineInvitation(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	groupID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	if err := h.svc.DeclineInvitation(c.Context(), uid, groupID); err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"message": "invitation declined"})
}

func (h *GroupHandler) MyInvitations(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	invs, err := h.svc.MyInvitations(c.Context(), uid)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, invs)
}
