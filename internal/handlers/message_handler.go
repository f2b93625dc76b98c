package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"groupchat-api/internal/apperrors"
	"groupchat-api/internal/models"
	"groupchat-api/internal/service"
)

type MessageHandler struct {
	svc *service.MessageService
	log *zap.SugaredLogger
}

func NewMessageHandler(svc *service.MessageService, log *zap.SugaredLogger) *MessageHandler {
	return &MessageHandler{svc: svc, log: log}
}

type sendMessageRequest struct {
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
}

// Send leaves content and type checks to the service so malformed input is
// rejected before group and membership lookups.
func (h *MessageHandler) Send(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	groupID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, h.log, apperrors.InvalidArgument("invalid request body"))
	}
	msg, err := h.svc.Send(c.Context(), uid, groupID, req.Content, models.MessageType(req.MessageType))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusCreated, msg)
}

func (h *MessageHandler) List(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	groupID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", service.DefaultPageLimit)

	msgs, meta, err := h.svc.List(c.Context(), uid, groupID, page, limit)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"messages": msgs, "pagination": meta})
}

func (h *MessageHandler) UnreadCount(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	groupID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	n, err := h.svc.UnreadCount(c.Context(), uid, groupID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"unreadCount": n})
}

type markReadRequest struct {
	MessageIDs []string `json:"messageIds"`
}

func (h *MessageHandler) MarkRead(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	groupID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req markReadRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, h.log, apperrors.InvalidArgument("invalid request body"))
	}

	ids := make([]primitive.ObjectID, 0, len(req.MessageIDs))
	for _, raw := range req.MessageIDs {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return respondError(c, h.log, apperrors.InvalidArgument("invalid message id").
				WithFields(map[string]string{"messageIds": "must contain valid object ids"}))
		}
		ids = append(ids, id)
	}

	marked, err := h.svc.MarkRead(c.Context(), uid, groupID, ids)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"markedCount": marked})
}

type editMessageRequest struct {
	Content string `json:"content"`
}

func (h *MessageHandler) Edit(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	msgID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req editMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, h.log, apperrors.InvalidArgument("invalid request body"))
	}
	msg, err := h.svc.Edit(c.Context(), uid, msgID, req.Content)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, msg)
}

func (h *MessageHandler) Delete(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	msgID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	if err := h.svc.Delete(c.Context(), uid, msgID); err != nil {
		return respondError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"message": "message deleted"})
}
