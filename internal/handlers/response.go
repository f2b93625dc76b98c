package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"groupchat-api/internal/apperrors"
	"groupchat-api/internal/middleware"
	"groupchat-api/internal/service"
)

var errUnauthenticated = errors.New("unauthenticated")

func respond(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{"status": "ok", "data": data})
}

// respondError maps service errors onto the wire. Typed errors carry their
// own status; anything untyped is logged and hidden behind a 500.
func respondError(c *fiber.Ctx, log *zap.SugaredLogger, err error) error {
	if errors.Is(err, errUnauthenticated) || errors.Is(err, service.ErrInvalidCredentials) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"status": "error", "message": "invalid credentials"})
	}

	e, ok := apperrors.AsError(err)
	if !ok {
		log.Errorw("unhandled error", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"status": "error", "message": "internal server error"})
	}
	if e.Code == apperrors.CodeInternal {
		log.Errorw("internal error", "path", c.Path(), "error", e.Unwrap())
	}

	body := fiber.Map{"status": "error", "code": e.Code, "message": e.Message}
	if len(e.Fields) > 0 {
		body["errors"] = e.Fields
	}
	return c.Status(apperrors.StatusOf(e)).JSON(body)
}

// callerID reads the authenticated user id the middleware stashed in Locals.
func callerID(c *fiber.Ctx) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(middleware.UserID(c))
	if err != nil {
		return primitive.NilObjectID, errUnauthenticated
	}
	return id, nil
}

// paramID parses a hex object id from the route path.
func paramID(c *fiber.Ctx, name string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(c.Params(name))
	if err != nil {
		return primitive.NilObjectID, apperrors.InvalidArgument("invalid id").
			WithFields(map[string]string{name: "must be a valid object id"})
	}
	return id, nil
}
