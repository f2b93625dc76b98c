package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"groupchat-api/internal/auth"
	"groupchat-api/internal/handlers"
	"groupchat-api/internal/middleware"
)

// NewServer builds the Fiber app and wires every route. Auth endpoints are
// public; everything else sits behind the JWT middleware, with the account
// admin surface additionally role-gated.
func NewServer(
	tokens *auth.TokenManager,
	authH *handlers.AuthHandler,
	userH *handlers.UserHandler,
	groupH *handlers.GroupHandler,
	msgH *handlers.MessageHandler,
) *fiber.App {
	app := fiber.New(fiber.Config{AppName: "groupchat-api"})
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Post("/auth/register", authH.Register)
	api.Post("/auth/login", authH.Login)

	api.Use(middleware.JWTAuth(tokens))

	api.Post("/auth/logout", authH.Logout)

	api.Get("/users/me", userH.Me)
	api.Put("/users/me", userH.UpdateMe)
	api.Put("/users/me/password", userH.ChangePassword)
	api.Get("/users/me/invitations", groupH.MyInvitations)
	api.Get("/users", middleware.RequireAdmin(), userH.List)
	api.Post("/users", middleware.RequireAdmin(), userH.Create)
	api.Put("/users/:id", middleware.RequireAdmin(), userH.Update)
	api.Delete("/users/:id", middleware.RequireAdmin(), userH.Delete)

	// The static segment must be registered before the :id routes.
	api.Get("/groups/main", groupH.MainChat)
	api.Post("/groups", groupH.Create)
	api.Get("/groups", groupH.List)
	api.Get("/groups/:id", groupH.Get)
	api.Put("/groups/:id", groupH.Update)
	api.Delete("/groups/:id", groupH.Delete)
	api.Get("/groups/:id/members", groupH.Members)
	api.Post("/groups/:id/join", groupH.Join)
	api.Post("/groups/:id/leave", groupH.Leave)
	api.Delete("/groups/:id/members/:userId", groupH.RemoveMember)
	api.Put("/groups/:id/members/:userId/role", groupH.ChangeMemberRole)
	api.Post("/groups/:id/invite", groupH.Invite)
	api.Post("/groups/:id/invitations/accept", groupH.AcceptInvitation)
	api.Post("/groups/:id/invitations/decline", groupH.DeclineInvitation)

	api.Post("/groups/:id/messages", msgH.Send)
	api.Get("/groups/:id/messages", msgH.List)
	api.Get("/groups/:id/messages/unread-count", msgH.UnreadCount)
	api.Post("/groups/:id/messages/mark-read", msgH.MarkRead)
	api.Put("/messages/:id", msgH.Edit)
	api.Delete("/messages/:id", msgH.Delete)

	return app
}
