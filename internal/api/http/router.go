package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/watchworthy-auth/internal/api/http/handlers"
	"github.com/spec-kit/watchworthy-auth/internal/auth"
	"github.com/spec-kit/watchworthy-auth/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	Penalties      *handlers.PenaltiesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/logout", cfg.Auth.Logout)
	authGroup.Post("/refresh", cfg.Auth.Refresh)
	authGroup.Post("/password/request", cfg.Auth.RequestPasswordReset)
	authGroup.Post("/password/reset", cfg.Auth.ConfirmPasswordReset)

	authGroup.Get("/whoami", cfg.AuthMiddleware.Handle, cfg.Auth.WhoAmI)
	authGroup.Post("/password/change", cfg.AuthMiddleware.Handle, cfg.Auth.ChangePassword)

	moderator := auth.RequireAtLeast(domain.RoleModerator)
	admin := auth.RequireRoles(domain.RoleAdministrator)

	penalties := app.Group("/penalties", cfg.AuthMiddleware.Handle)
	penalties.Get("/", moderator, cfg.Penalties.List)
	penalties.Get("/me", cfg.Penalties.Mine)
	penalties.Post("/reconcile", admin, cfg.Penalties.Reconcile)
	penalties.Get("/:userID", moderator, cfg.Penalties.ListForUser)
	penalties.Post("/", moderator, cfg.Penalties.Issue)
	penalties.Patch("/:id", moderator, cfg.Penalties.Resolve)
	penalties.Delete("/:id", admin, cfg.Penalties.Delete)

	app.Get("/restrictions/check", cfg.AuthMiddleware.Handle, cfg.Penalties.CheckRestriction)

	users := app.Group("/users", cfg.AuthMiddleware.Handle)
	users.Patch("/me/status", cfg.Users.UpdateOwnStatus)
	users.Get("/", admin, cfg.Users.List)
	users.Get("/:id", admin, cfg.Users.Get)
	users.Patch("/:id", admin, cfg.Users.Update)
}
