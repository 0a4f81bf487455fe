package conventionRoutes

import (
	conventionController "pfmp/controllers/convention"
	"pfmp/middleware"
	"pfmp/services/ratelimit"
	conventionValidator "pfmp/validators/convention"

	"github.com/gofiber/fiber/v2"
)

func SetupConventionRoutes(app *fiber.App, h *conventionController.Handler, limiter *ratelimit.Limiter) {
	conventionGroup := app.Group("/conventions")

	// Signatories authenticate with their one-time code
	conventionGroup.Post("/:id/sign", middleware.RateLimit(limiter, ratelimit.ActionOTPVerify), conventionValidator.Sign(), h.Sign)

	conventionGroup.Post("/", middleware.JWTMiddleware, conventionValidator.CreateConvention(), h.Create)
	conventionGroup.Get("/:id", middleware.JWTMiddleware, h.Get)
	conventionGroup.Get("/:id/timeline", middleware.JWTMiddleware, h.Timeline)
	conventionGroup.Get("/:id/audit-logs", middleware.JWTMiddleware, h.AuditLogs)
	conventionGroup.Patch("/:id/minor", middleware.JWTMiddleware, middleware.RequireRole(middleware.RoleTeacher, middleware.RoleHead, middleware.RoleAdmin), conventionValidator.SetMinor(), h.SetMinor)
	conventionGroup.Patch("/:id/emails/:step", middleware.JWTMiddleware, middleware.RequireRole(middleware.RoleTeacher, middleware.RoleHead, middleware.RoleAdmin), conventionValidator.CorrectEmail(), h.CorrectEmail)
	conventionGroup.Post("/:id/remind", middleware.JWTMiddleware, middleware.RateLimit(limiter, ratelimit.ActionSendEmail), h.Remind)
	conventionGroup.Post("/:id/verification-link", middleware.JWTMiddleware, h.VerificationLink)
	conventionGroup.Post("/:id/attestation", middleware.JWTMiddleware, middleware.RequireRole(middleware.RoleHead, middleware.RoleAdmin), conventionValidator.Attestation(), h.Attestation)
}
