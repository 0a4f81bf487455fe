package authRoutes

import (
	authController "pfmp/controllers/auth"
	"pfmp/middleware"
	"pfmp/services/ratelimit"
	authValidator "pfmp/validators/auth"

	"github.com/gofiber/fiber/v2"
)

// purpose reads only the purpose field so the limiter can run before the
// body is validated; malformed attempts still count.
func purpose(c *fiber.Ctx) string {
	var peek struct {
		Purpose string `json:"purpose"`
	}
	_ = c.BodyParser(&peek)
	return peek.Purpose
}

// send and verify counters are split per purpose so that activation traffic
// cannot exhaust the signature budget
func sendAction(c *fiber.Ctx) string {
	if purpose(c) == "activation" {
		return ratelimit.ActionOTPActivationSend
	}
	return ratelimit.ActionOTPSend
}

func verifyAction(c *fiber.Ctx) string {
	if purpose(c) == "activation" {
		return ratelimit.ActionOTPActivationVerify
	}
	return ratelimit.ActionOTPVerify
}

func SetupAuthRoutes(app *fiber.App, h *authController.Handler, limiter *ratelimit.Limiter) {
	authGroup := app.Group("/auth")

	authGroup.Post("/otp/send", middleware.RateLimitBy(limiter, sendAction), authValidator.SendOTP(), h.SendOTP)
	authGroup.Post("/otp/verify", middleware.RateLimitBy(limiter, verifyAction), authValidator.VerifyOTP(), h.VerifyOTP)
}
