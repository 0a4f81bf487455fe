package middleware

import (
	"context"

	"pfmp/logger"
	"pfmp/services/ratelimit"

	"github.com/gofiber/fiber/v2"
)

// RequestContext copies the request id set by the requestid middleware into
// the user context so services can log it.
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			c.SetUserContext(context.WithValue(c.UserContext(), logger.RequestIDKey, rid))
		}
		return c.Next()
	}
}

// OriginGuard rejects browser requests from origins outside allowed. An
// empty list disables the check, requests without Origin are let through.
func OriginGuard(allowed []string) fiber.Handler {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)
		if len(set) == 0 || origin == "" || set[origin] {
			return c.Next()
		}
		logger.Step(c.UserContext(), "security.origin").Warn("origin rejected", "origin", origin, "ip", c.IP())
		return JsonResponse(c, fiber.StatusForbidden, false, "Origine non autorisée", nil)
	}
}

// RateLimit counts the request against action for the caller's IP.
func RateLimit(limiter *ratelimit.Limiter, action string) fiber.Handler {
	return RateLimitBy(limiter, func(*fiber.Ctx) string { return action })
}

// RateLimitBy picks the action per request, e.g. from the validated body.
func RateLimitBy(limiter *ratelimit.Limiter, action func(c *fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := limiter.Allow(c.UserContext(), action(c), c.IP()); err != nil {
			return ErrorResponse(c, err)
		}
		return c.Next()
	}
}
