package verifyRoutes

import (
	verifyController "pfmp/controllers/verify"
	conventionValidator "pfmp/validators/convention"

	"github.com/gofiber/fiber/v2"
)

func SetupVerifyRoutes(app *fiber.App, h *verifyController.Handler) {
	verifyGroup := app.Group("/verify")

	verifyGroup.Get("/", h.Verify)
	verifyGroup.Get("/code/:code", conventionValidator.SignatureCode(), h.LookupCode)
}
