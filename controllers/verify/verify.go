package verifyController

import (
	"pfmp/middleware"
	"pfmp/services/convention"
	"pfmp/services/verification"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	Verifier    *verification.Verifier
	Conventions *convention.Service
}

func NewHandler(verifier *verification.Verifier, conventions *convention.Service) *Handler {
	return &Handler{Verifier: verifier, Conventions: conventions}
}

// Verify always answers 200: the outcome tells a broken link apart from a
// forged one.
func (h *Handler) Verify(c *fiber.Ctx) error {
	res := h.Verifier.Verify(c.Query("data"), c.Query("sig"))
	return middleware.JsonResponse(c, fiber.StatusOK, res.Outcome == verification.OutcomeValid, res.Message, res)
}

func (h *Handler) LookupCode(c *fiber.Ctx) error {
	code := c.Locals("signatureCode").(string)

	row, err := h.Conventions.LookupCode(c.UserContext(), code)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Signature code found!", row)
}
