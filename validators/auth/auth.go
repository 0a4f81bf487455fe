package authValidator

import (
	"strings"

	"pfmp/middleware"
	"pfmp/validators"

	"github.com/gofiber/fiber/v2"
)

type SendOTPRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Purpose      string `json:"purpose" validate:"required,oneof=activation convention-signature generic"`
	ConventionID string `json:"conventionId" validate:"required_if=Purpose convention-signature"`
	Step         string `json:"step" validate:"required_if=Purpose convention-signature,omitempty,oneof=student parent teacher company tutor head"`
}

type VerifyOTPRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Code         string `json:"code" validate:"required,len=4,numeric"`
	Purpose      string `json:"purpose" validate:"omitempty,oneof=activation convention-signature generic"`
	ConventionID string `json:"conventionId"`
}

// SendOTP validator middleware
func SendOTP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(SendOTPRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		reqData.Email = strings.TrimSpace(reqData.Email)

		if errors := validators.Check(reqData); len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedOTPSend", reqData)
		return c.Next()
	}
}

// VerifyOTP validator middleware
func VerifyOTP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(VerifyOTPRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		reqData.Email = strings.TrimSpace(reqData.Email)
		reqData.Code = strings.TrimSpace(reqData.Code)

		if errors := validators.Check(reqData); len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedOTPVerify", reqData)
		return c.Next()
	}
}
