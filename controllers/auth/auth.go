package authController

import (
	"pfmp/middleware"
	"pfmp/models"
	"pfmp/services/convention"
	"pfmp/services/otp"
	authValidator "pfmp/validators/auth"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	Gate        *otp.Gate
	Conventions *convention.Service
}

func NewHandler(gate *otp.Gate, conventions *convention.Service) *Handler {
	return &Handler{Gate: gate, Conventions: conventions}
}

func (h *Handler) SendOTP(c *fiber.Ctx) error {
	reqData := c.Locals("validatedOTPSend").(*authValidator.SendOTPRequest)
	ctx := c.UserContext()
	purpose := models.OTPPurpose(reqData.Purpose)

	var (
		res *otp.SendResult
		err error
	)
	if purpose == models.OTPPurposeSignature {
		// signature codes only go to the party whose turn it is
		step, perr := models.ParseStep(reqData.Step)
		if perr != nil {
			return middleware.ValidationErrorResponse(c, map[string]string{"step": "Invalid step!"})
		}
		res, err = h.Conventions.RequestSignatureCode(ctx, reqData.ConventionID, step, reqData.Email,
			convention.Actor{Email: reqData.Email, IP: c.IP()})
	} else {
		res, err = h.Gate.RequestCode(ctx, otp.SendRequest{Email: reqData.Email, Purpose: purpose, IP: c.IP()})
	}
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	message := "OTP sent successfully!"
	if !res.Delivered {
		message = "OTP generated but the email could not be delivered, contact your school!"
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, message, fiber.Map{
		"success":   true,
		"expiresAt": res.ExpiresAt,
		"delivered": res.Delivered,
	})
}

func (h *Handler) VerifyOTP(c *fiber.Ctx) error {
	reqData := c.Locals("validatedOTPVerify").(*authValidator.VerifyOTPRequest)

	res, err := h.Gate.VerifyCode(c.UserContext(), otp.VerifyRequest{
		Email:        reqData.Email,
		Code:         reqData.Code,
		Purpose:      models.OTPPurpose(reqData.Purpose),
		ConventionID: reqData.ConventionID,
		IP:           c.IP(),
	})
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	data := fiber.Map{"success": true, "purpose": res.Purpose}
	if res.AuditLog != nil {
		data["auditLog"] = res.AuditLog
	}
	if res.Purpose == models.OTPPurposeActivation {
		token, err := middleware.GenerateJWT(reqData.Email, reqData.Email, middleware.RoleStudent)
		if err != nil {
			return middleware.ErrorResponse(c, err)
		}
		data["token"] = token
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "OTP verified successfully!", data)
}
