package missionOrderValidator

import (
	"strings"

	"pfmp/middleware"
	"pfmp/utils"
	"pfmp/validators"

	"github.com/gofiber/fiber/v2"
)

type CreateMissionOrderRequest struct {
	TeacherID      string             `json:"teacherId" validate:"required"`
	StudentID      string             `json:"studentId"`
	SchoolAddress  string             `json:"schoolAddress"`
	CompanyAddress string             `json:"companyAddress"`
	SchoolCoords   *utils.Coordinates `json:"schoolCoords"`
	CompanyCoords  *utils.Coordinates `json:"companyCoords"`
}

type ApproveRequest struct {
	IDs          []uint `json:"ids" validate:"required,min=1,dive,gt=0"`
	Decision     string `json:"decision" validate:"omitempty,oneof=exclude_risky force_all"`
	SignatureImg string `json:"signatureImg" validate:"required"`
}

type ListQuery struct {
	Status    string `query:"status" validate:"omitempty,oneof=PENDING SIGNED REJECTED"`
	TeacherID string `query:"teacherId"`
}

func CreateMissionOrder() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(CreateMissionOrderRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		reqData.TeacherID = strings.TrimSpace(reqData.TeacherID)

		if errors := validators.Check(reqData); len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedMissionOrder", reqData)
		return c.Next()
	}
}

func Approve() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(ApproveRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		if errors := validators.Check(reqData); len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedApproval", reqData)
		return c.Next()
	}
}

func List() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(ListQuery)
		if err := c.QueryParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid query parameters!", nil)
		}

		if errors := validators.Check(reqData); len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedMissionOrderList", reqData)
		return c.Next()
	}
}
