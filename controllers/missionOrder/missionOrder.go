package missionOrderController

import (
	"pfmp/middleware"
	"pfmp/models"
	"pfmp/services/missionOrder"
	missionOrderValidator "pfmp/validators/missionOrder"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	MissionOrders *missionOrder.Service
}

func NewHandler(missionOrders *missionOrder.Service) *Handler {
	return &Handler{MissionOrders: missionOrders}
}

func (h *Handler) Create(c *fiber.Ctx) error {
	reqData := c.Locals("validatedMissionOrder").(*missionOrderValidator.CreateMissionOrderRequest)

	order, created, err := h.MissionOrders.Create(c.UserContext(), missionOrder.CreateInput{
		ConventionID:   c.Params("id"),
		TeacherID:      reqData.TeacherID,
		StudentID:      reqData.StudentID,
		SchoolAddress:  reqData.SchoolAddress,
		CompanyAddress: reqData.CompanyAddress,
		SchoolCoords:   reqData.SchoolCoords,
		CompanyCoords:  reqData.CompanyCoords,
	})
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	if !created {
		return middleware.JsonResponse(c, fiber.StatusOK, true, "Mission order already exists!", order)
	}
	return middleware.JsonResponse(c, fiber.StatusCreated, true, "Mission order created successfully!", order)
}

func (h *Handler) List(c *fiber.Ctx) error {
	reqData := c.Locals("validatedMissionOrderList").(*missionOrderValidator.ListQuery)

	orders, err := h.MissionOrders.List(c.UserContext(), missionOrder.ListFilter{
		Status:    models.MissionOrderStatus(reqData.Status),
		TeacherID: reqData.TeacherID,
	})
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Mission orders fetched successfully!", orders)
}

func (h *Handler) Approve(c *fiber.Ctx) error {
	reqData := c.Locals("validatedApproval").(*missionOrderValidator.ApproveRequest)

	res, err := h.MissionOrders.Approve(c.UserContext(), missionOrder.ApproveInput{
		IDs:           reqData.IDs,
		Decision:      missionOrder.Decision(reqData.Decision),
		SignatureImg:  reqData.SignatureImg,
		ApproverEmail: middleware.Email(c),
	})
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	if res.Noop {
		return middleware.JsonResponse(c, fiber.StatusOK, true, "No mission order signed: every selected trip exceeds the distance limit.", res)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Mission orders signed successfully!", res)
}
