package missionOrderRoutes

import (
	missionOrderController "pfmp/controllers/missionOrder"
	"pfmp/middleware"
	missionOrderValidator "pfmp/validators/missionOrder"

	"github.com/gofiber/fiber/v2"
)

func SetupMissionOrderRoutes(app *fiber.App, h *missionOrderController.Handler) {
	app.Post("/conventions/:id/mission-orders", middleware.JWTMiddleware, middleware.RequireRole(middleware.RoleTeacher, middleware.RoleHead, middleware.RoleAdmin), missionOrderValidator.CreateMissionOrder(), h.Create)

	missionOrderGroup := app.Group("/mission-orders", middleware.JWTMiddleware)

	missionOrderGroup.Get("/", missionOrderValidator.List(), h.List)
	missionOrderGroup.Post("/approve", middleware.RequireRole(middleware.RoleHead, middleware.RoleAdmin), missionOrderValidator.Approve(), h.Approve)
}
