package middleware

import (
	"errors"
	"math"
	"strconv"

	"pfmp/apperr"
	"pfmp/logger"

	"github.com/gofiber/fiber/v2"
)

func JsonResponse(c *fiber.Ctx, statusCode int, status bool, message string, data interface{}) error {
	return c.Status(statusCode).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

func ValidationErrorResponse(c *fiber.Ctx, errors map[string]string) error {
	return JsonResponse(c, fiber.StatusUnprocessableEntity, false, "Validation failed!", errors)
}

var kindStatus = map[apperr.Kind]int{
	apperr.Validation:                   fiber.StatusBadRequest,
	apperr.InvalidCode:                  fiber.StatusBadRequest,
	apperr.CodeExpired:                  fiber.StatusGone,
	apperr.RateLimited:                  fiber.StatusTooManyRequests,
	apperr.StaleState:                   fiber.StatusConflict,
	apperr.DeliveryFailure:              fiber.StatusBadGateway,
	apperr.IntegrityFailure:             fiber.StatusUnprocessableEntity,
	apperr.CorruptedInput:               fiber.StatusBadRequest,
	apperr.NotFound:                     fiber.StatusNotFound,
	apperr.Conflict:                     fiber.StatusConflict,
	apperr.Forbidden:                    fiber.StatusForbidden,
	apperr.DistanceConfirmationRequired: fiber.StatusConflict,
}

// ErrorResponse renders a service error. Unclassified and Internal errors
// are logged with their step and hidden behind a generic message.
func ErrorResponse(c *fiber.Ctx, err error) error {
	var e *apperr.Error
	if !errors.As(err, &e) || e.Kind == apperr.Internal {
		step := "unknown"
		if e != nil && e.Step != "" {
			step = e.Step
		}
		logger.Step(c.UserContext(), step).Error("request failed", "path", c.Path(), "error", err)
		return JsonResponse(c, fiber.StatusInternalServerError, false, "Erreur technique, veuillez réessayer plus tard", fiber.Map{
			"error": apperr.Internal.String(),
		})
	}

	data := fiber.Map{"error": e.Kind.String()}
	if e.Data != nil {
		data["details"] = e.Data
	}
	if e.RetryAfter > 0 {
		secs := int(math.Ceil(e.RetryAfter.Seconds()))
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
		data["retryAfter"] = secs
	}
	return JsonResponse(c, kindStatus[e.Kind], false, e.Message, data)
}
