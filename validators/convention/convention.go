package conventionValidator

import (
	"strings"

	"pfmp/middleware"
	"pfmp/models"
	"pfmp/validators"

	"github.com/gofiber/fiber/v2"
)

type Party struct {
	ID    string `json:"id"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type OptionalParty struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"omitempty,email"`
}

type CreateConventionRequest struct {
	Student        Party         `json:"student"`
	Parent         OptionalParty `json:"parent"`
	Teacher        Party         `json:"teacher"`
	CompanyName    string        `json:"companyName" validate:"required"`
	CompanyRep     Party         `json:"companyRep"`
	Tutor          Party         `json:"tutor"`
	Head           Party         `json:"head"`
	SchoolAddress  string        `json:"schoolAddress" validate:"required"`
	CompanyAddress string        `json:"companyAddress" validate:"required"`
	StartDate      string        `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate        string        `json:"endDate" validate:"required,datetime=2006-01-02"`
	EstMineur      bool          `json:"est_mineur"`
}

type SetMinorRequest struct {
	EstMineur *bool `json:"est_mineur" validate:"required"`
}

type SignRequest struct {
	Step  string `json:"step" validate:"required,oneof=student parent teacher company tutor head"`
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=4,numeric"`
}

type CorrectEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type AttestationRequest struct {
	TotalDays *int `json:"totalDays" validate:"omitempty,gt=0"`
}

// body parses and validates the JSON body into T and stores it under key.
func body[T any](key string, prepare func(*T)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(T)
		if len(c.Body()) > 0 {
			if err := c.BodyParser(reqData); err != nil {
				return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
			}
		}
		if prepare != nil {
			prepare(reqData)
		}
		if errors := validators.Check(reqData); len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}
		c.Locals(key, reqData)
		return c.Next()
	}
}

func CreateConvention() fiber.Handler {
	return body("validatedConvention", func(r *CreateConventionRequest) {
		r.StartDate = strings.TrimSpace(r.StartDate)
		r.EndDate = strings.TrimSpace(r.EndDate)
	})
}

func SetMinor() fiber.Handler {
	return body[SetMinorRequest]("validatedMinor", nil)
}

func Sign() fiber.Handler {
	return body("validatedSign", func(r *SignRequest) {
		r.Email = strings.TrimSpace(r.Email)
		r.Code = strings.TrimSpace(r.Code)
	})
}

func Attestation() fiber.Handler {
	return body[AttestationRequest]("validatedAttestation", nil)
}

// CorrectEmail also checks the :step route parameter.
func CorrectEmail() fiber.Handler {
	validateBody := body("validatedEmail", func(r *CorrectEmailRequest) {
		r.Email = strings.TrimSpace(r.Email)
	})
	return func(c *fiber.Ctx) error {
		step, err := models.ParseStep(c.Params("step"))
		if err != nil {
			return middleware.ValidationErrorResponse(c, map[string]string{"step": "Invalid step!"})
		}
		c.Locals("step", step)
		return validateBody(c)
	}
}

// SignatureCode checks the shape of a manually entered code.
func SignatureCode() fiber.Handler {
	return func(c *fiber.Ctx) error {
		code := strings.ToUpper(strings.TrimSpace(c.Params("code")))
		if len(code) != 13 {
			return middleware.ValidationErrorResponse(c, map[string]string{"code": "Expected 8 letters followed by 5 digits!"})
		}
		c.Locals("signatureCode", code)
		return c.Next()
	}
}
