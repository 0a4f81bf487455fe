package conventionController

import (
	"time"

	"pfmp/middleware"
	"pfmp/models"
	"pfmp/services/convention"
	conventionValidator "pfmp/validators/convention"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	Conventions *convention.Service
}

func NewHandler(conventions *convention.Service) *Handler {
	return &Handler{Conventions: conventions}
}

func actor(c *fiber.Ctx) convention.Actor {
	return convention.Actor{Email: middleware.Email(c), IP: c.IP()}
}

func party(p conventionValidator.Party) convention.Party {
	return convention.Party{ID: p.ID, Name: p.Name, Email: p.Email}
}

func (h *Handler) Create(c *fiber.Ctx) error {
	reqData := c.Locals("validatedConvention").(*conventionValidator.CreateConventionRequest)

	// layout already checked by the validator
	start, _ := time.Parse("2006-01-02", reqData.StartDate)
	end, _ := time.Parse("2006-01-02", reqData.EndDate)

	conv, err := h.Conventions.Create(c.UserContext(), convention.CreateInput{
		Student:        party(reqData.Student),
		Parent:         convention.Party{Name: reqData.Parent.Name, Email: reqData.Parent.Email},
		Teacher:        party(reqData.Teacher),
		CompanyName:    reqData.CompanyName,
		CompanyRep:     party(reqData.CompanyRep),
		Tutor:          party(reqData.Tutor),
		Head:           party(reqData.Head),
		SchoolAddress:  reqData.SchoolAddress,
		CompanyAddress: reqData.CompanyAddress,
		StartDate:      start,
		EndDate:        end,
		EstMineur:      reqData.EstMineur,
	})
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusCreated, true, "Convention created successfully!", conv)
}

func (h *Handler) Get(c *fiber.Ctx) error {
	conv, err := h.Conventions.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Convention fetched successfully!", conv)
}

func (h *Handler) Timeline(c *fiber.Ctx) error {
	timeline, err := h.Conventions.Timeline(c.UserContext(), c.Params("id"))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Timeline fetched successfully!", timeline)
}

func (h *Handler) AuditLogs(c *fiber.Ctx) error {
	logs, err := h.Conventions.AuditLogs(c.UserContext(), c.Params("id"))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Audit log fetched successfully!", logs)
}

func (h *Handler) SetMinor(c *fiber.Ctx) error {
	reqData := c.Locals("validatedMinor").(*conventionValidator.SetMinorRequest)

	conv, err := h.Conventions.SetMinor(c.UserContext(), c.Params("id"), *reqData.EstMineur, actor(c))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Minor flag updated successfully!", conv)
}

// Sign is public: the one-time code authenticates the signatory.
func (h *Handler) Sign(c *fiber.Ctx) error {
	reqData := c.Locals("validatedSign").(*conventionValidator.SignRequest)

	res, err := h.Conventions.Sign(c.UserContext(), convention.SignInput{
		ConventionID: c.Params("id"),
		Step:         models.Step(reqData.Step),
		Email:        reqData.Email,
		Code:         reqData.Code,
		IP:           c.IP(),
	})
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Step signed successfully!", res)
}

func (h *Handler) CorrectEmail(c *fiber.Ctx) error {
	reqData := c.Locals("validatedEmail").(*conventionValidator.CorrectEmailRequest)
	step := c.Locals("step").(models.Step)

	conv, err := h.Conventions.CorrectEmail(c.UserContext(), c.Params("id"), step, reqData.Email, actor(c))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Email corrected successfully!", conv)
}

func (h *Handler) Remind(c *fiber.Ctx) error {
	entry, err := h.Conventions.SendReminder(c.UserContext(), c.Params("id"), actor(c))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Reminder sent successfully!", entry)
}

func (h *Handler) VerificationLink(c *fiber.Ctx) error {
	link, err := h.Conventions.IssueVerificationLink(c.UserContext(), c.Params("id"), actor(c))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Verification link issued successfully!", fiber.Map{"link": link})
}

func (h *Handler) Attestation(c *fiber.Ctx) error {
	reqData := c.Locals("validatedAttestation").(*conventionValidator.AttestationRequest)

	att, err := h.Conventions.IssueAttestation(c.UserContext(), c.Params("id"), reqData.TotalDays, actor(c))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Attestation issued successfully!", att)
}
