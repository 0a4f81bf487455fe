package convention

import (
	"context"
	"math"
	"time"

	"pfmp/apperr"
	"pfmp/models"
	"pfmp/services/audit"
	"pfmp/signature"
	"pfmp/utils"

	"github.com/jinzhu/now"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// Payload projects c onto the fields embedded in its verification link.
func Payload(c *models.Convention) signature.Payload {
	return signature.Payload{
		Type:       signature.TypeConvention,
		ID:         c.ID,
		Student:    c.StudentName,
		Enterprise: c.CompanyName,
		Dates: signature.Dates{
			Start: c.StartDate.UTC().Format(dateLayout),
			End:   c.EndDate.UTC().Format(dateLayout),
		},
	}
}

// CalendarDays counts the days from start to end, both included.
func CalendarDays(start, end time.Time) int {
	from := now.With(start.UTC()).BeginningOfDay()
	to := now.With(end.UTC()).BeginningOfDay()
	return int(math.Round(to.Sub(from).Hours()/24)) + 1
}

// IssueVerificationLink seals the convention payload into a public link.
func (s *Service) IssueVerificationLink(ctx context.Context, id string, actor Actor) (string, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if c.Status == models.StatusDraft {
		return "", apperr.New(apperr.Conflict, "La convention n'a pas encore été soumise")
	}

	link, err := s.signer.BuildLink(s.opts.PublicBaseURL, Payload(c))
	if err != nil {
		return "", apperr.Wrap(err, "convention.link", "could not sign payload")
	}
	if _, err := s.audit.Append(ctx, nil, audit.Entry{
		ConventionID: id, Action: models.AuditLinkIssued, ActorEmail: actor.Email, IP: actor.IP, Details: "Lien de vérification émis",
	}); err != nil {
		return "", err
	}
	return link, nil
}

type Attestation struct {
	Code      string    `json:"code"`
	Date      time.Time `json:"date"`
	TotalDays int       `json:"totalDays"`
	Link      string    `json:"link"`
}

// IssueAttestation records the completion attestation of a fully signed
// convention. Issuing again returns the recorded attestation.
func (s *Service) IssueAttestation(ctx context.Context, id string, totalDays *int, actor Actor) (*Attestation, error) {
	var out Attestation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.load(tx, id, true)
		if err != nil {
			return err
		}
		if c.Status != models.StatusValidatedHead {
			return apperr.New(apperr.Conflict, "L'attestation exige une convention entièrement signée")
		}

		if c.AttestationCode != "" && c.AttestationDate != nil && c.AttestationTotalDays != nil {
			out = Attestation{Code: c.AttestationCode, Date: *c.AttestationDate, TotalDays: *c.AttestationTotalDays}
		} else {
			days := CalendarDays(c.StartDate, c.EndDate)
			if totalDays != nil {
				if *totalDays <= 0 || *totalDays > days {
					return apperr.New(apperr.Validation, "Nombre de jours incohérent avec les dates de la convention")
				}
				days = *totalDays
			}
			at := s.now().UTC()
			out = Attestation{Code: utils.GenerateSignatureCode(), Date: at, TotalDays: days}

			if err := tx.Model(&models.Convention{}).Where("id = ?", id).UpdateColumns(map[string]any{
				"attestation_code":       out.Code,
				"attestation_date":       at,
				"attestation_total_days": days,
			}).Error; err != nil {
				return apperr.Wrap(err, "convention.attestation", "could not record attestation")
			}
			if err := tx.Create(&models.SignatureCode{Code: out.Code, ConventionID: id, Step: models.StepAttestation, At: at}).Error; err != nil {
				return apperr.Wrap(err, "convention.index_code", "could not index attestation code")
			}
			if _, err := s.audit.Append(ctx, tx, audit.Entry{
				ConventionID: id, Action: models.AuditAttestation, ActorEmail: actor.Email, IP: actor.IP, Details: "Attestation de stage émise",
			}); err != nil {
				return err
			}
		}

		p := Payload(c)
		p.Type = signature.TypeAttestation
		days := out.TotalDays
		p.TotalDays = &days
		link, err := s.signer.BuildLink(s.opts.PublicBaseURL, p)
		if err != nil {
			return apperr.Wrap(err, "convention.attestation_link", "could not sign payload")
		}
		out.Link = link
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
