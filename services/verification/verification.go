// Package verification checks the signed links printed on conventions and
// attestations. It never reads the live convention record.
package verification

import (
	"pfmp/apperr"
	"pfmp/signature"
)

type Outcome string

const (
	OutcomeValid        Outcome = "valid"
	OutcomeNotCertified Outcome = "not_certified"
	OutcomeCorrupted    Outcome = "corrupted"
)

// Summary is rebuilt only from the signed payload.
type Summary struct {
	Document   string `json:"document"`
	ID         string `json:"id"`
	Student    string `json:"student"`
	Enterprise string `json:"enterprise"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
	TotalDays  *int   `json:"totalDays,omitempty"`
}

type Result struct {
	Outcome Outcome  `json:"outcome"`
	Message string   `json:"message"`
	Summary *Summary `json:"summary,omitempty"`
}

// Err classifies a failed result, nil when the document is certified.
func (r *Result) Err() error {
	switch r.Outcome {
	case OutcomeCorrupted:
		return apperr.New(apperr.CorruptedInput, r.Message)
	case OutcomeNotCertified:
		return apperr.New(apperr.IntegrityFailure, r.Message)
	}
	return nil
}

type Verifier struct {
	signer *signature.Signer
}

func NewVerifier(signer *signature.Signer) *Verifier {
	return &Verifier{signer: signer}
}

// Verify decodes data and checks sig against it. A link that cannot be
// decoded is reported as corrupted, a readable one that does not match its
// signature as not certified.
func (v *Verifier) Verify(data, sig string) *Result {
	if data == "" || sig == "" {
		return &Result{Outcome: OutcomeCorrupted, Message: "Lien incomplet ou illisible"}
	}
	p, err := signature.Decode(data)
	if err != nil {
		return &Result{Outcome: OutcomeCorrupted, Message: "Lien incomplet ou illisible"}
	}
	if !v.signer.Verify(p, sig) {
		return &Result{Outcome: OutcomeNotCertified, Message: "Document non certifié : le contenu ne correspond pas à la signature"}
	}

	s := &Summary{
		Document:   "convention",
		ID:         p.ID,
		Student:    p.Student,
		Enterprise: p.Enterprise,
		StartDate:  p.Dates.Start,
		EndDate:    p.Dates.End,
	}
	if p.Type == signature.TypeAttestation {
		s.Document = "attestation"
		s.TotalDays = p.TotalDays
	}
	return &Result{Outcome: OutcomeValid, Message: "Document authentique", Summary: s}
}
