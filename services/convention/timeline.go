package convention

import (
	"time"

	"pfmp/models"
)

// StepState is the displayed progress of one signatory.
type StepState string

const (
	StepCompleted StepState = "completed"
	StepCurrent   StepState = "current"
	StepPending   StepState = "pending"
)

// stepGates gives, for each step, the status at which it becomes current
// and the first status at which it counts as completed.
var stepGates = map[models.Step]struct{ current, completedFrom models.Status }{
	models.StepStudent: {models.StatusDraft, models.StatusSubmitted},
	models.StepParent:  {models.StatusSubmitted, models.StatusSignedParent},
	models.StepTeacher: {models.StatusSignedParent, models.StatusValidatedTeacher},
	models.StepCompany: {models.StatusValidatedTeacher, models.StatusSignedCompany},
	models.StepTutor:   {models.StatusSignedCompany, models.StatusSignedTutor},
	models.StepHead:    {models.StatusSignedTutor, models.StatusValidatedHead},
}

// StepStatus derives the displayed state of step from the convention status.
// Adults never sign the parent step, it is always shown as completed, and
// their teacher step is current from SUBMITTED.
func StepStatus(step models.Step, status models.Status, minor bool) StepState {
	if step == models.StepParent && !minor {
		return StepCompleted
	}
	gate, ok := stepGates[step]
	if !ok || !status.Valid() {
		return StepPending
	}

	current := gate.current
	if step == models.StepTeacher && !minor {
		current = models.StatusSubmitted
	}

	switch {
	case status.AtLeast(gate.completedFrom):
		return StepCompleted
	case status == current:
		return StepCurrent
	}
	return StepPending
}

// CurrentStep returns the step expected to sign next, false once the
// workflow is over.
func CurrentStep(status models.Status, minor bool) (models.Step, bool) {
	switch status {
	case models.StatusDraft:
		return models.StepStudent, true
	case models.StatusSubmitted:
		if minor {
			return models.StepParent, true
		}
		return models.StepTeacher, true
	case models.StatusSignedParent:
		return models.StepTeacher, true
	case models.StatusValidatedTeacher:
		return models.StepCompany, true
	case models.StatusSignedCompany:
		return models.StepTutor, true
	case models.StatusSignedTutor:
		return models.StepHead, true
	}
	return "", false
}

// NextStatus is the status reached once the current step has signed.
func NextStatus(status models.Status, minor bool) (models.Status, bool) {
	switch status {
	case models.StatusDraft:
		return models.StatusSubmitted, true
	case models.StatusSubmitted:
		if minor {
			return models.StatusSignedParent, true
		}
		return models.StatusValidatedTeacher, true
	case models.StatusSignedParent:
		return models.StatusValidatedTeacher, true
	case models.StatusValidatedTeacher:
		return models.StatusSignedCompany, true
	case models.StatusSignedCompany:
		return models.StatusSignedTutor, true
	case models.StatusSignedTutor:
		return models.StatusValidatedHead, true
	}
	return "", false
}

type TimelineEntry struct {
	Step       models.Step `json:"step"`
	State      StepState   `json:"state"`
	SignedAt   *time.Time  `json:"signedAt,omitempty"`
	Code       string      `json:"code,omitempty"`
	EmailValid bool        `json:"emailValid"`
}

// Timeline lists every step in signing order. It is recomputed on each read.
func Timeline(c *models.Convention) []TimelineEntry {
	sigs := c.SignatureMap()
	invalid := c.InvalidEmailSet()

	out := make([]TimelineEntry, 0, len(models.Steps))
	for _, step := range models.Steps {
		e := TimelineEntry{
			Step:       step,
			State:      StepStatus(step, c.Status, c.EstMineur),
			EmailValid: !invalid[step],
		}
		if sig, ok := sigs[step]; ok {
			at := sig.At
			e.SignedAt = &at
			e.Code = sig.Code
		}
		out = append(out, e)
	}
	return out
}
