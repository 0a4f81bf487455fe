package convention

import (
	"testing"

	"pfmp/models"

	"github.com/stretchr/testify/assert"
)

const (
	C = StepCompleted
	R = StepCurrent
	P = StepPending
)

func TestStepStatusTable(t *testing.T) {
	// columns follow models.Steps: student, parent, teacher, company, tutor, head
	tests := []struct {
		status models.Status
		minor  []StepState
		adult  []StepState
	}{
		{models.StatusDraft, []StepState{R, P, P, P, P, P}, []StepState{R, C, P, P, P, P}},
		{models.StatusSubmitted, []StepState{C, R, P, P, P, P}, []StepState{C, C, R, P, P, P}},
		{models.StatusSignedParent, []StepState{C, C, R, P, P, P}, []StepState{C, C, P, P, P, P}},
		{models.StatusValidatedTeacher, []StepState{C, C, C, R, P, P}, []StepState{C, C, C, R, P, P}},
		{models.StatusSignedCompany, []StepState{C, C, C, C, R, P}, []StepState{C, C, C, C, R, P}},
		{models.StatusSignedTutor, []StepState{C, C, C, C, C, R}, []StepState{C, C, C, C, C, R}},
		{models.StatusValidatedHead, []StepState{C, C, C, C, C, C}, []StepState{C, C, C, C, C, C}},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			for i, step := range models.Steps {
				assert.Equal(t, tt.minor[i], StepStatus(step, tt.status, true), "minor %s", step)
				assert.Equal(t, tt.adult[i], StepStatus(step, tt.status, false), "adult %s", step)
			}
		})
	}
}

func TestParentStepForMinor(t *testing.T) {
	for _, s := range []models.Status{
		models.StatusDraft, models.StatusSubmitted, models.StatusSignedParent, models.StatusValidatedTeacher,
		models.StatusSignedCompany, models.StatusSignedTutor, models.StatusValidatedHead,
	} {
		got := StepStatus(models.StepParent, s, true)
		if s.AtLeast(models.StatusSubmitted) {
			assert.NotEqual(t, StepPending, got, "status %s", s)
		}
		if s.AtLeast(models.StatusSignedParent) {
			assert.NotEqual(t, StepCurrent, got, "status %s", s)
		}
		assert.Equal(t, StepCompleted, StepStatus(models.StepParent, s, false), "adult status %s", s)
	}
}

func TestUnknownStatusIsPending(t *testing.T) {
	assert.Equal(t, StepPending, StepStatus(models.StepStudent, "ARCHIVED", true))
}

func TestTransitionsWalkTheWorkflow(t *testing.T) {
	walk := func(minor bool) ([]models.Step, []models.Status) {
		var steps []models.Step
		statuses := []models.Status{models.StatusDraft}
		s := models.StatusDraft
		for {
			step, ok := CurrentStep(s, minor)
			if !ok {
				break
			}
			steps = append(steps, step)
			next, ok := NextStatus(s, minor)
			assert.True(t, ok)
			assert.Less(t, s.Rank(), next.Rank())
			assert.Equal(t, StepCurrent, StepStatus(step, s, minor))
			s = next
			statuses = append(statuses, s)
		}
		return steps, statuses
	}

	steps, statuses := walk(true)
	assert.Equal(t, models.Steps, steps)
	assert.Len(t, statuses, 7)

	steps, statuses = walk(false)
	assert.Equal(t, []models.Step{models.StepStudent, models.StepTeacher, models.StepCompany, models.StepTutor, models.StepHead}, steps)
	assert.NotContains(t, statuses, models.StatusSignedParent)
	assert.Equal(t, models.StatusValidatedHead, statuses[len(statuses)-1])
}
