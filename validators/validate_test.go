package validators

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type party struct {
	Email string `json:"email" validate:"required,email"`
}

type sample struct {
	Code    string `json:"code" validate:"required,len=4,numeric"`
	Purpose string `json:"purpose" validate:"required,oneof=activation generic"`
	Student party  `json:"student"`
	IDs     []uint `json:"ids" validate:"required,min=1,dive,gt=0"`
}

func TestCheck(t *testing.T) {
	ok := sample{Code: "1234", Purpose: "generic", Student: party{Email: "a@b.com"}, IDs: []uint{1}}
	assert.Nil(t, Check(&ok))

	bad := sample{Code: "12a", Purpose: "payment", Student: party{Email: "nope"}, IDs: []uint{0}}
	errs := Check(&bad)
	assert.Equal(t, map[string]string{
		"code":          "Must be exactly 4 characters long!",
		"purpose":       "Must be one of: activation, generic!",
		"student.email": "Invalid email!",
		"ids[0]":        "Must be greater than 0!",
	}, errs)
}
