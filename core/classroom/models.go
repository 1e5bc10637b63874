package classroom

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/darasahq/darasa/core"
)

type Class struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject,omitempty"`
	JoinCode  string    `json:"join_code"`
	TeacherID string    `json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// NewClass contains information needed to create a new Class.
type NewClass struct {
	Name    string `json:"name" validate:"required"`
	Subject string `json:"subject"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Subject = core.CleanString(nc.Subject)
	return validate.Struct(nc)
}

// JoinClass carries the code a student uses to join a Class.
// Join codes are stored uppercase; input is folded before lookup.
type JoinClass struct {
	Code string `json:"code" validate:"required"`
}

func (jc *JoinClass) Validate(validate *validator.Validate) error {
	jc.Code = strings.ToUpper(core.CleanString(jc.Code))
	return validate.Struct(jc)
}
