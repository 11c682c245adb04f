package sequences

import "github.com/google/uuid"

type StepRequest struct {
	DelayDays int    `json:"delayDays" validate:"min=0,max=365"`
	Subject   string `json:"subject" validate:"required,max=200"`
	Body      string `json:"body" validate:"max=20000"`
}

type CreateSequenceRequest struct {
	Name  string        `json:"name" validate:"required,max=200"`
	Kind  Kind          `json:"kind" validate:"required,oneof=drip breakup"`
	Steps []StepRequest `json:"steps" validate:"required,min=1,max=50,dive"`
}

type EnrollRequest struct {
	ContactID uuid.UUID `json:"contactId" validate:"required"`
}
