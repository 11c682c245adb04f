package intake

import "github.com/google/uuid"

type IntakeRequest struct {
	Channel   string   `json:"channel" validate:"omitempty,oneof=form chat lead_search manual"`
	Email     string   `json:"email" validate:"omitempty,email,max=320"`
	FirstName string   `json:"firstName" validate:"max=100"`
	LastName  string   `json:"lastName" validate:"max=100"`
	Company   string   `json:"company" validate:"max=200"`
	Phone     string   `json:"phone" validate:"max=40"`
	JobTitle  string   `json:"jobTitle" validate:"max=200"`
	Message   string   `json:"message" validate:"max=5000"`
	Interests []string `json:"interests" validate:"max=20,dive,max=64"`
}

type IntakeResponse struct {
	ContactID        uuid.UUID   `json:"contactId"`
	Created          bool        `json:"created"`
	MatchedBy        string      `json:"matchedBy"`
	NeedsMergeReview bool        `json:"needsMergeReview"`
	CandidateIDs     []uuid.UUID `json:"candidateIds"`
}
