package merge

import "github.com/google/uuid"

type MergeRequest struct {
	TargetContactID  uuid.UUID   `json:"targetContactId" validate:"required"`
	SourceContactIDs []uuid.UUID `json:"sourceContactIds" validate:"required,min=1,max=50,dive,required"`
}

type MergeResponse struct {
	Success         bool      `json:"success"`
	MergedCount     int       `json:"mergedCount"`
	TargetContactID uuid.UUID `json:"targetContactId"`
}

type CleanupRequest struct {
	TargetContactID  uuid.UUID   `json:"targetContactId" validate:"required"`
	SourceContactIDs []uuid.UUID `json:"sourceContactIds" validate:"required,min=1,max=50,dive,required"`
}

type CleanupResponse struct {
	Success         bool        `json:"success"`
	TargetContactID uuid.UUID   `json:"targetContactId"`
	Deleted         int64       `json:"deleted"`
	Skipped         []uuid.UUID `json:"skipped"`
}

type DuplicatesResponse struct {
	Duplicates []DuplicateGroup `json:"duplicates"`
}
