package portfolio

import (
	"time"

	"github.com/totegamma/portfolio/internal/domain"
)

// ChangeChannel is the redis channel change events are published on.
const ChangeChannel = "casestudy.changes"

type CreateRequest struct {
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	Sections      domain.Sections `json:"sections,omitempty"`
	Status        domain.Status   `json:"status,omitempty"`
	Featured      bool            `json:"featured,omitempty"`
	OrderIndex    int             `json:"orderIndex,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	ChangeSummary *string         `json:"changeSummary,omitempty"`
}

// UpdateRequest carries the fields to change. Omitted fields keep their
// stored value.
type UpdateRequest struct {
	Title             *string          `json:"title,omitempty"`
	Description       *string          `json:"description,omitempty"`
	Sections          *domain.Sections `json:"sections,omitempty"`
	Status            *domain.Status   `json:"status,omitempty"`
	Featured          *bool            `json:"featured,omitempty"`
	OrderIndex        *int             `json:"orderIndex,omitempty"`
	Tags              *[]string        `json:"tags,omitempty"`
	ChangeSummary     *string          `json:"changeSummary,omitempty"`
	ExpectedUpdatedAt *time.Time       `json:"expectedUpdatedAt,omitempty"`
}

type RestoreRequest struct {
	ExpectedUpdatedAt *time.Time `json:"expectedUpdatedAt,omitempty"`
}

// Patch converts the request into the domain patch.
func (r UpdateRequest) Patch() domain.CaseStudyPatch {
	return domain.CaseStudyPatch{
		Title:         r.Title,
		Description:   r.Description,
		Sections:      r.Sections,
		Status:        r.Status,
		Featured:      r.Featured,
		OrderIndex:    r.OrderIndex,
		Tags:          r.Tags,
		ChangeSummary: r.ChangeSummary,
	}
}

// Input converts the request into the domain create input.
func (r CreateRequest) Input() domain.CaseStudyInput {
	return domain.CaseStudyInput{
		Title:         r.Title,
		Description:   r.Description,
		Sections:      r.Sections,
		Status:        r.Status,
		Featured:      r.Featured,
		OrderIndex:    r.OrderIndex,
		Tags:          r.Tags,
		ChangeSummary: r.ChangeSummary,
	}
}

type ErrorBody struct {
	Kind      domain.ErrorKind `json:"kind"`
	Message   string           `json:"message"`
	Field     string           `json:"field,omitempty"`
	Retryable bool             `json:"retryable"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type WriteResponse struct {
	CaseStudy  domain.CaseStudy `json:"caseStudy"`
	NewVersion bool             `json:"newVersion"`
	Warnings   []string         `json:"warnings,omitempty"`
}

type RebuildResponse struct {
	Entries int `json:"entries"`
}

// ChangeEvent is published after every confirmed write or delete.
type ChangeEvent struct {
	Type      domain.ChangeType `json:"type"`
	ID        string            `json:"id"`
	Version   int               `json:"version,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt"`
}
