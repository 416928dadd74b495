package domain

import "time"

// VersionSnapshot is an immutable copy of a case study's content. Only
// IsCurrent ever changes after insertion.
type VersionSnapshot struct {
	ID            string    `json:"id"`
	CaseStudyID   string    `json:"caseStudyId"`
	VersionNumber int       `json:"versionNumber"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Sections      Sections  `json:"sections"`
	ContentHash   string    `json:"contentHash"`
	ChangeSummary *string   `json:"changeSummary,omitempty"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
	IsCurrent     bool      `json:"isCurrent"`
}

func (v VersionSnapshot) Content() Content {
	return Content{Title: v.Title, Description: v.Description, Sections: v.Sections}
}
