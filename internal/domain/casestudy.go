package domain

import (
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// Status is the publication status of a case study. Any status may move to
// any other status.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusDraft, StatusPublished, StatusArchived:
		return Status(s), true
	}
	return "", false
}

// CaseStudy is the primary content entity.
type CaseStudy struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"ownerId"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Sections       Sections  `json:"sections"`
	Status         Status    `json:"status"`
	Featured       bool      `json:"featured"`
	OrderIndex     int       `json:"orderIndex"`
	Tags           []string  `json:"tags"`
	ViewCount      int64     `json:"viewCount"`
	CurrentVersion int       `json:"currentVersion"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Content returns the versioned part of the record.
func (c CaseStudy) Content() Content {
	return Content{Title: c.Title, Description: c.Description, Sections: c.Sections}
}

// Content is the set of fields whose change produces a new version snapshot.
type Content struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Sections    Sections `json:"sections"`
}

// Hash is a stable digest of the content used to detect material changes.
func (c Content) Hash() string {
	b, err := json.Marshal(c)
	if err != nil {
		// unreachable: every section variant is JSON encodable
		panic(err)
	}
	sum := xxh3.Hash128(b).Bytes()
	return hex.EncodeToString(sum[:])
}

// CaseStudyInput carries the fields of a create request.
type CaseStudyInput struct {
	Title       string   `json:"title" validate:"required,max=300"`
	Description string   `json:"description,omitempty" validate:"max=5000"`
	Sections    Sections `json:"sections,omitempty"`
	Status      Status   `json:"status,omitempty" validate:"omitempty,oneof=draft published archived"`
	Featured    bool     `json:"featured,omitempty"`
	OrderIndex  int      `json:"orderIndex,omitempty" validate:"min=0"`
	Tags        []string `json:"tags,omitempty" validate:"max=50,dive,max=64"`

	ChangeSummary *string `json:"changeSummary,omitempty" validate:"omitempty,max=500"`
}

// CaseStudyPatch carries the fields of an update request; nil means unchanged.
type CaseStudyPatch struct {
	Title         *string   `json:"title,omitempty" validate:"omitempty,max=300"`
	Description   *string   `json:"description,omitempty" validate:"omitempty,max=5000"`
	Sections      *Sections `json:"sections,omitempty"`
	Status        *Status   `json:"status,omitempty" validate:"omitempty,oneof=draft published archived"`
	Featured      *bool     `json:"featured,omitempty"`
	OrderIndex    *int      `json:"orderIndex,omitempty" validate:"omitempty,min=0"`
	Tags          *[]string `json:"tags,omitempty" validate:"omitempty,max=50,dive,max=64"`
	ChangeSummary *string   `json:"changeSummary,omitempty" validate:"omitempty,max=500"`
}

// Apply merges the patch into c.
func (p CaseStudyPatch) Apply(c CaseStudy) CaseStudy {
	if p.Title != nil {
		c.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Sections != nil {
		c.Sections = *p.Sections
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Featured != nil {
		c.Featured = *p.Featured
	}
	if p.OrderIndex != nil {
		c.OrderIndex = *p.OrderIndex
	}
	if p.Tags != nil {
		c.Tags = NormalizeTags(*p.Tags)
	}
	return c
}

// NormalizeTags trims, de-duplicates and sorts a tag set.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ListFilter narrows a case study listing.
type ListFilter struct {
	Status   *Status
	Featured *bool
	Tag      string
	Limit    int
}

// WriteResult is returned by every confirmed create or update.
type WriteResult struct {
	CaseStudy  CaseStudy `json:"caseStudy"`
	NewVersion bool      `json:"newVersion"`
	Warnings   []string  `json:"warnings,omitempty"`
}

const WarningSearchDegraded = "search index refresh failed; search results may be stale"
