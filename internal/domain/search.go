package domain

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

// SearchIndexEntry is the derived full-text projection of one content item.
type SearchIndexEntry struct {
	ContentType  string    `json:"contentType"`
	ContentID    string    `json:"contentId"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	Tags         []string  `json:"tags"`
	SearchVector string    `json:"-"`
	IndexedAt    time.Time `json:"indexedAt"`
}

// SearchHit is one search result, already resolved to its source record.
type SearchHit struct {
	CaseStudy CaseStudy `json:"caseStudy"`
	Rank      float64   `json:"rank"`
}

// NewCaseStudySearchEntry computes the projection of a case study.
func NewCaseStudySearchEntry(cs CaseStudy, now time.Time) SearchIndexEntry {
	parts := make([]string, 0, 8)
	parts = append(parts, cs.Title)
	if cs.Description != "" {
		parts = append(parts, cs.Description)
	}
	parts = append(parts, cs.Sections.Text()...)
	body := strings.Join(parts, "\n")

	tags := append([]string(nil), cs.Tags...)
	return SearchIndexEntry{
		ContentType:  ContentTypeCaseStudy,
		ContentID:    cs.ID,
		Title:        cs.Title,
		Body:         body,
		Tags:         tags,
		SearchVector: strings.Join(Lexemes(body+" "+strings.Join(tags, " ")), " "),
		IndexedAt:    now,
	}
}

// Lexemes lower-cases and splits text into sorted unique terms.
func Lexemes(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
