package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/totegamma/portfolio/internal/utils"
)

// SectionKind names a case-study section variant.
type SectionKind string

const (
	SectionHero       SectionKind = "hero"
	SectionOverview   SectionKind = "overview"
	SectionProblem    SectionKind = "problem"
	SectionProcess    SectionKind = "process"
	SectionShowcase   SectionKind = "showcase"
	SectionReflection SectionKind = "reflection"
	SectionGallery    SectionKind = "gallery"
	SectionResources  SectionKind = "resources"
)

// SectionKinds lists every known variant in canonical page order.
var SectionKinds = []SectionKind{
	SectionHero,
	SectionOverview,
	SectionProblem,
	SectionProcess,
	SectionShowcase,
	SectionReflection,
	SectionGallery,
	SectionResources,
}

func ParseSectionKind(s string) (SectionKind, bool) {
	for _, k := range SectionKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// SectionBody is implemented by every section variant.
type SectionBody interface {
	SectionKind() SectionKind
	// Text returns the searchable text of the section.
	Text() []string
}

type MediaItem struct {
	URL     string `json:"url" validate:"required,http_url"`
	Caption string `json:"caption,omitempty" validate:"max=500"`
	Kind    string `json:"kind,omitempty" validate:"omitempty,oneof=image video embed"`
}

type Link struct {
	Label string `json:"label" validate:"required,max=200"`
	URL   string `json:"url" validate:"required,http_url"`
}

type ProcessStep struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty" validate:"omitempty,http_url"`
}

type HeroSection struct {
	Title    string `json:"title,omitempty" validate:"max=200"`
	Subtitle string `json:"subtitle,omitempty" validate:"max=500"`
	ImageURL string `json:"imageUrl,omitempty" validate:"omitempty,http_url"`
}

type OverviewSection struct {
	Summary  string   `json:"summary,omitempty"`
	Client   string   `json:"client,omitempty" validate:"max=200"`
	Role     string   `json:"role,omitempty" validate:"max=200"`
	Timeline string   `json:"timeline,omitempty" validate:"max=200"`
	Tools    []string `json:"tools,omitempty" validate:"dive,max=100"`
}

type ProblemSection struct {
	Statement string   `json:"statement,omitempty"`
	Goals     []string `json:"goals,omitempty"`
}

type ProcessSection struct {
	Steps []ProcessStep `json:"steps,omitempty" validate:"dive"`
}

type ShowcaseSection struct {
	Items []MediaItem `json:"items,omitempty" validate:"dive"`
}

type ReflectionSection struct {
	Learnings string `json:"learnings,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
}

type GallerySection struct {
	Images []MediaItem `json:"images,omitempty" validate:"dive"`
}

type ResourcesSection struct {
	Links []Link `json:"links,omitempty" validate:"dive"`
}

func (HeroSection) SectionKind() SectionKind       { return SectionHero }
func (OverviewSection) SectionKind() SectionKind   { return SectionOverview }
func (ProblemSection) SectionKind() SectionKind    { return SectionProblem }
func (ProcessSection) SectionKind() SectionKind    { return SectionProcess }
func (ShowcaseSection) SectionKind() SectionKind   { return SectionShowcase }
func (ReflectionSection) SectionKind() SectionKind { return SectionReflection }
func (GallerySection) SectionKind() SectionKind    { return SectionGallery }
func (ResourcesSection) SectionKind() SectionKind  { return SectionResources }

func (s HeroSection) Text() []string { return []string{s.Title, s.Subtitle} }

func (s OverviewSection) Text() []string {
	return append([]string{s.Summary, s.Client, s.Role, s.Timeline}, s.Tools...)
}

func (s ProblemSection) Text() []string { return append([]string{s.Statement}, s.Goals...) }

func (s ProcessSection) Text() []string {
	out := make([]string, 0, len(s.Steps)*2)
	for _, step := range s.Steps {
		out = append(out, step.Title, step.Description)
	}
	return out
}

func (s ShowcaseSection) Text() []string { return mediaCaptions(s.Items) }

func (s ReflectionSection) Text() []string { return []string{s.Learnings, s.Outcome} }

func (s GallerySection) Text() []string { return mediaCaptions(s.Images) }

func (s ResourcesSection) Text() []string {
	out := make([]string, 0, len(s.Links))
	for _, l := range s.Links {
		out = append(out, l.Label)
	}
	return out
}

func mediaCaptions(items []MediaItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Caption)
	}
	return out
}

func newSectionBody(kind SectionKind) SectionBody {
	switch kind {
	case SectionHero:
		return &HeroSection{}
	case SectionOverview:
		return &OverviewSection{}
	case SectionProblem:
		return &ProblemSection{}
	case SectionProcess:
		return &ProcessSection{}
	case SectionShowcase:
		return &ShowcaseSection{}
	case SectionReflection:
		return &ReflectionSection{}
	case SectionGallery:
		return &GallerySection{}
	case SectionResources:
		return &ResourcesSection{}
	}
	return nil
}

// Section is one enable/disable-able block of a case study page.
type Section struct {
	Enabled bool
	Body    SectionBody
}

func (s Section) Kind() SectionKind {
	if s.Body == nil {
		return ""
	}
	return s.Body.SectionKind()
}

// Sections is the ordered section payload of a case study. It encodes as a
// JSON object keyed by section name, in order.
type Sections []Section

// Get returns the section of the given kind.
func (ss Sections) Get(kind SectionKind) (Section, bool) {
	for _, s := range ss {
		if s.Kind() == kind {
			return s, true
		}
	}
	return Section{}, false
}

// Text returns the searchable text of all enabled sections.
func (ss Sections) Text() []string {
	var out []string
	for _, s := range ss {
		if !s.Enabled || s.Body == nil {
			continue
		}
		for _, t := range s.Body.Text() {
			if t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

func (ss Sections) MarshalJSON() ([]byte, error) {
	om := make(utils.OrderedKVMap[json.RawMessage], len(ss))
	for i, s := range ss {
		if s.Body == nil {
			continue
		}
		body, err := json.Marshal(s.Body)
		if err != nil {
			return nil, err
		}
		om[string(s.Kind())] = utils.OrderedKV[json.RawMessage]{
			Value: withEnabled(body, s.Enabled),
			Order: int64(i),
		}
	}
	return om.MarshalJSON()
}

func withEnabled(body []byte, enabled bool) json.RawMessage {
	flag := []byte(fmt.Sprintf(`{"enabled":%t`, enabled))
	body = bytes.TrimSpace(body)
	if bytes.Equal(body, []byte("{}")) {
		return append(flag, '}')
	}
	return append(append(flag, ','), body[1:]...)
}

func (ss *Sections) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*ss = nil
		return nil
	}

	pairs, err := utils.DecodeOrderedObject(data)
	if err != nil {
		return ValidationError{Field: "sections", Message: "must be an object keyed by section name"}
	}

	out := make(Sections, 0, len(pairs))
	seen := make(map[SectionKind]bool, len(pairs))
	for _, p := range pairs {
		field := "sections." + p.Key
		kind, ok := ParseSectionKind(p.Key)
		if !ok {
			return ValidationError{Field: field, Message: "unknown section"}
		}
		if seen[kind] {
			return ValidationError{Field: field, Message: "duplicate section"}
		}
		seen[kind] = true

		trimmed := bytes.TrimSpace(p.Value)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return ValidationError{Field: field, Message: "must be an object"}
		}

		var flag struct {
			Enabled *bool `json:"enabled"`
		}
		if err := json.Unmarshal(trimmed, &flag); err != nil {
			return ValidationError{Field: field + ".enabled", Message: "must be a boolean"}
		}

		body := newSectionBody(kind)
		if err := json.Unmarshal(trimmed, body); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) && typeErr.Field != "" {
				return ValidationError{Field: field + "." + typeErr.Field, Message: "has the wrong type"}
			}
			return ValidationError{Field: field, Message: "is malformed"}
		}

		enabled := true
		if flag.Enabled != nil {
			enabled = *flag.Enabled
		}
		out = append(out, Section{Enabled: enabled, Body: derefBody(body)})
	}

	*ss = out
	return nil
}

// derefBody stores variants by value so equal sections compare equal.
func derefBody(b SectionBody) SectionBody {
	switch v := b.(type) {
	case *HeroSection:
		return *v
	case *OverviewSection:
		return *v
	case *ProblemSection:
		return *v
	case *ProcessSection:
		return *v
	case *ShowcaseSection:
		return *v
	case *ReflectionSection:
		return *v
	case *GallerySection:
		return *v
	case *ResourcesSection:
		return *v
	}
	return b
}
