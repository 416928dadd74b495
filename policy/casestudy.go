package policy

import (
	_ "embed"
	"encoding/json"

	"github.com/totegamma/portfolio/internal/domain"
)

// Actions evaluated against the case study policy.
const (
	ActionRead          = "casestudy.read"
	ActionWrite         = "casestudy.write"
	ActionCreate        = "casestudy.create"
	ActionRebuildSearch = "search.rebuild"
)

//go:embed casestudy.json
var caseStudyPolicyJSON []byte

var caseStudyPolicy = mustParse(caseStudyPolicyJSON)

func mustParse(raw []byte) PolicyDocument {
	var doc PolicyDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		panic("policy: invalid embedded document: " + err.Error())
	}
	if _, ok := doc.Versions[CurrentVersion]; !ok {
		panic("policy: embedded document lacks version " + CurrentVersion)
	}
	return doc
}

// CaseStudyPolicy returns the embedded rule table.
func CaseStudyPolicy() PolicyDocument {
	return caseStudyPolicy
}

// NewRequestContext builds the evaluation context for a requester acting on
// target. target may be nil for actions that are not row-scoped.
func NewRequestContext(requester domain.Requester, target *domain.CaseStudy) RequestContext {
	ctx := RequestContext{
		Requester: map[string]any{
			"id":   requester.ID,
			"role": string(requester.Role),
		},
		This:   map[string]any{},
		Params: map[string]any{},
	}
	if target != nil {
		ctx.This["id"] = target.ID
		ctx.This["owner"] = target.OwnerID
		ctx.This["status"] = string(target.Status)
	}
	return ctx
}

// Authorize is the single access predicate used for every read and write of
// case studies and the rows that hang off them.
func Authorize(requester domain.Requester, target *domain.CaseStudy, action string) bool {
	return AuthorizeWith(caseStudyPolicy, requester, target, action)
}

func AuthorizeWith(doc PolicyDocument, requester domain.Requester, target *domain.CaseStudy, action string) bool {
	conclusion, err := EvaluatePolicy(doc, NewRequestContext(requester, target), action)
	if err != nil {
		return false
	}
	defaultAllow := doc.Versions[CurrentVersion].Defaults[action]
	return SummerizeConclusion([]Conclusion{conclusion}, defaultAllow)
}

// Filter keeps the records requester may perform action on.
func Filter(requester domain.Requester, records []domain.CaseStudy, action string) []domain.CaseStudy {
	out := make([]domain.CaseStudy, 0, len(records))
	for i := range records {
		if Authorize(requester, &records[i], action) {
			out = append(out, records[i])
		}
	}
	return out
}
