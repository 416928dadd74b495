package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/portfolio/internal/domain"
)

func TestEvalLoadEq(t *testing.T) {
	ctx := RequestContext{
		Params: map[string]any{
			"user": "alice",
			"role": "admin",
		},
	}

	expr := Expr{
		Operator: "Eq",
		Args: []Expr{
			{
				Operator: "Load",
				Args: []Expr{
					{
						Const: "params.role",
					},
				},
			},
			{
				Const: "admin",
			},
		},
	}

	result, err := Eval(ctx, expr)
	require.NoError(t, err)
	assert.Equal(t, true, result.Result)
	assert.Len(t, result.Args, 2)
}

func TestEvalUnknownOperator(t *testing.T) {
	_, err := Eval(RequestContext{}, Expr{Operator: "Frobnicate"})
	assert.Error(t, err)
}

func TestEvalLoadMissingKey(t *testing.T) {
	_, err := Eval(RequestContext{Params: map[string]any{}}, Expr{
		Operator: "Load",
		Args:     []Expr{{Const: "params.nope"}},
	})
	assert.Error(t, err)
}

func TestEvalIn(t *testing.T) {
	result, err := Eval(RequestContext{}, Expr{
		Operator: "In",
		Args: []Expr{
			{Const: "editor"},
			{Const: []any{"editor", "admin"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, true, result.Result)
}

func TestConclusionOr(t *testing.T) {
	assert.Equal(t, ALLOW, UNSET.Or(ALLOW))
	assert.Equal(t, UNSET, ALLOW.Or(DENY))
	assert.Equal(t, DENY, DENY.Or(OK))
	assert.Equal(t, OK, OK.Or(UNSET))
}

func TestSummerizeConclusion(t *testing.T) {
	assert.True(t, SummerizeConclusion([]Conclusion{ALLOW}, false))
	assert.False(t, SummerizeConclusion([]Conclusion{DENY}, true))
	assert.True(t, SummerizeConclusion([]Conclusion{UNSET}, true))
	assert.False(t, SummerizeConclusion([]Conclusion{UNSET}, false))
	assert.True(t, SummerizeConclusion([]Conclusion{OK}, false))
}

func TestAuthorizeRuleTable(t *testing.T) {
	owner := domain.Requester{ID: "user-1", Role: domain.RoleEditor}
	other := domain.Requester{ID: "user-2", Role: domain.RoleEditor}
	admin := domain.Requester{ID: "root", Role: domain.RoleAdmin}
	anon := domain.Anonymous

	draft := &domain.CaseStudy{ID: "cs", OwnerID: "user-1", Status: domain.StatusDraft}
	published := &domain.CaseStudy{ID: "cs", OwnerID: "user-1", Status: domain.StatusPublished}
	archived := &domain.CaseStudy{ID: "cs", OwnerID: "user-1", Status: domain.StatusArchived}

	cases := []struct {
		name      string
		requester domain.Requester
		target    *domain.CaseStudy
		action    string
		want      bool
	}{
		{"owner reads draft", owner, draft, ActionRead, true},
		{"owner writes archived", owner, archived, ActionWrite, true},
		{"admin reads draft", admin, draft, ActionRead, true},
		{"admin writes published", admin, published, ActionWrite, true},
		{"other reads published", other, published, ActionRead, true},
		{"other reads draft", other, draft, ActionRead, false},
		{"other reads archived", other, archived, ActionRead, false},
		{"other writes published", other, published, ActionWrite, false},
		{"anonymous reads published", anon, published, ActionRead, true},
		{"anonymous reads draft", anon, draft, ActionRead, false},
		{"anonymous writes published", anon, published, ActionWrite, false},
		{"editor creates", other, nil, ActionCreate, true},
		{"viewer creates", domain.Requester{ID: "v", Role: domain.RoleViewer}, nil, ActionCreate, false},
		{"anonymous creates", anon, nil, ActionCreate, false},
		{"admin rebuilds search", admin, nil, ActionRebuildSearch, true},
		{"editor rebuilds search", owner, nil, ActionRebuildSearch, false},
		{"unknown action", admin, draft, "casestudy.explode", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Authorize(tc.requester, tc.target, tc.action))
		})
	}
}

func TestAuthorizeAnonymousNeverMatchesOwnerlessRow(t *testing.T) {
	row := &domain.CaseStudy{ID: "cs", OwnerID: "", Status: domain.StatusDraft}
	assert.False(t, Authorize(domain.Anonymous, row, ActionRead))
}

func TestAdminRoleWithoutIdentityIsNotAdmin(t *testing.T) {
	forged := domain.Requester{Role: domain.RoleAdmin}
	draft := &domain.CaseStudy{ID: "cs", OwnerID: "user-1", Status: domain.StatusDraft}
	assert.False(t, Authorize(forged, draft, ActionRead))
}

func TestFilter(t *testing.T) {
	rows := []domain.CaseStudy{
		{ID: "a", OwnerID: "u1", Status: domain.StatusPublished},
		{ID: "b", OwnerID: "u1", Status: domain.StatusDraft},
		{ID: "c", OwnerID: "u2", Status: domain.StatusDraft},
	}

	visible := Filter(domain.Requester{ID: "u2", Role: domain.RoleEditor}, rows, ActionRead)
	ids := make([]string, 0, len(visible))
	for _, r := range visible {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)
}

func TestUnsupportedPolicyVersion(t *testing.T) {
	doc := PolicyDocument{Versions: map[string]Policy{"1999-01-01": {}}}
	_, err := EvaluatePolicy(doc, RequestContext{}, ActionRead)
	assert.Error(t, err)
	assert.False(t, AuthorizeWith(doc, domain.Requester{ID: "root", Role: domain.RoleAdmin}, nil, ActionRead))
}

func TestRequestContextLookup(t *testing.T) {
	ctx := RequestContext{
		Requester: map[string]any{"id": "user-1"},
		This:      map[string]any{"meta": map[string]any{"status": "draft"}},
	}

	v, ok := ctx.Lookup("requester.id")
	assert.True(t, ok)
	assert.Equal(t, "user-1", v)

	v, ok = ctx.Lookup("this.meta.status")
	assert.True(t, ok)
	assert.Equal(t, "draft", v)

	_, ok = ctx.Lookup("this.meta.status.deeper")
	assert.False(t, ok)
	_, ok = ctx.Lookup("params.missing")
	assert.False(t, ok)
	_, ok = ctx.Lookup("unknown.id")
	assert.False(t, ok)
}
