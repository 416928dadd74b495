package domain

import "context"

type ctxKey string

const (
	RequesterCtxKey ctxKey = "pf-requester"
)

const (
	ExpectedUpdatedAtHeader = "X-Expected-Updated-At"
)

// ContentType discriminators used by the search projection.
const (
	ContentTypeCaseStudy = "case_study"
)

// Role is the caller role supplied by the identity provider.
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleViewer    Role = "viewer"
	RoleEditor    Role = "editor"
	RoleAdmin     Role = "admin"
)

func ParseRole(s string) Role {
	switch s {
	case string(RoleAdmin):
		return RoleAdmin
	case string(RoleEditor):
		return RoleEditor
	case string(RoleViewer):
		return RoleViewer
	default:
		return RoleAnonymous
	}
}

// Requester is the authenticated (or anonymous) caller of an operation.
type Requester struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (r Requester) IsAnonymous() bool {
	return r.ID == ""
}

var Anonymous = Requester{Role: RoleAnonymous}

// WithRequester stores the requester on ctx.
func WithRequester(ctx context.Context, r Requester) context.Context {
	return context.WithValue(ctx, RequesterCtxKey, r)
}

// RequesterFrom returns the requester stored on ctx, or Anonymous.
func RequesterFrom(ctx context.Context) Requester {
	r, ok := ctx.Value(RequesterCtxKey).(Requester)
	if !ok {
		return Anonymous
	}
	return r
}

// ChangeType tags events published after confirmed writes.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)
