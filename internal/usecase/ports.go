package usecase

import (
	"context"
	"time"

	"github.com/totegamma/portfolio"
	"github.com/totegamma/portfolio/internal/domain"
)

// CaseStudyRepository is the record store together with its version ledger
// and search projection.
type CaseStudyRepository interface {
	Create(ctx context.Context, cs domain.CaseStudy, summary *string) (domain.WriteResult, error)
	Update(ctx context.Context, id string, patch domain.CaseStudyPatch, expectedUpdatedAt *time.Time, editor string) (domain.WriteResult, error)
	Delete(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (domain.CaseStudy, error)
	GetForWrite(ctx context.Context, id string) (domain.CaseStudy, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.CaseStudy, error)
	IncrementViews(ctx context.Context, id string) error
	ListVersions(ctx context.Context, id string) ([]domain.VersionSnapshot, error)
	GetVersion(ctx context.Context, id string, number int) (domain.VersionSnapshot, error)
	Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error)
	RebuildSearch(ctx context.Context) (int, error)
}

// Cache holds case studies for public reads. Writers Set the confirmed
// record; readers only Add, so a slow reader cannot replace a newer entry.
type Cache interface {
	Get(ctx context.Context, id string) (domain.CaseStudy, bool, error)
	Add(ctx context.Context, cs domain.CaseStudy) error
	Set(ctx context.Context, cs domain.CaseStudy) error
}

// Notifier publishes change events after confirmed writes.
type Notifier interface {
	Publish(ctx context.Context, event portfolio.ChangeEvent) error
}
