package portfolio

import (
	"github.com/totegamma/portfolio/internal/domain"
)

// Records and their parts.
type (
	CaseStudy       = domain.CaseStudy
	Status          = domain.Status
	Sections        = domain.Sections
	Section         = domain.Section
	SectionKind     = domain.SectionKind
	SectionBody     = domain.SectionBody
	MediaItem       = domain.MediaItem
	Link            = domain.Link
	ProcessStep     = domain.ProcessStep
	VersionSnapshot = domain.VersionSnapshot
	SearchHit       = domain.SearchHit
	ListFilter      = domain.ListFilter
	ChangeType      = domain.ChangeType
)

type (
	HeroSection       = domain.HeroSection
	OverviewSection   = domain.OverviewSection
	ProblemSection    = domain.ProblemSection
	ProcessSection    = domain.ProcessSection
	ShowcaseSection   = domain.ShowcaseSection
	ReflectionSection = domain.ReflectionSection
	GallerySection    = domain.GallerySection
	ResourcesSection  = domain.ResourcesSection
)

const (
	StatusDraft     = domain.StatusDraft
	StatusPublished = domain.StatusPublished
	StatusArchived  = domain.StatusArchived

	ChangeCreated = domain.ChangeCreated
	ChangeUpdated = domain.ChangeUpdated
	ChangeDeleted = domain.ChangeDeleted
)

// Errors returned by the client.
type (
	ErrorKind             = domain.ErrorKind
	ValidationError       = domain.ValidationError
	ConflictError         = domain.ConflictError
	NotFoundError         = domain.NotFoundError
	UnconfirmedWriteError = domain.UnconfirmedWriteError
	StorageError          = domain.StorageError
	AuthorizationError    = domain.AuthorizationError
)

const (
	KindValidation       = domain.KindValidation
	KindConflict         = domain.KindConflict
	KindNotFound         = domain.KindNotFound
	KindUnconfirmedWrite = domain.KindUnconfirmedWrite
	KindStorage          = domain.KindStorage
	KindAuthorization    = domain.KindAuthorization
)

var (
	ErrValidation       = domain.ErrValidation
	ErrConflict         = domain.ErrConflict
	ErrNotFound         = domain.ErrNotFound
	ErrUnconfirmedWrite = domain.ErrUnconfirmedWrite
	ErrStorage          = domain.ErrStorage
	ErrAuthorization    = domain.ErrAuthorization
)

// IsRetryable reports whether err is a storage failure worth retrying.
func IsRetryable(err error) bool {
	return domain.IsRetryable(err)
}
