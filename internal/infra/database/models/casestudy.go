package models

import (
	"time"

	"gorm.io/datatypes"
)

type CaseStudy struct {
	ID             string                      `json:"id" gorm:"primaryKey;type:text"`
	OwnerID        string                      `json:"ownerID" gorm:"type:text;not null;index"`
	Title          string                      `json:"title" gorm:"type:text;not null"`
	Description    string                      `json:"description" gorm:"type:text;not null;default:''"`
	// json rather than jsonb: section order is significant
	Sections       datatypes.JSON              `json:"sections" gorm:"type:json;not null"`
	ContentHash    string                      `json:"contentHash" gorm:"type:text;not null"`
	Status         string                      `json:"status" gorm:"type:text;not null;default:'draft';index"`
	Featured       bool                        `json:"featured" gorm:"not null;default:false"`
	OrderIndex     int                         `json:"orderIndex" gorm:"not null;default:0;index"`
	Tags           datatypes.JSONSlice[string] `json:"tags"`
	ViewCount      int64                       `json:"viewCount" gorm:"not null;default:0"`
	CurrentVersion int                         `json:"currentVersion" gorm:"not null;default:0"`
	LockVersion    int64                       `json:"-" gorm:"not null;default:0"`
	CreatedAt      time.Time                   `json:"createdAt" gorm:"->;<-:create;not null"`
	UpdatedAt      time.Time                   `json:"updatedAt" gorm:"not null;autoUpdateTime:false"`
}

type CaseStudyVersion struct {
	ID            string         `json:"id" gorm:"primaryKey;type:text"`
	CaseStudyID   string         `json:"caseStudyID" gorm:"type:text;not null;uniqueIndex:uniq_case_study_version,priority:1;index"`
	CaseStudy     CaseStudy      `json:"-" gorm:"foreignKey:CaseStudyID;references:ID;constraint:OnDelete:CASCADE;"`
	VersionNumber int            `json:"versionNumber" gorm:"not null;uniqueIndex:uniq_case_study_version,priority:2"`
	Title         string         `json:"title" gorm:"type:text;not null"`
	Description   string         `json:"description" gorm:"type:text;not null;default:''"`
	Sections      datatypes.JSON `json:"sections" gorm:"type:json;not null"`
	ContentHash   string         `json:"contentHash" gorm:"type:text;not null"`
	ChangeSummary *string        `json:"changeSummary" gorm:"type:text"`
	CreatedBy     string         `json:"createdBy" gorm:"type:text;not null"`
	CreatedAt     time.Time      `json:"createdAt" gorm:"->;<-:create;not null"`
	IsCurrent     bool           `json:"isCurrent" gorm:"not null;default:false;index"`
}

type SearchEntry struct {
	ContentType  string                      `json:"contentType" gorm:"primaryKey;type:text"`
	ContentID    string                      `json:"contentID" gorm:"primaryKey;type:text"`
	Title        string                      `json:"title" gorm:"type:text;not null"`
	Body         string                      `json:"body" gorm:"type:text;not null"`
	Tags         datatypes.JSONSlice[string] `json:"tags"`
	SearchVector string                      `json:"-" gorm:"type:text;not null"`
	IndexedAt    time.Time                   `json:"indexedAt" gorm:"not null"`
}
