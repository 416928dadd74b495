package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/portfolio/internal/infra/database/models"
)

// appendVersion writes a new current snapshot of row inside tx and returns its
// version number. The caller must hold the row lock on the parent.
func appendVersion(tx *gorm.DB, row models.CaseStudy, createdBy string, summary *string, now time.Time) (int, error) {
	var latest int
	err := tx.Model(&models.CaseStudyVersion{}).
		Where("case_study_id = ?", row.ID).
		Select("COALESCE(MAX(version_number), 0)").
		Scan(&latest).Error
	if err != nil {
		return 0, errors.Wrap(err, "read latest version")
	}

	err = tx.Model(&models.CaseStudyVersion{}).
		Where("case_study_id = ? AND is_current = ?", row.ID, true).
		Update("is_current", false).Error
	if err != nil {
		return 0, errors.Wrap(err, "retire current version")
	}

	snapshot := models.CaseStudyVersion{
		ID:            uuid.NewString(),
		CaseStudyID:   row.ID,
		VersionNumber: latest + 1,
		Title:         row.Title,
		Description:   row.Description,
		Sections:      row.Sections,
		ContentHash:   row.ContentHash,
		ChangeSummary: summary,
		CreatedBy:     createdBy,
		CreatedAt:     now,
		IsCurrent:     true,
	}
	if err := tx.Omit(clause.Associations).Create(&snapshot).Error; err != nil {
		return 0, errors.Wrap(err, "insert version")
	}

	return snapshot.VersionNumber, nil
}
