package repository

import (
	"encoding/json"

	"github.com/pkg/errors"
	"gorm.io/datatypes"

	"github.com/totegamma/portfolio/internal/domain"
	"github.com/totegamma/portfolio/internal/infra/database/models"
)

func encodeSections(ss domain.Sections) (datatypes.JSON, error) {
	b, err := json.Marshal(ss)
	if err != nil {
		return nil, errors.Wrap(err, "encode sections")
	}
	return datatypes.JSON(b), nil
}

func decodeSections(raw datatypes.JSON) (domain.Sections, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ss domain.Sections
	if err := json.Unmarshal(raw, &ss); err != nil {
		return nil, errors.Wrap(err, "decode stored sections")
	}
	return ss, nil
}

func toModel(cs domain.CaseStudy) (models.CaseStudy, error) {
	sections, err := encodeSections(cs.Sections)
	if err != nil {
		return models.CaseStudy{}, err
	}
	tags := cs.Tags
	if tags == nil {
		tags = []string{}
	}
	return models.CaseStudy{
		ID:             cs.ID,
		OwnerID:        cs.OwnerID,
		Title:          cs.Title,
		Description:    cs.Description,
		Sections:       sections,
		ContentHash:    cs.Content().Hash(),
		Status:         string(cs.Status),
		Featured:       cs.Featured,
		OrderIndex:     cs.OrderIndex,
		Tags:           datatypes.JSONSlice[string](tags),
		ViewCount:      cs.ViewCount,
		CurrentVersion: cs.CurrentVersion,
		CreatedAt:      cs.CreatedAt,
		UpdatedAt:      cs.UpdatedAt,
	}, nil
}

func toDomain(m models.CaseStudy) (domain.CaseStudy, error) {
	sections, err := decodeSections(m.Sections)
	if err != nil {
		return domain.CaseStudy{}, err
	}
	tags := []string(m.Tags)
	if tags == nil {
		tags = []string{}
	}
	return domain.CaseStudy{
		ID:             m.ID,
		OwnerID:        m.OwnerID,
		Title:          m.Title,
		Description:    m.Description,
		Sections:       sections,
		Status:         domain.Status(m.Status),
		Featured:       m.Featured,
		OrderIndex:     m.OrderIndex,
		Tags:           tags,
		ViewCount:      m.ViewCount,
		CurrentVersion: m.CurrentVersion,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}, nil
}

func versionToDomain(m models.CaseStudyVersion) (domain.VersionSnapshot, error) {
	sections, err := decodeSections(m.Sections)
	if err != nil {
		return domain.VersionSnapshot{}, err
	}
	return domain.VersionSnapshot{
		ID:            m.ID,
		CaseStudyID:   m.CaseStudyID,
		VersionNumber: m.VersionNumber,
		Title:         m.Title,
		Description:   m.Description,
		Sections:      sections,
		ContentHash:   m.ContentHash,
		ChangeSummary: m.ChangeSummary,
		CreatedBy:     m.CreatedBy,
		CreatedAt:     m.CreatedAt.UTC(),
		IsCurrent:     m.IsCurrent,
	}, nil
}

func searchEntryToModel(e domain.SearchIndexEntry) models.SearchEntry {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	return models.SearchEntry{
		ContentType:  e.ContentType,
		ContentID:    e.ContentID,
		Title:        e.Title,
		Body:         e.Body,
		Tags:         datatypes.JSONSlice[string](tags),
		SearchVector: e.SearchVector,
		IndexedAt:    e.IndexedAt,
	}
}
