package repository

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/totegamma/portfolio/internal/domain"
	"github.com/totegamma/portfolio/internal/infra/database/models"
)

const searchSavepoint = "search_projection"

// writeSearchEntry replaces the projection of one content item.
func writeSearchEntry(tx *gorm.DB, entry domain.SearchIndexEntry) error {
	err := tx.Where("content_type = ? AND content_id = ?", entry.ContentType, entry.ContentID).
		Delete(&models.SearchEntry{}).Error
	if err != nil {
		return errors.Wrap(err, "delete search entry")
	}

	row := searchEntryToModel(entry)
	if err := tx.Create(&row).Error; err != nil {
		return errors.Wrap(err, "insert search entry")
	}
	return nil
}

// refreshSearch updates the projection of cs under a savepoint. A failed
// refresh is rolled back on its own and reported as a warning. Savepoint
// errors abort the enclosing transaction.
func refreshSearch(tx *gorm.DB, log zerolog.Logger, cs domain.CaseStudy) ([]string, error) {
	if err := tx.SavePoint(searchSavepoint).Error; err != nil {
		return nil, errors.Wrap(err, "create search savepoint")
	}

	entry := domain.NewCaseStudySearchEntry(cs, cs.UpdatedAt)
	if err := writeSearchEntry(tx, entry); err != nil {
		if rbErr := tx.RollbackTo(searchSavepoint).Error; rbErr != nil {
			return nil, errors.Wrap(rbErr, "rollback search savepoint")
		}
		log.Warn().Err(err).Str("case_study_id", cs.ID).Msg("search projection refresh failed")
		return []string{domain.WarningSearchDegraded}, nil
	}

	return nil, nil
}

type searchMatch struct {
	ContentID string
	Rank      float64
}

func searchPostgres(tx *gorm.DB, query string, limit int) ([]searchMatch, error) {
	var matches []searchMatch
	err := tx.Raw(`SELECT content_id, ts_rank(to_tsvector('simple', search_vector), plainto_tsquery('simple', ?)) AS rank
		FROM search_entries
		WHERE content_type = ? AND to_tsvector('simple', search_vector) @@ plainto_tsquery('simple', ?)
		ORDER BY rank DESC, content_id
		LIMIT ?`, query, domain.ContentTypeCaseStudy, query, limit).
		Scan(&matches).Error
	if err != nil {
		return nil, errors.Wrap(err, "full text search")
	}
	return matches, nil
}

// searchPortable matches every query term against the stored lexemes and
// ranks by term frequency in the body.
func searchPortable(tx *gorm.DB, query string, limit int) ([]searchMatch, error) {
	terms := domain.Lexemes(query)
	if len(terms) == 0 {
		return nil, nil
	}

	q := tx.Model(&models.SearchEntry{}).Where("content_type = ?", domain.ContentTypeCaseStudy)
	for _, term := range terms {
		q = q.Where("(' ' || search_vector || ' ') LIKE ?", "% "+term+" %")
	}

	var rows []models.SearchEntry
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "term search")
	}

	matches := make([]searchMatch, 0, len(rows))
	for _, row := range rows {
		body := strings.ToLower(row.Body + " " + strings.Join(row.Tags, " "))
		var hits int
		for _, term := range terms {
			hits += strings.Count(body, term)
		}
		matches = append(matches, searchMatch{ContentID: row.ContentID, Rank: float64(hits)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Rank == matches[j].Rank {
			return matches[i].ContentID < matches[j].ContentID
		}
		return matches[i].Rank > matches[j].Rank
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
