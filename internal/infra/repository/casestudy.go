package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/portfolio/internal/domain"
	"github.com/totegamma/portfolio/internal/infra/database/models"
)

var tracer = otel.Tracer("repository")

const rebuildBatchSize = 100

// CaseStudyRepository is the record store. Version snapshots and the search
// projection are written in the same transaction as the record.
type CaseStudyRepository struct {
	db     *gorm.DB
	reader *gorm.DB
	log    zerolog.Logger
	now    func() time.Time
}

type Option func(*CaseStudyRepository)

// WithReader serves reads from db, typically a replica.
func WithReader(db *gorm.DB) Option {
	return func(r *CaseStudyRepository) {
		r.reader = db
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(r *CaseStudyRepository) {
		r.log = log
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *CaseStudyRepository) {
		r.now = now
	}
}

func NewCaseStudyRepository(db *gorm.DB, opts ...Option) *CaseStudyRepository {
	r := &CaseStudyRepository{
		db:     db,
		reader: db,
		log:    zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With().Str("component", "repository").Logger()
	return r
}

// nextUpdatedAt keeps updated_at strictly increasing per record at the
// microsecond precision postgres stores.
func (r *CaseStudyRepository) nextUpdatedAt(prev time.Time) time.Time {
	now := r.now().UTC().Truncate(time.Microsecond)
	if !prev.IsZero() && !now.After(prev) {
		now = prev.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return now
}

func (r *CaseStudyRepository) Create(ctx context.Context, cs domain.CaseStudy, summary *string) (domain.WriteResult, error) {
	ctx, span := tracer.Start(ctx, "Repository.CaseStudy.Create")
	defer span.End()
	span.SetAttributes(attribute.String("case_study_id", cs.ID))

	now := r.nextUpdatedAt(time.Time{})
	cs.CreatedAt = now
	cs.UpdatedAt = now
	cs.ViewCount = 0
	cs.CurrentVersion = 1

	row, err := toModel(cs)
	if err != nil {
		return domain.WriteResult{}, classify("create", err)
	}

	var warnings []string
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errors.Wrapf(domain.ErrDuplicateID, "insert case study %s", cs.ID)
			}
			return errors.Wrap(err, "insert case study")
		}

		if _, err := appendVersion(tx, row, cs.OwnerID, summary, now); err != nil {
			return err
		}

		warnings, err = refreshSearch(tx, r.log, cs)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return domain.WriteResult{}, classify("create", err)
	}

	return domain.WriteResult{CaseStudy: cs, NewVersion: true, Warnings: warnings}, nil
}

// Update merges patch into the stored record under a row lock. When
// expectedUpdatedAt is set it must match the stored timestamp.
func (r *CaseStudyRepository) Update(
	ctx context.Context,
	id string,
	patch domain.CaseStudyPatch,
	expectedUpdatedAt *time.Time,
	editor string,
) (domain.WriteResult, error) {
	ctx, span := tracer.Start(ctx, "Repository.CaseStudy.Update")
	defer span.End()
	span.SetAttributes(attribute.String("case_study_id", id))

	var result domain.WriteResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.CaseStudy
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			Take(&row).Error
		if err != nil {
			return err
		}

		if expectedUpdatedAt != nil {
			expected := expectedUpdatedAt.UTC().Truncate(time.Microsecond)
			if !expected.Equal(row.UpdatedAt.UTC().Truncate(time.Microsecond)) {
				return domain.ConflictError{ID: id}
			}
		}

		current, err := toDomain(row)
		if err != nil {
			return err
		}

		merged := patch.Apply(current)
		merged.UpdatedAt = r.nextUpdatedAt(row.UpdatedAt)

		next, err := toModel(merged)
		if err != nil {
			return err
		}
		contentChanged := next.ContentHash != row.ContentHash

		if contentChanged {
			next.CurrentVersion, err = appendVersion(tx, next, editor, patch.ChangeSummary, merged.UpdatedAt)
			if err != nil {
				return err
			}
			merged.CurrentVersion = next.CurrentVersion
		}

		res := tx.Model(&models.CaseStudy{}).
			Where("id = ? AND lock_version = ?", id, row.LockVersion).
			Updates(map[string]any{
				"title":           next.Title,
				"description":     next.Description,
				"sections":        next.Sections,
				"content_hash":    next.ContentHash,
				"status":          next.Status,
				"featured":        next.Featured,
				"order_index":     next.OrderIndex,
				"tags":            next.Tags,
				"current_version": next.CurrentVersion,
				"updated_at":      next.UpdatedAt,
				"lock_version":    gorm.Expr("lock_version + 1"),
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "update case study")
		}
		if res.RowsAffected == 0 {
			return domain.ConflictError{ID: id}
		}

		warnings, err := refreshSearch(tx, r.log, merged)
		if err != nil {
			return err
		}

		result = domain.WriteResult{CaseStudy: merged, NewVersion: contentChanged, Warnings: warnings}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return domain.WriteResult{}, classify("update", err)
	}

	return result, nil
}

// Delete removes the record, its ledger and its search entry. It reports
// whether a record existed.
func (r *CaseStudyRepository) Delete(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Repository.CaseStudy.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("case_study_id", id))

	existed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.CaseStudy
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", id).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true

		if err := tx.Where("case_study_id = ?", id).Delete(&models.CaseStudyVersion{}).Error; err != nil {
			return errors.Wrap(err, "delete versions")
		}
		err = tx.Where("content_type = ? AND content_id = ?", domain.ContentTypeCaseStudy, id).
			Delete(&models.SearchEntry{}).Error
		if err != nil {
			return errors.Wrap(err, "delete search entry")
		}
		if err := tx.Where("id = ?", id).Delete(&models.CaseStudy{}).Error; err != nil {
			return errors.Wrap(err, "delete case study")
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return false, classify("delete", err)
	}

	return existed, nil
}

func (r *CaseStudyRepository) Get(ctx context.Context, id string) (domain.CaseStudy, error) {
	ctx, span := tracer.Start(ctx, "Repository.CaseStudy.Get")
	defer span.End()

	return r.get(ctx, r.reader, id)
}

// GetForWrite reads from the primary. Write paths use it for their
// pre-write checks so a lagging replica cannot hide a stored record.
func (r *CaseStudyRepository) GetForWrite(ctx context.Context, id string) (domain.CaseStudy, error) {
	ctx, span := tracer.Start(ctx, "Repository.CaseStudy.GetForWrite")
	defer span.End()

	return r.get(ctx, r.db, id)
}

func (r *CaseStudyRepository) get(ctx context.Context, db *gorm.DB, id string) (domain.CaseStudy, error) {
	var row models.CaseStudy
	err := db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		return domain.CaseStudy{}, classify("get", err)
	}

	cs, err := toDomain(row)
	if err != nil {
		return domain.CaseStudy{}, classify("get", err)
	}
	return cs, nil
}

func (r *CaseStudyRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.CaseStudy, error) {
	ctx, span := tracer.Start(ctx, "Repository.CaseStudy.List")
	defer span.End()

	q := r.reader.WithContext(ctx).Model(&models.CaseStudy{})
	if filter.Status != nil {
		q = q.Where("status = ?", string(*filter.Status))
	}
	if filter.Featured != nil {
		q = q.Where("featured = ?", *filter.Featured)
	}
	if filter.Tag != "" {
		encoded, err := json.Marshal(filter.Tag)
		if err != nil {
			return nil, classify("list", err)
		}
		if r.reader.Dialector.Name() == "postgres" {
			q = q.Where("tags @> ?::jsonb", "["+string(encoded)+"]")
		} else {
			q = q.Where("tags LIKE ?", "%"+string(encoded)+"%")
		}
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []models.CaseStudy
	if err := q.Order("order_index ASC").Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, classify("list", err)
	}

	out := make([]domain.CaseStudy, 0, len(rows))
	for _, row := range rows {
		cs, err := toDomain(row)
		if err != nil {
			return nil, classify("list", err)
		}
		out = append(out, cs)
	}
	return out, nil
}

// IncrementViews bumps the view counter without touching updated_at, the
// ledger or the search projection.
func (r *CaseStudyRepository) IncrementViews(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Repository.CaseStudy.IncrementViews")
	defer span.End()

	res := r.db.WithContext(ctx).Model(&models.CaseStudy{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + 1"))
	if res.Error != nil {
		return classify("record view", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NotFoundError{Resource: "case study"}
	}
	return nil
}

func (r *CaseStudyRepository) ListVersions(ctx context.Context, id string) ([]domain.VersionSnapshot, error) {
	ctx, span := tracer.Start(ctx, "Repository.CaseStudy.ListVersions")
	defer span.End()

	var rows []models.CaseStudyVersion
	err := r.reader.WithContext(ctx).
		Where("case_study_id = ?", id).
		Order("version_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, classify("list versions", err)
	}

	out := make([]domain.VersionSnapshot, 0, len(rows))
	for _, row := range rows {
		v, err := versionToDomain(row)
		if err != nil {
			return nil, classify("list versions", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *CaseStudyRepository) GetVersion(ctx context.Context, id string, number int) (domain.VersionSnapshot, error) {
	ctx, span := tracer.Start(ctx, "Repository.CaseStudy.GetVersion")
	defer span.End()

	var row models.CaseStudyVersion
	err := r.reader.WithContext(ctx).
		Where("case_study_id = ? AND version_number = ?", id, number).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.VersionSnapshot{}, domain.NotFoundError{Resource: "version"}
	}
	if err != nil {
		return domain.VersionSnapshot{}, classify("get version", err)
	}

	v, err := versionToDomain(row)
	if err != nil {
		return domain.VersionSnapshot{}, classify("get version", err)
	}
	return v, nil
}

// Search returns case studies matching query, best match first.
func (r *CaseStudyRepository) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	ctx, span := tracer.Start(ctx, "Repository.CaseStudy.Search")
	defer span.End()

	db := r.reader.WithContext(ctx)

	var (
		matches []searchMatch
		err     error
	)
	if db.Dialector.Name() == "postgres" {
		matches, err = searchPostgres(db, query, limit)
	} else {
		matches, err = searchPortable(db, query, limit)
	}
	if err != nil {
		return nil, classify("search", err)
	}
	if len(matches) == 0 {
		return []domain.SearchHit{}, nil
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ContentID)
	}

	var rows []models.CaseStudy
	if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, classify("search", err)
	}
	byID := make(map[string]models.CaseStudy, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	hits := make([]domain.SearchHit, 0, len(matches))
	for _, m := range matches {
		row, ok := byID[m.ContentID]
		if !ok {
			continue
		}
		cs, err := toDomain(row)
		if err != nil {
			return nil, classify("search", err)
		}
		hits = append(hits, domain.SearchHit{CaseStudy: cs, Rank: m.Rank})
	}
	return hits, nil
}

// RebuildSearch drops every case study entry and recomputes the projection
// from the record store. It returns the number of entries written.
func (r *CaseStudyRepository) RebuildSearch(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Repository.CaseStudy.RebuildSearch")
	defer span.End()

	count := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("content_type = ?", domain.ContentTypeCaseStudy).
			Delete(&models.SearchEntry{}).Error
		if err != nil {
			return errors.Wrap(err, "clear search entries")
		}

		var batch []models.CaseStudy
		res := tx.Model(&models.CaseStudy{}).FindInBatches(&batch, rebuildBatchSize, func(btx *gorm.DB, _ int) error {
			entries := make([]models.SearchEntry, 0, len(batch))
			for _, row := range batch {
				cs, err := toDomain(row)
				if err != nil {
					return err
				}
				entries = append(entries, searchEntryToModel(domain.NewCaseStudySearchEntry(cs, cs.UpdatedAt)))
			}
			if len(entries) == 0 {
				return nil
			}
			if err := tx.Create(&entries).Error; err != nil {
				return errors.Wrap(err, "insert search entries")
			}
			count += len(entries)
			return nil
		})
		return res.Error
	})
	if err != nil {
		span.RecordError(err)
		return 0, classify("rebuild search", err)
	}

	r.log.Info().Int("entries", count).Msg("search projection rebuilt")
	return count, nil
}
