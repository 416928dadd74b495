package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/portfolio"
	"github.com/totegamma/portfolio/internal/domain"
	"github.com/totegamma/portfolio/internal/metrics"
	"github.com/totegamma/portfolio/policy"
)

var tracer = otel.Tracer("usecase")

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	// search over-fetches so policy filtering rarely starves the page
	searchOverfetch = 3
)

// WriteOptions bounds the internal retry and confirmation loops.
type WriteOptions struct {
	StorageAttempts int
	ConfirmAttempts int
	ConfirmTimeout  time.Duration
	BackoffInitial  time.Duration
}

func DefaultWriteOptions() WriteOptions {
	return WriteOptions{
		StorageAttempts: 3,
		ConfirmAttempts: 3,
		ConfirmTimeout:  3 * time.Second,
		BackoffInitial:  50 * time.Millisecond,
	}
}

// CaseStudyUsecase is the only entry point for writing case studies. A write
// is acknowledged only after it has been read back from the store.
type CaseStudyUsecase struct {
	repo     CaseStudyRepository
	cache    Cache
	notifier Notifier
	metrics  *metrics.Metrics
	log      zerolog.Logger
	opts     WriteOptions
	validate *validator.Validate
}

type Option func(*CaseStudyUsecase)

func WithCache(c Cache) Option {
	return func(uc *CaseStudyUsecase) { uc.cache = c }
}

func WithNotifier(n Notifier) Option {
	return func(uc *CaseStudyUsecase) { uc.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(uc *CaseStudyUsecase) { uc.metrics = m }
}

func WithLogger(log zerolog.Logger) Option {
	return func(uc *CaseStudyUsecase) { uc.log = log }
}

func WithWriteOptions(opts WriteOptions) Option {
	return func(uc *CaseStudyUsecase) { uc.opts = opts }
}

func NewCaseStudyUsecase(repo CaseStudyRepository, opts ...Option) *CaseStudyUsecase {
	uc := &CaseStudyUsecase{
		repo:     repo,
		log:      zerolog.Nop(),
		opts:     DefaultWriteOptions(),
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	if uc.metrics == nil {
		uc.metrics = metrics.New(prometheus.NewRegistry())
	}
	defaults := DefaultWriteOptions()
	if uc.opts.StorageAttempts <= 0 {
		uc.opts.StorageAttempts = defaults.StorageAttempts
	}
	if uc.opts.ConfirmAttempts <= 0 {
		uc.opts.ConfirmAttempts = defaults.ConfirmAttempts
	}
	if uc.opts.ConfirmTimeout <= 0 {
		uc.opts.ConfirmTimeout = defaults.ConfirmTimeout
	}
	if uc.opts.BackoffInitial <= 0 {
		uc.opts.BackoffInitial = defaults.BackoffInitial
	}
	uc.log = uc.log.With().Str("component", "casestudy").Logger()
	return uc
}

func (uc *CaseStudyUsecase) Create(ctx context.Context, requester domain.Requester, input domain.CaseStudyInput) (domain.WriteResult, error) {
	ctx, span := tracer.Start(ctx, "Usecase.CaseStudy.Create")
	defer span.End()
	start := time.Now()
	id := uuid.NewString()

	if !policy.Authorize(requester, nil, policy.ActionCreate) {
		return uc.finish("create", id, start, domain.WriteResult{}, domain.AuthorizationError{Action: policy.ActionCreate})
	}
	if err := uc.validateInput(&input); err != nil {
		return uc.finish("create", id, start, domain.WriteResult{}, err)
	}

	cs := domain.CaseStudy{
		ID:          id,
		OwnerID:     requester.ID,
		Title:       input.Title,
		Description: input.Description,
		Sections:    input.Sections,
		Status:      input.Status,
		Featured:    input.Featured,
		OrderIndex:  input.OrderIndex,
		Tags:        input.Tags,
	}
	span.SetAttributes(attribute.String("case_study_id", cs.ID))

	result, err := retryStorage(ctx, uc, "create", func() (domain.WriteResult, error) {
		return uc.repo.Create(ctx, cs, input.ChangeSummary)
	})
	if errors.Is(err, domain.ErrDuplicateID) {
		result, err = uc.recoverCreate(ctx, cs)
	}
	if err != nil {
		span.RecordError(err)
		return uc.finish("create", cs.ID, start, domain.WriteResult{}, err)
	}

	result, err = uc.confirm(ctx, result)
	if err != nil {
		span.RecordError(err)
		return uc.finish("create", cs.ID, start, domain.WriteResult{}, err)
	}

	uc.afterWrite(ctx, domain.ChangeCreated, result)
	return uc.finish("create", cs.ID, start, result, nil)
}

// Update applies patch to the record. A non-nil expectedUpdatedAt turns the
// write into a compare-and-swap on the stored updated timestamp.
func (uc *CaseStudyUsecase) Update(
	ctx context.Context,
	requester domain.Requester,
	id string,
	patch domain.CaseStudyPatch,
	expectedUpdatedAt *time.Time,
) (domain.WriteResult, error) {
	ctx, span := tracer.Start(ctx, "Usecase.CaseStudy.Update")
	defer span.End()
	span.SetAttributes(attribute.String("case_study_id", id))
	start := time.Now()

	result, err := uc.update(ctx, requester, id, patch, expectedUpdatedAt)
	if err != nil {
		span.RecordError(err)
	}
	return uc.finish("update", id, start, result, err)
}

func (uc *CaseStudyUsecase) update(
	ctx context.Context,
	requester domain.Requester,
	id string,
	patch domain.CaseStudyPatch,
	expectedUpdatedAt *time.Time,
) (domain.WriteResult, error) {
	if err := uc.validatePatch(&patch); err != nil {
		return domain.WriteResult{}, err
	}

	// owner_id is immutable, so the write check can run before the locked update
	current, err := retryStorage(ctx, uc, "update", func() (domain.CaseStudy, error) {
		return uc.repo.GetForWrite(ctx, id)
	})
	if err != nil {
		return domain.WriteResult{}, err
	}
	if !policy.Authorize(requester, &current, policy.ActionWrite) {
		return domain.WriteResult{}, domain.AuthorizationError{Action: policy.ActionWrite}
	}

	result, err := retryStorage(ctx, uc, "update", func() (domain.WriteResult, error) {
		return uc.repo.Update(ctx, id, patch, expectedUpdatedAt, requester.ID)
	})
	if err != nil {
		return domain.WriteResult{}, err
	}

	result, err = uc.confirm(ctx, result)
	if err != nil {
		return domain.WriteResult{}, err
	}

	uc.afterWrite(ctx, domain.ChangeUpdated, result)
	return result, nil
}

// Delete removes the record with its history. Deleting a missing record
// succeeds.
func (uc *CaseStudyUsecase) Delete(ctx context.Context, requester domain.Requester, id string, confirmed bool) error {
	ctx, span := tracer.Start(ctx, "Usecase.CaseStudy.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("case_study_id", id))
	start := time.Now()

	if !confirmed {
		_, err := uc.finish("delete", id, start, domain.WriteResult{}, domain.ValidationError{Field: "confirmed", Message: "must be true to delete a case study"})
		return err
	}

	current, err := retryStorage(ctx, uc, "delete", func() (domain.CaseStudy, error) {
		return uc.repo.GetForWrite(ctx, id)
	})
	if errors.Is(err, domain.ErrNotFound) {
		_, err := uc.finish("delete", id, start, domain.WriteResult{}, nil)
		return err
	}
	if err != nil {
		_, err := uc.finish("delete", id, start, domain.WriteResult{}, err)
		return err
	}
	if !policy.Authorize(requester, &current, policy.ActionWrite) {
		_, err := uc.finish("delete", id, start, domain.WriteResult{}, domain.AuthorizationError{Action: policy.ActionWrite})
		return err
	}

	existed, err := retryStorage(ctx, uc, "delete", func() (bool, error) {
		return uc.repo.Delete(ctx, id)
	})
	if err != nil {
		span.RecordError(err)
		_, err := uc.finish("delete", id, start, domain.WriteResult{}, err)
		return err
	}

	// tombstone
	uc.storeCache(ctx, domain.CaseStudy{ID: id})
	if existed {
		uc.publish(ctx, portfolio.ChangeEvent{
			Type:      domain.ChangeDeleted,
			ID:        id,
			UpdatedAt: time.Now().UTC(),
		})
	}
	_, err = uc.finish("delete", id, start, domain.WriteResult{}, nil)
	return err
}

// Get returns the record if the requester may read it. Published records
// are served from the cache to callers that are neither owner nor admin.
func (uc *CaseStudyUsecase) Get(ctx context.Context, requester domain.Requester, id string) (domain.CaseStudy, error) {
	ctx, span := tracer.Start(ctx, "Usecase.CaseStudy.Get")
	defer span.End()

	if uc.cache != nil && requester.Role != domain.RoleAdmin {
		cached, ok, err := uc.cache.Get(ctx, id)
		if err != nil {
			uc.log.Warn().Err(err).Str("case_study_id", id).Msg("cache read failed")
		}
		if ok && cached.Status == domain.StatusPublished && cached.OwnerID != requester.ID {
			uc.metrics.CacheHits.Inc()
			return cached, nil
		}
	}

	cs, err := retryStorage(ctx, uc, "get", func() (domain.CaseStudy, error) {
		return uc.repo.Get(ctx, id)
	})
	if err != nil {
		return domain.CaseStudy{}, err
	}
	if !policy.Authorize(requester, &cs, policy.ActionRead) {
		return domain.CaseStudy{}, domain.AuthorizationError{Action: policy.ActionRead}
	}

	if uc.cache != nil && cs.Status == domain.StatusPublished {
		if err := uc.cache.Add(ctx, cs); err != nil {
			uc.log.Warn().Err(err).Str("case_study_id", id).Msg("cache write failed")
		}
	}
	return cs, nil
}

// List returns the records matching filter that the requester may read.
func (uc *CaseStudyUsecase) List(ctx context.Context, requester domain.Requester, filter domain.ListFilter) ([]domain.CaseStudy, error) {
	ctx, span := tracer.Start(ctx, "Usecase.CaseStudy.List")
	defer span.End()

	if requester.IsAnonymous() && filter.Status == nil {
		published := domain.StatusPublished
		filter.Status = &published
	}

	list, err := retryStorage(ctx, uc, "list", func() ([]domain.CaseStudy, error) {
		return uc.repo.List(ctx, filter)
	})
	if err != nil {
		return nil, err
	}
	return policy.Filter(requester, list, policy.ActionRead), nil
}

// RecordView counts a page view. Views are not content changes.
func (uc *CaseStudyUsecase) RecordView(ctx context.Context, requester domain.Requester, id string) error {
	ctx, span := tracer.Start(ctx, "Usecase.CaseStudy.RecordView")
	defer span.End()

	if _, err := uc.Get(ctx, requester, id); err != nil {
		return err
	}
	_, err := retryStorage(ctx, uc, "record view", func() (struct{}, error) {
		return struct{}{}, uc.repo.IncrementViews(ctx, id)
	})
	return err
}

func (uc *CaseStudyUsecase) ListVersions(ctx context.Context, requester domain.Requester, id string) ([]domain.VersionSnapshot, error) {
	ctx, span := tracer.Start(ctx, "Usecase.CaseStudy.ListVersions")
	defer span.End()

	if _, err := uc.readable(ctx, requester, id); err != nil {
		return nil, err
	}
	return retryStorage(ctx, uc, "list versions", func() ([]domain.VersionSnapshot, error) {
		return uc.repo.ListVersions(ctx, id)
	})
}

func (uc *CaseStudyUsecase) GetVersion(ctx context.Context, requester domain.Requester, id string, number int) (domain.VersionSnapshot, error) {
	ctx, span := tracer.Start(ctx, "Usecase.CaseStudy.GetVersion")
	defer span.End()

	if number < 1 {
		return domain.VersionSnapshot{}, domain.ValidationError{Field: "version", Message: "must be at least 1"}
	}
	if _, err := uc.readable(ctx, requester, id); err != nil {
		return domain.VersionSnapshot{}, err
	}
	return retryStorage(ctx, uc, "get version", func() (domain.VersionSnapshot, error) {
		return uc.repo.GetVersion(ctx, id, number)
	})
}

// RestoreVersion writes the content of snapshot number back through the
// normal update path.
func (uc *CaseStudyUsecase) RestoreVersion(
	ctx context.Context,
	requester domain.Requester,
	id string,
	number int,
	expectedUpdatedAt *time.Time,
) (domain.WriteResult, error) {
	ctx, span := tracer.Start(ctx, "Usecase.CaseStudy.RestoreVersion")
	defer span.End()
	start := time.Now()

	snapshot, err := uc.GetVersion(ctx, requester, id, number)
	if err != nil {
		return uc.finish("restore", id, start, domain.WriteResult{}, err)
	}

	summary := fmt.Sprintf("restored from version %d", number)
	patch := domain.CaseStudyPatch{
		Title:         &snapshot.Title,
		Description:   &snapshot.Description,
		Sections:      &snapshot.Sections,
		ChangeSummary: &summary,
	}
	result, err := uc.update(ctx, requester, id, patch, expectedUpdatedAt)
	return uc.finish("restore", id, start, result, err)
}

// Search runs a full-text query and drops hits the requester may not read.
func (uc *CaseStudyUsecase) Search(ctx context.Context, requester domain.Requester, query string, limit int) ([]domain.SearchHit, error) {
	ctx, span := tracer.Start(ctx, "Usecase.CaseStudy.Search")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ValidationError{Field: "q", Message: "is required"}
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	hits, err := retryStorage(ctx, uc, "search", func() ([]domain.SearchHit, error) {
		return uc.repo.Search(ctx, query, limit*searchOverfetch)
	})
	if err != nil {
		return nil, err
	}

	visible := make([]domain.SearchHit, 0, len(hits))
	for _, hit := range hits {
		if !policy.Authorize(requester, &hit.CaseStudy, policy.ActionRead) {
			continue
		}
		visible = append(visible, hit)
		if len(visible) == limit {
			break
		}
	}
	return visible, nil
}

// RebuildSearchIndex recomputes the search projection. Admin only.
func (uc *CaseStudyUsecase) RebuildSearchIndex(ctx context.Context, requester domain.Requester) (int, error) {
	ctx, span := tracer.Start(ctx, "Usecase.CaseStudy.RebuildSearchIndex")
	defer span.End()

	if !policy.Authorize(requester, nil, policy.ActionRebuildSearch) {
		return 0, domain.AuthorizationError{Action: policy.ActionRebuildSearch}
	}
	return retryStorage(ctx, uc, "rebuild search", func() (int, error) {
		return uc.repo.RebuildSearch(ctx)
	})
}

// readable loads the record from the store and checks the read policy.
func (uc *CaseStudyUsecase) readable(ctx context.Context, requester domain.Requester, id string) (domain.CaseStudy, error) {
	cs, err := retryStorage(ctx, uc, "get", func() (domain.CaseStudy, error) {
		return uc.repo.Get(ctx, id)
	})
	if err != nil {
		return domain.CaseStudy{}, err
	}
	if !policy.Authorize(requester, &cs, policy.ActionRead) {
		return domain.CaseStudy{}, domain.AuthorizationError{Action: policy.ActionRead}
	}
	return cs, nil
}

func (uc *CaseStudyUsecase) newBackOff(ctx context.Context, attempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = uc.opts.BackoffInitial
	b.MaxInterval = 20 * uc.opts.BackoffInitial
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// retryStorage runs fn until it succeeds, fails with a non-retryable error or
// the storage attempts are used up.
func retryStorage[T any](ctx context.Context, uc *CaseStudyUsecase, op string, fn func() (T, error)) (T, error) {
	var (
		out     T
		attempt int
	)
	err := backoff.Retry(func() error {
		attempt++
		v, err := fn()
		if err == nil {
			out = v
			return nil
		}
		if !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		if attempt < uc.opts.StorageAttempts {
			uc.metrics.StorageRetries.Inc()
			uc.log.Debug().Err(err).Str("operation", op).Int("attempt", attempt).Msg("retrying transient storage failure")
		}
		return err
	}, uc.newBackOff(ctx, uc.opts.StorageAttempts))
	if err == nil {
		return out, nil
	}

	var kinded domain.KindedError
	if !errors.As(err, &kinded) {
		// context expiry surfaces bare from backoff
		err = domain.StorageError{Op: op, Retryable: false, Cause: err}
	}
	return out, err
}

// recoverCreate handles an insert that found its own id already stored. Ids
// are generated per call, so an earlier attempt of this create committed
// without its acknowledgement reaching us. The stored record is accepted
// only while it still carries the submitted content.
func (uc *CaseStudyUsecase) recoverCreate(ctx context.Context, cs domain.CaseStudy) (domain.WriteResult, error) {
	stored, err := retryStorage(ctx, uc, "create", func() (domain.CaseStudy, error) {
		return uc.repo.GetForWrite(ctx, cs.ID)
	})
	if err != nil {
		uc.log.Error().Err(err).Str("case_study_id", cs.ID).Msg("failed to read back duplicated create")
		return domain.WriteResult{}, domain.UnconfirmedWriteError{ID: cs.ID}
	}
	if stored.OwnerID != cs.OwnerID || stored.Content().Hash() != cs.Content().Hash() {
		return domain.WriteResult{}, domain.UnconfirmedWriteError{ID: cs.ID}
	}
	return domain.WriteResult{CaseStudy: stored, NewVersion: true}, nil
}

// confirm re-reads the written record until the store reflects it. A record
// that has moved past the write also confirms it.
func (uc *CaseStudyUsecase) confirm(ctx context.Context, written domain.WriteResult) (domain.WriteResult, error) {
	ctx, span := tracer.Start(ctx, "Usecase.CaseStudy.Confirm")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, uc.opts.ConfirmTimeout)
	defer cancel()

	want := written.CaseStudy
	wantHash := want.Content().Hash()

	var (
		confirmed domain.CaseStudy
		attempt   int
	)
	err := backoff.Retry(func() error {
		attempt++
		if attempt > 1 {
			uc.metrics.ConfirmRetries.Inc()
		}

		stored, err := uc.repo.Get(ctx, want.ID)
		if err != nil {
			return err
		}
		if stored.UpdatedAt.After(want.UpdatedAt) {
			confirmed = stored
			return nil
		}
		if !stored.UpdatedAt.Equal(want.UpdatedAt) ||
			stored.CurrentVersion != want.CurrentVersion ||
			stored.Content().Hash() != wantHash {
			return errors.New("stored record does not reflect the write yet")
		}
		confirmed = stored
		return nil
	}, uc.newBackOff(ctx, uc.opts.ConfirmAttempts))
	if err != nil {
		span.RecordError(err)
		uc.log.Error().Err(err).
			Str("case_study_id", want.ID).
			Int("attempts", attempt).
			Msg("write could not be confirmed")
		return domain.WriteResult{}, domain.UnconfirmedWriteError{ID: want.ID}
	}

	written.CaseStudy = confirmed
	return written, nil
}

func (uc *CaseStudyUsecase) afterWrite(ctx context.Context, change domain.ChangeType, result domain.WriteResult) {
	if len(result.Warnings) > 0 {
		uc.metrics.SearchDegraded.Inc()
	}
	uc.storeCache(ctx, result.CaseStudy)
	uc.publish(ctx, portfolio.ChangeEvent{
		Type:      change,
		ID:        result.CaseStudy.ID,
		Version:   result.CaseStudy.CurrentVersion,
		UpdatedAt: result.CaseStudy.UpdatedAt,
	})
}

// storeCache overwrites the cached entry. Entries that are not published are
// never served, so they act as invalidations.
func (uc *CaseStudyUsecase) storeCache(ctx context.Context, cs domain.CaseStudy) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Set(ctx, cs); err != nil {
		uc.log.Warn().Err(err).Str("case_study_id", cs.ID).Msg("cache update failed")
	}
}

func (uc *CaseStudyUsecase) publish(ctx context.Context, event portfolio.ChangeEvent) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.Publish(ctx, event); err != nil {
		uc.log.Warn().Err(err).Str("case_study_id", event.ID).Msg("change event publish failed")
	}
}

// finish records metrics and the write log line for op.
func (uc *CaseStudyUsecase) finish(op, id string, start time.Time, result domain.WriteResult, err error) (domain.WriteResult, error) {
	elapsed := time.Since(start)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var kinded domain.KindedError
		if errors.As(err, &kinded) {
			outcome = string(kinded.Kind())
		}
		if errors.Is(err, domain.ErrConflict) {
			uc.metrics.Conflicts.Inc()
		}
	}
	uc.metrics.Writes.WithLabelValues(op, outcome).Inc()
	if err == nil {
		uc.metrics.WriteDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	}

	event := uc.log.Info()
	if err != nil {
		event = uc.log.Warn().Err(err)
		var se domain.StorageError
		if errors.As(err, &se) {
			event = uc.log.Error().Err(err).AnErr("cause", se.Cause)
		}
	}
	event.Str("operation", op).
		Str("case_study_id", id).
		Int("version", result.CaseStudy.CurrentVersion).
		Strs("warnings", result.Warnings).
		Dur("duration", elapsed).
		Str("outcome", outcome).
		Msg("case study write")

	return result, err
}
